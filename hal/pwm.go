package hal

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/mathx"
	"periphio/x/ramp"
)

// DutyFullScale is the top of the duty-cycle range: 0 is always low,
// DutyFullScale always high.
const DutyFullScale = 0xFFFF

// DefaultPWMFrequency is used when PWMConfig.Frequency is zero.
const DefaultPWMFrequency = 500 * physic.Hertz

type PWMConfig struct {
	Frequency physic.Frequency
	DutyCycle int
	// VariableFrequency reserves the pin's timer exclusively so the
	// frequency may change later.
	VariableFrequency bool
}

type PWMOut struct {
	claim    *Claim
	ctx      *Context
	hw       platform.PWM
	timer    int
	variable bool

	mu   sync.Mutex
	freq physic.Frequency
	duty uint16
	fade uint64 // generation; bumping it cancels a running Fade
}

func NewPWMOut(ctx *Context, p board.Pin, cfg PWMConfig) (*PWMOut, error) {
	const op = "pwm"
	if err := ctx.Require(op, p, board.PWM); err != nil {
		return nil, err
	}
	def, _ := ctx.table.Def(p)
	if def.Timer < 0 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: def.Name + " has no timer channel"}
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = DefaultPWMFrequency
	}
	if err := ctx.checkFrequency(op, cfg.Frequency); err != nil {
		return nil, err
	}
	if !mathx.InRange(cfg.DutyCycle, 0, DutyFullScale) {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "duty cycle"}
	}

	cl, err := ctx.Claim(op, p)
	if err != nil {
		return nil, err
	}
	timer := int(def.Timer)
	program := true
	if cfg.VariableFrequency {
		err = ctx.reg.ClaimTimerExclusive(cl.id, timer)
	} else {
		program, err = ctx.reg.ClaimTimerShared(cl.id, timer, cfg.Frequency)
	}
	if err != nil {
		// the pin goes back to the pool; timer failure is reported as such
		cl.Release()
		return nil, err
	}
	hw, err := ctx.be.PWM(p.Number(), timer, int(def.Channel))
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	if program {
		if err := hw.SetPeriod(cfg.Frequency); err != nil {
			hw.Release()
			cl.Release()
			return nil, errcode.Wrap(errcode.OutOfRange, op, err)
		}
	}
	hw.SetDuty(uint16(cfg.DutyCycle))

	pw := &PWMOut{
		claim:    cl,
		ctx:      ctx,
		hw:       hw,
		timer:    timer,
		variable: cfg.VariableFrequency,
		freq:     cfg.Frequency,
		duty:     uint16(cfg.DutyCycle),
	}
	cl.Bind(pw.teardown)
	ctx.log.Debug("pwm up", "pin", def.Name, "timer", timer, "freq", cfg.Frequency, "variable", pw.variable)
	return pw, nil
}

func (c *Context) checkFrequency(op string, f physic.Frequency) error {
	d := c.table.Descriptor()
	if f <= 0 || (d.PWMMin > 0 && f < d.PWMMin) || (d.PWMMax > 0 && f > d.PWMMax) {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "frequency " + f.String()}
	}
	return nil
}

func (pw *PWMOut) teardown() {
	pw.mu.Lock()
	pw.fade++
	pw.duty = 0
	pw.mu.Unlock()
	pw.hw.SetDuty(0)
	pw.hw.Release()
}

// SetDutyCycle is O(1) and cancels any running fade.
func (pw *PWMOut) SetDutyCycle(v int) error {
	const op = "pwm.SetDutyCycle"
	if err := pw.claim.Check(op); err != nil {
		return err
	}
	if !mathx.InRange(v, 0, DutyFullScale) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	pw.mu.Lock()
	pw.fade++
	pw.duty = uint16(v)
	pw.hw.SetDuty(pw.duty)
	pw.mu.Unlock()
	return nil
}

func (pw *PWMOut) DutyCycle() int {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return int(pw.duty)
}

// SetFrequency retunes the timer; only variable-frequency outputs may.
func (pw *PWMOut) SetFrequency(f physic.Frequency) error {
	const op = "pwm.SetFrequency"
	if err := pw.claim.Check(op); err != nil {
		return err
	}
	if !pw.variable {
		return &errcode.E{C: errcode.FixedFrequency, Op: op, Msg: "constructed without VariableFrequency"}
	}
	if err := pw.ctx.checkFrequency(op, f); err != nil {
		return err
	}
	if err := pw.ctx.reg.RetuneTimer(pw.claim.id, pw.timer, f); err != nil {
		return err
	}
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if err := pw.hw.SetPeriod(f); err != nil {
		return errcode.Wrap(errcode.OutOfRange, op, err)
	}
	pw.freq = f
	pw.hw.SetDuty(pw.duty)
	return nil
}

func (pw *PWMOut) Frequency() physic.Frequency {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.freq
}

func (pw *PWMOut) VariableFrequency() bool { return pw.variable }

// Fade ramps the duty cycle to 'to' over d in steps and blocks until done.
// A concurrent SetDutyCycle or Deinit ends the fade early without error.
func (pw *PWMOut) Fade(ctx context.Context, to int, d time.Duration, steps int) error {
	const op = "pwm.Fade"
	if err := pw.claim.Check(op); err != nil {
		return err
	}
	if !mathx.InRange(to, 0, DutyFullScale) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	pw.mu.Lock()
	pw.fade++
	gen := pw.fade
	from := pw.duty
	pw.mu.Unlock()

	tick := func(step time.Duration) bool {
		t := time.NewTimer(step)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return false
		}
		pw.mu.Lock()
		defer pw.mu.Unlock()
		return pw.fade == gen
	}
	set := func(lvl uint16) {
		pw.mu.Lock()
		if pw.fade == gen {
			pw.duty = lvl
			pw.hw.SetDuty(lvl)
		}
		pw.mu.Unlock()
	}
	if !ramp.Linear(from, uint16(to), d, steps, tick, set) && ctx.Err() != nil {
		return errcode.Wrap(errcode.Timeout, op, ctx.Err())
	}
	return nil
}

// Deinit drives the output low and frees the pin and timer share.
func (pw *PWMOut) Deinit() { pw.claim.Release() }
