package hal

import (
	"context"
	"sync"

	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/mathx"
	"periphio/x/ring"
)

// ---- Output ----

type PulseOutConfig struct {
	// Carrier modulates high periods (e.g. 38 kHz for infrared); zero
	// sends plain levels.
	Carrier physic.Frequency
	// DutyCycle of the carrier, 0..65535. Nil means half.
	DutyCycle *int
}

type PulseOut struct {
	claim *Claim
	hw    platform.PulseTx
	mu    sync.Mutex
}

func NewPulseOut(ctx *Context, p board.Pin, cfg PulseOutConfig) (*PulseOut, error) {
	const op = "pulse_out"
	if err := ctx.Require(op, p, board.Pulse); err != nil {
		return nil, err
	}
	if cfg.Carrier < 0 {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "carrier"}
	}
	if cfg.Carrier > 0 {
		if err := ctx.checkFrequency(op, cfg.Carrier); err != nil {
			return nil, err
		}
	}
	duty := DutyFullScale / 2
	if cfg.DutyCycle != nil {
		duty = *cfg.DutyCycle
	}
	if !mathx.InRange(duty, 0, DutyFullScale) {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "duty cycle"}
	}
	cl, timer, err := ctx.claimPulse(op, p)
	if err != nil {
		return nil, err
	}
	hw, err := ctx.be.PulseOut(p.Number(), timer, cfg.Carrier, uint16(duty))
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	cl.Bind(hw.Release)
	return &PulseOut{claim: cl, hw: hw}, nil
}

// claimPulse takes the pin and then any free pulse timer; on timer
// failure the pin is returned.
func (c *Context) claimPulse(op string, p board.Pin) (*Claim, int, error) {
	cl, err := c.Claim(op, p)
	if err != nil {
		return nil, -1, err
	}
	timer, err := c.reg.ClaimFreeTimer(cl.id, c.table.Descriptor().PulseTimers)
	if err != nil {
		cl.Release()
		return nil, -1, err
	}
	return cl, timer, nil
}

// Send transmits durations (microseconds, high first) and returns when the
// last one has elapsed.
func (po *PulseOut) Send(durations []uint16) error {
	return po.SendContext(context.Background(), durations)
}

func (po *PulseOut) SendContext(ctx context.Context, durations []uint16) error {
	const op = "pulse_out.Send"
	if err := po.claim.Check(op); err != nil {
		return err
	}
	if len(durations) == 0 {
		return nil
	}
	po.mu.Lock()
	defer po.mu.Unlock()
	if err := po.hw.Send(ctx, durations); err != nil {
		return errcode.Wrap(errcode.Of(err), op, err)
	}
	return nil
}

func (po *PulseOut) Deinit() { po.claim.Release() }

// ---- Input ----

type PulseInConfig struct {
	MaxLen    int  // window size; default 2
	IdleState bool // line level between pulses
}

// PulseIn records pulse widths. The capture interrupt pushes into a
// lock-free ring that overwrites its oldest entry when full; the caller's
// side drains it into a window of MaxLen entries that also drops its oldest
// entries when full.
type PulseIn struct {
	claim *Claim
	hw    platform.PulseRx
	idle  bool
	q     *ring.Ring[uint16]

	mu      sync.Mutex
	win     []uint16 // circular, len == MaxLen
	head    int
	n       int
	dropped uint64
	paused  bool
}

func NewPulseIn(ctx *Context, p board.Pin, cfg PulseInConfig) (*PulseIn, error) {
	const op = "pulse_in"
	if err := ctx.Require(op, p, board.Pulse); err != nil {
		return nil, err
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = 2
	}
	if !mathx.InRange(cfg.MaxLen, 1, 1<<15) {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "maxlen"}
	}
	cl, timer, err := ctx.claimPulse(op, p)
	if err != nil {
		return nil, err
	}
	hw, err := ctx.be.PulseIn(p.Number(), timer)
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	size := ring.SizeFor(2 * cfg.MaxLen)
	if size < 64 {
		size = 64
	}
	pi := &PulseIn{
		claim: cl,
		hw:    hw,
		idle:  cfg.IdleState,
		q:     ring.New[uint16](size),
		win:   make([]uint16, cfg.MaxLen),
	}
	if err := hw.Start(cfg.IdleState, pi.capture); err != nil {
		hw.Release()
		cl.Release()
		return nil, errcode.Wrap(errcode.Transport, op, err)
	}
	cl.Bind(hw.Release)
	return pi, nil
}

// capture runs in interrupt context: no locks, no allocation.
func (pi *PulseIn) capture(us uint16) {
	pi.q.Overwrite(us)
}

// caller holds pi.mu
func (pi *PulseIn) drain() {
	lost := pi.q.DrainLatest(func(v uint16) {
		if pi.n == len(pi.win) {
			pi.head = (pi.head + 1) % len(pi.win)
			pi.n--
			pi.dropped++
		}
		pi.win[(pi.head+pi.n)%len(pi.win)] = v
		pi.n++
	})
	pi.dropped += uint64(lost)
}

func (pi *PulseIn) MaxLen() int { return len(pi.win) }

func (pi *PulseIn) IdleState() bool { return pi.idle }

// Len is the number of widths currently held.
func (pi *PulseIn) Len() int {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	return pi.n
}

// Dropped counts widths discarded because the window was full.
func (pi *PulseIn) Dropped() uint64 {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	return pi.dropped
}

// At returns the i-th oldest width; negative i counts from the newest.
func (pi *PulseIn) At(i int) (uint16, error) {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	if i < 0 {
		i += pi.n
	}
	if i < 0 || i >= pi.n {
		return 0, &errcode.E{C: errcode.OutOfRange, Op: "pulse_in.At"}
	}
	return pi.win[(pi.head+i)%len(pi.win)], nil
}

// PopLeft removes and returns the oldest width.
func (pi *PulseIn) PopLeft() (uint16, error) {
	if err := pi.claim.Check("pulse_in.PopLeft"); err != nil {
		return 0, err
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	if pi.n == 0 {
		return 0, &errcode.E{C: errcode.OutOfRange, Op: "pulse_in.PopLeft", Msg: "empty"}
	}
	v := pi.win[pi.head]
	pi.head = (pi.head + 1) % len(pi.win)
	pi.n--
	return v, nil
}

// Snapshot copies the window, oldest first.
func (pi *PulseIn) Snapshot() []uint16 {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	out := make([]uint16, pi.n)
	for i := range out {
		out[i] = pi.win[(pi.head+i)%len(pi.win)]
	}
	return out
}

// Clear empties the window; the drop counter is kept.
func (pi *PulseIn) Clear() {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	pi.drain()
	pi.head, pi.n = 0, 0
}

// Pause stops capture so the window can be inspected coherently.
func (pi *PulseIn) Pause() error {
	if err := pi.claim.Check("pulse_in.Pause"); err != nil {
		return err
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if !pi.paused {
		pi.hw.Stop()
		pi.paused = true
	}
	return nil
}

// Resume restarts capture, first sending a trigger pulse of triggerUS
// microseconds when non-zero (e.g. to ping an ultrasonic sensor).
func (pi *PulseIn) Resume(triggerUS uint16) error {
	const op = "pulse_in.Resume"
	if err := pi.claim.Check(op); err != nil {
		return err
	}
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if triggerUS > 0 {
		if err := pi.hw.Trigger(triggerUS); err != nil {
			return errcode.Wrap(errcode.Transport, op, err)
		}
	}
	if pi.paused {
		if err := pi.hw.Start(pi.idle, pi.capture); err != nil {
			return errcode.Wrap(errcode.Transport, op, err)
		}
		pi.paused = false
	}
	return nil
}

func (pi *PulseIn) Paused() bool {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.paused
}

func (pi *PulseIn) Deinit() { pi.claim.Release() }
