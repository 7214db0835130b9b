package sim

import (
	"periph.io/x/conn/v3/physic"

	"periphio/errcode"
	"periphio/platform"
)

// PWMState is a snapshot of one simulated PWM channel.
type PWMState struct {
	Timer     int
	Channel   int
	Frequency physic.Frequency
	Duty      uint16
	Active    bool
}

// Constant reports whether the output is a steady level (duty 0 or full).
func (s PWMState) Constant() (level, ok bool) {
	switch s.Duty {
	case 0:
		return false, true
	case 0xFFFF:
		return true, true
	}
	return false, false
}

type pwmChan struct {
	b     *Board
	n     int
	timer int
	ch    int
	duty  uint16
	live  bool
}

func (b *Board) PWM(n, timer, channel int) (platform.PWM, error) {
	if err := b.checkPin("sim.PWM", n); err != nil {
		return nil, err
	}
	if timer < 0 || timer >= b.desc.Timers {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "sim.PWM", Msg: "no timer"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &pwmChan{b: b, n: n, timer: timer, ch: channel, live: true}
	b.pwm[n] = c
	return c, nil
}

func (c *pwmChan) SetPeriod(f physic.Frequency) error {
	if f <= 0 {
		return errcode.OutOfRange
	}
	c.b.mu.Lock()
	c.b.timers[c.timer] = f
	c.b.mu.Unlock()
	return nil
}

func (c *pwmChan) SetDuty(d uint16) {
	c.b.mu.Lock()
	c.duty = d
	c.b.mu.Unlock()
}

func (c *pwmChan) Release() {
	c.b.mu.Lock()
	c.duty = 0
	c.live = false
	c.b.mu.Unlock()
}

// PWMState returns the state of the channel on pin n.
func (b *Board) PWMState(n int) (PWMState, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.pwm[n]
	if !ok {
		return PWMState{}, false
	}
	return PWMState{
		Timer:     c.timer,
		Channel:   c.ch,
		Frequency: b.timers[c.timer],
		Duty:      c.duty,
		Active:    c.live,
	}, true
}
