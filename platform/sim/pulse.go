package sim

import (
	"context"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"periphio/errcode"
	"periphio/platform"
)

// Train is one transmitted pulse sequence.
type Train struct {
	Durations []uint16
	Carrier   physic.Frequency
	Duty      uint16
}

type pulseOut struct {
	b       *Board
	n       int
	carrier physic.Frequency
	duty    uint16

	mu     sync.Mutex
	trains []Train
}

func (b *Board) PulseOut(n, timer int, carrier physic.Frequency, duty uint16) (platform.PulseTx, error) {
	if err := b.checkPin("sim.PulseOut", n); err != nil {
		return nil, err
	}
	p := &pulseOut{b: b, n: n, carrier: carrier, duty: duty}
	b.mu.Lock()
	b.pulseTx[n] = p
	b.mu.Unlock()
	return p, nil
}

// Send waits out the total train length like real hardware would.
func (p *pulseOut) Send(ctx context.Context, durations []uint16) error {
	var total time.Duration
	for _, d := range durations {
		total += time.Duration(d) * time.Microsecond
	}
	p.mu.Lock()
	p.trains = append(p.trains, Train{
		Durations: append([]uint16(nil), durations...),
		Carrier:   p.carrier,
		Duty:      p.duty,
	})
	p.mu.Unlock()
	t := time.NewTimer(total)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return errcode.Wrap(errcode.Timeout, "sim.PulseOut.Send", ctx.Err())
	}
}

func (p *pulseOut) Release() {}

// Trains returns every sequence sent on pin n.
func (b *Board) Trains(n int) []Train {
	b.mu.Lock()
	p := b.pulseTx[n]
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Train(nil), p.trains...)
}

type pulseIn struct {
	b *Board
	n int

	mu       sync.Mutex
	capture  func(uint16)
	idle     bool
	triggers []uint16
}

func (b *Board) PulseIn(n, timer int) (platform.PulseRx, error) {
	if err := b.checkPin("sim.PulseIn", n); err != nil {
		return nil, err
	}
	p := &pulseIn{b: b, n: n}
	b.mu.Lock()
	b.pulseRx[n] = p
	b.mu.Unlock()
	return p, nil
}

func (p *pulseIn) Start(idleHigh bool, capture func(uint16)) error {
	p.mu.Lock()
	p.idle, p.capture = idleHigh, capture
	p.mu.Unlock()
	return nil
}

func (p *pulseIn) Stop() {
	p.mu.Lock()
	p.capture = nil
	p.mu.Unlock()
}

func (p *pulseIn) Trigger(us uint16) error {
	p.mu.Lock()
	p.triggers = append(p.triggers, us)
	p.mu.Unlock()
	return nil
}

func (p *pulseIn) Release() { p.Stop() }

// FeedPulses plays measured widths into pin n as the capture interrupt
// would, returning how many were delivered (0 while stopped).
func (b *Board) FeedPulses(n int, widths ...uint16) int {
	b.mu.Lock()
	p := b.pulseRx[n]
	b.mu.Unlock()
	if p == nil {
		return 0
	}
	b.irq.Lock()
	defer b.irq.Unlock()
	p.mu.Lock()
	capture := p.capture
	p.mu.Unlock()
	if capture == nil {
		return 0
	}
	for _, w := range widths {
		capture(w)
	}
	return len(widths)
}

// Triggers returns the trigger pulses requested on pin n.
func (b *Board) Triggers(n int) []uint16 {
	b.mu.Lock()
	p := b.pulseRx[n]
	b.mu.Unlock()
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]uint16(nil), p.triggers...)
}
