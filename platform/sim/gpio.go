package sim

import (
	"sync"
	"time"

	"periphio/platform"
)

// Edge is one recorded output transition.
type Edge struct {
	At    time.Time
	Level bool
}

const maxEdges = 4096

// Pin implements platform.GPIO.
type Pin struct {
	b      *Board
	number int

	mu    sync.RWMutex
	out   bool
	drive platform.Drive
	pull  platform.Pull
	level bool  // driven level when output
	ext   *bool // external stimulus when input
	edges []Edge
}

func (b *Board) GPIO(n int) (platform.GPIO, error) {
	if err := b.checkPin("sim.GPIO", n); err != nil {
		return nil, err
	}
	return b.pin(n), nil
}

// pin returns the stable *Pin for n.
func (b *Board) pin(n int) *Pin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[n]
	if !ok {
		p = &Pin{b: b, number: n}
		b.pins[n] = p
	}
	return p
}

// PinState exposes the simulated pin for assertions.
func (b *Board) PinState(n int) *Pin { return b.pin(n) }

// Bridge ties two pins together with a wire.
func (b *Board) Bridge(x, y int) {
	b.mu.Lock()
	b.bridges[x] = y
	b.bridges[y] = x
	b.mu.Unlock()
}

// Drive applies an external level to an input pin; nil removes it.
func (b *Board) Drive(n int, level *bool) {
	p := b.pin(n)
	p.mu.Lock()
	p.ext = level
	p.mu.Unlock()
}

// Level is a helper for Drive.
func Level(v bool) *bool { return &v }

func (p *Pin) Number() int { return p.number }

func (p *Pin) ConfigureInput(pull platform.Pull) error {
	p.mu.Lock()
	p.out = false
	p.pull = pull
	p.mu.Unlock()
	return nil
}

func (p *Pin) ConfigureOutput(initial bool, drive platform.Drive) error {
	p.mu.Lock()
	p.out = true
	p.drive = drive
	p.pull = platform.PullNone
	p.record(initial)
	p.mu.Unlock()
	return nil
}

// caller holds p.mu
func (p *Pin) record(level bool) {
	if len(p.edges) > 0 && p.level == level {
		return
	}
	p.level = level
	if len(p.edges) >= maxEdges {
		p.edges = append(p.edges[:0], p.edges[len(p.edges)/2:]...)
	}
	p.edges = append(p.edges, Edge{At: time.Now(), Level: level})
}

func (p *Pin) Set(level bool) {
	p.mu.Lock()
	if p.out {
		p.record(level)
	}
	p.mu.Unlock()
}

// Get samples the line: own drive when output, otherwise an external
// stimulus, a bridged driver, then the pull.
func (p *Pin) Get() bool {
	p.mu.RLock()
	out, level, ext, pull, drive := p.out, p.level, p.ext, p.pull, p.drive
	p.mu.RUnlock()
	if out && !(drive == platform.OpenDrain && level) {
		return level
	}
	if ext != nil {
		return *ext
	}
	p.b.mu.Lock()
	peer, bridged := p.b.bridges[p.number]
	q := p.b.pins[peer]
	p.b.mu.Unlock()
	if bridged && q != nil {
		q.mu.RLock()
		qOut, qLevel := q.out, q.level
		q.mu.RUnlock()
		if qOut {
			return qLevel
		}
	}
	return pull == platform.PullUp
}

func (p *Pin) Release() {
	p.mu.Lock()
	p.out = false
	p.pull = platform.PullNone
	p.mu.Unlock()
}

// Output reports whether the pin is currently driven.
func (p *Pin) Output() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.out
}

// Pull reports the configured pull.
func (p *Pin) Pull() platform.Pull {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pull
}

// Edges returns the recorded output transitions (including the initial level).
func (p *Pin) Edges() []Edge {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Edge(nil), p.edges...)
}

// ResetEdges clears the transition log.
func (p *Pin) ResetEdges() {
	p.mu.Lock()
	p.edges = nil
	p.mu.Unlock()
}
