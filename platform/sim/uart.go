package sim

import (
	"context"
	"sync"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/ring"
)

const uartRxSize = 512

// Port is a simulated UART. TX bytes are captured; RX bytes come from
// Inject or, with loopback on, from TX.
type Port struct {
	mu       sync.Mutex
	cfg      platform.UARTConfig
	tx       []byte
	loopback bool
	hasTx    bool
	hasRx    bool
	rx       *ring.Ring[byte]
	overrun  int
}

func (b *Board) UART(ctrl, tx, rx int, cfg platform.UARTConfig) (platform.UART, error) {
	if err := b.checkCtrl("sim.UART", board.BusUART, ctrl); err != nil {
		return nil, err
	}
	for _, n := range []int{tx, rx} {
		if err := b.checkPin("sim.UART", n); err != nil {
			return nil, err
		}
	}
	p := b.Port(ctrl)
	p.mu.Lock()
	p.cfg = cfg
	p.hasTx, p.hasRx = tx >= 0, rx >= 0
	p.mu.Unlock()
	return p, nil
}

// Port returns the simulated port for controller ctrl.
func (b *Board) Port(ctrl int) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.uart[ctrl]
	if !ok {
		p = &Port{rx: ring.New[byte](uartRxSize)}
		b.uart[ctrl] = p
	}
	return p
}

// Loopback wires TX to RX.
func (p *Port) Loopback(on bool) {
	p.mu.Lock()
	p.loopback = on
	p.mu.Unlock()
}

// Inject delivers bytes as if received from the line. Bytes beyond the
// RX buffer are lost and counted.
func (p *Port) Inject(data []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasRx {
		return 0
	}
	n := p.rx.WriteFrom(data)
	p.overrun += len(data) - n
	return n
}

// Sent returns everything written so far.
func (p *Port) Sent() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.tx...)
}

// Overrun counts bytes dropped by a full RX buffer.
func (p *Port) Overrun() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overrun
}

func (p *Port) Config() platform.UARTConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

func (p *Port) Configure(cfg platform.UARTConfig) error {
	if cfg.Baud == 0 {
		return errcode.OutOfRange
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	return nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	if !p.hasTx {
		p.mu.Unlock()
		return 0, &errcode.E{C: errcode.Unsupported, Op: "sim.UART.Write", Msg: "no tx pin"}
	}
	p.tx = append(p.tx, b...)
	loop := p.loopback && p.hasRx
	p.mu.Unlock()
	if loop {
		p.Inject(b)
	}
	return len(b), nil
}

// RecvSomeContext blocks until at least one byte is buffered or ctx ends.
func (p *Port) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	for {
		if n := p.rx.ReadInto(buf); n > 0 {
			return n, nil
		}
		select {
		case <-p.rx.Readable():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (p *Port) Buffered() int { return p.rx.Len() }

func (p *Port) Discard() { p.rx.Discard() }

func (p *Port) Release() {
	p.mu.Lock()
	p.hasTx, p.hasRx = false, false
	p.mu.Unlock()
	p.rx.Discard()
}
