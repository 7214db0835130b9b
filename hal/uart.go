package hal

import (
	"bytes"
	"context"
	"sync"
	"time"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

type Parity = platform.Parity

const (
	ParityNone = platform.ParityNone
	ParityEven = platform.ParityEven
	ParityOdd  = platform.ParityOdd
)

// UARTConfig zero fields default to 9600 8N1 with a one second timeout. A
// negative Timeout means reads return immediately.
type UARTConfig struct {
	Baud    uint32
	Bits    uint8
	Parity  Parity
	Stop    uint8
	Timeout time.Duration
}

const maxLine = 256

func (c *UARTConfig) defaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.Bits == 0 {
		c.Bits = 8
	}
	if c.Stop == 0 {
		c.Stop = 1
	}
	switch {
	case c.Timeout == 0:
		c.Timeout = time.Second
	case c.Timeout < 0:
		c.Timeout = 0
	}
}

func (c UARTConfig) validate(op string) error {
	switch {
	case c.Bits < 5 || c.Bits > 9:
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "bits"}
	case c.Stop != 1 && c.Stop != 2:
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "stop bits"}
	case c.Parity > ParityOdd:
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "parity"}
	}
	return nil
}

func (c UARTConfig) platform() platform.UARTConfig {
	return platform.UARTConfig{Baud: c.Baud, Bits: c.Bits, Stop: c.Stop, Parity: c.Parity}
}

// UART is a serial port. Either direction may be absent.
type UART struct {
	claim *Claim
	ctrl  int
	hw    platform.UART
	lock  busLock
	hasTx bool
	hasRx bool

	mu      sync.Mutex
	cfg     UARTConfig
	pending []byte // bytes read past the last line break
}

func NewUART(ctx *Context, tx, rx board.Pin, cfg UARTConfig) (*UART, error) {
	const op = "uart"
	if !tx.Valid() && !rx.Valid() {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "need tx or rx"}
	}
	for _, p := range []board.Pin{tx, rx} {
		if !p.Valid() {
			continue
		}
		if err := ctx.Require(op, p, board.UART); err != nil {
			return nil, err
		}
	}
	cfg.defaults()
	if err := cfg.validate(op); err != nil {
		return nil, err
	}
	routes := ctx.table.Routes(board.BusUART,
		board.RolePin{Pin: tx, Role: board.RoleTX},
		board.RolePin{Pin: rx, Role: board.RoleRX})
	if len(routes) == 0 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "pins cannot form a uart"}
	}
	cl, err := ctx.Claim(op, tx, rx)
	if err != nil {
		return nil, err
	}
	ctrl, err := ctx.reg.ClaimController(cl.id, board.BusUART, routes)
	if err != nil {
		cl.Release()
		return nil, err
	}
	hw, err := ctx.be.UART(ctrl, tx.Number(), rx.Number(), cfg.platform())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	u := &UART{claim: cl, ctrl: ctrl, hw: hw, cfg: cfg, hasTx: tx.Valid(), hasRx: rx.Valid()}
	cl.Bind(func() {
		u.lock.kill()
		u.hw.Release()
	})
	ctx.log.Debug("uart up", "ctrl", ctrl, "baud", cfg.Baud)
	return u, nil
}

func (u *UART) Controller() int { return u.ctrl }

func (u *UART) Config() UARTConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cfg
}

func (u *UART) timeout() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cfg.Timeout
}

// Read fills p, waiting at most the configured timeout. A timeout is not
// an error: whatever arrived is returned.
func (u *UART) Read(p []byte) (int, error) {
	const op = "uart.Read"
	if err := u.claim.Check(op); err != nil {
		return 0, err
	}
	if !u.hasRx {
		return 0, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "no rx pin"}
	}
	u.mu.Lock()
	n := copy(p, u.pending)
	u.pending = u.pending[n:]
	u.mu.Unlock()
	if n == len(p) {
		return n, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), u.timeout())
	defer cancel()
	for n < len(p) {
		if u.hw.Buffered() == 0 && ctx.Err() != nil {
			break
		}
		m, err := u.hw.RecvSomeContext(ctx, p[n:])
		n += m
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return n, errcode.Wrap(errcode.Transport, op, err)
		}
		if !u.claim.Alive() {
			return n, &errcode.E{C: errcode.Deinitialized, Op: op}
		}
	}
	return n, nil
}

// ReadLine returns the next LF-terminated line without its terminator; CR
// bytes are dropped. It returns nil with no error when the timeout passes
// first, keeping the partial line for the next call. Lines longer than
// 256 bytes are returned in pieces.
func (u *UART) ReadLine() ([]byte, error) {
	const op = "uart.ReadLine"
	if err := u.claim.Check(op); err != nil {
		return nil, err
	}
	if !u.hasRx {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "no rx pin"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), u.timeout())
	defer cancel()
	var buf [64]byte
	for {
		if line, ok := u.takeLine(); ok {
			return line, nil
		}
		if u.hw.Buffered() == 0 && ctx.Err() != nil {
			return nil, nil
		}
		n, err := u.hw.RecvSomeContext(ctx, buf[:])
		if n > 0 {
			u.mu.Lock()
			for _, b := range buf[:n] {
				if b != '\r' {
					u.pending = append(u.pending, b)
				}
			}
			u.mu.Unlock()
		}
		if err != nil && ctx.Err() == nil {
			return nil, errcode.Wrap(errcode.Transport, op, err)
		}
	}
}

func (u *UART) takeLine() ([]byte, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := bytes.IndexByte(u.pending, '\n')
	switch {
	case i >= 0:
		line := append([]byte(nil), u.pending[:i]...)
		u.pending = u.pending[i+1:]
		return line, true
	case len(u.pending) >= maxLine:
		line := append([]byte(nil), u.pending[:maxLine]...)
		u.pending = u.pending[maxLine:]
		return line, true
	}
	return nil, false
}

// Write queues p for transmission, waiting up to the timeout for room.
func (u *UART) Write(p []byte) (int, error) {
	const op = "uart.Write"
	if err := u.claim.Check(op); err != nil {
		return 0, err
	}
	if !u.hasTx {
		return 0, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "no tx pin"}
	}
	deadline := time.Now().Add(u.timeout())
	n := 0
	for n < len(p) {
		m, err := u.hw.Write(p[n:])
		n += m
		if err != nil {
			return n, errcode.Wrap(errcode.Of(err), op, err)
		}
		if n < len(p) {
			if time.Now().After(deadline) {
				return n, &errcode.E{C: errcode.Timeout, Op: op, Msg: "tx queue full"}
			}
			time.Sleep(pollInterval)
		}
	}
	return n, nil
}

// InWaiting counts bytes available to Read without blocking.
func (u *UART) InWaiting() int {
	if !u.claim.Alive() {
		return 0
	}
	u.mu.Lock()
	n := len(u.pending)
	u.mu.Unlock()
	return n + u.hw.Buffered()
}

func (u *UART) ResetInputBuffer() {
	if !u.claim.Alive() {
		return
	}
	u.mu.Lock()
	u.pending = nil
	u.mu.Unlock()
	u.hw.Discard()
}

func (u *UART) SetBaudRate(baud uint32) error {
	const op = "uart.SetBaudRate"
	if err := u.claim.Check(op); err != nil {
		return err
	}
	if baud == 0 {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "baud"}
	}
	u.mu.Lock()
	cfg := u.cfg
	cfg.Baud = baud
	u.mu.Unlock()
	if err := u.hw.Configure(cfg.platform()); err != nil {
		return errcode.Wrap(errcode.Of(err), op, err)
	}
	u.mu.Lock()
	u.cfg = cfg
	u.mu.Unlock()
	return nil
}

// SetTimeout changes the read and write timeout; negative means none.
func (u *UART) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	u.mu.Lock()
	u.cfg.Timeout = d
	u.mu.Unlock()
}

func (u *UART) TryLock() (*Lease, bool) {
	if !u.claim.Alive() {
		return nil, false
	}
	return u.lock.tryLock()
}

func (u *UART) Lock(ctx context.Context) (*Lease, error) {
	if err := u.claim.Check("uart.Lock"); err != nil {
		return nil, err
	}
	return u.lock.lock(ctx, "uart.Lock")
}

func (u *UART) Locked() bool { return u.lock.locked() }

func (u *UART) Deinit() { u.claim.Release() }
