package hal

import (
	"context"
	"time"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

const (
	DefaultI2CFrequency = 100 * physic.KiloHertz
	maxI2CFrequency     = 1 * physic.MegaHertz

	// i2cTimeout bounds one transaction including queueing.
	i2cTimeout = 250 * time.Millisecond
)

// request posted to the per-bus worker; w and r are the worker's own
// copies so a timed-out caller keeps sole use of its buffers
type i2cReq struct {
	addr uint16
	w, r []byte
	done chan error // buffered(1); worker replies best-effort
}

// i2cWorker serialises hardware access behind one goroutine per bus.
type i2cWorker struct {
	hw   platform.I2C
	reqs chan i2cReq
	quit chan struct{}
	done chan struct{}
}

func newI2CWorker(hw platform.I2C) *i2cWorker {
	w := &i2cWorker{
		hw:   hw,
		reqs: make(chan i2cReq, 4),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *i2cWorker) loop() {
	defer close(w.done)
	for {
		select {
		case req := <-w.reqs:
			err := w.hw.Tx(req.addr, req.w, req.r)
			select {
			case req.done <- err:
			default:
			}
		case <-w.quit:
			return
		}
	}
}

func (w *i2cWorker) stop() {
	close(w.quit)
	<-w.done
}

func (w *i2cWorker) tx(addr uint16, wb, rb []byte) error {
	req := i2cReq{addr: addr, done: make(chan error, 1)}
	if len(wb) > 0 {
		req.w = append([]byte(nil), wb...)
	}
	if len(rb) > 0 {
		req.r = make([]byte, len(rb))
	}
	t := time.NewTimer(i2cTimeout)
	defer t.Stop()
	select {
	case w.reqs <- req:
	case <-w.quit:
		return errcode.Deinitialized
	case <-t.C:
		return errcode.Busy
	}
	select {
	case err := <-req.done:
		copy(rb, req.r)
		return err
	case <-t.C:
		return errcode.Timeout
	}
}

// I2C is a two-wire bus master.
type I2C struct {
	claim *Claim
	ctrl  int
	hw    platform.I2C
	w     *i2cWorker
	lock  busLock
	freq  physic.Frequency
}

// NewI2C builds a bus on scl/sda. The pins must route to a common
// controller, and a free controller must remain.
func NewI2C(ctx *Context, scl, sda board.Pin, freq physic.Frequency) (*I2C, error) {
	const op = "i2c"
	for _, p := range []board.Pin{scl, sda} {
		if err := ctx.Require(op, p, board.I2C); err != nil {
			return nil, err
		}
	}
	if freq == 0 {
		freq = DefaultI2CFrequency
	}
	if freq < 0 || freq > maxI2CFrequency {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "frequency " + freq.String()}
	}
	routes := ctx.table.Routes(board.BusI2C,
		board.RolePin{Pin: scl, Role: board.RoleSCL},
		board.RolePin{Pin: sda, Role: board.RoleSDA})
	if len(routes) == 0 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "pins cannot form an i2c bus"}
	}
	cl, err := ctx.Claim(op, scl, sda)
	if err != nil {
		return nil, err
	}
	ctrl, err := ctx.reg.ClaimController(cl.id, board.BusI2C, routes)
	if err != nil {
		cl.Release()
		return nil, err
	}
	hw, err := ctx.be.I2C(ctrl, scl.Number(), sda.Number(), freq)
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	b := &I2C{claim: cl, ctrl: ctrl, hw: hw, w: newI2CWorker(hw), freq: freq}
	cl.Bind(func() {
		b.lock.kill()
		b.w.stop()
		b.hw.Release()
	})
	ctx.log.Debug("i2c up", "ctrl", ctrl, "scl", ctx.table.Name(scl), "sda", ctx.table.Name(sda), "freq", freq)
	return b, nil
}

func (b *I2C) Controller() int             { return b.ctrl }
func (b *I2C) Frequency() physic.Frequency { return b.freq }

// TryLock never blocks.
func (b *I2C) TryLock() (*I2CLease, bool) {
	if !b.claim.Alive() {
		return nil, false
	}
	ls, ok := b.lock.tryLock()
	if !ok {
		return nil, false
	}
	return &I2CLease{Lease: ls, bus: b}, true
}

// Lock retries TryLock until it succeeds or ctx ends.
func (b *I2C) Lock(ctx context.Context) (*I2CLease, error) {
	if err := b.claim.Check("i2c.Lock"); err != nil {
		return nil, err
	}
	ls, err := b.lock.lock(ctx, "i2c.Lock")
	if err != nil {
		return nil, err
	}
	return &I2CLease{Lease: ls, bus: b}, nil
}

func (b *I2C) Locked() bool { return b.lock.locked() }

func (b *I2C) Deinit() { b.claim.Release() }

// I2CLease performs transactions while holding the bus.
type I2CLease struct {
	*Lease
	bus *I2C
}

var _ drivers.I2C = (*I2CLease)(nil)

// Tx writes w then reads into r with a repeated start.
func (l *I2CLease) Tx(addr uint16, w, r []byte) error {
	const op = "i2c.Tx"
	if err := l.valid(op); err != nil {
		return err
	}
	if addr > 0x7F {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "address exceeds 7 bits"}
	}
	if err := l.bus.w.tx(addr, w, r); err != nil {
		switch c := errcode.Of(err); c {
		case errcode.NACK, errcode.Timeout, errcode.Busy, errcode.Deinitialized:
			return &errcode.E{C: c, Op: op, Err: err}
		default:
			return errcode.Wrap(errcode.Transport, op, err)
		}
	}
	return nil
}

func (l *I2CLease) WriteTo(addr uint16, buf []byte) error { return l.Tx(addr, buf, nil) }

func (l *I2CLease) ReadFrom(addr uint16, buf []byte) error { return l.Tx(addr, nil, buf) }

func (l *I2CLease) WriteThenRead(addr uint16, out, in []byte) error { return l.Tx(addr, out, in) }

// ReadRegister and WriteRegister match the drivers helper shape.
func (l *I2CLease) ReadRegister(addr uint8, reg uint8, buf []byte) error {
	return l.Tx(uint16(addr), []byte{reg}, buf)
}

func (l *I2CLease) WriteRegister(addr uint8, reg uint8, buf []byte) error {
	return l.Tx(uint16(addr), append([]byte{reg}, buf...), nil)
}

// Scan probes every non-reserved 7-bit address with a one-byte read and
// returns the ones that acknowledged.
func (l *I2CLease) Scan() ([]uint16, error) {
	var found []uint16
	probe := make([]byte, 1)
	for addr := uint16(0x08); addr <= 0x77; addr++ {
		err := l.Tx(addr, nil, probe)
		switch {
		case err == nil:
			found = append(found, addr)
		case errcode.Of(err) == errcode.NACK:
		default:
			return found, err
		}
	}
	return found, nil
}

// SetFrequency changes the bus clock for every user of the bus.
func (l *I2CLease) SetFrequency(f physic.Frequency) error {
	const op = "i2c.SetFrequency"
	if err := l.valid(op); err != nil {
		return err
	}
	if f <= 0 || f > maxI2CFrequency {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	if err := l.bus.hw.SetFrequency(f); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	l.bus.freq = f
	return nil
}
