package sim

import (
	"sync"

	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

// Device is a simulated I2C target.
type Device interface {
	Tx(w, r []byte) error
}

// I2CTx is one recorded transaction.
type I2CTx struct {
	Addr uint16
	W    []byte
	Rn   int
	Err  error
}

type i2cBus struct {
	mu      sync.Mutex
	devices map[uint16]Device
	log     []I2CTx
	freq    physic.Frequency
}

func newI2CBus() *i2cBus { return &i2cBus{devices: map[uint16]Device{}} }

type i2cHandle struct {
	bus *i2cBus
}

func (b *Board) I2C(ctrl, scl, sda int, f physic.Frequency) (platform.I2C, error) {
	if err := b.checkCtrl("sim.I2C", board.BusI2C, ctrl); err != nil {
		return nil, err
	}
	if err := b.checkPin("sim.I2C", scl); err != nil {
		return nil, err
	}
	if err := b.checkPin("sim.I2C", sda); err != nil {
		return nil, err
	}
	bus := b.i2cBus(ctrl)
	bus.mu.Lock()
	bus.freq = f
	bus.mu.Unlock()
	return &i2cHandle{bus: bus}, nil
}

func (b *Board) i2cBus(ctrl int) *i2cBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	bus, ok := b.i2c[ctrl]
	if !ok {
		bus = newI2CBus()
		b.i2c[ctrl] = bus
	}
	return bus
}

// AttachI2C places dev at addr on controller ctrl.
func (b *Board) AttachI2C(ctrl int, addr uint16, dev Device) {
	bus := b.i2cBus(ctrl)
	bus.mu.Lock()
	bus.devices[addr] = dev
	bus.mu.Unlock()
}

// DetachI2C removes the device at addr.
func (b *Board) DetachI2C(ctrl int, addr uint16) {
	bus := b.i2cBus(ctrl)
	bus.mu.Lock()
	delete(bus.devices, addr)
	bus.mu.Unlock()
}

// I2CLog returns the transactions seen on controller ctrl.
func (b *Board) I2CLog(ctrl int) []I2CTx {
	bus := b.i2cBus(ctrl)
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return append([]I2CTx(nil), bus.log...)
}

// Tx addresses a device; an absent address is not acknowledged.
func (h *i2cHandle) Tx(addr uint16, w, r []byte) error {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	rec := I2CTx{Addr: addr, W: append([]byte(nil), w...), Rn: len(r)}
	dev, ok := h.bus.devices[addr]
	if !ok {
		rec.Err = errcode.NACK
	} else {
		rec.Err = dev.Tx(w, r)
	}
	h.bus.log = append(h.bus.log, rec)
	return rec.Err
}

func (h *i2cHandle) SetFrequency(f physic.Frequency) error {
	h.bus.mu.Lock()
	h.bus.freq = f
	h.bus.mu.Unlock()
	return nil
}

func (h *i2cHandle) Release() {}

// Registers is a register-file device: the first written byte selects a
// register, further written bytes store from there, reads return from the
// selected register with auto-increment.
type Registers struct {
	mu  sync.Mutex
	reg [256]byte
	ptr uint8
}

// NewRegisters seeds a register file with initial values.
func NewRegisters(init map[uint8]byte) *Registers {
	r := &Registers{}
	for k, v := range init {
		r.reg[k] = v
	}
	return r
}

func (d *Registers) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w) > 0 {
		d.ptr = w[0]
		for _, v := range w[1:] {
			d.reg[d.ptr] = v
			d.ptr++
		}
	}
	for i := range r {
		r[i] = d.reg[d.ptr]
		d.ptr++
	}
	return nil
}

// Get reads a register without bus traffic.
func (d *Registers) Get(reg uint8) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reg[reg]
}
