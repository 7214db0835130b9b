//go:build rp2040

// Package rp2 drives RP2040 peripherals through TinyGo's machine package.
package rp2

import (
	"context"
	"sync"

	"machine"

	"github.com/jangala-dev/tinygo-uartx/uartx"
	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers/ws2812"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/mathx"
)

var _ platform.Backend = (*Board)(nil)

type Board struct {
	desc board.Descriptor

	adcOnce sync.Once
}

func New(desc board.Descriptor) *Board { return &Board{desc: desc} }

func (b *Board) Name() string { return "rp2040:" + b.desc.Name }

func (b *Board) Close() error { return nil }

func (b *Board) Descriptor() board.Descriptor { return b.desc }

// -----------------------------------------------------------------------------
// GPIO
// -----------------------------------------------------------------------------

type gpio struct {
	p     machine.Pin
	n     int
	drain bool
}

func (b *Board) GPIO(n int) (platform.GPIO, error) {
	return &gpio{p: machine.Pin(n), n: n}, nil
}

func (g *gpio) Number() int { return g.n }

func (g *gpio) ConfigureInput(pull platform.Pull) error {
	mode := machine.PinInput
	switch pull {
	case platform.PullUp:
		mode = machine.PinInputPullup
	case platform.PullDown:
		mode = machine.PinInputPulldown
	}
	g.drain = false
	g.p.Configure(machine.PinConfig{Mode: mode})
	return nil
}

func (g *gpio) ConfigureOutput(initial bool, drive platform.Drive) error {
	g.drain = drive == platform.OpenDrain
	g.Set(initial)
	return nil
}

// Open drain is emulated: low drives the pin, high floats it.
func (g *gpio) Set(level bool) {
	if g.drain {
		if level {
			g.p.Configure(machine.PinConfig{Mode: machine.PinInput})
		} else {
			g.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
			g.p.Low()
		}
		return
	}
	g.p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	g.p.Set(level)
}

func (g *gpio) Get() bool { return g.p.Get() }

func (g *gpio) Release() { g.p.Configure(machine.PinConfig{Mode: machine.PinInput}) }

// -----------------------------------------------------------------------------
// ADC
// -----------------------------------------------------------------------------

type adc struct{ a machine.ADC }

func (b *Board) ADC(n int) (platform.ADC, error) {
	if n < 26 || n > 29 {
		return nil, errcode.Unsupported
	}
	b.adcOnce.Do(machine.InitADC)
	a := machine.ADC{Pin: machine.Pin(n)}
	a.Configure(machine.ADCConfig{})
	return &adc{a: a}, nil
}

// machine returns samples left-aligned to 16 bits; the native width is 12.
func (a *adc) Read() (uint16, error) { return a.a.Get() >> 4, nil }

func (a *adc) Release() {}

func (b *Board) DAC(int) (platform.DAC, error) { return nil, errcode.Unsupported }

// -----------------------------------------------------------------------------
// PWM
// -----------------------------------------------------------------------------

type pwmCtrl interface {
	Configure(cfg machine.PWMConfig) error
	SetPeriod(period uint64) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

func pwmGroupBySlice(slice int) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

// Slices are configured once; SetPeriod reprograms the whole slice.
var slices struct {
	mu  sync.Mutex
	cfg [8]bool
}

type pwm struct {
	ctrl pwmCtrl
	ch   uint8
	pin  machine.Pin
	duty uint16
}

func (b *Board) PWM(n, timer, _ int) (platform.PWM, error) {
	if timer < 0 || timer > 7 {
		return nil, errcode.Unsupported
	}
	ctrl := pwmGroupBySlice(timer)
	slices.mu.Lock()
	if !slices.cfg[timer] {
		if err := ctrl.Configure(machine.PWMConfig{Period: 1e6}); err != nil {
			slices.mu.Unlock()
			return nil, errcode.Wrap(errcode.Error, "rp2.PWM", err)
		}
		slices.cfg[timer] = true
	}
	slices.mu.Unlock()
	ch, err := ctrl.Channel(machine.Pin(n))
	if err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "rp2.PWM", err)
	}
	return &pwm{ctrl: ctrl, ch: ch, pin: machine.Pin(n)}, nil
}

func (p *pwm) SetPeriod(f physic.Frequency) error {
	if err := p.ctrl.SetPeriod(uint64(f.Period())); err != nil {
		return errcode.Wrap(errcode.OutOfRange, "rp2.SetPeriod", err)
	}
	// Top changes with the period, so re-apply the duty.
	p.SetDuty(p.duty)
	return nil
}

func (p *pwm) SetDuty(d uint16) {
	p.duty = d
	p.ctrl.Set(p.ch, mathx.MulDiv(uint32(d), p.ctrl.Top(), 0xFFFF))
}

func (p *pwm) Release() {
	p.ctrl.Set(p.ch, 0)
	p.pin.Configure(machine.PinConfig{Mode: machine.PinInput})
}

// PIO-based pulse streams are not wired up on this board.
func (b *Board) PulseOut(int, int, physic.Frequency, uint16) (platform.PulseTx, error) {
	return nil, errcode.Unsupported
}

func (b *Board) PulseIn(int, int) (platform.PulseRx, error) {
	return nil, errcode.Unsupported
}

// -----------------------------------------------------------------------------
// I2C / SPI
// -----------------------------------------------------------------------------

type i2c struct{ hw *machine.I2C }

func (b *Board) I2C(ctrl, scl, sda int, f physic.Frequency) (platform.I2C, error) {
	hw := machine.I2C0
	if ctrl == 1 {
		hw = machine.I2C1
	}
	err := hw.Configure(machine.I2CConfig{
		SCL:       machine.Pin(scl),
		SDA:       machine.Pin(sda),
		Frequency: uint32(f / physic.Hertz),
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.Transport, "rp2.I2C", err)
	}
	return &i2c{hw: hw}, nil
}

func (h *i2c) Tx(addr uint16, w, r []byte) error {
	if err := h.hw.Tx(addr, w, r); err != nil {
		return errcode.Wrap(errcode.NACK, "rp2.I2C.Tx", err)
	}
	return nil
}

func (h *i2c) SetFrequency(f physic.Frequency) error {
	return h.hw.SetBaudRate(uint32(f / physic.Hertz))
}

func (h *i2c) Release() {}

type spi struct {
	hw            *machine.SPI
	sck, sdo, sdi machine.Pin
}

func (b *Board) SPI(ctrl, sck, sdo, sdi int) (platform.SPI, error) {
	hw := machine.SPI0
	if ctrl == 1 {
		hw = machine.SPI1
	}
	pin := func(n int) machine.Pin {
		if n < 0 {
			return machine.NoPin
		}
		return machine.Pin(n)
	}
	return &spi{hw: hw, sck: pin(sck), sdo: pin(sdo), sdi: pin(sdi)}, nil
}

func (s *spi) Configure(cfg platform.SPIConfig) error {
	err := s.hw.Configure(machine.SPIConfig{
		Frequency: uint32(cfg.Frequency / physic.Hertz),
		SCK:       s.sck,
		SDO:       s.sdo,
		SDI:       s.sdi,
		Mode:      cfg.Polarity<<1 | cfg.Phase,
		DataBits:  cfg.Bits,
	})
	if err != nil {
		return errcode.Wrap(errcode.OutOfRange, "rp2.SPI.Configure", err)
	}
	return nil
}

func (s *spi) Tx(w, r []byte) error { return s.hw.Tx(w, r) }

func (s *spi) Release() {}

// -----------------------------------------------------------------------------
// UART
// -----------------------------------------------------------------------------

// uart adapts uartx. Bytes peeked by Buffered are kept in pending and
// served before the hardware queue.
type uart struct {
	u       *uartx.UART
	mu      sync.Mutex
	pending []byte
}

func (b *Board) UART(ctrl, tx, rx int, cfg platform.UARTConfig) (platform.UART, error) {
	hw := uartx.UART0
	if ctrl == 1 {
		hw = uartx.UART1
	}
	c := uartx.UARTConfig{BaudRate: cfg.Baud, TX: machine.NoPin, RX: machine.NoPin}
	if tx >= 0 {
		c.TX = machine.Pin(tx)
	}
	if rx >= 0 {
		c.RX = machine.Pin(rx)
	}
	if err := hw.Configure(c); err != nil {
		return nil, errcode.Wrap(errcode.Error, "rp2.UART", err)
	}
	u := &uart{u: hw}
	if err := u.Configure(cfg); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *uart) Configure(cfg platform.UARTConfig) error {
	par := uartx.ParityNone
	switch cfg.Parity {
	case platform.ParityEven:
		par = uartx.ParityEven
	case platform.ParityOdd:
		par = uartx.ParityOdd
	}
	p.u.SetBaudRate(cfg.Baud)
	if err := p.u.SetFormat(cfg.Bits, cfg.Stop, par); err != nil {
		return errcode.Wrap(errcode.OutOfRange, "rp2.UART.Configure", err)
	}
	return nil
}

func (p *uart) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *uart) RecvSomeContext(ctx context.Context, buf []byte) (int, error) {
	p.mu.Lock()
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	p.mu.Unlock()
	return p.u.RecvSomeContext(ctx, buf)
}

func (p *uart) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var tmp [64]byte
	for {
		n := p.u.TryRead(tmp[:])
		if n == 0 {
			break
		}
		p.pending = append(p.pending, tmp[:n]...)
	}
	return len(p.pending)
}

func (p *uart) Discard() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = p.pending[:0]
	var tmp [64]byte
	for p.u.TryRead(tmp[:]) > 0 {
	}
}

func (p *uart) Release() {}

// -----------------------------------------------------------------------------
// Pixels / display
// -----------------------------------------------------------------------------

type pixels struct {
	dev ws2812.Device
	pin machine.Pin
}

func (b *Board) Pixels(n int) (platform.Pixels, error) {
	pin := machine.Pin(n)
	pin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &pixels{dev: ws2812.NewWS2812(pin), pin: pin}, nil
}

// The ws2812 driver disables interrupts for the duration of the write.
func (p *pixels) Write(buf []byte) error {
	_, err := p.dev.Write(buf)
	return err
}

func (p *pixels) Release() { p.pin.Configure(machine.PinConfig{Mode: machine.PinInput}) }

func (b *Board) Display() (platform.Display, error) { return nil, errcode.Unsupported }
