//go:build linux && periph

// Package linuxsbc drives a Linux single-board computer's header through
// periph.io, with serial ports opened via go.bug.st/serial.
package linuxsbc

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/ring"
)

var _ platform.Backend = (*Board)(nil)

const (
	serialPoll = 50 * time.Millisecond
	serialRx   = 1024
)

type Option func(*Board)

func WithLogger(l *log.Logger) Option { return func(b *Board) { b.log = l } }

// WithSerialPorts maps UART controller numbers to device paths.
func WithSerialPorts(m map[int]string) Option { return func(b *Board) { b.serial = m } }

type Board struct {
	desc   board.Descriptor
	log    *log.Logger
	serial map[int]string
}

// New initialises the periph host drivers.
func New(desc board.Descriptor, opts ...Option) (*Board, error) {
	b := &Board{desc: desc, serial: map[int]string{0: "/dev/serial0"}}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "linuxsbc"})
	}
	st, err := host.Init()
	if err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "linuxsbc.New", err)
	}
	for _, d := range st.Loaded {
		b.log.Debug("driver loaded", "name", d)
	}
	return b, nil
}

func (b *Board) Name() string                 { return "linux:" + b.desc.Name }
func (b *Board) Descriptor() board.Descriptor { return b.desc }
func (b *Board) Close() error                 { return nil }

// -----------------------------------------------------------------------------
// GPIO / PWM
// -----------------------------------------------------------------------------

func byNumber(op string, n int) (gpio.PinIO, error) {
	p := gpioreg.ByName("GPIO" + strconv.Itoa(n))
	if p == nil {
		return nil, errcode.New(errcode.UnknownPin, op, "GPIO"+strconv.Itoa(n))
	}
	return p, nil
}

type pin struct {
	p     gpio.PinIO
	n     int
	drain bool
}

func (b *Board) GPIO(n int) (platform.GPIO, error) {
	p, err := byNumber("linuxsbc.GPIO", n)
	if err != nil {
		return nil, err
	}
	return &pin{p: p, n: n}, nil
}

func (g *pin) Number() int { return g.n }

func (g *pin) ConfigureInput(pull platform.Pull) error {
	pl := gpio.Float
	switch pull {
	case platform.PullUp:
		pl = gpio.PullUp
	case platform.PullDown:
		pl = gpio.PullDown
	}
	g.drain = false
	return errcode.Wrap(errcode.Transport, "linuxsbc.ConfigureInput", g.p.In(pl, gpio.NoEdge))
}

func (g *pin) ConfigureOutput(initial bool, drive platform.Drive) error {
	g.drain = drive == platform.OpenDrain
	return errcode.Wrap(errcode.Transport, "linuxsbc.ConfigureOutput", g.set(initial))
}

// Open drain is emulated: high releases the line to an input.
func (g *pin) set(level bool) error {
	if g.drain && level {
		return g.p.In(gpio.Float, gpio.NoEdge)
	}
	return g.p.Out(gpio.Level(level))
}

func (g *pin) Set(level bool) { _ = g.set(level) }
func (g *pin) Get() bool      { return g.p.Read() == gpio.High }
func (g *pin) Release()       { _ = g.p.In(gpio.Float, gpio.NoEdge) }

func (b *Board) ADC(int) (platform.ADC, error) { return nil, errcode.Unsupported }
func (b *Board) DAC(int) (platform.DAC, error) { return nil, errcode.Unsupported }

type pwm struct {
	mu   sync.Mutex
	p    gpio.PinIO
	f    physic.Frequency
	duty uint16
}

func (b *Board) PWM(n, _, _ int) (platform.PWM, error) {
	p, err := byNumber("linuxsbc.PWM", n)
	if err != nil {
		return nil, err
	}
	return &pwm{p: p}, nil
}

// caller holds mu
func (p *pwm) apply() error {
	if p.f == 0 {
		return nil
	}
	d := gpio.Duty(int64(p.duty) * int64(gpio.DutyMax) / 0xFFFF)
	return p.p.PWM(d, p.f)
}

func (p *pwm) SetPeriod(f physic.Frequency) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.f = f
	return errcode.Wrap(errcode.OutOfRange, "linuxsbc.SetPeriod", p.apply())
}

func (p *pwm) SetDuty(d uint16) {
	p.mu.Lock()
	p.duty = d
	_ = p.apply()
	p.mu.Unlock()
}

func (p *pwm) Release() {
	_ = p.p.Halt()
	_ = p.p.Out(gpio.Low)
}

func (b *Board) PulseOut(int, int, physic.Frequency, uint16) (platform.PulseTx, error) {
	return nil, errcode.Unsupported
}

func (b *Board) PulseIn(int, int) (platform.PulseRx, error) { return nil, errcode.Unsupported }

// -----------------------------------------------------------------------------
// I2C / SPI
// -----------------------------------------------------------------------------

type i2cBus struct {
	bus i2c.BusCloser
	log *log.Logger
}

// I2C opens /dev/i2c-<ctrl>. The pins are fixed by the device tree.
func (b *Board) I2C(ctrl, _, _ int, f physic.Frequency) (platform.I2C, error) {
	bus, err := i2creg.Open(strconv.Itoa(ctrl))
	if err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "linuxsbc.I2C", err)
	}
	h := &i2cBus{bus: bus, log: b.log}
	_ = h.SetFrequency(f)
	return h, nil
}

func (h *i2cBus) Tx(addr uint16, w, r []byte) error {
	return errcode.Wrap(errcode.Transport, "linuxsbc.I2C.Tx", h.bus.Tx(addr, w, r))
}

// The kernel usually fixes the bus speed; a refusal is logged, not fatal.
func (h *i2cBus) SetFrequency(f physic.Frequency) error {
	if err := h.bus.SetSpeed(f); err != nil {
		h.log.Debug("i2c speed unchanged", "bus", h.bus.String(), "err", err)
	}
	return nil
}

func (h *i2cBus) Release() { _ = h.bus.Close() }

type spiPort struct {
	name string
	port spi.PortCloser
	conn spi.Conn
}

func (b *Board) SPI(ctrl, _, _, _ int) (platform.SPI, error) {
	name := fmt.Sprintf("SPI%d.0", ctrl)
	port, err := spireg.Open(name)
	if err != nil {
		return nil, errcode.Wrap(errcode.Unsupported, "linuxsbc.SPI", err)
	}
	return &spiPort{name: name, port: port}, nil
}

// periph allows one Connect per open port, so reconfiguring reopens it.
func (s *spiPort) Configure(cfg platform.SPIConfig) error {
	if s.conn != nil {
		_ = s.port.Close()
		port, err := spireg.Open(s.name)
		if err != nil {
			return errcode.Wrap(errcode.Transport, "linuxsbc.SPI.Configure", err)
		}
		s.port, s.conn = port, nil
	}
	mode := spi.Mode(cfg.Polarity<<1 | cfg.Phase)
	conn, err := s.port.Connect(cfg.Frequency, mode, int(cfg.Bits))
	if err != nil {
		return errcode.Wrap(errcode.OutOfRange, "linuxsbc.SPI.Configure", err)
	}
	s.conn = conn
	return nil
}

func (s *spiPort) Tx(w, r []byte) error {
	if s.conn == nil {
		return errcode.NotConfigured
	}
	return errcode.Wrap(errcode.Transport, "linuxsbc.SPI.Tx", s.conn.Tx(w, r))
}

func (s *spiPort) Release() { _ = s.port.Close() }

// -----------------------------------------------------------------------------
// UART
// -----------------------------------------------------------------------------

// uart pumps the port into a ring from a reader goroutine so reads can be
// bounded by a context.
type uart struct {
	port serial.Port
	rx   *ring.Ring[byte]
	log  *log.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

func serialMode(cfg platform.UARTConfig) *serial.Mode {
	m := &serial.Mode{BaudRate: int(cfg.Baud), DataBits: int(cfg.Bits), StopBits: serial.OneStopBit}
	switch cfg.Parity {
	case platform.ParityEven:
		m.Parity = serial.EvenParity
	case platform.ParityOdd:
		m.Parity = serial.OddParity
	default:
		m.Parity = serial.NoParity
	}
	if cfg.Stop == 2 {
		m.StopBits = serial.TwoStopBits
	}
	return m
}

func (b *Board) UART(ctrl, _, rx int, cfg platform.UARTConfig) (platform.UART, error) {
	name, ok := b.serial[ctrl]
	if !ok {
		return nil, errcode.New(errcode.Unsupported, "linuxsbc.UART", "no serial device for controller "+strconv.Itoa(ctrl))
	}
	port, err := serial.Open(name, serialMode(cfg))
	if err != nil {
		return nil, errcode.Wrap(errcode.Transport, "linuxsbc.UART", err)
	}
	if err := port.SetReadTimeout(serialPoll); err != nil {
		port.Close()
		return nil, errcode.Wrap(errcode.Transport, "linuxsbc.UART", err)
	}
	u := &uart{port: port, rx: ring.New[byte](serialRx), log: b.log, done: make(chan struct{})}
	if rx >= 0 {
		u.wg.Add(1)
		go u.pump()
	}
	return u, nil
}

func (u *uart) pump() {
	defer u.wg.Done()
	buf := make([]byte, 256)
	for {
		select {
		case <-u.done:
			return
		default:
		}
		n, err := u.port.Read(buf)
		if err != nil {
			select {
			case <-u.done:
				return
			default:
			}
			u.log.Warn("serial read", "err", err)
			time.Sleep(serialPoll)
			continue
		}
		if n > 0 {
			if w := u.rx.WriteFrom(buf[:n]); w < n {
				u.log.Debug("serial overrun", "dropped", n-w)
			}
		}
	}
}

func (u *uart) Configure(cfg platform.UARTConfig) error {
	return errcode.Wrap(errcode.OutOfRange, "linuxsbc.UART.Configure", u.port.SetMode(serialMode(cfg)))
}

func (u *uart) Write(p []byte) (int, error) { return u.port.Write(p) }

func (u *uart) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		if n := u.rx.ReadInto(p); n > 0 {
			return n, nil
		}
		select {
		case <-u.rx.Readable():
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (u *uart) Buffered() int { return u.rx.Len() }

func (u *uart) Discard() {
	_ = u.port.ResetInputBuffer()
	u.rx.Discard()
}

func (u *uart) Release() {
	close(u.done)
	_ = u.port.Close()
	u.wg.Wait()
}

func (b *Board) Pixels(int) (platform.Pixels, error) { return nil, errcode.Unsupported }
func (b *Board) Display() (platform.Display, error) { return nil, errcode.Unsupported }
