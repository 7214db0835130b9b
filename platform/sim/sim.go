// Package sim is an in-memory board used by tests and host runs. Every
// peripheral records what reached the "wire" so tests can assert on it,
// and tests can play the outside world (voltages, bridges, bus devices).
package sim

import (
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

var _ platform.Backend = (*Board)(nil)

type Option func(*Board)

func WithLogger(l *log.Logger) Option { return func(b *Board) { b.log = l } }

// WithDisplay overrides the framebuffer attached to the board.
func WithDisplay(d platform.Display) Option { return func(b *Board) { b.display = d } }

// Board simulates one board described by a board.Descriptor.
type Board struct {
	mu   sync.Mutex
	desc board.Descriptor
	log  *log.Logger

	// irq serialises simulated interrupt handlers against critical
	// sections (pixel writes).
	irq sync.Mutex

	pins    map[int]*Pin
	bridges map[int]int
	volts   map[int]float64
	dac     map[int]uint16

	timers map[int]physic.Frequency
	pwm    map[int]*pwmChan

	pulseTx map[int]*pulseOut
	pulseRx map[int]*pulseIn

	i2c  map[int]*i2cBus
	spi  map[int]*spiBus
	uart map[int]*Port

	pixels  map[int]*pixelLine
	display platform.Display

	closed bool
}

func New(d board.Descriptor, opts ...Option) *Board {
	b := &Board{
		desc:    d,
		pins:    map[int]*Pin{},
		bridges: map[int]int{},
		volts:   map[int]float64{},
		dac:     map[int]uint16{},
		timers:  map[int]physic.Frequency{},
		pwm:     map[int]*pwmChan{},
		pulseTx: map[int]*pulseOut{},
		pulseRx: map[int]*pulseIn{},
		i2c:     map[int]*i2cBus{},
		spi:     map[int]*spiBus{},
		uart:    map[int]*Port{},
		pixels:  map[int]*pixelLine{},
	}
	for _, o := range opts {
		o(b)
	}
	if b.log == nil {
		b.log = log.NewWithOptions(os.Stderr, log.Options{Prefix: "sim", Level: log.WarnLevel})
	}
	if b.display == nil && d.Display != nil {
		b.display = NewFramebuffer(d.Display.Width, d.Display.Height)
	}
	for c := 0; c < d.I2C; c++ {
		b.i2c[c] = newI2CBus()
	}
	return b
}

func (b *Board) Name() string { return "sim:" + b.desc.Name }

func (b *Board) Descriptor() board.Descriptor { return b.desc }

func (b *Board) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *Board) checkPin(op string, n int) error {
	if n < 0 {
		return nil
	}
	for _, p := range b.desc.Pins {
		if int(p.GPIO) == n {
			return nil
		}
	}
	return &errcode.E{C: errcode.UnknownPin, Op: op}
}

func (b *Board) checkCtrl(op string, k board.BusKind, ctrl int) error {
	if ctrl < 0 || ctrl >= b.desc.Controllers(k) {
		return &errcode.E{C: errcode.Unsupported, Op: op, Msg: "no such controller"}
	}
	return nil
}
