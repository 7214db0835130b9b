// Package platform is the seam between the capability layer and hardware.
// A Backend hands out low-level peripheral handles by GPIO number; pin,
// timer and controller ownership is enforced above it, so backends may
// assume callers never hold two handles on one resource.
package platform

import (
	"context"

	"periph.io/x/conn/v3/physic"
)

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	}
	return "none"
}

type Drive uint8

const (
	PushPull Drive = iota
	OpenDrain
)

type GPIO interface {
	Number() int
	ConfigureInput(pull Pull) error
	ConfigureOutput(initial bool, drive Drive) error
	Set(level bool)
	Get() bool
	// Release returns the pin to a floating input.
	Release()
}

// ADC reads raw samples at the board's native resolution.
type ADC interface {
	Read() (uint16, error)
	Release()
}

// DAC accepts 16-bit full-scale values.
type DAC interface {
	Write(v uint16) error
	Release()
}

// PWM is one channel of a timer. SetPeriod affects every channel on the
// timer; duty is 16-bit full scale.
type PWM interface {
	SetPeriod(f physic.Frequency) error
	SetDuty(duty uint16)
	Release()
}

// PulseTx transmits alternating high/low durations in microseconds.
type PulseTx interface {
	Send(ctx context.Context, durations []uint16) error
	Release()
}

// PulseRx measures pulse widths. capture may run in interrupt context.
type PulseRx interface {
	Start(idleHigh bool, capture func(us uint16)) error
	Stop()
	// Trigger drives the line away from idle for us microseconds.
	Trigger(us uint16) error
	Release()
}

// I2C matches tinygo.org/x/drivers.I2C plus controller control.
type I2C interface {
	Tx(addr uint16, w, r []byte) error
	SetFrequency(f physic.Frequency) error
	Release()
}

type SPIConfig struct {
	Frequency physic.Frequency
	Polarity  uint8
	Phase     uint8
	Bits      uint8
}

type SPI interface {
	Configure(cfg SPIConfig) error
	Tx(w, r []byte) error
	Release()
}

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

type UARTConfig struct {
	Baud   uint32
	Bits   uint8
	Stop   uint8
	Parity Parity
}

// UART mirrors the uartx surface: non-blocking writes into a
// TX queue and context-bounded reads.
type UART interface {
	Configure(cfg UARTConfig) error
	Write(p []byte) (int, error)
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
	Buffered() int
	Discard()
	Release()
}

// Pixels clocks a byte buffer onto a one-wire LED string. Implementations
// must emit the whole buffer without preemption.
type Pixels interface {
	Write(buf []byte) error
	Release()
}

// Display is a raw framebuffer target (RGB888 or RGB565BE encoded rows).
type Display interface {
	Size() (x, y int16)
	DrawRGBBitmap8(x, y int16, buf []uint8, w, h int16) error
	Display() error
}

// Backend creates handles by GPIO number. Omitted pins are -1.
type Backend interface {
	Name() string
	GPIO(n int) (GPIO, error)
	ADC(n int) (ADC, error)
	DAC(n int) (DAC, error)
	PWM(n, timer, channel int) (PWM, error)
	PulseOut(n, timer int, carrier physic.Frequency, duty uint16) (PulseTx, error)
	PulseIn(n, timer int) (PulseRx, error)
	I2C(ctrl, scl, sda int, f physic.Frequency) (I2C, error)
	SPI(ctrl, sck, sdo, sdi int) (SPI, error)
	UART(ctrl, tx, rx int, cfg UARTConfig) (UART, error)
	Pixels(n int) (Pixels, error)
	Display() (Display, error)
	Close() error
}
