package board

import "periph.io/x/conn/v3/physic"

// PinDef describes one silkscreen pin.
type PinDef struct {
	Name    string
	GPIO    uint8
	Caps    Caps
	Timer   int8 // PWM timer, -1 when the pin has none
	Channel uint8
	Funcs   []Func
}

// Alias maps a conventional name (LED, SDA, ...) to a silkscreen name.
type Alias struct {
	Name   string
	Target string
}

// DisplaySpec is the geometry of a built-in display.
type DisplaySpec struct {
	Width, Height int16
	Rotation      int // degrees, 0/90/180/270
}

// Descriptor is the static description of one board.
type Descriptor struct {
	Name    string
	Pins    []PinDef
	Aliases []Alias

	// Bus controllers by kind.
	I2C, SPI, UART int

	// PWM timers are numbered 0..Timers-1. PulseTimers lists the timers a
	// pulse stream may take; they can overlap with PWM timers.
	Timers      int
	PulseTimers []int

	ADCBits uint8
	VRef    float64

	PWMMin, PWMMax physic.Frequency

	Display *DisplaySpec
}

// Controllers returns how many controllers of kind k the board has.
func (d *Descriptor) Controllers(k BusKind) int {
	switch k {
	case BusI2C:
		return d.I2C
	case BusSPI:
		return d.SPI
	case BusUART:
		return d.UART
	}
	return 0
}
