package board

import "strconv"

// Pin is an opaque handle for one physical pin. Handles are comparable:
// two handles are equal iff they name the same pin. The zero value is NoPin.
type Pin struct {
	gpio  uint8
	valid bool
}

// NoPin marks an omitted pin, e.g. the unused half of a one-direction UART.
var NoPin Pin

func gpioPin(n uint8) Pin { return Pin{gpio: n, valid: true} }

// Number is the controller GPIO number, or -1 for NoPin.
func (p Pin) Number() int {
	if !p.valid {
		return -1
	}
	return int(p.gpio)
}

func (p Pin) Valid() bool { return p.valid }

func (p Pin) String() string {
	if !p.valid {
		return "nopin"
	}
	return "gpio" + strconv.Itoa(int(p.gpio))
}

// Caps is the set of capabilities a pin can host.
type Caps uint16

const (
	Digital Caps = 1 << iota
	PullUp
	PullDown
	AnalogIn
	AnalogOut
	PWM
	Pulse
	I2C
	SPI
	UART
	Pixel
)

var capNames = []string{
	"digital", "pull_up", "pull_down", "analog_in", "analog_out",
	"pwm", "pulse", "i2c", "spi", "uart", "pixel",
}

func (c Caps) Has(o Caps) bool { return c&o == o }

func (c Caps) String() string {
	s := ""
	for i, n := range capNames {
		if c&(1<<i) == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n
	}
	if s == "" {
		return "none"
	}
	return s
}

// BusKind identifies a bus family.
type BusKind uint8

const (
	BusI2C BusKind = iota
	BusSPI
	BusUART
)

func (k BusKind) String() string {
	switch k {
	case BusI2C:
		return "i2c"
	case BusSPI:
		return "spi"
	case BusUART:
		return "uart"
	}
	return "bus?"
}

// Role is the signal a pin carries for a bus controller.
type Role uint8

const (
	RoleSCL Role = iota
	RoleSDA
	RoleSCK
	RoleSDO
	RoleSDI
	RoleTX
	RoleRX
)

// Func is one bus function a pin can be muxed to.
type Func struct {
	Bus  BusKind
	Ctrl uint8
	Role Role
}
