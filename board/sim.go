package board

import (
	"strconv"

	"periph.io/x/conn/v3/physic"
)

// Sim is a generic host-simulated board: D0..D23, A0..A5 and a 240x135
// display. Pulse streams share timers 6 and 7 with PWM on D12..D15.
func Sim() Descriptor {
	d := Descriptor{
		Name:        "sim",
		I2C:         2,
		SPI:         1,
		UART:        1,
		Timers:      8,
		PulseTimers: []int{6, 7},
		ADCBits:     12,
		VRef:        3.3,
		PWMMin:      1 * physic.Hertz,
		PWMMax:      1 * physic.MegaHertz,
		Display:     &DisplaySpec{Width: 240, Height: 135},
	}
	for g := uint8(0); g < 24; g++ {
		def := PinDef{
			Name:  "D" + strconv.Itoa(int(g)),
			GPIO:  g,
			Caps:  Digital | PullUp | PullDown | Pixel,
			Timer: -1,
		}
		if g < 16 {
			def.Caps |= PWM | Pulse
			def.Timer = int8(g / 2)
			def.Channel = g & 1
		}
		switch g {
		case 22:
			def.Caps &^= PullUp | PullDown
		case 20, 21:
			def.Caps &^= PullDown
		}
		def.Funcs = simFuncs(g)
		d.Pins = append(d.Pins, def)
	}
	for i := uint8(0); i < 6; i++ {
		def := PinDef{
			Name:  "A" + strconv.Itoa(int(i)),
			GPIO:  24 + i,
			Caps:  Digital | PullUp | PullDown | AnalogIn,
			Timer: -1,
		}
		if i == 0 {
			def.Caps |= AnalogOut
		}
		d.Pins = append(d.Pins, def)
	}
	d.Aliases = []Alias{
		{"LED", "D13"}, {"BUTTON", "D2"}, {"NEOPIXEL", "D19"},
		{"SDA", "D20"}, {"SCL", "D21"},
		{"SCK", "D16"}, {"MOSI", "D17"}, {"MISO", "D18"},
		{"TX", "D1"}, {"RX", "D0"},
	}
	return d
}

func simFuncs(g uint8) []Func {
	switch g {
	case 0:
		return []Func{{BusUART, 0, RoleRX}}
	case 1:
		return []Func{{BusUART, 0, RoleTX}}
	case 4, 22:
		return []Func{{BusI2C, 1, RoleSDA}}
	case 5, 23:
		return []Func{{BusI2C, 1, RoleSCL}}
	case 16:
		return []Func{{BusSPI, 0, RoleSCK}}
	case 17:
		return []Func{{BusSPI, 0, RoleSDO}}
	case 18:
		return []Func{{BusSPI, 0, RoleSDI}}
	case 20:
		return []Func{{BusI2C, 0, RoleSDA}}
	case 21:
		return []Func{{BusI2C, 0, RoleSCL}}
	}
	return nil
}

func init() { Register(Sim()) }
