package board

import (
	"strconv"

	"periph.io/x/conn/v3/physic"
)

// RaspberryPi is the 40-pin header of a Raspberry Pi, named by BCM number
// (GPIO2..GPIO27). It has no ADC; the two hardware PWM channels share one
// clock.
func RaspberryPi() Descriptor {
	d := Descriptor{
		Name:   "rpi",
		I2C:    2,
		SPI:    1,
		UART:   1,
		Timers: 1,
		VRef:   3.3,
		PWMMin: physic.Hertz,
		PWMMax: 25 * physic.MegaHertz,
	}
	funcs := map[uint8][]Func{
		2:  {{Bus: BusI2C, Ctrl: 1, Role: RoleSDA}},
		3:  {{Bus: BusI2C, Ctrl: 1, Role: RoleSCL}},
		0:  {{Bus: BusI2C, Ctrl: 0, Role: RoleSDA}},
		1:  {{Bus: BusI2C, Ctrl: 0, Role: RoleSCL}},
		11: {{Bus: BusSPI, Ctrl: 0, Role: RoleSCK}},
		10: {{Bus: BusSPI, Ctrl: 0, Role: RoleSDO}},
		9:  {{Bus: BusSPI, Ctrl: 0, Role: RoleSDI}},
		14: {{Bus: BusUART, Ctrl: 0, Role: RoleTX}},
		15: {{Bus: BusUART, Ctrl: 0, Role: RoleRX}},
	}
	for g := uint8(0); g <= 27; g++ {
		def := PinDef{
			Name:  "GPIO" + strconv.Itoa(int(g)),
			GPIO:  g,
			Caps:  Digital | PullUp | PullDown,
			Timer: -1,
			Funcs: funcs[g],
		}
		switch g {
		case 12, 18:
			def.Caps |= PWM
			def.Timer, def.Channel = 0, 0
		case 13, 19:
			def.Caps |= PWM
			def.Timer, def.Channel = 0, 1
		}
		d.Pins = append(d.Pins, def)
	}
	d.Aliases = []Alias{
		{"SDA", "GPIO2"}, {"SCL", "GPIO3"},
		{"SCK", "GPIO11"}, {"MOSI", "GPIO10"}, {"MISO", "GPIO9"},
		{"TX", "GPIO14"}, {"RX", "GPIO15"},
		{"LED", "GPIO17"},
	}
	return d
}

func init() { Register(RaspberryPi()) }
