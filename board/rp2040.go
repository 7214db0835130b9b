package board

import (
	"strconv"

	"periph.io/x/conn/v3/physic"
)

// RP2040 pin muxing: every GPIO has a PWM slice/channel and fixed I2C, SPI
// and UART functions determined by its number.
func rp2040Pin(name string, gpio uint8, extra Caps) PinDef {
	d := PinDef{
		Name:    name,
		GPIO:    gpio,
		Caps:    Digital | PullUp | PullDown | PWM | Pixel | extra,
		Timer:   int8((gpio >> 1) & 7),
		Channel: gpio & 1,
	}
	i2c := Func{Bus: BusI2C, Ctrl: (gpio >> 1) & 1, Role: RoleSDA}
	if gpio&1 == 1 {
		i2c.Role = RoleSCL
	}
	d.Funcs = append(d.Funcs, i2c)

	spi := Func{Bus: BusSPI, Ctrl: (gpio >> 3) & 1}
	switch gpio & 3 {
	case 0:
		spi.Role = RoleSDI
		d.Funcs = append(d.Funcs, spi)
	case 2:
		spi.Role = RoleSCK
		d.Funcs = append(d.Funcs, spi)
	case 3:
		spi.Role = RoleSDO
		d.Funcs = append(d.Funcs, spi)
	}

	uart := Func{Bus: BusUART, Ctrl: ((gpio + 4) >> 3) & 1}
	switch gpio & 3 {
	case 0:
		uart.Role = RoleTX
		d.Funcs = append(d.Funcs, uart)
	case 1:
		uart.Role = RoleRX
		d.Funcs = append(d.Funcs, uart)
	}
	return d
}

func rp2040Base(name string) Descriptor {
	return Descriptor{
		Name:    name,
		I2C:     2,
		SPI:     2,
		UART:    2,
		Timers:  8,
		ADCBits: 12,
		VRef:    3.3,
		PWMMin:  8 * physic.Hertz,
		PWMMax:  62500 * physic.KiloHertz,
	}
}

// Pico is the Raspberry Pi Pico (RP2040), silkscreen GP0..GP28.
func Pico() Descriptor {
	d := rp2040Base("pico")
	for g := uint8(0); g <= 28; g++ {
		if g == 23 || g == 24 {
			continue // GP23/GP24 drive the regulator and VBUS sense
		}
		var extra Caps
		if g >= 26 {
			extra = AnalogIn
		}
		d.Pins = append(d.Pins, rp2040Pin("GP"+strconv.Itoa(int(g)), g, extra))
	}
	d.Aliases = []Alias{
		{"LED", "GP25"},
		{"SDA", "GP4"}, {"SCL", "GP5"},
		{"SCK", "GP18"}, {"MOSI", "GP19"}, {"MISO", "GP16"},
		{"TX", "GP0"}, {"RX", "GP1"},
		{"A0", "GP26"}, {"A1", "GP27"}, {"A2", "GP28"},
	}
	return d
}

// FeatherRP2040 is the Adafruit Feather RP2040.
func FeatherRP2040() Descriptor {
	d := rp2040Base("feather_rp2040")
	for _, p := range []struct {
		name string
		gpio uint8
	}{
		{"D4", 6}, {"D5", 7}, {"D6", 8}, {"D9", 9}, {"D10", 10},
		{"D11", 11}, {"D12", 12}, {"D13", 13}, {"D24", 24}, {"D25", 25},
		{"SCK", 18}, {"MOSI", 19}, {"MISO", 20},
		{"TX", 0}, {"RX", 1}, {"SDA", 2}, {"SCL", 3},
		{"NEOPIXEL", 16},
	} {
		d.Pins = append(d.Pins, rp2040Pin(p.name, p.gpio, 0))
	}
	for i := uint8(0); i < 4; i++ {
		d.Pins = append(d.Pins, rp2040Pin("A"+strconv.Itoa(int(i)), 26+i, AnalogIn))
	}
	d.Aliases = []Alias{{"LED", "D13"}, {"BUTTON", "D5"}}
	return d
}

func init() {
	Register(Pico())
	Register(FeatherRP2040())
}
