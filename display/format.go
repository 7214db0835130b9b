package display

import (
	"image/color"

	"github.com/aykevl/tinygl/pixel"
)

// Format is the byte encoding a Target expects in DrawRGBBitmap8.
type Format uint8

const (
	RGB888 Format = iota
	RGB565BE
)

func (f Format) String() string {
	if f == RGB565BE {
		return "rgb565be"
	}
	return "rgb888"
}

func (f Format) BytesPerPixel() int {
	if f == RGB565BE {
		return 2
	}
	return 3
}

func (f Format) encode(dst []byte, c color.RGBA) {
	switch f {
	case RGB565BE:
		v := uint16(c.R&0xF8)<<8 | uint16(c.G&0xFC)<<3 | uint16(c.B)>>3
		dst[0], dst[1] = byte(v>>8), byte(v)
	default:
		px := pixel.NewColor[pixel.RGB888](c.R, c.G, c.B)
		dst[0], dst[1], dst[2] = px.R, px.G, px.B
	}
}
