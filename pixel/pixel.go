// Package pixel drives addressable LED strings (WS2812 and friends) on a
// single data pin.
package pixel

import (
	"image/color"
	"strings"
	"sync"

	"periphio/board"
	"periphio/errcode"
	"periphio/hal"
	"periphio/platform"
	"periphio/x/mathx"
)

// Order names the channel order on the wire, e.g. "GRB" or "GRBW".
type Order string

const (
	RGB  Order = "RGB"
	RBG  Order = "RBG"
	GRB  Order = "GRB"
	GBR  Order = "GBR"
	BRG  Order = "BRG"
	BGR  Order = "BGR"
	RGBW Order = "RGBW"
	GRBW Order = "GRBW"
)

// channels maps each wire byte to a colour channel index (0=R 1=G 2=B 3=W).
func (o Order) channels() ([]int, bool) {
	s := strings.ToUpper(string(o))
	if len(s) != 3 && len(s) != 4 {
		return nil, false
	}
	out := make([]int, len(s))
	seen := map[rune]bool{}
	for i, r := range s {
		idx := strings.IndexRune("RGBW", r)
		if idx < 0 || seen[r] || (idx == 3 && len(s) == 3) {
			return nil, false
		}
		seen[r] = true
		out[i] = idx
	}
	if len(s) == 4 && !seen['W'] {
		return nil, false
	}
	return out, true
}

// Color is one pixel's channel values; W is ignored by three-channel orders.
type Color struct{ R, G, B, W uint8 }

// Hex builds a colour from 0xRRGGBB.
func Hex(v uint32) Color { return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)} }

// FromColor converts any image colour, dropping alpha.
func FromColor(c color.Color) Color {
	r, g, b, _ := c.RGBA()
	return Color{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}.RGBA()
}

// ColorWheel walks red to green to blue and back as pos goes 0..255.
func ColorWheel(pos uint8) Color {
	switch {
	case pos < 85:
		return Color{R: 255 - pos*3, G: pos * 3}
	case pos < 170:
		pos -= 85
		return Color{G: 255 - pos*3, B: pos * 3}
	}
	pos -= 170
	return Color{R: pos * 3, B: 255 - pos*3}
}

type Options struct {
	Order Order // default GRB
	// Brightness scales every channel on the wire, 0..1. Nil means 1.
	Brightness *float64
	// AutoWrite pushes after every change. Nil means true.
	AutoWrite *bool
}

// Float and Bool make option literals easier to write.
func Float(v float64) *float64 { return &v }
func Bool(v bool) *bool        { return &v }

type Strip struct {
	claim *hal.Claim
	hw    platform.Pixels
	order []int

	mu         sync.Mutex
	pixels     []Color
	brightness float64
	auto       bool
}

func New(ctx *hal.Context, p board.Pin, n int, opts Options) (*Strip, error) {
	const op = "pixel"
	if err := ctx.Require(op, p, board.Pixel); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "length must be positive"}
	}
	if opts.Order == "" {
		opts.Order = GRB
	}
	order, ok := opts.Order.channels()
	if !ok {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "pixel order " + string(opts.Order)}
	}
	bright := 1.0
	if opts.Brightness != nil {
		bright = *opts.Brightness
	}
	if !mathx.InRange(bright, 0, 1) {
		return nil, &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "brightness"}
	}
	auto := opts.AutoWrite == nil || *opts.AutoWrite

	cl, err := ctx.Claim(op, p)
	if err != nil {
		return nil, err
	}
	hw, err := ctx.Backend().Pixels(p.Number())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	s := &Strip{claim: cl, hw: hw, order: order, pixels: make([]Color, n), brightness: bright, auto: auto}
	cl.Bind(func() {
		// strings latch their last frame; blank them on release
		_ = hw.Write(make([]byte, n*len(order)))
		hw.Release()
	})
	return s, nil
}

func (s *Strip) Len() int { return len(s.pixels) }

// BytesPerPixel is 3 or 4 depending on the order.
func (s *Strip) BytesPerPixel() int { return len(s.order) }

func (s *Strip) Set(i int, c Color) error {
	const op = "pixel.Set"
	if err := s.claim.Check(op); err != nil {
		return err
	}
	s.mu.Lock()
	if i < 0 {
		i += len(s.pixels)
	}
	if i < 0 || i >= len(s.pixels) {
		s.mu.Unlock()
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "index"}
	}
	s.pixels[i] = c
	auto := s.auto
	s.mu.Unlock()
	if auto {
		return s.Show()
	}
	return nil
}

func (s *Strip) Get(i int) (Color, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		i += len(s.pixels)
	}
	if i < 0 || i >= len(s.pixels) {
		return Color{}, &errcode.E{C: errcode.OutOfRange, Op: "pixel.Get", Msg: "index"}
	}
	return s.pixels[i], nil
}

func (s *Strip) Fill(c Color) error {
	if err := s.claim.Check("pixel.Fill"); err != nil {
		return err
	}
	s.mu.Lock()
	for i := range s.pixels {
		s.pixels[i] = c
	}
	auto := s.auto
	s.mu.Unlock()
	if auto {
		return s.Show()
	}
	return nil
}

func (s *Strip) Brightness() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brightness
}

func (s *Strip) SetBrightness(b float64) error {
	const op = "pixel.SetBrightness"
	if err := s.claim.Check(op); err != nil {
		return err
	}
	if !mathx.InRange(b, 0, 1) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	s.mu.Lock()
	s.brightness = b
	auto := s.auto
	s.mu.Unlock()
	if auto {
		return s.Show()
	}
	return nil
}

func (s *Strip) AutoWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto
}

func (s *Strip) SetAutoWrite(on bool) {
	s.mu.Lock()
	s.auto = on
	s.mu.Unlock()
}

// Bytes renders the wire buffer: per pixel, channels scaled by brightness
// in wire order.
func (s *Strip) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.render()
}

func (s *Strip) render() []byte {
	bpp := len(s.order)
	buf := make([]byte, len(s.pixels)*bpp)
	for i, c := range s.pixels {
		ch := [4]uint8{c.R, c.G, c.B, c.W}
		for j, idx := range s.order {
			buf[i*bpp+j] = mathx.ScaleU8(ch[idx], s.brightness)
		}
	}
	return buf
}

// Show clocks the current buffer out.
func (s *Strip) Show() error {
	const op = "pixel.Show"
	if err := s.claim.Check(op); err != nil {
		return err
	}
	s.mu.Lock()
	buf := s.render()
	s.mu.Unlock()
	if err := s.hw.Write(buf); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	return nil
}

// Deinit blanks the string and releases the pin.
func (s *Strip) Deinit() { s.claim.Release() }
