package display

import (
	"image/color"
	"sync"

	"periphio/errcode"
)

// Bitmap is a width × height grid of values below ValueCount. Values are
// indices into a Palette or packed 0xRRGGBB colours for a ColorConverter.
type Bitmap struct {
	mu     sync.Mutex
	w, h   int
	values int
	data   []uint32
}

func NewBitmap(w, h, valueCount int) (*Bitmap, error) {
	if w <= 0 || h <= 0 || valueCount <= 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "bitmap", Msg: "dimensions and value count must be positive"}
	}
	return &Bitmap{w: w, h: h, values: valueCount, data: make([]uint32, w*h)}, nil
}

func (b *Bitmap) Width() int      { return b.w }
func (b *Bitmap) Height() int     { return b.h }
func (b *Bitmap) ValueCount() int { return b.values }

func (b *Bitmap) Set(x, y int, v uint32) error {
	const op = "bitmap.Set"
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "coordinates"}
	}
	if int64(v) >= int64(b.values) {
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "value"}
	}
	b.mu.Lock()
	b.data[y*b.w+x] = v
	b.mu.Unlock()
	touch()
	return nil
}

func (b *Bitmap) Get(x, y int) (uint32, error) {
	if x < 0 || y < 0 || x >= b.w || y >= b.h {
		return 0, &errcode.E{C: errcode.OutOfRange, Op: "bitmap.Get"}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data[y*b.w+x], nil
}

func (b *Bitmap) Fill(v uint32) error {
	if int64(v) >= int64(b.values) {
		return &errcode.E{C: errcode.OutOfRange, Op: "bitmap.Fill", Msg: "value"}
	}
	b.mu.Lock()
	for i := range b.data {
		b.data[i] = v
	}
	b.mu.Unlock()
	touch()
	return nil
}

func (b *Bitmap) at(x, y int) uint32 { return b.data[y*b.w+x] }

// Shader turns bitmap values into colours. ok is false for transparent
// values.
type Shader interface {
	Color(v uint32) (c color.RGBA, ok bool)
}

type paletteEntry struct {
	c      color.RGBA
	hidden bool
}

// Palette maps indices to colours; any entry may be made transparent.
// Entries start opaque black.
type Palette struct {
	mu      sync.Mutex
	entries []paletteEntry
}

func NewPalette(n int) *Palette {
	p := &Palette{entries: make([]paletteEntry, n)}
	for i := range p.entries {
		p.entries[i].c = color.RGBA{A: 0xFF}
	}
	return p
}

func (p *Palette) Len() int { return len(p.entries) }

func (p *Palette) Set(i int, c color.Color) error {
	if i < 0 || i >= len(p.entries) {
		return &errcode.E{C: errcode.OutOfRange, Op: "palette.Set"}
	}
	p.mu.Lock()
	p.entries[i].c = rgba(c)
	p.mu.Unlock()
	touch()
	return nil
}

func (p *Palette) MakeTransparent(i int) error { return p.setHidden("palette.MakeTransparent", i, true) }
func (p *Palette) MakeOpaque(i int) error      { return p.setHidden("palette.MakeOpaque", i, false) }

func (p *Palette) setHidden(op string, i int, h bool) error {
	if i < 0 || i >= len(p.entries) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	p.mu.Lock()
	p.entries[i].hidden = h
	p.mu.Unlock()
	touch()
	return nil
}

func (p *Palette) Color(v uint32) (color.RGBA, bool) {
	if int64(v) >= int64(len(p.entries)) {
		return color.RGBA{}, false
	}
	p.mu.Lock()
	e := p.entries[v]
	p.mu.Unlock()
	return e.c, !e.hidden
}

// ColorConverter reads bitmap values as 0xRRGGBB. One colour may be
// designated transparent.
type ColorConverter struct {
	mu          sync.Mutex
	transparent uint32
	hasKey      bool
}

func NewColorConverter() *ColorConverter { return &ColorConverter{} }

func (cc *ColorConverter) MakeTransparent(rgb uint32) {
	cc.mu.Lock()
	cc.transparent, cc.hasKey = rgb&0xFFFFFF, true
	cc.mu.Unlock()
	touch()
}

func (cc *ColorConverter) MakeOpaque() {
	cc.mu.Lock()
	cc.hasKey = false
	cc.mu.Unlock()
	touch()
}

func (cc *ColorConverter) Color(v uint32) (color.RGBA, bool) {
	v &= 0xFFFFFF
	cc.mu.Lock()
	hidden := cc.hasKey && v == cc.transparent
	cc.mu.Unlock()
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, !hidden
}

func rgba(c color.Color) color.RGBA {
	r, g, b, _ := c.RGBA()
	return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xFF}
}
