package sim

import (
	"image"
	"image/color"
	"sync"

	"periphio/errcode"
	"periphio/platform"
)

// Framebuffer is an RGB888 display target that records what was pushed.
type Framebuffer struct {
	mu      sync.Mutex
	img     *image.RGBA
	pushes  int
	pixels  int
	last    image.Rectangle
	flushes int
}

var _ platform.Display = (*Framebuffer)(nil)

func NewFramebuffer(w, h int16) *Framebuffer {
	return &Framebuffer{img: image.NewRGBA(image.Rect(0, 0, int(w), int(h)))}
}

func (b *Board) Display() (platform.Display, error) {
	if b.display == nil {
		return nil, &errcode.E{C: errcode.Unsupported, Op: "sim.Display", Msg: "board has no display"}
	}
	return b.display, nil
}

func (f *Framebuffer) Size() (x, y int16) {
	r := f.img.Bounds()
	return int16(r.Dx()), int16(r.Dy())
}

// DrawRGBBitmap8 copies a w x h block of RGB888 pixels to (x, y).
func (f *Framebuffer) DrawRGBBitmap8(x, y int16, buf []uint8, w, h int16) error {
	if int(w)*int(h)*3 > len(buf) {
		return errcode.InvalidParams
	}
	rect := image.Rect(int(x), int(y), int(x)+int(w), int(y)+int(h))
	f.mu.Lock()
	defer f.mu.Unlock()
	if !rect.In(f.img.Bounds()) {
		return errcode.OutOfRange
	}
	i := 0
	for py := rect.Min.Y; py < rect.Max.Y; py++ {
		for px := rect.Min.X; px < rect.Max.X; px++ {
			f.img.SetRGBA(px, py, color.RGBA{buf[i], buf[i+1], buf[i+2], 0xFF})
			i += 3
		}
	}
	f.pushes++
	f.pixels += int(w) * int(h)
	f.last = rect
	return nil
}

func (f *Framebuffer) Display() error {
	f.mu.Lock()
	f.flushes++
	f.mu.Unlock()
	return nil
}

// Snapshot copies the current panel contents.
func (f *Framebuffer) Snapshot() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := image.NewRGBA(f.img.Bounds())
	copy(out.Pix, f.img.Pix)
	return out
}

// Stats reports pushes, pushed pixel count, and the last pushed rectangle.
func (f *Framebuffer) Stats() (pushes, pixels int, last image.Rectangle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushes, f.pixels, f.last
}

// Framebuffer returns the board's framebuffer when it is the built-in one.
func (b *Board) Framebuffer() *Framebuffer {
	fb, _ := b.display.(*Framebuffer)
	return fb
}
