// Package window previews a display Target in a desktop window.
package window

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"

	"periphio/errcode"
)

// Window is an RGB888 Target backed by an ebiten game loop.
type Window struct {
	title string
	scale int

	mu    sync.Mutex
	back  *image.RGBA // drawn by DrawRGBBitmap8
	front []byte      // latched by Display
	dirty bool
}

func New(width, height int16, scale int, title string) *Window {
	if scale < 1 {
		scale = 1
	}
	r := image.Rect(0, 0, int(width), int(height))
	return &Window{
		title: title,
		scale: scale,
		back:  image.NewRGBA(r),
		front: make([]byte, 4*r.Dx()*r.Dy()),
	}
}

func (w *Window) Size() (int16, int16) {
	b := w.back.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (w *Window) DrawRGBBitmap8(x, y int16, buf []uint8, bw, bh int16) error {
	const op = "window.DrawRGBBitmap8"
	r := image.Rect(int(x), int(y), int(x)+int(bw), int(y)+int(bh))
	if !r.In(w.back.Bounds()) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	if len(buf) < 3*r.Dx()*r.Dy() {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "short buffer"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	i := 0
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			o := w.back.PixOffset(px, py)
			w.back.Pix[o], w.back.Pix[o+1], w.back.Pix[o+2], w.back.Pix[o+3] = buf[i], buf[i+1], buf[i+2], 0xFF
			i += 3
		}
	}
	return nil
}

func (w *Window) Display() error {
	w.mu.Lock()
	copy(w.front, w.back.Pix)
	w.dirty = true
	w.mu.Unlock()
	return nil
}

// Run blocks on the window's event loop; it must be called from the main
// goroutine.
func (w *Window) Run() error {
	b := w.back.Bounds()
	ebiten.SetWindowTitle(w.title)
	ebiten.SetWindowSize(b.Dx()*w.scale, b.Dy()*w.scale)
	return ebiten.RunGame(&game{w: w, img: ebiten.NewImage(b.Dx(), b.Dy())})
}

type game struct {
	w   *Window
	img *ebiten.Image
}

func (g *game) Update() error { return nil }

func (g *game) Draw(screen *ebiten.Image) {
	g.w.mu.Lock()
	if g.w.dirty {
		g.img.WritePixels(g.w.front)
		g.w.dirty = false
	}
	g.w.mu.Unlock()
	screen.DrawImage(g.img, nil)
}

func (g *game) Layout(_, _ int) (int, int) {
	b := g.w.back.Bounds()
	return b.Dx(), b.Dy()
}
