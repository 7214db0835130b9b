// Package display is a retained-mode scene graph composited onto a
// framebuffer target. Refresh pushes only the rectangle that changed since
// the previous push.
package display

import (
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"periphio/errcode"
)

// Target is a raw panel: row-major pixel rectangles in the configured
// Format, then Display to latch them.
type Target interface {
	Size() (width, height int16)
	DrawRGBBitmap8(x, y int16, buf []uint8, w, h int16) error
	Display() error
}

const (
	DefaultFrameRate = 60
	maxFrameRate     = 120
)

type Config struct {
	// Rotation is clockwise degrees: 0, 90, 180 or 270.
	Rotation    int
	AutoRefresh bool
	FrameRate   int
	Format      Format
	Background  color.Color
	Logger      *log.Logger
	// OnClose runs once after Close, for releasing whatever owns the panel.
	OnClose func()
}

type Display struct {
	target Target
	pw, ph int // physical size
	format Format
	bg     color.RGBA
	log    *log.Logger
	period time.Duration

	mu       sync.Mutex // serialises refreshes
	rot      int
	root     *Group
	frame    *image.RGBA // last pushed logical frame
	seen     uint64
	closed   bool
	onClose  func()
	pushes   int
	lastPush image.Rectangle

	autoMu sync.Mutex
	stop   chan struct{}
	done   chan struct{}
}

func New(t Target, cfg Config) (*Display, error) {
	if t == nil {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "display", Msg: "nil target"}
	}
	if !validRotation(cfg.Rotation) {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: "display", Msg: "rotation must be a multiple of 90"}
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = DefaultFrameRate
	}
	if cfg.FrameRate > maxFrameRate {
		cfg.FrameRate = maxFrameRate
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "display", Level: log.WarnLevel})
	}
	bg := color.RGBA{A: 0xFF}
	if cfg.Background != nil {
		bg = rgba(cfg.Background)
	}
	w, h := t.Size()
	d := &Display{
		target:  t,
		pw:      int(w),
		ph:      int(h),
		format:  cfg.Format,
		bg:      bg,
		log:     cfg.Logger,
		period:  time.Second / time.Duration(cfg.FrameRate),
		rot:     cfg.Rotation % 360,
		onClose: cfg.OnClose,
	}
	if cfg.AutoRefresh {
		d.SetAutoRefresh(true)
	}
	return d, nil
}

func validRotation(r int) bool { return r >= 0 && r%90 == 0 && r < 360 }

// Width and Height are logical, after rotation.
func (d *Display) Width() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rot == 90 || d.rot == 270 {
		return d.ph
	}
	return d.pw
}

func (d *Display) Height() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.rot == 90 || d.rot == 270 {
		return d.pw
	}
	return d.ph
}

func (d *Display) Format() Format { return d.format }

func (d *Display) Rotation() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rot
}

// SetRotation redraws the whole panel on the next refresh.
func (d *Display) SetRotation(r int) error {
	if !validRotation(r) {
		return &errcode.E{C: errcode.InvalidParams, Op: "display.SetRotation", Msg: "rotation must be a multiple of 90"}
	}
	d.mu.Lock()
	d.rot = r
	d.frame = nil
	d.mu.Unlock()
	touch()
	return nil
}

func (d *Display) Root() *Group {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root
}

// SetRoot shows g; nil shows the background only. g must not be inside
// another group.
func (d *Display) SetRoot(g *Group) error {
	if g != nil && g.Parent() != nil {
		return &errcode.E{C: errcode.InGroup, Op: "display.SetRoot"}
	}
	d.mu.Lock()
	d.root = g
	d.mu.Unlock()
	touch()
	return nil
}

// Stats reports how many pushes reached the target and the last pushed
// logical rectangle.
func (d *Display) Stats() (pushes int, last image.Rectangle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pushes, d.lastPush
}

// Refresh composites the scene and pushes the changed rectangle. Nothing is
// pushed when the scene renders identically.
func (d *Display) Refresh() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refreshLocked()
}

func (d *Display) refreshLocked() error {
	if d.closed {
		return &errcode.E{C: errcode.Deinitialized, Op: "display.Refresh"}
	}
	seen := mutations.Load()
	if d.frame != nil && seen == d.seen {
		return nil
	}
	lw, lh := d.pw, d.ph
	if d.rot == 90 || d.rot == 270 {
		lw, lh = lh, lw
	}
	next := image.NewRGBA(image.Rect(0, 0, lw, lh))
	for i := 0; i < len(next.Pix); i += 4 {
		next.Pix[i], next.Pix[i+1], next.Pix[i+2], next.Pix[i+3] = d.bg.R, d.bg.G, d.bg.B, 0xFF
	}
	if d.root != nil {
		d.root.render(next, image.Point{})
	}
	dirty := next.Bounds()
	if d.frame != nil {
		dirty = changed(d.frame, next)
	}
	d.seen = seen
	if dirty.Empty() {
		return nil
	}
	if err := d.push(next, dirty); err != nil {
		return err
	}
	d.frame = next
	d.pushes++
	d.lastPush = dirty
	return nil
}

// changed returns the bounding box of differing pixels.
func changed(a, b *image.RGBA) image.Rectangle {
	r := b.Bounds()
	minX, minY, maxX, maxY := r.Max.X, r.Max.Y, r.Min.X-1, r.Min.Y-1
	for y := r.Min.Y; y < r.Max.Y; y++ {
		ra := a.Pix[a.PixOffset(r.Min.X, y):a.PixOffset(r.Max.X-1, y)+4]
		rb := b.Pix[b.PixOffset(r.Min.X, y):b.PixOffset(r.Max.X-1, y)+4]
		for x := 0; x < len(rb); x += 4 {
			if ra[x] != rb[x] || ra[x+1] != rb[x+1] || ra[x+2] != rb[x+2] {
				px := r.Min.X + x/4
				minX, maxX = min(minX, px), max(maxX, px)
				minY, maxY = min(minY, y), max(maxY, y)
			}
		}
	}
	if maxX < minX {
		return image.Rectangle{}
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// push encodes the physical image of logical rect r and sends it.
func (d *Display) push(src *image.RGBA, r image.Rectangle) error {
	p := d.toPhysical(r, src.Bounds().Dx(), src.Bounds().Dy())
	bpp := d.format.BytesPerPixel()
	buf := make([]byte, p.Dx()*p.Dy()*bpp)
	i := 0
	for py := p.Min.Y; py < p.Max.Y; py++ {
		for px := p.Min.X; px < p.Max.X; px++ {
			x, y := d.toLogical(px, py, src.Bounds().Dx(), src.Bounds().Dy())
			d.format.encode(buf[i:i+bpp], src.RGBAAt(x, y))
			i += bpp
		}
	}
	if err := d.target.DrawRGBBitmap8(int16(p.Min.X), int16(p.Min.Y), buf, int16(p.Dx()), int16(p.Dy())); err != nil {
		return errcode.Wrap(errcode.Of(err), "display.Refresh", err)
	}
	if err := d.target.Display(); err != nil {
		return errcode.Wrap(errcode.Transport, "display.Refresh", err)
	}
	return nil
}

// toPhysical maps a logical rectangle on a w × h logical frame.
func (d *Display) toPhysical(r image.Rectangle, w, h int) image.Rectangle {
	switch d.rot {
	case 90:
		return image.Rect(h-r.Max.Y, r.Min.X, h-r.Min.Y, r.Max.X)
	case 180:
		return image.Rect(w-r.Max.X, h-r.Max.Y, w-r.Min.X, h-r.Min.Y)
	case 270:
		return image.Rect(r.Min.Y, w-r.Max.X, r.Max.Y, w-r.Min.X)
	}
	return r
}

func (d *Display) toLogical(px, py, w, h int) (x, y int) {
	switch d.rot {
	case 90:
		return py, h - 1 - px
	case 180:
		return w - 1 - px, h - 1 - py
	case 270:
		return w - 1 - py, px
	}
	return px, py
}

func (d *Display) AutoRefresh() bool {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	return d.stop != nil
}

// SetAutoRefresh starts or stops the background refresher.
func (d *Display) SetAutoRefresh(on bool) {
	d.autoMu.Lock()
	defer d.autoMu.Unlock()
	if on == (d.stop != nil) {
		return
	}
	if !on {
		close(d.stop)
		<-d.done
		d.stop, d.done = nil, nil
		return
	}
	d.stop, d.done = make(chan struct{}), make(chan struct{})
	go d.loop(d.stop, d.done)
}

func (d *Display) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(d.period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := d.Refresh(); err != nil {
				if errcode.Is(err, errcode.Deinitialized) {
					return
				}
				d.log.Warn("auto refresh", "err", err)
			}
		}
	}
}

// Close stops auto refresh and runs OnClose. Further refreshes fail with
// deinitialized.
func (d *Display) Close() {
	d.SetAutoRefresh(false)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	fn := d.onClose
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}
