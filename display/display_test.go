package display

import (
	"image"
	"image/color"
	"testing"
	"time"

	"periphio/errcode"
)

type push struct {
	r   image.Rectangle
	buf []byte
}

type fakePanel struct {
	w, h   int
	bpp    int
	pix    []byte
	pushes []push
	shown  int
}

func newPanel(w, h int) *fakePanel {
	return &fakePanel{w: w, h: h, bpp: 3, pix: make([]byte, w*h*3)}
}

func (p *fakePanel) Size() (int16, int16) { return int16(p.w), int16(p.h) }

func (p *fakePanel) DrawRGBBitmap8(x, y int16, buf []uint8, w, h int16) error {
	r := image.Rect(int(x), int(y), int(x+w), int(y+h))
	p.pushes = append(p.pushes, push{r: r, buf: append([]byte(nil), buf...)})
	i := 0
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			copy(p.pix[(py*p.w+px)*p.bpp:], buf[i:i+p.bpp])
			i += p.bpp
		}
	}
	return nil
}

func (p *fakePanel) Display() error { p.shown++; return nil }

func (p *fakePanel) at(x, y int) color.RGBA {
	o := (y*p.w + x) * 3
	return color.RGBA{p.pix[o], p.pix[o+1], p.pix[o+2], 0xFF}
}

var (
	black = color.RGBA{A: 0xFF}
	red   = color.RGBA{R: 0xFF, A: 0xFF}
	green = color.RGBA{G: 0xFF, A: 0xFF}
)

// solid builds a w×h tile grid of one palette colour.
func solid(t *testing.T, w, h int, c color.Color) *TileGrid {
	t.Helper()
	bm, err := NewBitmap(w, h, 2)
	if err != nil {
		t.Fatal(err)
	}
	if err := bm.Fill(1); err != nil {
		t.Fatal(err)
	}
	pal := NewPalette(2)
	_ = pal.Set(1, c)
	_ = pal.MakeTransparent(0)
	tg, err := NewTileGrid(bm, pal, TileGridConfig{})
	if err != nil {
		t.Fatal(err)
	}
	return tg
}

func TestRefreshPushesOnlyChanges(t *testing.T) {
	p := newPanel(32, 16)
	d, err := New(p, Config{})
	if err != nil {
		t.Fatal(err)
	}
	root := NewGroup(0, 0, 1)
	tg := solid(t, 4, 4, red)
	if err := root.Append(tg); err != nil {
		t.Fatal(err)
	}
	if err := d.SetRoot(root); err != nil {
		t.Fatal(err)
	}
	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	if len(p.pushes) != 1 || p.pushes[0].r != image.Rect(0, 0, 32, 16) {
		t.Fatalf("first refresh should push the full panel: %+v", p.pushes)
	}
	if p.at(0, 0) != red || p.at(4, 0) != black {
		t.Fatalf("pixels: %v %v", p.at(0, 0), p.at(4, 0))
	}

	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	if len(p.pushes) != 1 {
		t.Fatalf("unchanged scene pushed again")
	}

	tg.SetPosition(10, 0)
	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	if len(p.pushes) != 2 {
		t.Fatalf("move not pushed")
	}
	if got, want := p.pushes[1].r, image.Rect(0, 0, 14, 4); got != want {
		t.Fatalf("dirty rect %v want %v", got, want)
	}
	if p.at(0, 0) != black || p.at(10, 0) != red {
		t.Fatal("move not reflected")
	}
}

func TestIdenticalMutationPushesNothing(t *testing.T) {
	p := newPanel(8, 8)
	d, _ := New(p, Config{})
	root := NewGroup(0, 0, 1)
	tg := solid(t, 2, 2, red)
	_ = root.Append(tg)
	_ = d.SetRoot(root)
	_ = d.Refresh()
	tg.SetPosition(0, 0)
	if err := d.Refresh(); err != nil {
		t.Fatal(err)
	}
	if n, _ := d.Stats(); n != 1 {
		t.Fatalf("pushes=%d", n)
	}
}

func TestPaletteTransparency(t *testing.T) {
	p := newPanel(4, 1)
	d, _ := New(p, Config{Background: green})
	bm, _ := NewBitmap(4, 1, 2)
	_ = bm.Set(1, 0, 1)
	pal := NewPalette(2)
	_ = pal.Set(0, black)
	_ = pal.Set(1, red)
	_ = pal.MakeTransparent(0)
	tg, err := NewTileGrid(bm, pal, TileGridConfig{})
	if err != nil {
		t.Fatal(err)
	}
	root := NewGroup(0, 0, 1)
	_ = root.Append(tg)
	_ = d.SetRoot(root)
	_ = d.Refresh()
	if p.at(0, 0) != green || p.at(1, 0) != red {
		t.Fatalf("got %v %v", p.at(0, 0), p.at(1, 0))
	}
	_ = pal.MakeOpaque(0)
	_ = d.Refresh()
	if p.at(0, 0) != black {
		t.Fatalf("opaque entry not drawn: %v", p.at(0, 0))
	}
}

func TestTilesAndFlip(t *testing.T) {
	// Two 2x1 tiles side by side: tile 0 is [red, green], tile 1 all green.
	bm, _ := NewBitmap(4, 1, 3)
	_ = bm.Set(0, 0, 1)
	_ = bm.Set(1, 0, 2)
	_ = bm.Set(2, 0, 2)
	_ = bm.Set(3, 0, 2)
	pal := NewPalette(3)
	_ = pal.Set(1, red)
	_ = pal.Set(2, green)
	tg, err := NewTileGrid(bm, pal, TileGridConfig{TileWidth: 2, TileHeight: 1, Width: 2, Height: 1})
	if err != nil {
		t.Fatal(err)
	}
	if tg.Tiles() != 2 {
		t.Fatalf("tiles=%d", tg.Tiles())
	}
	if err := tg.SetTile(1, 0, 2); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("want out_of_range, got %v", err)
	}
	p := newPanel(4, 1)
	d, _ := New(p, Config{})
	root := NewGroup(0, 0, 1)
	_ = root.Append(tg)
	_ = d.SetRoot(root)
	_ = d.Refresh()
	if p.at(0, 0) != red || p.at(2, 0) != red {
		t.Fatalf("default tile: %v %v", p.at(0, 0), p.at(2, 0))
	}
	_ = tg.SetTile(1, 0, 1)
	tg.SetFlip(true, false)
	_ = d.Refresh()
	if p.at(0, 0) != green || p.at(1, 0) != red || p.at(2, 0) != green {
		t.Fatalf("flip: %v %v %v", p.at(0, 0), p.at(1, 0), p.at(2, 0))
	}
}

func TestBitmapBounds(t *testing.T) {
	bm, _ := NewBitmap(2, 2, 4)
	if err := bm.Set(0, 0, 4); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("value: %v", err)
	}
	if err := bm.Set(2, 0, 1); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("x: %v", err)
	}
	if _, err := NewBitmap(0, 1, 1); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("dims: %v", err)
	}
	_ = bm.Set(1, 1, 3)
	if v, _ := bm.Get(1, 1); v != 3 {
		t.Fatalf("get=%d", v)
	}
}

func TestGroupMembership(t *testing.T) {
	a, b := NewGroup(0, 0, 1), NewGroup(0, 0, 1)
	lbl := NewLabel(nil, "x", red)
	if err := a.Append(lbl); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(lbl); !errcode.Is(err, errcode.InGroup) {
		t.Fatalf("second parent: %v", err)
	}
	if err := a.Append(b); err != nil {
		t.Fatal(err)
	}
	if err := b.Append(a); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("cycle: %v", err)
	}
	if err := a.Remove(lbl); err != nil {
		t.Fatal(err)
	}
	if lbl.Parent() != nil {
		t.Fatal("parent not cleared")
	}
	if err := b.Append(lbl); err != nil {
		t.Fatal(err)
	}
	if err := a.Remove(lbl); !errcode.Is(err, errcode.NotFound) {
		t.Fatalf("remove missing: %v", err)
	}
	n, err := a.Pop(-1)
	if err != nil || n != Node(b) || a.Len() != 0 {
		t.Fatalf("pop: %v %v len=%d", n, err, a.Len())
	}
	if _, err := a.Pop(0); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("pop empty: %v", err)
	}
	d, _ := New(newPanel(4, 4), Config{})
	if err := d.SetRoot(b); err != nil {
		t.Fatal(err)
	}
	_ = a.Append(b)
	if err := d.SetRoot(b); !errcode.Is(err, errcode.InGroup) {
		t.Fatalf("nested root: %v", err)
	}
}

func TestGroupScaleAndHidden(t *testing.T) {
	p := newPanel(8, 8)
	d, _ := New(p, Config{})
	g := NewGroup(0, 0, 2)
	tg := solid(t, 1, 1, red)
	tg.SetPosition(1, 1)
	_ = g.Append(tg)
	_ = d.SetRoot(g)
	_ = d.Refresh()
	for _, pt := range []image.Point{{2, 2}, {3, 3}} {
		if p.at(pt.X, pt.Y) != red {
			t.Fatalf("scaled pixel %v missing", pt)
		}
	}
	if p.at(1, 1) != black || p.at(4, 4) != black {
		t.Fatal("scaled pixel overflowed")
	}
	if got := g.Bounds(); got != image.Rect(2, 2, 4, 4) {
		t.Fatalf("bounds %v", got)
	}
	if err := g.SetScale(0); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("scale 0: %v", err)
	}
	g.SetHidden(true)
	_ = d.Refresh()
	if p.at(2, 2) != black {
		t.Fatal("hidden group drawn")
	}
}

func TestRotation(t *testing.T) {
	p := newPanel(8, 4)
	d, err := New(p, Config{Rotation: 90})
	if err != nil {
		t.Fatal(err)
	}
	if d.Width() != 4 || d.Height() != 8 {
		t.Fatalf("logical size %dx%d", d.Width(), d.Height())
	}
	g := NewGroup(0, 0, 1)
	_ = g.Append(solid(t, 1, 1, red))
	_ = d.SetRoot(g)
	_ = d.Refresh()
	if p.at(7, 0) != red {
		t.Fatal("rotation 90: logical origin should land top right")
	}

	if err := d.SetRotation(180); err != nil {
		t.Fatal(err)
	}
	_ = d.Refresh()
	if p.at(7, 3) != red || p.at(7, 0) != black {
		t.Fatal("rotation 180")
	}
	_ = d.SetRotation(270)
	_ = d.Refresh()
	if p.at(0, 3) != red {
		t.Fatal("rotation 270")
	}
	if err := d.SetRotation(45); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("45: %v", err)
	}
}

func TestLabel(t *testing.T) {
	p := newPanel(64, 32)
	d, _ := New(p, Config{})
	lbl := NewLabel(nil, "Hi", red)
	lbl.SetPosition(2, 2)
	g := NewGroup(0, 0, 1)
	_ = g.Append(lbl)
	_ = d.SetRoot(g)
	_ = d.Refresh()
	b := lbl.Bounds()
	if b.Empty() || b.Min != image.Pt(2, 2) {
		t.Fatalf("bounds %v", b)
	}
	lit := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if p.at(x, y) == red {
				lit++
			}
		}
	}
	if lit == 0 {
		t.Fatal("no glyph pixels drawn")
	}
	lbl.SetText("")
	_ = d.Refresh()
	if !lbl.Bounds().Empty() {
		t.Fatal("empty label has extent")
	}
	for i := 0; i < len(p.pix); i += 3 {
		if p.pix[i] != 0 {
			t.Fatal("cleared label left pixels")
		}
	}
}

func TestAutoRefresh(t *testing.T) {
	p := newPanel(4, 4)
	d, _ := New(p, Config{AutoRefresh: true, FrameRate: 100})
	defer d.Close()
	g := NewGroup(0, 0, 1)
	tg := solid(t, 1, 1, red)
	_ = g.Append(tg)
	_ = d.SetRoot(g)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := d.Stats(); n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("auto refresh never pushed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	d.SetAutoRefresh(false)
	if d.AutoRefresh() {
		t.Fatal("still auto")
	}
}

func TestCloseRunsOnCloseOnce(t *testing.T) {
	calls := 0
	d, _ := New(newPanel(2, 2), Config{OnClose: func() { calls++ }})
	d.Close()
	d.Close()
	if calls != 1 {
		t.Fatalf("OnClose ran %d times", calls)
	}
	if err := d.Refresh(); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("refresh after close: %v", err)
	}
}

func TestRGB565Encoding(t *testing.T) {
	buf := make([]byte, 2)
	RGB565BE.encode(buf, red)
	if buf[0] != 0xF8 || buf[1] != 0x00 {
		t.Fatalf("red=%x", buf)
	}
	RGB565BE.encode(buf, color.RGBA{B: 0xFF})
	if buf[0] != 0x00 || buf[1] != 0x1F {
		t.Fatalf("blue=%x", buf)
	}
	if RGB888.BytesPerPixel() != 3 || RGB565BE.BytesPerPixel() != 2 {
		t.Fatal("bpp")
	}
}
