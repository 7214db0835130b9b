package pixel

import (
	"image/color"
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"periphio/board"
	"periphio/errcode"
	"periphio/hal"
	"periphio/platform/sim"
)

func setup(t *testing.T) (*hal.Context, *sim.Board, board.Pin) {
	t.Helper()
	desc := board.Sim()
	be := sim.New(desc)
	ctx, err := hal.New(desc, be, hal.WithLogger(log.New(io.Discard)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	p, err := ctx.Pin("NEOPIXEL")
	if err != nil {
		t.Fatal(err)
	}
	return ctx, be, p
}

// One red pixel on an RGB string: 24 bits, the first eight high.
func TestSinglePixelWire(t *testing.T) {
	ctx, be, p := setup(t)
	s, err := New(ctx, p, 1, Options{Order: RGB, AutoWrite: Bool(false)})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set(0, Color{R: 255}); err != nil {
		t.Fatal(err)
	}
	if be.Wire(p.Number()) != nil {
		t.Fatal("wire changed before Show")
	}
	if err := s.Show(); err != nil {
		t.Fatal(err)
	}
	bits := sim.Bits(be.Wire(p.Number()))
	if len(bits) != 24 {
		t.Fatalf("%d bits", len(bits))
	}
	for i, b := range bits {
		if b != (i < 8) {
			t.Fatalf("bit %d = %v", i, b)
		}
	}
}

func TestOrderAndBrightness(t *testing.T) {
	ctx, be, p := setup(t)
	s, err := New(ctx, p, 2, Options{Brightness: Float(0.5)})
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Set(1, Color{R: 10, G: 200, B: 255})
	wire := be.Wire(p.Number())
	want := []byte{0, 0, 0, 100, 5, 127}
	if string(wire) != string(want) {
		t.Fatalf("wire %v want %v", wire, want)
	}
	if err := s.SetBrightness(1.5); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("brightness 1.5: %v", err)
	}
	if _, err := s.Get(2); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("get past end: %v", err)
	}
	if c, _ := s.Get(-1); c.G != 200 {
		t.Fatalf("negative index %v", c)
	}
}

func TestRGBWStrip(t *testing.T) {
	ctx, be, p := setup(t)
	s, err := New(ctx, p, 1, Options{Order: GRBW})
	if err != nil {
		t.Fatal(err)
	}
	if s.BytesPerPixel() != 4 {
		t.Fatal("bpp")
	}
	_ = s.Fill(Color{R: 1, G: 2, B: 3, W: 4})
	if got := be.Wire(p.Number()); string(got) != string([]byte{2, 1, 3, 4}) {
		t.Fatalf("wire %v", got)
	}
	if _, err := New(ctx, p, 1, Options{Order: "RGX"}); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("bad order: %v", err)
	}
}

func TestDeinitBlanks(t *testing.T) {
	ctx, be, p := setup(t)
	s, _ := New(ctx, p, 3, Options{})
	_ = s.Fill(Hex(0xFFFFFF))
	s.Deinit()
	for _, b := range be.Wire(p.Number()) {
		if b != 0 {
			t.Fatal("string left lit")
		}
	}
	if err := s.Show(); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("show after deinit: %v", err)
	}
}

func TestColorHelpers(t *testing.T) {
	if c := ColorWheel(0); c != (Color{R: 255}) {
		t.Fatalf("wheel(0) = %v", c)
	}
	if c := ColorWheel(85); c != (Color{G: 255}) {
		t.Fatalf("wheel(85) = %v", c)
	}
	if c := ColorWheel(170); c != (Color{B: 255}) {
		t.Fatalf("wheel(170) = %v", c)
	}
	if c := FromColor(color.RGBA{R: 1, G: 2, B: 3, A: 255}); c != (Color{R: 1, G: 2, B: 3}) {
		t.Fatalf("from color %v", c)
	}
	if c := Hex(0x102030); c.R != 0x10 || c.B != 0x30 {
		t.Fatalf("hex %v", c)
	}
}
