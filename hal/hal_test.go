package hal

import (
	"io"
	"testing"

	"github.com/charmbracelet/log"

	"periphio/board"
	"periphio/platform/sim"
)

func newSim(t *testing.T, opts ...Option) (*Context, *sim.Board) {
	t.Helper()
	desc := board.Sim()
	be := sim.New(desc)
	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	ctx, err := New(desc, be, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, be
}

func pin(t *testing.T, ctx *Context, name string) board.Pin {
	t.Helper()
	p, err := ctx.Pin(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
