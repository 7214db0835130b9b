package keypad

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"periphio/board"
	"periphio/errcode"
	"periphio/hal"
	"periphio/hub"
	"periphio/platform/sim"
	"periphio/types"
)

func setup(t *testing.T, opts ...hal.Option) (*hal.Context, *sim.Board) {
	t.Helper()
	desc := board.Sim()
	be := sim.New(desc)
	opts = append([]hal.Option{hal.WithLogger(log.New(io.Discard))}, opts...)
	ctx, err := hal.New(desc, be, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ctx.Close() })
	return ctx, be
}

func waitEvent(t *testing.T, q *EventQueue) Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e, ok := q.Get(); ok {
			return e
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no event")
	return Event{}
}

func TestPressAndRelease(t *testing.T) {
	h := hub.New(8)
	ctx, be := setup(t, hal.WithHub(h))
	sub := h.NewConnection("t").Subscribe(hub.Topic{"keypad", "#"})

	btn := ctx.Board().MustPin("BUTTON")
	other := ctx.Board().MustPin("D3")
	k, err := NewKeys(ctx, []board.Pin{other, btn}, Options{Pull: true, Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer k.Deinit()
	if k.KeyCount() != 2 {
		t.Fatal("key count")
	}

	be.Drive(btn.Number(), sim.Level(false))
	e := waitEvent(t, k.Events())
	if e.Key != 1 || !e.Pressed {
		t.Fatalf("press %+v", e)
	}
	select {
	case m := <-sub.Channel():
		if ke, ok := m.Payload.(types.KeyEvent); !ok || ke.Key != 1 || !ke.Pressed {
			t.Fatalf("hub event %+v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("nothing published")
	}

	be.Drive(btn.Number(), nil)
	e = waitEvent(t, k.Events())
	if e.Key != 1 || e.Pressed {
		t.Fatalf("release %+v", e)
	}
}

func TestResetReportsHeldKeys(t *testing.T) {
	ctx, be := setup(t)
	btn := ctx.Board().MustPin("BUTTON")
	k, _ := NewKeys(ctx, []board.Pin{btn}, Options{Pull: true, Interval: time.Millisecond})
	defer k.Deinit()
	be.Drive(btn.Number(), sim.Level(false))
	waitEvent(t, k.Events())
	k.Reset()
	if e := waitEvent(t, k.Events()); !e.Pressed {
		t.Fatalf("after reset %+v", e)
	}
}

func TestQueueOverflow(t *testing.T) {
	q := newQueue(2)
	q.put(Event{Key: 0})
	q.put(Event{Key: 1})
	if q.put(Event{Key: 2}) || !q.Overflowed() {
		t.Fatal("overflow not flagged")
	}
	if e, _ := q.Get(); e.Key != 0 {
		t.Fatalf("oldest %d", e.Key)
	}
	q.Clear()
	if q.Len() != 0 || q.Overflowed() {
		t.Fatal("clear")
	}
}

func TestPinsReleasedOnFailure(t *testing.T) {
	ctx, _ := setup(t)
	d2 := ctx.Board().MustPin("D2")
	d22 := ctx.Board().MustPin("D22") // no pull resistors
	if _, err := NewKeys(ctx, []board.Pin{d2, d22}, Options{Pull: true}); !errcode.Is(err, errcode.Unsupported) {
		t.Fatalf("got %v", err)
	}
	d, err := hal.NewDigitalInOut(ctx, d2)
	if err != nil {
		t.Fatalf("D2 still held: %v", err)
	}
	d.Deinit()
}

func TestReleaseAllStopsScanner(t *testing.T) {
	ctx, _ := setup(t)
	d3 := ctx.Board().MustPin("D3")
	k, err := NewKeys(ctx, []board.Pin{d3}, Options{Interval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	ctx.ReleaseAll()
	select {
	case <-k.done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("scanner still running after ReleaseAll")
	}
	if n := len(ctx.Owners()); n != 0 {
		t.Fatalf("owners left: %d", n)
	}
	k.Deinit()
	d, err := hal.NewDigitalInOut(ctx, d3)
	if err != nil {
		t.Fatalf("D3 still held: %v", err)
	}
	d.Deinit()
}
