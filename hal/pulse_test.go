package hal

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"periphio/errcode"
)

func TestPulseOutSendsTrain(t *testing.T) {
	ctx, be := newSim(t)
	p := pin(t, ctx, "D2")
	po, err := NewPulseOut(ctx, p, PulseOutConfig{Carrier: 38 * physic.KiloHertz})
	if err != nil {
		t.Fatal(err)
	}
	if err := po.Send([]uint16{900, 450, 560}); err != nil {
		t.Fatal(err)
	}
	trains := be.Trains(p.Number())
	if len(trains) != 1 || len(trains[0].Durations) != 3 || trains[0].Carrier != 38*physic.KiloHertz {
		t.Fatalf("trains %+v", trains)
	}
	if trains[0].Duty != DutyFullScale/2 {
		t.Fatalf("default duty %d", trains[0].Duty)
	}
}

func TestPulseTimersRunOut(t *testing.T) {
	ctx, _ := newSim(t)
	if _, err := NewPulseOut(ctx, pin(t, ctx, "D2"), PulseOutConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewPulseIn(ctx, pin(t, ctx, "D3"), PulseInConfig{}); err != nil {
		t.Fatal(err)
	}
	d6 := pin(t, ctx, "D6")
	if _, err := NewPulseOut(ctx, d6, PulseOutConfig{}); !errcode.Is(err, errcode.TimerInUse) {
		t.Fatalf("third pulse user: %v", err)
	}
	// the pin went back to the pool
	d, err := NewDigitalInOut(ctx, d6)
	if err != nil {
		t.Fatal(err)
	}
	d.Deinit()
}

func TestPulseInWindow(t *testing.T) {
	ctx, be := newSim(t)
	p := pin(t, ctx, "D3")
	pi, err := NewPulseIn(ctx, p, PulseInConfig{MaxLen: 3, IdleState: true})
	if err != nil {
		t.Fatal(err)
	}
	if pi.MaxLen() != 3 || !pi.IdleState() {
		t.Fatal("config not kept")
	}
	be.FeedPulses(p.Number(), 10, 20, 30, 40, 50)
	if pi.Len() != 3 {
		t.Fatalf("len %d", pi.Len())
	}
	if got := pi.Snapshot(); got[0] != 30 || got[2] != 50 {
		t.Fatalf("window %v", got)
	}
	if pi.Dropped() != 2 {
		t.Fatalf("dropped %d", pi.Dropped())
	}
	if v, _ := pi.At(-1); v != 50 {
		t.Fatalf("newest %d", v)
	}
	if _, err := pi.At(3); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("at past end: %v", err)
	}
	if v, _ := pi.PopLeft(); v != 30 || pi.Len() != 2 {
		t.Fatalf("popleft %d len %d", v, pi.Len())
	}

	_ = pi.Pause()
	if n := be.FeedPulses(p.Number(), 99); n != 0 || !pi.Paused() {
		t.Fatal("capture while paused")
	}
	pi.Clear()
	if _, err := pi.PopLeft(); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("popleft on empty: %v", err)
	}
	if err := pi.Resume(10); err != nil {
		t.Fatal(err)
	}
	if tr := be.Triggers(p.Number()); len(tr) != 1 || tr[0] != 10 {
		t.Fatalf("triggers %v", tr)
	}
	be.FeedPulses(p.Number(), 7)
	if v, _ := pi.At(0); v != 7 {
		t.Fatalf("after resume %d", v)
	}
	pi.Deinit()
	if _, err := pi.PopLeft(); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("after deinit: %v", err)
	}
}

func TestPulseInOverflowKeepsNewest(t *testing.T) {
	ctx, be := newSim(t)
	p := pin(t, ctx, "D3")
	pi, err := NewPulseIn(ctx, p, PulseInConfig{MaxLen: 3})
	if err != nil {
		t.Fatal(err)
	}
	widths := make([]uint16, 100)
	for i := range widths {
		widths[i] = uint16(i + 1)
	}
	be.FeedPulses(p.Number(), widths...)
	got := pi.Snapshot()
	if len(got) != 3 || got[0] != 98 || got[1] != 99 || got[2] != 100 {
		t.Fatalf("window %v", got)
	}
	if pi.Dropped() != 97 {
		t.Fatalf("dropped %d", pi.Dropped())
	}
}

func TestPulseOutZeroDutyKept(t *testing.T) {
	ctx, be := newSim(t)
	p := pin(t, ctx, "D2")
	zero := 0
	po, err := NewPulseOut(ctx, p, PulseOutConfig{Carrier: 38 * physic.KiloHertz, DutyCycle: &zero})
	if err != nil {
		t.Fatal(err)
	}
	if err := po.Send([]uint16{10}); err != nil {
		t.Fatal(err)
	}
	if tr := be.Trains(p.Number()); len(tr) != 1 || tr[0].Duty != 0 {
		t.Fatalf("trains %+v", tr)
	}
	over := DutyFullScale + 1
	if _, err := NewPulseOut(ctx, pin(t, ctx, "D6"), PulseOutConfig{DutyCycle: &over}); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("duty past full scale: %v", err)
	}
}
