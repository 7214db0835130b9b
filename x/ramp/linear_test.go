package ramp

import (
	"testing"
	"time"
)

func TestLinearSteps(t *testing.T) {
	var got []uint16
	ok := Linear(0, 1000, 40*time.Millisecond, 4,
		func(time.Duration) bool { return true },
		func(l uint16) { got = append(got, l) })
	if !ok {
		t.Fatal("ramp reported cancel")
	}
	want := []uint16{250, 500, 750, 1000}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestLinearDown(t *testing.T) {
	var last uint16
	Linear(65535, 0, time.Millisecond, 3, func(time.Duration) bool { return true }, func(l uint16) { last = l })
	if last != 0 {
		t.Fatalf("last = %d", last)
	}
}

func TestLinearSnap(t *testing.T) {
	var got []uint16
	Linear(10, 20, 0, 5, func(time.Duration) bool { t.Fatal("tick on snap"); return false },
		func(l uint16) { got = append(got, l) })
	if len(got) != 1 || got[0] != 20 {
		t.Fatalf("got %v", got)
	}
}

func TestLinearCancel(t *testing.T) {
	done := make(chan struct{})
	close(done)
	calls := 0
	ok := Linear(0, 100, time.Second, 10, Sleeper(done), func(uint16) { calls++ })
	if ok || calls != 0 {
		t.Fatalf("ok=%v calls=%d", ok, calls)
	}
}
