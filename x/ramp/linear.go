package ramp

import (
	"time"

	"periphio/x/mathx"
)

// Step applies an intermediate level.
type Step func(level uint16)

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// Linear walks from -> to in steps equal increments spread over d, calling
// set after each tick. steps <= 0 or d <= 0 snaps to 'to'. It reports
// whether the final level was reached.
func Linear(from, to uint16, d time.Duration, steps int, tick Tick, set Step) bool {
	if steps <= 0 || d <= 0 {
		set(to)
		return true
	}
	per := d / time.Duration(steps)
	if per <= 0 {
		per = time.Millisecond
	}
	delta := int32(to) - int32(from)
	for i := 1; i < steps; i++ {
		if !tick(per) {
			return false
		}
		lvl := int32(from) + delta*int32(i)/int32(steps)
		set(uint16(mathx.Clamp(lvl, 0, 0xFFFF)))
	}
	if !tick(per) {
		return false
	}
	set(to)
	return true
}

// Sleeper returns a Tick that sleeps on a timer and stops when done closes.
func Sleeper(done <-chan struct{}) Tick {
	return func(d time.Duration) bool {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return true
		case <-done:
			return false
		}
	}
}
