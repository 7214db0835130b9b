// Package keypad scans buttons in the background and queues debounced
// press and release events.
package keypad

import (
	"strconv"
	"sync"
	"time"

	"periphio/board"
	"periphio/errcode"
	"periphio/hal"
	"periphio/hub"
	"periphio/types"
)

const (
	DefaultInterval  = 20 * time.Millisecond
	DefaultMaxEvents = 64
)

type Options struct {
	// ValueWhenPressed is the pin level of a pressed key.
	ValueWhenPressed bool
	// Pull enables the internal resistor pulling away from the pressed level.
	Pull      bool
	Interval  time.Duration
	MaxEvents int
}

type Event struct {
	Key       int
	Pressed   bool
	Timestamp time.Time
}

// EventQueue is bounded. When full, new events are discarded and
// Overflowed reports true until Clear or SetOverflowed(false).
type EventQueue struct {
	mu         sync.Mutex
	buf        []Event
	max        int
	overflowed bool
}

func newQueue(max int) *EventQueue { return &EventQueue{max: max} }

func (q *EventQueue) put(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.max {
		q.overflowed = true
		return false
	}
	q.buf = append(q.buf, e)
	return true
}

// Get pops the oldest event.
func (q *EventQueue) Get() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return Event{}, false
	}
	e := q.buf[0]
	q.buf = q.buf[1:]
	return e, true
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

func (q *EventQueue) Clear() {
	q.mu.Lock()
	q.buf = nil
	q.overflowed = false
	q.mu.Unlock()
}

func (q *EventQueue) Overflowed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflowed
}

func (q *EventQueue) SetOverflowed(v bool) {
	q.mu.Lock()
	q.overflowed = v
	q.mu.Unlock()
}

// Keys scans one pin per key.
type Keys struct {
	claim   *hal.Claim
	pins    []*hal.DigitalInOut
	pressed bool
	q       *EventQueue
	hub     *hub.Hub
	conn    *hub.Connection

	mu     sync.Mutex
	state  []bool // debounced
	last   []bool // previous raw sample
	closed bool

	stop chan struct{}
	done chan struct{}
}

func NewKeys(ctx *hal.Context, pins []board.Pin, opts Options) (*Keys, error) {
	const op = "keypad"
	if len(pins) == 0 {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "no pins"}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = DefaultMaxEvents
	}
	pull := hal.PullNone
	if opts.Pull {
		pull = hal.PullUp
		if opts.ValueWhenPressed {
			pull = hal.PullDown
		}
	}
	k := &Keys{
		pressed: opts.ValueWhenPressed,
		q:       newQueue(opts.MaxEvents),
		state:   make([]bool, len(pins)),
		last:    make([]bool, len(pins)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, p := range pins {
		d, err := hal.NewDigitalInOut(ctx, p)
		if err == nil {
			err = d.SwitchToInput(pull)
			if err != nil {
				d.Deinit()
			}
		}
		if err != nil {
			for _, prev := range k.pins {
				prev.Deinit()
			}
			return nil, err
		}
		k.pins = append(k.pins, d)
	}
	if h := ctx.Hub(); h != nil {
		k.hub, k.conn = h, h.NewConnection("keypad")
	}
	go k.loop(opts.Interval)
	// The scanner is a capability of its own so ReleaseAll stops it.
	cl, err := ctx.Claim(op)
	if err != nil {
		k.shutdown()
		return nil, err
	}
	cl.Bind(k.shutdown)
	k.claim = cl
	ctx.Log().Debug("keypad scanning", "keys", len(pins), "interval", opts.Interval)
	return k, nil
}

func (k *Keys) KeyCount() int { return len(k.pins) }

func (k *Keys) Events() *EventQueue { return k.q }

// Reset treats every key as released, so held keys report a fresh press.
func (k *Keys) Reset() {
	k.mu.Lock()
	for i := range k.state {
		k.state[i], k.last[i] = false, false
	}
	k.mu.Unlock()
}

func (k *Keys) loop(every time.Duration) {
	defer close(k.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-k.stop:
			return
		case now := <-t.C:
			k.scan(now)
		}
	}
}

// scan accepts a change once two consecutive samples agree.
func (k *Keys) scan(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, d := range k.pins {
		v, err := d.Value()
		if err != nil {
			continue
		}
		down := v == k.pressed
		stable := down == k.last[i]
		k.last[i] = down
		if !stable || down == k.state[i] {
			continue
		}
		k.state[i] = down
		ev := Event{Key: i, Pressed: down, Timestamp: now}
		k.q.put(ev)
		if k.conn != nil {
			k.conn.Publish(k.hub.NewMessage(hub.Topic{"keypad", strconv.Itoa(i)},
				types.KeyEvent{Key: i, Pressed: down, TS: now.UnixMilli()}, false))
		}
	}
}

// Deinit stops scanning and frees the pins.
func (k *Keys) Deinit() { k.claim.Release() }

func (k *Keys) shutdown() {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return
	}
	k.closed = true
	k.mu.Unlock()
	close(k.stop)
	<-k.done
	for _, d := range k.pins {
		d.Deinit()
	}
	if k.conn != nil {
		k.conn.Disconnect()
	}
}
