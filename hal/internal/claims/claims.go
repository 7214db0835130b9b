// Package claims tracks exclusive ownership of pins, timers and bus
// controllers. An Owner is the id of one live capability.
package claims

import (
	"sort"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
)

type Owner uint32

type timerUse struct {
	freq      physic.Frequency
	users     map[Owner]struct{}
	exclusive bool
}

type ctrlKey struct {
	kind board.BusKind
	n    int
}

type Registry struct {
	mu     sync.Mutex
	pins   map[board.Pin]Owner
	timers map[int]*timerUse
	ctrls  map[ctrlKey]Owner
}

func New() *Registry {
	return &Registry{
		pins:   make(map[board.Pin]Owner),
		timers: make(map[int]*timerUse),
		ctrls:  make(map[ctrlKey]Owner),
	}
}

// ---- Pins ----

// ClaimPins takes every given pin for o or none of them. NoPin is skipped.
func (r *Registry) ClaimPins(o Owner, pins ...board.Pin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range pins {
		if !p.Valid() {
			continue
		}
		if cur, taken := r.pins[p]; taken && cur != o {
			return &errcode.E{C: errcode.PinInUse, Op: "claim", Msg: p.String()}
		}
		for _, q := range pins[:i] {
			if q == p {
				return &errcode.E{C: errcode.PinInUse, Op: "claim", Msg: p.String() + " given twice"}
			}
		}
	}
	for _, p := range pins {
		if p.Valid() {
			r.pins[p] = o
		}
	}
	return nil
}

// ReleasePins frees pins held by o; pins held by others are untouched.
func (r *Registry) ReleasePins(o Owner, pins ...board.Pin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pins {
		if cur, ok := r.pins[p]; ok && cur == o {
			delete(r.pins, p)
		}
	}
}

func (r *Registry) PinOwner(p board.Pin) (Owner, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.pins[p]
	return o, ok
}

// ---- Timers ----

// ClaimTimerShared joins timer t at frequency f. The first user sets the
// frequency; later users must match it. first reports whether the caller
// should program the timer period.
func (r *Registry) ClaimTimerShared(o Owner, t int, f physic.Frequency) (first bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tu := r.timers[t]
	if tu == nil || len(tu.users) == 0 {
		r.timers[t] = &timerUse{freq: f, users: map[Owner]struct{}{o: {}}}
		return true, nil
	}
	if _, mine := tu.users[o]; mine {
		return false, nil
	}
	if tu.exclusive {
		return false, &errcode.E{C: errcode.TimerInUse, Op: "claim", Msg: "timer " + strconv.Itoa(t) + " reserved"}
	}
	if tu.freq != f {
		return false, &errcode.E{C: errcode.TimerInUse, Op: "claim", Msg: "timer " + strconv.Itoa(t) + " runs at " + tu.freq.String()}
	}
	tu.users[o] = struct{}{}
	return false, nil
}

// ClaimTimerExclusive reserves timer t for o alone.
func (r *Registry) ClaimTimerExclusive(o Owner, t int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tu := r.timers[t]; tu != nil && len(tu.users) > 0 {
		if _, mine := tu.users[o]; mine && len(tu.users) == 1 {
			tu.exclusive = true
			return nil
		}
		return &errcode.E{C: errcode.TimerInUse, Op: "claim", Msg: "timer " + strconv.Itoa(t) + " busy"}
	}
	r.timers[t] = &timerUse{users: map[Owner]struct{}{o: {}}, exclusive: true}
	return nil
}

// ClaimFreeTimer reserves the first idle timer among candidates.
func (r *Registry) ClaimFreeTimer(o Owner, candidates []int) (int, error) {
	if len(candidates) == 0 {
		return -1, &errcode.E{C: errcode.Unsupported, Op: "claim", Msg: "board has no spare timers"}
	}
	for _, t := range candidates {
		if r.ClaimTimerExclusive(o, t) == nil {
			return t, nil
		}
	}
	return -1, &errcode.E{C: errcode.TimerInUse, Op: "claim", Msg: "all timers busy"}
}

// RetuneTimer changes the frequency of a timer o holds alone.
func (r *Registry) RetuneTimer(o Owner, t int, f physic.Frequency) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tu := r.timers[t]
	if tu == nil {
		return errcode.NotConfigured
	}
	if _, mine := tu.users[o]; !mine || len(tu.users) != 1 {
		return &errcode.E{C: errcode.TimerInUse, Op: "retune", Msg: "timer " + strconv.Itoa(t) + " shared"}
	}
	tu.freq = f
	return nil
}

// ReleaseTimer drops o from timer t.
func (r *Registry) ReleaseTimer(o Owner, t int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tu := r.timers[t]
	if tu == nil {
		return
	}
	delete(tu.users, o)
	if len(tu.users) == 0 {
		delete(r.timers, t)
	}
}

// ---- Bus controllers ----

// ClaimController takes the first free controller of kind k among candidates.
func (r *Registry) ClaimController(o Owner, k board.BusKind, candidates []int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range candidates {
		key := ctrlKey{k, c}
		if _, taken := r.ctrls[key]; !taken {
			r.ctrls[key] = o
			return c, nil
		}
	}
	return -1, &errcode.E{C: errcode.BusInUse, Op: "claim", Msg: k.String() + " controllers exhausted"}
}

func (r *Registry) ReleaseController(o Owner, k board.BusKind, c int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ctrlKey{k, c}
	if cur, ok := r.ctrls[key]; ok && cur == o {
		delete(r.ctrls, key)
	}
}

// ---- Bulk ----

// ReleaseOwner frees everything o holds.
func (r *Registry) ReleaseOwner(o Owner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, cur := range r.pins {
		if cur == o {
			delete(r.pins, p)
		}
	}
	for t, tu := range r.timers {
		delete(tu.users, o)
		if len(tu.users) == 0 {
			delete(r.timers, t)
		}
	}
	for k, cur := range r.ctrls {
		if cur == o {
			delete(r.ctrls, k)
		}
	}
}

// Holding describes one held resource.
type Holding struct {
	Owner    Owner
	Resource string
}

// Snapshot lists current holdings sorted by resource name.
func (r *Registry) Snapshot() []Holding {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Holding
	for p, o := range r.pins {
		out = append(out, Holding{o, p.String()})
	}
	for t, tu := range r.timers {
		for o := range tu.users {
			out = append(out, Holding{o, "timer" + strconv.Itoa(t)})
		}
	}
	for k, o := range r.ctrls {
		out = append(out, Holding{o, k.kind.String() + strconv.Itoa(k.n)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resource != out[j].Resource {
			return out[i].Resource < out[j].Resource
		}
		return out[i].Owner < out[j].Owner
	})
	return out
}
