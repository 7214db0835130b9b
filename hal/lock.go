package hal

import (
	"context"
	"sync"
	"time"

	"periphio/errcode"
)

// busLock is the try-lock shared by every bus. It is not fair: whichever
// caller polls first after an unlock wins.
type busLock struct {
	mu   sync.Mutex
	gen  uint64
	held bool
	dead bool
}

// Lease is the right to use a bus between TryLock and Unlock.
type Lease struct {
	l        *busLock
	gen      uint64
	mu       sync.Mutex
	released bool
}

func (l *busLock) tryLock() (*Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held || l.dead {
		return nil, false
	}
	l.gen++
	l.held = true
	return &Lease{l: l, gen: l.gen}, true
}

// lock polls tryLock until it succeeds or ctx ends.
func (l *busLock) lock(ctx context.Context, op string) (*Lease, error) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if ls, ok := l.tryLock(); ok {
			return ls, nil
		}
		l.mu.Lock()
		dead := l.dead
		l.mu.Unlock()
		if dead {
			return nil, &errcode.E{C: errcode.Deinitialized, Op: op}
		}
		select {
		case <-ctx.Done():
			return nil, errcode.Wrap(errcode.Timeout, op, ctx.Err())
		case <-t.C:
		}
	}
}

// kill invalidates every outstanding lease (bus deinit).
func (l *busLock) kill() {
	l.mu.Lock()
	l.dead = true
	l.held = false
	l.gen++
	l.mu.Unlock()
}

func (l *busLock) locked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Unlock releases the bus. Repeating it on the same lease is a no-op; a
// lease that no longer owns the bus fails with foreign_unlock.
func (ls *Lease) Unlock() error {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.released {
		return nil
	}
	ls.l.mu.Lock()
	defer ls.l.mu.Unlock()
	if !ls.l.held || ls.l.gen != ls.gen {
		return &errcode.E{C: errcode.ForeignUnlock, Op: "unlock", Msg: "lease does not own the bus"}
	}
	ls.l.held = false
	ls.released = true
	return nil
}

// valid reports whether the lease still owns its bus.
func (ls *Lease) valid(op string) error {
	ls.mu.Lock()
	released := ls.released
	ls.mu.Unlock()
	if released {
		return &errcode.E{C: errcode.NotLocked, Op: op, Msg: "lease unlocked"}
	}
	ls.l.mu.Lock()
	defer ls.l.mu.Unlock()
	if ls.l.dead {
		return &errcode.E{C: errcode.Deinitialized, Op: op}
	}
	if !ls.l.held || ls.l.gen != ls.gen {
		return &errcode.E{C: errcode.NotLocked, Op: op, Msg: "stale lease"}
	}
	return nil
}
