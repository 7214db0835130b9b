// Package ring is a single-producer, single-consumer ring buffer. The
// producer may run in interrupt context: it never blocks or allocates.
package ring

import "sync/atomic"

type Ring[T any] struct {
	buf  []T
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // empty -> non-empty edge
}

// New allocates a ring of size elements; size must be a power of two >= 2.
func New[T any](size int) *Ring[T] {
	if size < 2 || size&(size-1) != 0 {
		panic("ring: size must be power of two >= 2")
	}
	return &Ring[T]{
		buf:      make([]T, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
	}
}

// SizeFor rounds n up to a valid ring size.
func SizeFor(n int) int {
	s := 2
	for s < n {
		s <<= 1
	}
	return s
}

func (r *Ring[T]) Cap() int { return len(r.buf) }

func (r *Ring[T]) Len() int { return int(r.wr.Load() - r.rd.Load()) }

func (r *Ring[T]) Space() int { return len(r.buf) - r.Len() }

// Producer side

// Push appends v, reporting false when the ring is full.
func (r *Ring[T]) Push(v T) bool {
	rd := r.rd.Load()
	wr := r.wr.Load()
	if int(wr-rd) >= len(r.buf) {
		return false
	}
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1)
	if wr == rd {
		r.notify()
	}
	return true
}

// Overwrite appends v, replacing the oldest element when the ring is
// full. A ring fed with Overwrite must be read with DrainLatest.
func (r *Ring[T]) Overwrite(v T) {
	wr := r.wr.Load()
	r.buf[wr&r.mask] = v
	r.wr.Store(wr + 1)
	r.notify()
}

// WriteFrom copies as much of src as fits and returns the count.
func (r *Ring[T]) WriteFrom(src []T) int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	before := wr - rd
	n := len(r.buf) - int(before)
	if n <= 0 || len(src) == 0 {
		return 0
	}
	if len(src) < n {
		n = len(src)
	}
	idx := wr & r.mask
	first := copy(r.buf[idx:], src[:n])
	copy(r.buf, src[first:n])
	r.wr.Store(wr + uint32(n))
	if before == 0 {
		r.notify()
	}
	return n
}

func (r *Ring[T]) notify() {
	select {
	case r.readable <- struct{}{}:
	default:
	}
}

// Consumer side

// Pop removes the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	rd := r.rd.Load()
	if r.wr.Load() == rd {
		return zero, false
	}
	v := r.buf[rd&r.mask]
	r.buf[rd&r.mask] = zero
	r.rd.Store(rd + 1)
	return v, true
}

// ReadInto moves up to len(dst) elements into dst.
func (r *Ring[T]) ReadInto(dst []T) int {
	rd := r.rd.Load()
	avail := int(r.wr.Load() - rd)
	if avail <= 0 || len(dst) == 0 {
		return 0
	}
	n := avail
	if len(dst) < n {
		n = len(dst)
	}
	idx := rd & r.mask
	first := copy(dst[:n], r.buf[idx:])
	copy(dst[first:n], r.buf)
	r.rd.Store(rd + uint32(n))
	return n
}

// DrainLatest hands the buffered elements to fn, oldest first, and
// returns how many were lost to Overwrite. The slot the producer may be
// writing next is never read, so at most Cap()-1 elements survive.
func (r *Ring[T]) DrainLatest(fn func(T)) (lost int) {
	keep := uint32(len(r.buf) - 1)
	rd := r.rd.Load()
	for {
		wr := r.wr.Load()
		if wr-rd > keep {
			lost += int(wr - keep - rd)
			rd = wr - keep
		}
		if rd == wr {
			break
		}
		v := r.buf[rd&r.mask]
		if r.wr.Load()-rd > keep {
			// overwritten while reading
			continue
		}
		fn(v)
		rd++
	}
	r.rd.Store(rd)
	return lost
}

// Discard drops everything currently buffered.
func (r *Ring[T]) Discard() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	r.rd.Store(wr)
	return int(wr - rd)
}

// Readable fires on the empty -> non-empty edge.
func (r *Ring[T]) Readable() <-chan struct{} { return r.readable }
