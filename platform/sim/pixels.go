package sim

import (
	"sync"

	"periphio/platform"
)

type pixelLine struct {
	b *Board
	n int

	mu     sync.Mutex
	frames [][]byte
}

func (b *Board) Pixels(n int) (platform.Pixels, error) {
	if err := b.checkPin("sim.Pixels", n); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.pixels[n]
	if !ok {
		l = &pixelLine{b: b, n: n}
		b.pixels[n] = l
	}
	return l, nil
}

// Write emits buf with simulated interrupts masked.
func (l *pixelLine) Write(buf []byte) error {
	l.b.irq.Lock()
	defer l.b.irq.Unlock()
	l.mu.Lock()
	l.frames = append(l.frames, append([]byte(nil), buf...))
	l.mu.Unlock()
	return nil
}

func (l *pixelLine) Release() {}

// Frames returns every buffer clocked out on pin n, oldest first.
func (b *Board) Frames(n int) [][]byte {
	b.mu.Lock()
	l := b.pixels[n]
	b.mu.Unlock()
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.frames))
	copy(out, l.frames)
	return out
}

// Wire returns the last buffer clocked out on pin n, or nil.
func (b *Board) Wire(n int) []byte {
	f := b.Frames(n)
	if len(f) == 0 {
		return nil
	}
	return f[len(f)-1]
}

// Bits expands a wire buffer MSB first, as the line sees it.
func Bits(buf []byte) []bool {
	out := make([]bool, 0, len(buf)*8)
	for _, v := range buf {
		for i := 7; i >= 0; i-- {
			out = append(out, v&(1<<uint(i)) != 0)
		}
	}
	return out
}
