package board

import (
	"sort"
	"sync"
)

var (
	regMu  sync.RWMutex
	boards = map[string]Descriptor{}
)

// Register adds d under d.Name, replacing any earlier entry.
func Register(d Descriptor) {
	regMu.Lock()
	boards[d.Name] = d
	regMu.Unlock()
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	regMu.RLock()
	d, ok := boards[name]
	regMu.RUnlock()
	return d, ok
}

// Known lists registered board names, sorted.
func Known() []string {
	regMu.RLock()
	out := make([]string, 0, len(boards))
	for n := range boards {
		out = append(out, n)
	}
	regMu.RUnlock()
	sort.Strings(out)
	return out
}
