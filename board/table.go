package board

import (
	"sort"

	"github.com/pkg/errors"

	"periphio/errcode"
)

// Entry is one (name, handle) pair of a board table.
type Entry struct {
	Name  string
	Pin   Pin
	Alias bool
}

// RolePin pairs a pin with the bus signal it should carry.
type RolePin struct {
	Pin  Pin
	Role Role
}

// Table is the board identity table: silkscreen names and aliases
// resolved to pin handles, plus per-pin capabilities.
type Table struct {
	desc    Descriptor
	byName  map[string]Pin
	entries []Entry
	defs    map[Pin]*PinDef
	pins    []Pin
}

// NewTable validates d and builds its lookup table.
func NewTable(d Descriptor) (*Table, error) {
	t := &Table{
		desc:   d,
		byName: make(map[string]Pin, len(d.Pins)+len(d.Aliases)),
		defs:   make(map[Pin]*PinDef, len(d.Pins)),
	}
	for i := range d.Pins {
		def := &t.desc.Pins[i]
		if _, dup := t.byName[def.Name]; dup {
			return nil, errors.Wrapf(errcode.InvalidParams, "board %s: duplicate pin name %q", d.Name, def.Name)
		}
		p := gpioPin(def.GPIO)
		if _, dup := t.defs[p]; dup {
			return nil, errors.Wrapf(errcode.InvalidParams, "board %s: gpio %d listed twice", d.Name, def.GPIO)
		}
		for _, f := range def.Funcs {
			switch f.Bus {
			case BusI2C:
				def.Caps |= I2C
			case BusSPI:
				def.Caps |= SPI
			case BusUART:
				def.Caps |= UART
			}
		}
		t.byName[def.Name] = p
		t.defs[p] = def
		t.pins = append(t.pins, p)
		t.entries = append(t.entries, Entry{Name: def.Name, Pin: p})
	}
	for _, a := range d.Aliases {
		p, ok := t.byName[a.Target]
		if !ok {
			return nil, errors.Wrapf(errcode.UnknownPin, "board %s: alias %s -> %s", d.Name, a.Name, a.Target)
		}
		if _, dup := t.byName[a.Name]; dup {
			return nil, errors.Wrapf(errcode.InvalidParams, "board %s: alias %q shadows a name", d.Name, a.Name)
		}
		t.byName[a.Name] = p
		t.entries = append(t.entries, Entry{Name: a.Name, Pin: p, Alias: true})
	}
	return t, nil
}

// MustTable is NewTable for built-in descriptors.
func MustTable(d Descriptor) *Table {
	t, err := NewTable(d)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) Descriptor() *Descriptor { return &t.desc }

func (t *Table) BoardName() string { return t.desc.Name }

// Pin resolves a silkscreen name or alias.
func (t *Table) Pin(name string) (Pin, error) {
	if p, ok := t.byName[name]; ok {
		return p, nil
	}
	return NoPin, &errcode.E{C: errcode.UnknownPin, Op: "board.Pin", Msg: t.desc.Name + " has no pin " + name}
}

// MustPin panics when name is missing, mirroring a failed import.
func (t *Table) MustPin(name string) Pin {
	p, err := t.Pin(name)
	if err != nil {
		panic(err)
	}
	return p
}

// Entries lists pins in descriptor order followed by aliases.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Names returns every resolvable name, sorted.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Pins lists the physical pins once each, in descriptor order.
func (t *Table) Pins() []Pin { return append([]Pin(nil), t.pins...) }

func (t *Table) Def(p Pin) (PinDef, bool) {
	d, ok := t.defs[p]
	if !ok {
		return PinDef{}, false
	}
	return *d, true
}

// Caps returns the capability set of p; unknown pins have none.
func (t *Table) Caps(p Pin) Caps {
	if d, ok := t.defs[p]; ok {
		return d.Caps
	}
	return 0
}

// Name returns the silkscreen name of p.
func (t *Table) Name(p Pin) string {
	if d, ok := t.defs[p]; ok {
		return d.Name
	}
	return p.String()
}

// Routes lists the controllers of kind k that can serve every given
// pin in its role. NoPin entries are skipped.
func (t *Table) Routes(k BusKind, pins ...RolePin) []int {
	n := t.desc.Controllers(k)
	var out []int
	for c := 0; c < n; c++ {
		ok, used := true, false
		for _, rp := range pins {
			if !rp.Pin.Valid() {
				continue
			}
			used = true
			if !t.canRoute(rp, k, uint8(c)) {
				ok = false
				break
			}
		}
		if ok && used {
			out = append(out, c)
		}
	}
	return out
}

func (t *Table) canRoute(rp RolePin, k BusKind, ctrl uint8) bool {
	d, ok := t.defs[rp.Pin]
	if !ok {
		return false
	}
	for _, f := range d.Funcs {
		if f.Bus == k && f.Ctrl == ctrl && f.Role == rp.Role {
			return true
		}
	}
	return false
}
