package hal

import (
	"sync"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

type Direction uint8

const (
	DirUnset Direction = iota
	DirInput
	DirOutput
)

func (d Direction) String() string {
	switch d {
	case DirInput:
		return "input"
	case DirOutput:
		return "output"
	}
	return "unset"
}

// DigitalInOut is one GPIO line. It starts with no direction.
type DigitalInOut struct {
	claim *Claim
	pin   board.Pin
	caps  board.Caps
	io    platform.GPIO

	mu    sync.Mutex
	dir   Direction
	pull  Pull
	drive Drive
}

func NewDigitalInOut(ctx *Context, p board.Pin) (*DigitalInOut, error) {
	const op = "digital"
	if err := ctx.Require(op, p, board.Digital); err != nil {
		return nil, err
	}
	cl, err := ctx.Claim(op, p)
	if err != nil {
		return nil, err
	}
	io, err := ctx.be.GPIO(p.Number())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	d := &DigitalInOut{claim: cl, pin: p, caps: ctx.table.Caps(p), io: io}
	cl.Bind(io.Release)
	return d, nil
}

func (d *DigitalInOut) Pin() board.Pin { return d.pin }

// SwitchToOutput drives value immediately.
func (d *DigitalInOut) SwitchToOutput(value bool, drive Drive) error {
	if err := d.claim.Check("digital.SwitchToOutput"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.io.ConfigureOutput(value, drive); err != nil {
		return errcode.Wrap(errcode.Transport, "digital.SwitchToOutput", err)
	}
	d.dir, d.drive, d.pull = DirOutput, drive, PullNone
	return nil
}

// SwitchToInput fails with unsupported when the pin lacks the pull.
func (d *DigitalInOut) SwitchToInput(pull Pull) error {
	const op = "digital.SwitchToInput"
	if err := d.claim.Check(op); err != nil {
		return err
	}
	switch {
	case pull == PullUp && !d.caps.Has(board.PullUp),
		pull == PullDown && !d.caps.Has(board.PullDown):
		return &errcode.E{C: errcode.Unsupported, Op: op, Msg: "no pull-" + pull.String() + " on " + d.claim.ctx.table.Name(d.pin)}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.io.ConfigureInput(pull); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	d.dir, d.pull = DirInput, pull
	return nil
}

// SetValue writes the output level.
func (d *DigitalInOut) SetValue(v bool) error {
	if err := d.claim.Check("digital.SetValue"); err != nil {
		return err
	}
	d.mu.Lock()
	dir := d.dir
	d.mu.Unlock()
	if dir != DirOutput {
		return &errcode.E{C: errcode.NotConfigured, Op: "digital.SetValue", Msg: "not an output"}
	}
	d.io.Set(v)
	return nil
}

// Value samples the line; for outputs this is the driven level.
func (d *DigitalInOut) Value() (bool, error) {
	if err := d.claim.Check("digital.Value"); err != nil {
		return false, err
	}
	d.mu.Lock()
	dir := d.dir
	d.mu.Unlock()
	if dir == DirUnset {
		return false, &errcode.E{C: errcode.NotConfigured, Op: "digital.Value", Msg: "direction unset"}
	}
	return d.io.Get(), nil
}

func (d *DigitalInOut) Direction() Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dir
}

func (d *DigitalInOut) Pull() Pull {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pull
}

func (d *DigitalInOut) DriveMode() Drive {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drive
}

// Deinit returns the pin to the free pool. Safe to call twice.
func (d *DigitalInOut) Deinit() { d.claim.Release() }
