package hal

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
	"periphio/x/mathx"
)

// AnalogFullScale is the top of the analog value range on every board.
// Native samples are widened by bit replication, so a 12-bit reading of
// 0xFFF becomes 0xFFFF and 0x800 becomes 0x8008.
const AnalogFullScale = 0xFFFF

type AnalogIn struct {
	claim *Claim
	adc   platform.ADC
	bits  uint8
	vref  float64
}

func NewAnalogIn(ctx *Context, p board.Pin) (*AnalogIn, error) {
	const op = "analog_in"
	if err := ctx.Require(op, p, board.AnalogIn); err != nil {
		return nil, err
	}
	cl, err := ctx.Claim(op, p)
	if err != nil {
		return nil, err
	}
	adc, err := ctx.be.ADC(p.Number())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	cl.Bind(adc.Release)
	d := ctx.table.Descriptor()
	return &AnalogIn{claim: cl, adc: adc, bits: d.ADCBits, vref: d.VRef}, nil
}

// Value returns one sample in [0, AnalogFullScale].
func (a *AnalogIn) Value() (uint16, error) {
	if err := a.claim.Check("analog_in.Value"); err != nil {
		return 0, err
	}
	raw, err := a.adc.Read()
	if err != nil {
		return 0, errcode.Wrap(errcode.Transport, "analog_in.Value", err)
	}
	return mathx.Widen(raw, a.bits), nil
}

// ReferenceVoltage is the voltage that maps to AnalogFullScale.
func (a *AnalogIn) ReferenceVoltage() float64 { return a.vref }

func (a *AnalogIn) Voltage() (float64, error) {
	v, err := a.Value()
	if err != nil {
		return 0, err
	}
	return float64(v) / AnalogFullScale * a.vref, nil
}

// Average takes n samples and returns their rounded mean.
func (a *AnalogIn) Average(n int) (uint16, error) {
	if n <= 0 {
		return 0, &errcode.E{C: errcode.OutOfRange, Op: "analog_in.Average", Msg: "n must be positive"}
	}
	xs := make([]float64, n)
	for i := range xs {
		v, err := a.Value()
		if err != nil {
			return 0, err
		}
		xs[i] = float64(v)
	}
	return uint16(math.Round(stat.Mean(xs, nil))), nil
}

func (a *AnalogIn) Deinit() { a.claim.Release() }

type AnalogOut struct {
	claim *Claim
	dac   platform.DAC
	value uint16
}

func NewAnalogOut(ctx *Context, p board.Pin) (*AnalogOut, error) {
	const op = "analog_out"
	if err := ctx.Require(op, p, board.AnalogOut); err != nil {
		return nil, err
	}
	cl, err := ctx.Claim(op, p)
	if err != nil {
		return nil, err
	}
	dac, err := ctx.be.DAC(p.Number())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	cl.Bind(dac.Release)
	return &AnalogOut{claim: cl, dac: dac}, nil
}

// SetValue fails with out_of_range outside [0, AnalogFullScale].
func (a *AnalogOut) SetValue(v int) error {
	const op = "analog_out.SetValue"
	if err := a.claim.Check(op); err != nil {
		return err
	}
	if !mathx.InRange(v, 0, AnalogFullScale) {
		return &errcode.E{C: errcode.OutOfRange, Op: op}
	}
	if err := a.dac.Write(uint16(v)); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	a.value = uint16(v)
	return nil
}

func (a *AnalogOut) Value() uint16 { return a.value }

func (a *AnalogOut) Deinit() { a.claim.Release() }
