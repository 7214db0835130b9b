package sim

import (
	"math"

	"periphio/errcode"
	"periphio/platform"
)

type adc struct {
	b *Board
	n int
}

type dac struct {
	b *Board
	n int
}

func (b *Board) ADC(n int) (platform.ADC, error) {
	if err := b.checkPin("sim.ADC", n); err != nil {
		return nil, err
	}
	return &adc{b: b, n: n}, nil
}

func (b *Board) DAC(n int) (platform.DAC, error) {
	if err := b.checkPin("sim.DAC", n); err != nil {
		return nil, err
	}
	return &dac{b: b, n: n}, nil
}

// SetVoltage sets the voltage seen by the ADC on pin n.
func (b *Board) SetVoltage(n int, v float64) {
	b.mu.Lock()
	b.volts[n] = v
	b.mu.Unlock()
}

// DACValue returns the last value written to the DAC on pin n.
func (b *Board) DACValue(n int) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dac[n]
}

// Read quantises the pin voltage to the board's ADC resolution.
func (a *adc) Read() (uint16, error) {
	a.b.mu.Lock()
	v := a.b.volts[a.n]
	closed := a.b.closed
	a.b.mu.Unlock()
	if closed {
		return 0, errcode.Deinitialized
	}
	bits := a.b.desc.ADCBits
	if bits == 0 || bits > 16 {
		bits = 16
	}
	max := float64(uint32(1)<<bits - 1)
	ref := a.b.desc.VRef
	if ref <= 0 {
		ref = 3.3
	}
	raw := math.Round(v / ref * max)
	if raw < 0 {
		raw = 0
	}
	if raw > max {
		raw = max
	}
	return uint16(raw), nil
}

func (a *adc) Release() {}

func (d *dac) Write(v uint16) error {
	d.b.mu.Lock()
	d.b.dac[d.n] = v
	d.b.volts[d.n] = float64(v) / 65535 * d.b.desc.VRef
	d.b.mu.Unlock()
	return nil
}

func (d *dac) Release() {
	d.b.mu.Lock()
	delete(d.b.dac, d.n)
	delete(d.b.volts, d.n)
	d.b.mu.Unlock()
}
