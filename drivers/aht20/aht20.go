// Package aht20 reads an AHT20 temperature/humidity sensor on a shared
// I2C bus. Each step of a measurement takes the bus lock for its own
// transfer only, so other drivers on the bus can interleave:
//
//	d := aht20.New(bus, aht20.Config{})
//	s, err := d.Measure(ctx)
//
// Fixed-point helpers return tenths of units (deci-°C and deci-%RH).
package aht20

import (
	"context"
	"time"

	"periphio/errcode"
	"periphio/hal"
)

const Address = 0x38

const (
	cmdTrigger    = 0xAC
	cmdInitialize = 0xBE
	cmdSoftReset  = 0xBA
	cmdStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08
)

// Config is optional; zero fields take defaults.
type Config struct {
	Address uint16
	// Conversion is waited after a trigger before the first collect. 80 ms.
	Conversion time.Duration
	// Poll is the gap between collects while the sensor is busy. 15 ms.
	Poll time.Duration
	// Polls bounds the collects after one trigger. 10.
	Polls int
}

type Device struct {
	bus  *hal.I2C
	addr uint16
	cfg  Config
	buf  [7]byte
	last Sample
}

func New(bus *hal.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = Address
	}
	if cfg.Conversion <= 0 {
		cfg.Conversion = 80 * time.Millisecond
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 15 * time.Millisecond
	}
	if cfg.Polls <= 0 {
		cfg.Polls = 10
	}
	return &Device{bus: bus, addr: cfg.Address, cfg: cfg}
}

func (d *Device) tx(ctx context.Context, w, r []byte) error {
	l, err := d.bus.Lock(ctx)
	if err != nil {
		return err
	}
	defer l.Unlock()
	return l.Tx(d.addr, w, r)
}

func sleep(ctx context.Context, dur time.Duration) error {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errcode.Wrap(errcode.Timeout, "aht20", ctx.Err())
	case <-t.C:
		return nil
	}
}

func (d *Device) Status(ctx context.Context) (byte, error) {
	var st [1]byte
	if err := d.tx(ctx, []byte{cmdStatus}, st[:]); err != nil {
		return 0, err
	}
	return st[0], nil
}

// Init calibrates the sensor unless it reports calibrated already.
func (d *Device) Init(ctx context.Context) error {
	st, err := d.Status(ctx)
	if err != nil {
		return err
	}
	if st&statusCalibrated != 0 {
		return nil
	}
	if err := d.tx(ctx, []byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return err
	}
	return sleep(ctx, 10*time.Millisecond)
}

// Reset issues a soft reset; the sensor needs about 20 ms afterwards.
func (d *Device) Reset(ctx context.Context) error {
	return d.tx(ctx, []byte{cmdSoftReset}, nil)
}

// Measure triggers a conversion and polls until the sensor has a sample.
// It fails with not_configured when the sensor is uncalibrated (call
// Init), and with timeout when ctx ends or the sensor stays busy for
// Config.Polls collects. Bus errors are returned as they come; polled
// callers usually retry transport-class failures.
func (d *Device) Measure(ctx context.Context) (Sample, error) {
	const op = "aht20.Measure"
	if err := d.tx(ctx, []byte{cmdTrigger, 0x33, 0x00}, nil); err != nil {
		return Sample{}, err
	}
	if err := sleep(ctx, d.cfg.Conversion); err != nil {
		return Sample{}, err
	}
	for i := 0; i < d.cfg.Polls; i++ {
		if i > 0 {
			if err := sleep(ctx, d.cfg.Poll); err != nil {
				return Sample{}, err
			}
		}
		s, st, err := d.collect(ctx)
		if err != nil {
			return Sample{}, err
		}
		if st&statusCalibrated == 0 {
			return Sample{}, &errcode.E{C: errcode.NotConfigured, Op: op, Msg: "not calibrated"}
		}
		if st&statusBusy == 0 {
			d.last = s
			return s, nil
		}
	}
	return Sample{}, &errcode.E{C: errcode.Timeout, Op: op, Msg: "sensor busy"}
}

// collect reads one frame and returns it with its status byte.
func (d *Device) collect(ctx context.Context) (Sample, byte, error) {
	data := d.buf[:]
	if err := d.tx(ctx, nil, data); err != nil {
		return Sample{}, 0, err
	}
	return Sample{
		RawHumidity: uint32(data[1])<<12 | uint32(data[2])<<4 | uint32(data[3])>>4,
		RawTemp:     uint32(data[3]&0x0F)<<16 | uint32(data[4])<<8 | uint32(data[5]),
	}, data[0], nil
}

// Last returns the most recent successful sample.
func (d *Device) Last() Sample { return d.last }

// Sample holds 20-bit raw readings.
type Sample struct {
	RawHumidity uint32
	RawTemp     uint32
}

func (s Sample) DeciRelHumidity() int32 { return int32(s.RawHumidity) * 1000 / 0x100000 }
func (s Sample) DeciCelsius() int32     { return int32(s.RawTemp)*2000/0x100000 - 500 }

func (s Sample) RelHumidity() float64 { return float64(s.RawHumidity) * 100 / 0x100000 }
func (s Sample) Celsius() float64     { return float64(s.RawTemp)*200/0x100000 - 50 }
