package hal

import (
	"context"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

const maxSPIFrequency = 100 * physic.MegaHertz

// SPIConfig is applied per lease; zero fields take the defaults
// (100 kHz, mode 0, 8 bits).
type SPIConfig struct {
	Baud     physic.Frequency
	Polarity uint8
	Phase    uint8
	Bits     uint8
}

var defaultSPIConfig = SPIConfig{Baud: 100 * physic.KiloHertz, Bits: 8}

// SPI is a four-wire bus master. Chip select is a DigitalInOut the
// caller toggles.
type SPI struct {
	claim  *Claim
	ctrl   int
	hw     platform.SPI
	lock   busLock
	hasOut bool
	hasIn  bool
}

// NewSPI builds a bus; sdo or sdi may be board.NoPin for one-way use.
func NewSPI(ctx *Context, sck, sdo, sdi board.Pin) (*SPI, error) {
	const op = "spi"
	if !sdo.Valid() && !sdi.Valid() {
		return nil, &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "need sdo or sdi"}
	}
	for i, p := range []board.Pin{sck, sdo, sdi} {
		if i > 0 && !p.Valid() {
			continue
		}
		if err := ctx.Require(op, p, board.SPI); err != nil {
			return nil, err
		}
	}
	routes := ctx.table.Routes(board.BusSPI,
		board.RolePin{Pin: sck, Role: board.RoleSCK},
		board.RolePin{Pin: sdo, Role: board.RoleSDO},
		board.RolePin{Pin: sdi, Role: board.RoleSDI})
	if len(routes) == 0 {
		return nil, &errcode.E{C: errcode.Unsupported, Op: op, Msg: "pins cannot form an spi bus"}
	}
	cl, err := ctx.Claim(op, sck, sdo, sdi)
	if err != nil {
		return nil, err
	}
	ctrl, err := ctx.reg.ClaimController(cl.id, board.BusSPI, routes)
	if err != nil {
		cl.Release()
		return nil, err
	}
	hw, err := ctx.be.SPI(ctrl, sck.Number(), sdo.Number(), sdi.Number())
	if err != nil {
		cl.Release()
		return nil, errcode.Wrap(errcode.Of(err), op, err)
	}
	s := &SPI{claim: cl, ctrl: ctrl, hw: hw, hasOut: sdo.Valid(), hasIn: sdi.Valid()}
	if err := hw.Configure(defaultSPIConfig.platform()); err != nil {
		hw.Release()
		cl.Release()
		return nil, errcode.Wrap(errcode.Transport, op, err)
	}
	cl.Bind(func() {
		s.lock.kill()
		s.hw.Release()
	})
	return s, nil
}

func (c SPIConfig) platform() platform.SPIConfig {
	return platform.SPIConfig{Frequency: c.Baud, Polarity: c.Polarity, Phase: c.Phase, Bits: c.Bits}
}

func (s *SPI) Controller() int { return s.ctrl }

func (s *SPI) TryLock() (*SPILease, bool) {
	if !s.claim.Alive() {
		return nil, false
	}
	ls, ok := s.lock.tryLock()
	if !ok {
		return nil, false
	}
	return &SPILease{Lease: ls, bus: s}, true
}

func (s *SPI) Lock(ctx context.Context) (*SPILease, error) {
	if err := s.claim.Check("spi.Lock"); err != nil {
		return nil, err
	}
	ls, err := s.lock.lock(ctx, "spi.Lock")
	if err != nil {
		return nil, err
	}
	return &SPILease{Lease: ls, bus: s}, nil
}

func (s *SPI) Locked() bool { return s.lock.locked() }

func (s *SPI) Deinit() { s.claim.Release() }

type SPILease struct {
	*Lease
	bus *SPI
}

var _ drivers.SPI = (*SPILease)(nil)

// Configure sets clock, mode and word size for this transfer window.
func (l *SPILease) Configure(cfg SPIConfig) error {
	const op = "spi.Configure"
	if err := l.valid(op); err != nil {
		return err
	}
	if cfg.Baud == 0 {
		cfg.Baud = defaultSPIConfig.Baud
	}
	if cfg.Bits == 0 {
		cfg.Bits = defaultSPIConfig.Bits
	}
	switch {
	case cfg.Baud < 0 || cfg.Baud > maxSPIFrequency:
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "baud"}
	case cfg.Polarity > 1 || cfg.Phase > 1:
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "polarity and phase are 0 or 1"}
	case cfg.Bits != 8 && cfg.Bits != 16:
		return &errcode.E{C: errcode.OutOfRange, Op: op, Msg: "bits"}
	}
	if err := l.bus.hw.Configure(cfg.platform()); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	return nil
}

// Tx clocks w out while filling r; either may be nil, equal lengths otherwise.
func (l *SPILease) Tx(w, r []byte) error {
	const op = "spi.Tx"
	if err := l.valid(op); err != nil {
		return err
	}
	if w != nil && r != nil && len(w) != len(r) {
		return &errcode.E{C: errcode.InvalidParams, Op: op, Msg: "buffer lengths differ"}
	}
	if len(w) > 0 && !l.bus.hasOut {
		return &errcode.E{C: errcode.Unsupported, Op: op, Msg: "bus has no sdo"}
	}
	if len(r) > 0 && !l.bus.hasIn {
		return &errcode.E{C: errcode.Unsupported, Op: op, Msg: "bus has no sdi"}
	}
	if err := l.bus.hw.Tx(w, r); err != nil {
		return errcode.Wrap(errcode.Transport, op, err)
	}
	return nil
}

func (l *SPILease) Transfer(b byte) (byte, error) {
	var in [1]byte
	var err error
	if l.bus.hasIn {
		err = l.Tx([]byte{b}, in[:])
	} else {
		err = l.Tx([]byte{b}, nil)
	}
	return in[0], err
}

func (l *SPILease) Write(buf []byte) error { return l.Tx(buf, nil) }

// ReadInto clocks out fill while reading.
func (l *SPILease) ReadInto(buf []byte, fill byte) error {
	if !l.bus.hasOut {
		return l.Tx(nil, buf)
	}
	w := make([]byte, len(buf))
	for i := range w {
		w[i] = fill
	}
	return l.Tx(w, buf)
}

func (l *SPILease) WriteReadInto(out, in []byte) error { return l.Tx(out, in) }
