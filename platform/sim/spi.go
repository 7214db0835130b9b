package sim

import (
	"sync"

	"periphio/board"
	"periphio/errcode"
	"periphio/platform"
)

// SPITransfer is one recorded full-duplex exchange.
type SPITransfer struct {
	Config platform.SPIConfig
	W      []byte
	R      []byte
}

// Responder answers a transfer by filling r. Without one the bus loops
// MOSI back to MISO.
type Responder func(w, r []byte)

type spiBus struct {
	mu    sync.Mutex
	cfg   platform.SPIConfig
	resp  Responder
	log   []SPITransfer
	ready bool
}

type spiHandle struct{ bus *spiBus }

func (b *Board) SPI(ctrl, sck, sdo, sdi int) (platform.SPI, error) {
	if err := b.checkCtrl("sim.SPI", board.BusSPI, ctrl); err != nil {
		return nil, err
	}
	for _, n := range []int{sck, sdo, sdi} {
		if err := b.checkPin("sim.SPI", n); err != nil {
			return nil, err
		}
	}
	return &spiHandle{bus: b.spiBus(ctrl)}, nil
}

func (b *Board) spiBus(ctrl int) *spiBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.spi[ctrl]
	if !ok {
		s = &spiBus{}
		b.spi[ctrl] = s
	}
	return s
}

// AttachSPI installs a responder on controller ctrl.
func (b *Board) AttachSPI(ctrl int, r Responder) {
	s := b.spiBus(ctrl)
	s.mu.Lock()
	s.resp = r
	s.mu.Unlock()
}

// SPILog returns the transfers seen on controller ctrl.
func (b *Board) SPILog(ctrl int) []SPITransfer {
	s := b.spiBus(ctrl)
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SPITransfer(nil), s.log...)
}

func (h *spiHandle) Configure(cfg platform.SPIConfig) error {
	if cfg.Polarity > 1 || cfg.Phase > 1 {
		return errcode.OutOfRange
	}
	h.bus.mu.Lock()
	h.bus.cfg = cfg
	h.bus.ready = true
	h.bus.mu.Unlock()
	return nil
}

func (h *spiHandle) Tx(w, r []byte) error {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	if !h.bus.ready {
		return errcode.NotConfigured
	}
	if r != nil {
		if h.bus.resp != nil {
			h.bus.resp(w, r)
		} else {
			copy(r, w)
		}
	}
	h.bus.log = append(h.bus.log, SPITransfer{
		Config: h.bus.cfg,
		W:      append([]byte(nil), w...),
		R:      append([]byte(nil), r...),
	})
	return nil
}

func (h *spiHandle) Release() {
	h.bus.mu.Lock()
	h.bus.ready = false
	h.bus.mu.Unlock()
}
