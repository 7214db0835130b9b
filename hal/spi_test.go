package hal

import (
	"testing"

	"periph.io/x/conn/v3/physic"

	"periphio/board"
	"periphio/errcode"
)

func TestSPITransfer(t *testing.T) {
	ctx, be := newSim(t)
	s, err := NewSPI(ctx, pin(t, ctx, "SCK"), pin(t, ctx, "MOSI"), pin(t, ctx, "MISO"))
	if err != nil {
		t.Fatal(err)
	}
	be.AttachSPI(s.Controller(), func(w, r []byte) {
		for i := range r {
			r[i] = ^w[i]
		}
	})
	l, ok := s.TryLock()
	if !ok {
		t.Fatal("lock")
	}
	defer l.Unlock()
	if err := l.Configure(SPIConfig{Baud: 4 * physic.MegaHertz, Polarity: 1, Phase: 1}); err != nil {
		t.Fatal(err)
	}
	in := make([]byte, 2)
	if err := l.WriteReadInto([]byte{0x0F, 0xF0}, in); err != nil || in[0] != 0xF0 || in[1] != 0x0F {
		t.Fatalf("in=%x err=%v", in, err)
	}
	b, err := l.Transfer(0x00)
	if err != nil || b != 0xFF {
		t.Fatalf("transfer %x %v", b, err)
	}
	log := be.SPILog(s.Controller())
	if len(log) != 2 || log[0].Config.Frequency != 4*physic.MegaHertz || log[0].Config.Polarity != 1 {
		t.Fatalf("log %+v", log)
	}
	if err := l.Tx([]byte{1, 2}, make([]byte, 3)); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("length mismatch: %v", err)
	}
	if err := l.Configure(SPIConfig{Phase: 2}); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("phase 2: %v", err)
	}
}

func TestSPIWriteOnly(t *testing.T) {
	ctx, _ := newSim(t)
	s, err := NewSPI(ctx, pin(t, ctx, "SCK"), pin(t, ctx, "MOSI"), board.NoPin)
	if err != nil {
		t.Fatal(err)
	}
	l, _ := s.TryLock()
	if err := l.Write([]byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := l.ReadInto(make([]byte, 1), 0); !errcode.Is(err, errcode.Unsupported) {
		t.Fatalf("read without sdi: %v", err)
	}
	_ = l.Unlock()
	s.Deinit()
	if err := l.Write([]byte{1}); !errcode.Is(err, errcode.NotLocked) && !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("write on dead bus: %v", err)
	}
}
