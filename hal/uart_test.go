package hal

import (
	"testing"
	"time"

	"periphio/board"
	"periphio/errcode"
)

func newUART(t *testing.T, ctx *Context, timeout time.Duration) *UART {
	t.Helper()
	u, err := NewUART(ctx, pin(t, ctx, "TX"), pin(t, ctx, "RX"), UARTConfig{Baud: 115200, Timeout: timeout})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestUARTReadWrite(t *testing.T) {
	ctx, be := newSim(t)
	u := newUART(t, ctx, 20*time.Millisecond)
	port := be.Port(u.Controller())
	if port.Config().Baud != 115200 || port.Config().Bits != 8 || port.Config().Stop != 1 {
		t.Fatalf("config %+v", port.Config())
	}
	if _, err := u.Write([]byte("AT\r\n")); err != nil {
		t.Fatal(err)
	}
	if string(port.Sent()) != "AT\r\n" {
		t.Fatalf("sent %q", port.Sent())
	}

	port.Inject([]byte("OK"))
	if n := u.InWaiting(); n != 2 {
		t.Fatalf("in waiting %d", n)
	}
	buf := make([]byte, 8)
	start := time.Now()
	n, err := u.Read(buf)
	if err != nil || string(buf[:n]) != "OK" {
		t.Fatalf("read %q, %v", buf[:n], err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatal("short read returned before the timeout")
	}
	n, err = u.Read(buf)
	if n != 0 || err != nil {
		t.Fatalf("empty read %d, %v", n, err)
	}
}

func TestUARTZeroTimeout(t *testing.T) {
	ctx, be := newSim(t)
	u := newUART(t, ctx, -1)
	if u.Config().Timeout != 0 {
		t.Fatalf("timeout %v", u.Config().Timeout)
	}
	be.Port(u.Controller()).Inject([]byte("abc"))
	buf := make([]byte, 8)
	if n, _ := u.Read(buf); string(buf[:n]) != "abc" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestUARTReadLine(t *testing.T) {
	ctx, be := newSim(t)
	u := newUART(t, ctx, 20*time.Millisecond)
	port := be.Port(u.Controller())
	port.Inject([]byte("$GPGGA,1\r\n$GPRMC"))
	line, err := u.ReadLine()
	if err != nil || string(line) != "$GPGGA,1" {
		t.Fatalf("line %q, %v", line, err)
	}
	line, err = u.ReadLine()
	if line != nil || err != nil {
		t.Fatalf("partial line returned: %q, %v", line, err)
	}
	port.Inject([]byte(",2\n"))
	line, _ = u.ReadLine()
	if string(line) != "$GPRMC,2" {
		t.Fatalf("joined line %q", line)
	}
	port.Inject([]byte("junk"))
	u.ResetInputBuffer()
	if u.InWaiting() != 0 {
		t.Fatal("reset left bytes")
	}
}

func TestUARTOneDirection(t *testing.T) {
	ctx, _ := newSim(t)
	u, err := NewUART(ctx, pin(t, ctx, "TX"), board.NoPin, UARTConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := u.Read(make([]byte, 1)); !errcode.Is(err, errcode.Unsupported) {
		t.Fatalf("read without rx: %v", err)
	}
	if err := u.SetBaudRate(0); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("baud 0: %v", err)
	}
	if err := u.SetBaudRate(57600); err != nil || u.Config().Baud != 57600 {
		t.Fatalf("baud change: %v", err)
	}
	l, ok := u.TryLock()
	if !ok {
		t.Fatal("lock")
	}
	if _, ok := u.TryLock(); ok {
		t.Fatal("double lock")
	}
	_ = l.Unlock()
	u.Deinit()
	if _, err := u.Write([]byte("x")); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("write after deinit: %v", err)
	}
	if _, err := NewUART(ctx, board.NoPin, board.NoPin, UARTConfig{}); !errcode.Is(err, errcode.InvalidParams) {
		t.Fatalf("no pins: %v", err)
	}
	if _, err := NewUART(ctx, pin(t, ctx, "TX"), board.NoPin, UARTConfig{Stop: 3}); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("stop bits: %v", err)
	}
}
