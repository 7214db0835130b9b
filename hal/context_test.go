package hal

import (
	"testing"
	"time"

	"periphio/errcode"
	"periphio/hub"
	"periphio/types"
)

func TestPinClaimsAreExclusive(t *testing.T) {
	ctx, _ := newSim(t)
	led := pin(t, ctx, "LED")
	a, err := NewDigitalInOut(ctx, led)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewDigitalInOut(ctx, pin(t, ctx, "D13"))
	if !errcode.Is(err, errcode.PinInUse) || errcode.ClassOf(err) != errcode.ClassResourceInUse {
		t.Fatalf("alias of a held pin: %v", err)
	}
	a.Deinit()
	a.Deinit()
	b, err := NewDigitalInOut(ctx, led)
	if err != nil {
		t.Fatalf("pin not freed by Deinit: %v", err)
	}
	b.Deinit()
}

func TestUseAfterDeinit(t *testing.T) {
	ctx, _ := newSim(t)
	d, _ := NewDigitalInOut(ctx, pin(t, ctx, "D2"))
	d.Deinit()
	if err := d.SwitchToOutput(true, PushPull); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("got %v", err)
	}
	if _, err := d.Value(); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("got %v", err)
	}
}

func TestReleaseAllAndOwners(t *testing.T) {
	ctx, _ := newSim(t)
	_, _ = NewDigitalInOut(ctx, pin(t, ctx, "D2"))
	_, _ = NewPWMOut(ctx, pin(t, ctx, "D3"), PWMConfig{})
	owners := ctx.Owners()
	if len(owners) != 2 || owners[0].Kind != "digital" || owners[1].Kind != "pwm" {
		t.Fatalf("owners = %+v", owners)
	}
	if len(owners[1].Held) == 0 {
		t.Fatal("pwm should hold a timer")
	}
	ctx.ReleaseAll()
	if n := len(ctx.Owners()); n != 0 {
		t.Fatalf("%d owners left", n)
	}
	if _, err := NewPWMOut(ctx, pin(t, ctx, "D3"), PWMConfig{}); err != nil {
		t.Fatalf("timer not released: %v", err)
	}
}

func TestClosedContextRefusesClaims(t *testing.T) {
	ctx, _ := newSim(t)
	_ = ctx.Close()
	if _, err := NewDigitalInOut(ctx, pin(t, ctx, "D2")); !errcode.Is(err, errcode.Deinitialized) {
		t.Fatalf("got %v", err)
	}
}

func TestClaimsPublished(t *testing.T) {
	h := hub.New(8)
	ctx, _ := newSim(t, WithHub(h))
	conn := h.NewConnection("test")
	defer conn.Disconnect()
	sub := conn.Subscribe(hub.Topic{"claims", "+"})

	d, _ := NewDigitalInOut(ctx, pin(t, ctx, "D2"))
	select {
	case m := <-sub.Channel():
		st, ok := m.Payload.(types.ClaimState)
		if !ok || st.Pin != "D2" || st.Kind != "digital" || !m.Retained {
			t.Fatalf("claim message = %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("no claim published")
	}
	d.Deinit()
	select {
	case m := <-sub.Channel():
		if m.Payload != nil {
			t.Fatalf("release payload = %v", m.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no release published")
	}
}
