package hal

import (
	"context"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"periphio/errcode"
)

// A servo-style output: variable frequency may retune, fixed may not.
func TestPWMVariableFrequency(t *testing.T) {
	ctx, be := newSim(t)
	servo := pin(t, ctx, "D4")
	pw, err := NewPWMOut(ctx, servo, PWMConfig{Frequency: 50 * physic.Hertz, DutyCycle: DutyFullScale / 2, VariableFrequency: true})
	if err != nil {
		t.Fatal(err)
	}
	st, ok := be.PWMState(servo.Number())
	if !ok || st.Frequency != 50*physic.Hertz || st.Duty != DutyFullScale/2 {
		t.Fatalf("state %+v", st)
	}
	time.Sleep(10 * time.Millisecond)
	if err := pw.SetFrequency(100 * physic.Hertz); err != nil {
		t.Fatal(err)
	}
	st, _ = be.PWMState(servo.Number())
	if st.Frequency != 100*physic.Hertz || pw.Frequency() != 100*physic.Hertz {
		t.Fatalf("retune not applied: %+v", st)
	}
	if err := pw.SetFrequency(10 * physic.MegaHertz); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("beyond board window: %v", err)
	}
	pw.Deinit()

	fixed, err := NewPWMOut(ctx, servo, PWMConfig{Frequency: 50 * physic.Hertz, DutyCycle: DutyFullScale / 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := fixed.SetFrequency(100 * physic.Hertz); !errcode.Is(err, errcode.FixedFrequency) {
		t.Fatalf("fixed output retuned: %v", err)
	}
}

func TestPWMTimerSharing(t *testing.T) {
	ctx, _ := newSim(t)
	// D4 and D5 share a timer.
	a, err := NewPWMOut(ctx, pin(t, ctx, "D4"), PWMConfig{Frequency: 1 * physic.KiloHertz})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewPWMOut(ctx, pin(t, ctx, "D5"), PWMConfig{Frequency: 2 * physic.KiloHertz}); !errcode.Is(err, errcode.TimerInUse) {
		t.Fatalf("conflicting frequency: %v", err)
	}
	b, err := NewPWMOut(ctx, pin(t, ctx, "D5"), PWMConfig{Frequency: 1 * physic.KiloHertz})
	if err != nil {
		t.Fatalf("matching frequency refused: %v", err)
	}
	a.Deinit()
	b.Deinit()
	if _, err := NewPWMOut(ctx, pin(t, ctx, "D5"), PWMConfig{Frequency: 2 * physic.KiloHertz}); err != nil {
		t.Fatalf("timer not freed: %v", err)
	}
}

func TestPWMDutyLimits(t *testing.T) {
	ctx, be := newSim(t)
	p := pin(t, ctx, "D8")
	pw, _ := NewPWMOut(ctx, p, PWMConfig{})
	if err := pw.SetDutyCycle(-1); !errcode.Is(err, errcode.OutOfRange) {
		t.Fatalf("negative duty: %v", err)
	}
	_ = pw.SetDutyCycle(DutyFullScale)
	st, _ := be.PWMState(p.Number())
	if lvl, ok := st.Constant(); !ok || !lvl {
		t.Fatal("full scale should be steady high")
	}
	_ = pw.SetDutyCycle(0)
	st, _ = be.PWMState(p.Number())
	if lvl, ok := st.Constant(); !ok || lvl {
		t.Fatal("zero should be steady low")
	}
	if _, err := NewPWMOut(ctx, pin(t, ctx, "D16"), PWMConfig{}); !errcode.Is(err, errcode.Unsupported) {
		t.Fatalf("pin without pwm: %v", err)
	}
}

func TestPWMFade(t *testing.T) {
	ctx, _ := newSim(t)
	pw, _ := NewPWMOut(ctx, pin(t, ctx, "D10"), PWMConfig{})
	if err := pw.Fade(context.Background(), DutyFullScale, 20*time.Millisecond, 10); err != nil {
		t.Fatal(err)
	}
	if pw.DutyCycle() != DutyFullScale {
		t.Fatalf("fade ended at %d", pw.DutyCycle())
	}

	done := make(chan error, 1)
	go func() { done <- pw.Fade(context.Background(), 0, time.Second, 100) }()
	time.Sleep(30 * time.Millisecond)
	_ = pw.SetDutyCycle(1234)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fade not cancelled")
	}
	if pw.DutyCycle() != 1234 {
		t.Fatalf("fade overrode explicit duty: %d", pw.DutyCycle())
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pw.Fade(cctx, 0, time.Second, 10); !errcode.Is(err, errcode.Timeout) {
		t.Fatalf("cancelled fade: %v", err)
	}
}
