package board

import (
	"testing"

	"periphio/errcode"
)

func TestPinIdentity(t *testing.T) {
	tb := MustTable(Sim())
	led := tb.MustPin("LED")
	d13 := tb.MustPin("D13")
	if led != d13 {
		t.Fatalf("LED alias %v != D13 %v", led, d13)
	}
	if led == tb.MustPin("D12") {
		t.Fatal("distinct pins compare equal")
	}
	if NoPin.Valid() || NoPin.Number() != -1 {
		t.Fatal("NoPin must be invalid")
	}
}

func TestUnknownName(t *testing.T) {
	tb := MustTable(Pico())
	_, err := tb.Pin("D13")
	if errcode.Of(err) != errcode.UnknownPin {
		t.Fatalf("got %v, want unknown_pin", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("MustPin did not panic")
		}
	}()
	tb.MustPin("NEOPIXEL")
}

func TestEntriesIncludeAliases(t *testing.T) {
	tb := MustTable(Sim())
	var pins, aliases int
	seen := map[string]bool{}
	for _, e := range tb.Entries() {
		if seen[e.Name] {
			t.Fatalf("duplicate entry %s", e.Name)
		}
		seen[e.Name] = true
		if e.Alias {
			aliases++
		} else {
			pins++
		}
	}
	if pins != 30 || aliases != 10 {
		t.Fatalf("pins=%d aliases=%d", pins, aliases)
	}
	if len(tb.Names()) != 40 {
		t.Fatalf("names=%d", len(tb.Names()))
	}
}

func TestCaps(t *testing.T) {
	tb := MustTable(Sim())
	tests := []struct {
		name string
		has  Caps
		not  Caps
	}{
		{"A0", AnalogIn | AnalogOut, PWM},
		{"A1", AnalogIn, AnalogOut},
		{"D3", Digital | PWM | Pulse, AnalogIn},
		{"D22", I2C, PullUp | PullDown},
		{"SDA", I2C | PullUp, PullDown},
		{"D19", Pixel, PWM},
	}
	for _, tc := range tests {
		c := tb.Caps(tb.MustPin(tc.name))
		if !c.Has(tc.has) {
			t.Errorf("%s: caps %v lack %v", tc.name, c, tc.has)
		}
		if c&tc.not != 0 {
			t.Errorf("%s: caps %v unexpectedly have %v", tc.name, c, tc.not)
		}
	}
}

func TestRoutes(t *testing.T) {
	tb := MustTable(Pico())
	scl, sda := tb.MustPin("SCL"), tb.MustPin("SDA")
	if got := tb.Routes(BusI2C, RolePin{scl, RoleSCL}, RolePin{sda, RoleSDA}); len(got) != 1 || got[0] != 0 {
		t.Fatalf("SCL/SDA routes = %v", got)
	}
	// Swapped roles cannot be routed.
	if got := tb.Routes(BusI2C, RolePin{sda, RoleSCL}, RolePin{scl, RoleSDA}); len(got) != 0 {
		t.Fatalf("swapped routes = %v", got)
	}
	// GP2/GP3 are I2C1.
	if got := tb.Routes(BusI2C, RolePin{tb.MustPin("GP3"), RoleSCL}, RolePin{tb.MustPin("GP2"), RoleSDA}); len(got) != 1 || got[0] != 1 {
		t.Fatalf("GP3/GP2 routes = %v", got)
	}
	// One-direction UART skips NoPin.
	if got := tb.Routes(BusUART, RolePin{tb.MustPin("TX"), RoleTX}, RolePin{NoPin, RoleRX}); len(got) != 1 {
		t.Fatalf("tx-only routes = %v", got)
	}
	if got := tb.Routes(BusUART, RolePin{NoPin, RoleTX}, RolePin{NoPin, RoleRX}); len(got) != 0 {
		t.Fatalf("pinless routes = %v", got)
	}
}

func TestRP2040Mux(t *testing.T) {
	d := rp2040Pin("GP25", 25, 0)
	if d.Timer != 4 || d.Channel != 1 {
		t.Fatalf("GP25 timer=%d ch=%d", d.Timer, d.Channel)
	}
	tb := MustTable(Pico())
	if !tb.Caps(tb.MustPin("A0")).Has(AnalogIn) || tb.Caps(tb.MustPin("GP0")).Has(AnalogIn) {
		t.Fatal("analog caps wrong")
	}
}

func TestRegistry(t *testing.T) {
	for _, n := range []string{"pico", "feather_rp2040", "rpi", "sim"} {
		d, ok := Lookup(n)
		if !ok {
			t.Fatalf("board %s not registered", n)
		}
		if _, err := NewTable(d); err != nil {
			t.Fatalf("board %s: %v", n, err)
		}
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("unexpected board")
	}
}

func TestDuplicateRejected(t *testing.T) {
	d := Descriptor{Name: "bad", Pins: []PinDef{{Name: "X", GPIO: 1}, {Name: "Y", GPIO: 1}}}
	if _, err := NewTable(d); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("got %v", err)
	}
	d = Descriptor{Name: "bad", Pins: []PinDef{{Name: "X", GPIO: 1}}, Aliases: []Alias{{"LED", "Z"}}}
	if _, err := NewTable(d); errcode.Of(err) != errcode.UnknownPin {
		t.Fatalf("got %v", err)
	}
}

func TestRaspberryPiRoutes(t *testing.T) {
	tb := MustTable(RaspberryPi())
	sda, scl := tb.MustPin("SDA"), tb.MustPin("SCL")
	if sda.Number() != 2 || scl.Number() != 3 {
		t.Fatalf("sda=%v scl=%v", sda, scl)
	}
	if !tb.Caps(sda).Has(I2C) || tb.Caps(sda).Has(PWM) {
		t.Fatalf("GPIO2 caps = %v", tb.Caps(sda))
	}
	if d, _ := tb.Def(tb.MustPin("GPIO19")); d.Timer != 0 || d.Channel != 1 {
		t.Fatalf("GPIO19 timer=%d ch=%d", d.Timer, d.Channel)
	}
}
