package hub

import (
	"sort"
	"testing"
	"time"
)

func TestBasicPubSub(t *testing.T) {
	h := New(4)
	c := h.NewConnection("test")

	sub := c.Subscribe(Topic{"claims", "D13"})
	c.Publish(h.NewMessage(Topic{"claims", "D13"}, "hello", false))

	expectOneOf(t, sub, "hello")
}

func TestRetainedMessage(t *testing.T) {
	h := New(2)
	c := h.NewConnection("test")

	c.Publish(h.NewMessage(Topic{"runtime", "state"}, "running", true))
	sub := c.Subscribe(Topic{"runtime", "state"})

	expectOneOf(t, sub, "running")
}

func TestWildcard_SingleLevel(t *testing.T) {
	h := New(16)
	c := h.NewConnection("test")

	s1 := c.Subscribe(Topic{"a", "+", "c"})
	s2 := c.Subscribe(Topic{"a", "+", "+"})
	s3 := c.Subscribe(Topic{"a", "b", "+"})
	sNo := c.Subscribe(Topic{"a", "+", "d"})

	c.Publish(h.NewMessage(Topic{"a", "b", "c"}, "m1", false))
	expectOneOf(t, s1, "m1")
	expectOneOf(t, s2, "m1")
	expectOneOf(t, s3, "m1")
	expectNoMessage(t, sNo)

	c.Publish(h.NewMessage(Topic{"a", "c"}, "m2", false))
	expectNoMessage(t, s1)
	expectNoMessage(t, s2)
	expectNoMessage(t, s3)
}

func TestWildcard_MultiLevel(t *testing.T) {
	h := New(16)
	c := h.NewConnection("test")

	sAHash := c.Subscribe(Topic{"a", "#"})
	sHash := c.Subscribe(Topic{"#"})
	sABHash := c.Subscribe(Topic{"a", "b", "#"})
	sAExact := c.Subscribe(Topic{"a"})

	c.Publish(h.NewMessage(Topic{"a"}, "p1", false))
	expectOneOf(t, sAHash, "p1")
	expectOneOf(t, sHash, "p1")
	expectOneOf(t, sAExact, "p1")
	expectNoMessage(t, sABHash)

	c.Publish(h.NewMessage(Topic{"a", "b", "c"}, "p3", false))
	expectOneOf(t, sAHash, "p3")
	expectOneOf(t, sHash, "p3")
	expectOneOf(t, sABHash, "p3")
	expectNoMessage(t, sAExact)
}

func TestWildcard_RetainedDelivery(t *testing.T) {
	h := New(32)
	c := h.NewConnection("test")

	c.Publish(h.NewMessage(Topic{"a"}, "r0", true))
	c.Publish(h.NewMessage(Topic{"a", "b"}, "r1", true))
	c.Publish(h.NewMessage(Topic{"a", "b", "c"}, "r2", true))
	c.Publish(h.NewMessage(Topic{"a", "x"}, "r3", true))

	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "#"}), 4), []string{"r0", "r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "+", "#"}), 3), []string{"r1", "r2", "r3"})
	assertUnorderedEqual(t, drainPayloads(t, c.Subscribe(Topic{"a", "+"}), 2), []string{"r1", "r3"})
}

func TestRetainedClear(t *testing.T) {
	h := New(16)
	c := h.NewConnection("test")

	c.Publish(h.NewMessage(Topic{"a", "b"}, "keep", true))
	c.Publish(h.NewMessage(Topic{"a", "y"}, "other", true))
	c.Publish(h.NewMessage(Topic{"a", "b"}, nil, true))

	got := drainPayloads(t, c.Subscribe(Topic{"a", "#"}), 1)
	if got[0] != "other" {
		t.Fatalf("expected only 'other' after clear, got %v", got)
	}
}

func TestFullQueueDropsOldest(t *testing.T) {
	h := New(2)
	c := h.NewConnection("test")
	sub := c.Subscribe(Topic{"x"})

	for _, p := range []string{"1", "2", "3"} {
		c.Publish(h.NewMessage(Topic{"x"}, p, false))
	}
	got := drainPayloads(t, sub, 2)
	if got[0] != "2" || got[1] != "3" {
		t.Fatalf("got %v, want [2 3]", got)
	}
}

func TestDisconnectClosesChannels(t *testing.T) {
	h := New(2)
	c := h.NewConnection("test")
	sub := c.Subscribe(Topic{"x"})
	c.Disconnect()

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("channel still open after Disconnect")
	}
	// publishing after disconnect must not panic
	h.Publish(h.NewMessage(Topic{"x"}, "late", false))
	// unsubscribing twice is harmless
	sub.Unsubscribe()
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func expectOneOf(t *testing.T, sub *Subscription, want string) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		s, ok := got.Payload.(string)
		if !ok || s != want {
			t.Fatalf("unexpected payload: %v (want %q)", got.Payload, want)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for %q", want)
	}
}

func expectNoMessage(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.Channel():
		t.Fatalf("unexpected message: %#v", got)
	case <-time.After(30 * time.Millisecond):
	}
}

func drainPayloads(t *testing.T, sub *Subscription, n int) []string {
	t.Helper()
	var out []string
	deadline := time.Now().Add(300 * time.Millisecond)
	for len(out) < n && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			s, ok := m.Payload.(string)
			if !ok {
				t.Fatalf("non-string payload in drain: %#v", m.Payload)
			}
			out = append(out, s)
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(out) != n {
		t.Fatalf("drainPayloads: expected %d messages, got %d (%v)", n, len(out), out)
	}
	return out
}

func assertUnorderedEqual(t *testing.T, got, want []string) {
	t.Helper()
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %v, want %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
