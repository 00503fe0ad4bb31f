package circuitbreaker

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests step past the cool-down without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration) (*Breaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	b := New(threshold, cooldown)
	b.now = clk.Now
	return b, clk
}

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)
	if !b.Allow("webhook") {
		t.Fatal("expected closed circuit to allow")
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3, time.Second)

	b.RecordFailure("webhook")
	b.RecordFailure("webhook")
	if !b.Allow("webhook") {
		t.Fatal("should still allow before threshold")
	}

	b.RecordFailure("webhook")
	if b.Allow("webhook") {
		t.Fatal("should be open after 3 failures")
	}
	if b.State("webhook") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("webhook"))
	}
}

func TestBreaker_HalfOpenAdmitsOneProbe(t *testing.T) {
	b, clk := newTestBreaker(2, time.Minute)
	b.RecordFailure("webhook")
	b.RecordFailure("webhook")

	clk.Advance(59 * time.Second)
	if b.Allow("webhook") {
		t.Fatal("should stay open during cool-down")
	}

	clk.Advance(time.Second)
	if !b.Allow("webhook") {
		t.Fatal("should allow probe after cool-down")
	}
	if b.State("webhook") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("webhook"))
	}
	if b.Allow("webhook") {
		t.Fatal("should reject second caller while probing")
	}
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b, clk := newTestBreaker(1, time.Second)
		b.RecordFailure("k")
		clk.Advance(time.Second)
		b.Allow("k")
		b.RecordSuccess("k")
		if b.State("k") != StateClosed {
			t.Fatalf("expected closed, got %v", b.State("k"))
		}
	})
	t.Run("failure reopens", func(t *testing.T) {
		b, clk := newTestBreaker(1, time.Second)
		b.RecordFailure("k")
		clk.Advance(time.Second)
		b.Allow("k")
		b.RecordFailure("k")
		if b.State("k") != StateOpen {
			t.Fatalf("expected open, got %v", b.State("k"))
		}
		if b.Allow("k") {
			t.Fatal("reopened circuit should restart its cool-down")
		}
	})
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	b.RecordFailure("a")
	if b.Allow("a") {
		t.Fatal("a should be open")
	}
	if !b.Allow("b") {
		t.Fatal("b should be unaffected")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(3, time.Minute)
	b.RecordFailure("k")
	b.RecordFailure("k")
	b.RecordSuccess("k")
	b.RecordFailure("k")
	b.RecordFailure("k")
	if b.State("k") != StateClosed {
		t.Fatal("failures before a success should not count toward the threshold")
	}
}

func TestBreaker_Execute(t *testing.T) {
	b, _ := newTestBreaker(1, time.Minute)
	boom := errors.New("boom")

	if err := b.Execute("k", func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	called := false
	err := b.Execute("k", func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Fatal("fn must not run while open")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(9):      "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
