package core

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(10*time.Second, 3, clock)

	for i := 0; i < 3; i++ {
		if !rl.Allow("u1") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if rl.Allow("u1") {
		t.Fatalf("fourth call inside the window should be denied")
	}
	if !rl.Allow("u2") {
		t.Fatalf("keys must be limited independently")
	}

	clock.Advance(9 * time.Second)
	if rl.Allow("u1") {
		t.Fatalf("window has not ended yet")
	}

	clock.Advance(1 * time.Second)
	if !rl.Allow("u1") {
		t.Fatalf("new window should allow again")
	}
}

func TestRateLimiterSweepAndForget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rl := NewRateLimiter(time.Minute, 5, clock)

	rl.Allow("a")
	rl.Allow("b")
	if rl.Len() != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", rl.Len())
	}

	if removed := rl.Sweep(); removed != 0 {
		t.Fatalf("nothing should expire yet, removed %d", removed)
	}

	clock.Advance(30 * time.Second)
	rl.Allow("c")
	clock.Advance(30 * time.Second)

	if removed := rl.Sweep(); removed != 2 {
		t.Fatalf("expected 2 expired keys, removed %d", removed)
	}
	if rl.Len() != 1 {
		t.Fatalf("expected 1 remaining key, got %d", rl.Len())
	}

	rl.Forget("c")
	if rl.Len() != 0 {
		t.Fatalf("expected empty limiter, got %d", rl.Len())
	}
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(0, 0, nil)
	for i := 0; i < DefaultRateLimitMax; i++ {
		if !rl.Allow("k") {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	if rl.Allow("k") {
		t.Fatalf("default max should be %d", DefaultRateLimitMax)
	}
}
