package core

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default message limits.
const (
	DefaultRateLimitWindow = 10 * time.Second
	DefaultRateLimitMax    = 5
)

// RateLimiter implements a fixed-window counter per key.
type RateLimiter struct {
	window time.Duration
	max    int
	clock  clockwork.Clock

	mu      sync.Mutex
	entries map[string]*rateLimitState
}

type rateLimitState struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a limiter allowing max calls per window for each key.
// A nil clock uses the real clock.
func NewRateLimiter(window time.Duration, max int, clock clockwork.Clock) *RateLimiter {
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RateLimiter{
		window:  window,
		max:     max,
		clock:   clock,
		entries: make(map[string]*rateLimitState),
	}
}

// Allow consumes one slot for key and reports whether the call is permitted.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()

	st, ok := rl.entries[key]
	if !ok || !now.Before(st.resetAt) {
		rl.entries[key] = &rateLimitState{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if st.count >= rl.max {
		return false
	}
	st.count++
	return true
}

// Forget drops any state held for key.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.entries, key)
	rl.mu.Unlock()
}

// Sweep removes entries whose window has already ended and returns how many were dropped.
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	removed := 0
	for key, st := range rl.entries {
		if !now.Before(st.resetAt) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}
