package core

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type typingEntry struct {
	timer clockwork.Timer
	gen   uint64
}

// TypingSet tracks users currently typing in one room. Each user holds a
// single expiry timer; re-arming replaces it so at most one expiry is pending.
// Not safe for concurrent use; the owning room serializes access.
type TypingSet struct {
	clock   clockwork.Clock
	users   map[int64]*typingEntry
	nextGen uint64
}

// NewTypingSet constructs an empty typing set driven by clock.
func NewTypingSet(clock clockwork.Clock) *TypingSet {
	return &TypingSet{
		clock: clock,
		users: make(map[int64]*typingEntry),
	}
}

// Start marks the user as typing and (re)arms the expiry timer. onExpire runs
// on the timer goroutine with the generation to pass back to Expire.
// Returns true if the user was not typing before.
func (t *TypingSet) Start(userID int64, timeout time.Duration, onExpire func(gen uint64)) bool {
	t.nextGen++
	gen := t.nextGen

	e, existed := t.users[userID]
	if existed {
		e.timer.Stop()
	} else {
		e = &typingEntry{}
		t.users[userID] = e
	}
	e.gen = gen
	e.timer = t.clock.AfterFunc(timeout, func() { onExpire(gen) })

	return !existed
}

// Stop cancels the pending expiry and removes the user. Returns true if the user was typing.
func (t *TypingSet) Stop(userID int64) bool {
	e, ok := t.users[userID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(t.users, userID)
	return true
}

// Expire removes the user only if gen still identifies the current timer.
// A stale timer that fired after a re-arm or stop is ignored.
func (t *TypingSet) Expire(userID int64, gen uint64) bool {
	e, ok := t.users[userID]
	if !ok || e.gen != gen {
		return false
	}
	delete(t.users, userID)
	return true
}

// Contains reports whether the user is typing.
func (t *TypingSet) Contains(userID int64) bool {
	_, ok := t.users[userID]
	return ok
}

// Len returns the number of typing users.
func (t *TypingSet) Len() int {
	return len(t.users)
}

// Clear stops every timer and empties the set.
func (t *TypingSet) Clear() {
	for id, e := range t.users {
		e.timer.Stop()
		delete(t.users, id)
	}
}
