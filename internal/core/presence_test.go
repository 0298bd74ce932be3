package core

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/campuslms/chatcore/internal/store"
)

func TestPresenceSetRefcountsConnections(t *testing.T) {
	p := NewPresenceSet()
	alice := store.User{ID: 2, Name: "alice"}
	bob := store.User{ID: 1, Name: "bob"}

	if !p.Add(alice) {
		t.Fatalf("first add should report newly present")
	}
	if p.Add(alice) {
		t.Fatalf("second connection must not report newly present")
	}
	p.Add(bob)

	snap := p.Snapshot()
	if len(snap) != 2 || snap[0].ID != 1 || snap[1].ID != 2 {
		t.Fatalf("expected snapshot ordered by id, got %+v", snap)
	}

	if p.Remove(alice.ID) {
		t.Fatalf("alice still has a connection")
	}
	if !p.Contains(alice.ID) {
		t.Fatalf("alice should still be present")
	}
	if !p.Remove(alice.ID) {
		t.Fatalf("last connection should report absent")
	}
	if p.Remove(alice.ID) {
		t.Fatalf("removing an absent user is a no-op")
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 user, got %d", p.Len())
	}
}

func TestTypingSetIgnoresStaleExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTypingSet(clock)

	fired := make(chan uint64, 4)
	onExpire := func(gen uint64) { fired <- gen }

	if !ts.Start(7, time.Second, onExpire) {
		t.Fatalf("first start should report new typer")
	}
	if ts.Start(7, time.Second, onExpire) {
		t.Fatalf("restart must not report new typer")
	}

	clock.Advance(time.Second)
	var gen uint64
	select {
	case gen = <-fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("timer did not fire")
	}

	if ts.Expire(7, gen-1) {
		t.Fatalf("stale generation must be ignored")
	}
	if !ts.Expire(7, gen) {
		t.Fatalf("current generation should expire the user")
	}
	if ts.Contains(7) || ts.Len() != 0 {
		t.Fatalf("typing set should be empty")
	}

	select {
	case extra := <-fired:
		t.Fatalf("stopped timer fired with generation %d", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTypingSetClear(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ts := NewTypingSet(clock)

	fired := make(chan uint64, 4)
	ts.Start(1, time.Second, func(gen uint64) { fired <- gen })
	ts.Start(2, time.Second, func(gen uint64) { fired <- gen })
	ts.Clear()

	clock.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatalf("cleared timers must not fire")
	case <-time.After(50 * time.Millisecond):
	}
	if ts.Len() != 0 {
		t.Fatalf("expected empty set")
	}
}
