package core

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/campuslms/chatcore/internal/store"
	"github.com/campuslms/chatcore/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up on ch within wait.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected %v event: %+v", kind, ev)
			}
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func drain(ch <-chan *Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

type testEnv struct {
	hub   *Hub
	store *sqlite.SQLiteStore
	clock *clockwork.FakeClock
}

func newTestEnv(t testing.TB, cfg Config) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, cfg, nil)
}

// newTestEnvWithStore lets wrap replace the store seen by the hub.
func newTestEnvWithStore(t testing.TB, cfg Config, wrap func(Store) Store) *testEnv {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC))
	cfg.Clock = clock
	var hubStore Store = st
	if wrap != nil {
		hubStore = wrap(st)
	}
	return &testEnv{hub: NewHub(hubStore, cfg, nil), store: st, clock: clock}
}

func (e *testEnv) user(t testing.TB, name string, role store.UserRole) store.User {
	t.Helper()
	u, err := e.store.CreateUser(context.Background(), name, role)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return *u
}

func (e *testEnv) room(t testing.TB, name string, members map[int64]store.MemberRole) int64 {
	t.Helper()
	ctx := context.Background()
	r, err := e.store.CreateRoom(ctx, name, store.RoomTypeGroup, nil)
	if err != nil {
		t.Fatalf("create room %s: %v", name, err)
	}
	for userID, role := range members {
		if err := e.store.AddMember(ctx, userID, r.ID, role); err != nil {
			t.Fatalf("add member %d: %v", userID, err)
		}
	}
	return r.ID
}

func (e *testEnv) connect(id string, profile store.User) *Client {
	c := NewClient(id, profile, 0)
	e.hub.RegisterClient(c)
	return c
}

func (e *testEnv) join(t *testing.T, c *Client, roomID int64) {
	t.Helper()
	if err := e.hub.Join(context.Background(), c, roomID); err != nil {
		t.Fatalf("join room %d: %v", roomID, err)
	}
	mustEvent(t, c.Events, EventOnlineUsers)
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	cerr, ok := err.(*CoreError)
	if !ok || cerr.Code != code {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
