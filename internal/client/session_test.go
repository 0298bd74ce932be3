package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/store"
	"github.com/campuslms/chatcore/internal/store/sqlite"
	transporthttp "github.com/campuslms/chatcore/internal/transport/http"
)

type fixture struct {
	url   string
	store *sqlite.SQLiteStore
	auth  *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	authService := auth.NewService(st, &auth.JWTConfig{Secret: []byte("test-secret"), TTL: time.Hour})

	disabledLogger := zerolog.New(nil)
	hub := core.NewHub(st, core.Config{}, &disabledLogger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := transporthttp.NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &fixture{
		url:   strings.Replace(ts.URL, "http", "ws", 1) + "/ws",
		store: st,
		auth:  authService,
	}
}

func (f *fixture) user(t *testing.T, name string) (store.User, string) {
	t.Helper()
	ctx := context.Background()
	u, err := f.store.CreateUser(ctx, name, store.UserRoleStudent)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := f.auth.IssueToken(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return *u, token
}

func (f *fixture) room(t *testing.T, name string, members ...store.User) int64 {
	t.Helper()
	ctx := context.Background()
	r, err := f.store.CreateRoom(ctx, name, store.RoomTypeGroup, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, m := range members {
		if err := f.store.AddMember(ctx, m.ID, r.ID, store.MemberRoleMember); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return r.ID
}

func (f *fixture) dial(t *testing.T, token string, opts ...Option) *Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := Dial(ctx, f.url, token, opts...)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func collect[T any](register func(func(T)) func()) (<-chan T, func()) {
	ch := make(chan T, 16)
	unsubscribe := register(func(v T) { ch <- v })
	return ch, unsubscribe
}

func expect[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
	var zero T
	return zero
}

func expectNone[T any](t *testing.T, ch <-chan T, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %+v", what, v)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSessionHelloAndReadReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceToken := f.user(t, "alice")
	bob, bobToken := f.user(t, "bob")
	roomID := f.room(t, "general", alice, bob)

	a := f.dial(t, aliceToken)
	b := f.dial(t, bobToken)

	aJoined, _ := collect(a.OnUserJoined)
	aRoster, _ := collect(a.OnOnlineUsers)
	aRead, _ := collect(a.OnMessageRead)
	aMessages, _ := collect(a.OnNewMessage)
	bRoster, _ := collect(b.OnOnlineUsers)
	bMessages, _ := collect(b.OnNewMessage)

	if err := a.Join(ctx, roomID); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	expect(t, aRoster, "alice roster")

	if err := b.Join(ctx, roomID); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	roster := expect(t, bRoster, "bob roster")
	if len(roster.Users) != 2 {
		t.Fatalf("expected two users in roster, got %+v", roster.Users)
	}
	joined := expect(t, aJoined, "user_joined")
	if joined.UserID != bob.ID || joined.OnlineCount != 2 {
		t.Fatalf("unexpected user_joined: %+v", joined)
	}

	if err := a.Send(ctx, roomID, "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg := expect(t, bMessages, "new_message at bob")
	if msg.Content != "hello" || msg.SenderID != alice.ID {
		t.Fatalf("unexpected message: %+v", msg)
	}
	own := expect(t, aMessages, "new_message at alice")
	if own.ID != msg.ID {
		t.Fatalf("sender should receive the same message, got %d vs %d", own.ID, msg.ID)
	}

	if err := b.MarkRead(ctx, msg.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	read := expect(t, aRead, "message_read")
	if read.MessageID != msg.ID || read.UserID != bob.ID {
		t.Fatalf("unexpected message_read: %+v", read)
	}

	// Marking again is silent.
	_ = b.MarkRead(ctx, msg.ID)
	expectNone(t, aRead, "second message_read")
}

func TestSessionUnsubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceToken := f.user(t, "alice")
	roomID := f.room(t, "general", alice)
	a := f.dial(t, aliceToken)

	var first, second atomic.Int32
	unsubscribe := a.OnNewMessage(func(proto.Message) { first.Add(1) })
	a.OnNewMessage(func(proto.Message) { second.Add(1) })
	seen, _ := collect(a.OnNewMessage)

	roster, _ := collect(a.OnOnlineUsers)
	_ = a.Join(ctx, roomID)
	expect(t, roster, "roster")

	_ = a.Send(ctx, roomID, "one")
	expect(t, seen, "first message")

	unsubscribe()
	unsubscribe()

	_ = a.Send(ctx, roomID, "two")
	expect(t, seen, "second message")

	if first.Load() != 1 || second.Load() != 2 {
		t.Fatalf("unexpected listener counts: first=%d second=%d", first.Load(), second.Load())
	}
}

func TestSessionTypingDebounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceToken := f.user(t, "alice")
	bob, bobToken := f.user(t, "bob")
	roomID := f.room(t, "general", alice, bob)

	clock := clockwork.NewFakeClock()
	a := f.dial(t, aliceToken, WithClock(clock), WithTypingIdle(2*time.Second))
	b := f.dial(t, bobToken)

	aRoster, _ := collect(a.OnOnlineUsers)
	bRoster, _ := collect(b.OnOnlineUsers)
	typing, _ := collect(b.OnUserTyping)
	stopped, _ := collect(b.OnUserStoppedTyping)

	_ = a.Join(ctx, roomID)
	expect(t, aRoster, "alice roster")
	_ = b.Join(ctx, roomID)
	expect(t, bRoster, "bob roster")

	if err := a.Typing(ctx, roomID); err != nil {
		t.Fatalf("typing: %v", err)
	}
	ev := expect(t, typing, "user_typing")
	if ev.UserID != alice.ID || ev.RoomID != roomID {
		t.Fatalf("unexpected typing event: %+v", ev)
	}

	clock.Advance(500 * time.Millisecond)
	_ = a.Typing(ctx, roomID)
	expectNone(t, typing, "repeated user_typing")

	// Idle from the last keystroke, not the first.
	clock.Advance(1900 * time.Millisecond)
	expectNone(t, stopped, "early user_stopped_typing")

	clock.Advance(200 * time.Millisecond)
	stop := expect(t, stopped, "user_stopped_typing")
	if stop.UserID != alice.ID {
		t.Fatalf("unexpected stop event: %+v", stop)
	}
}

func TestSessionSwitchRoomAndErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceToken := f.user(t, "alice")
	bob, bobToken := f.user(t, "bob")
	room1 := f.room(t, "one", alice, bob)
	room2 := f.room(t, "two", alice)
	closed := f.room(t, "closed", bob)

	a := f.dial(t, aliceToken)
	b := f.dial(t, bobToken)

	aRoster, _ := collect(a.OnOnlineUsers)
	bRoster, _ := collect(b.OnOnlineUsers)
	bLeft, _ := collect(b.OnUserLeft)
	aErrors, _ := collect(a.OnError)

	_ = b.Join(ctx, room1)
	expect(t, bRoster, "bob roster")

	if err := a.SwitchRoom(ctx, room1); err != nil {
		t.Fatalf("switch to room1: %v", err)
	}
	expect(t, aRoster, "room1 roster")

	if err := a.SwitchRoom(ctx, room2); err != nil {
		t.Fatalf("switch to room2: %v", err)
	}
	left := expect(t, bLeft, "user_left")
	if left.UserID != alice.ID || left.RoomID != room1 {
		t.Fatalf("unexpected user_left: %+v", left)
	}
	r := expect(t, aRoster, "room2 roster")
	if r.RoomID != room2 || a.ActiveRoom() != room2 {
		t.Fatalf("expected active room %d, got roster %d active %d", room2, r.RoomID, a.ActiveRoom())
	}

	_ = a.Join(ctx, closed)
	errEv := expect(t, aErrors, "error")
	if errEv.Code != core.ErrCodeNotAuthorized {
		t.Fatalf("expected not_authorized, got %+v", errEv)
	}

	_ = a.Close()
	if err := a.Send(ctx, room2, "after close"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestSessionDeleteMessageInRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, aliceToken := f.user(t, "alice")
	roomID := f.room(t, "general", alice)
	otherRoom := f.room(t, "other", alice)
	a := f.dial(t, aliceToken)

	roster, _ := collect(a.OnOnlineUsers)
	messages, _ := collect(a.OnNewMessage)
	deleted, _ := collect(a.OnMessageDeleted)
	errs, _ := collect(a.OnError)

	_ = a.Join(ctx, roomID)
	expect(t, roster, "roster")
	_ = a.Send(ctx, roomID, "typo")
	msg := expect(t, messages, "new_message")

	if err := a.DeleteMessage(ctx, msg.ID, otherRoom); err != nil {
		t.Fatalf("delete: %v", err)
	}
	errEv := expect(t, errs, "error")
	if errEv.Code != core.ErrCodeNotFound {
		t.Fatalf("expected not_found for the wrong room, got %+v", errEv)
	}
	expectNone(t, deleted, "message_deleted")

	if err := a.DeleteMessage(ctx, msg.ID, roomID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	ev := expect(t, deleted, "message_deleted")
	if ev.MessageID != msg.ID || ev.DeletedBy != alice.ID || ev.RoomID != roomID {
		t.Fatalf("unexpected message_deleted: %+v", ev)
	}
}
