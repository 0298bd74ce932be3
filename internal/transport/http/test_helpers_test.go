package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/auth"
	"github.com/campuslms/chatcore/internal/config"
	"github.com/campuslms/chatcore/internal/core"
	"github.com/campuslms/chatcore/internal/proto"
	"github.com/campuslms/chatcore/internal/store"
	"github.com/campuslms/chatcore/internal/store/sqlite"
)

type testServer struct {
	ts     *httptest.Server
	server *Server
	store  *sqlite.SQLiteStore
	auth   *auth.Service
	hub    *core.Hub
}

func startTestServer(t *testing.T) *testServer {
	t.Helper()
	return startTestServerWithStore(t, nil)
}

// startTestServerWithStore lets wrap replace the store seen by the hub.
func startTestServerWithStore(t *testing.T, wrap func(core.Store) core.Store) *testServer {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.Chat.BannedWords = []string{"darn"}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	disabledLogger := zerolog.New(nil)
	var hubStore core.Store = st
	if wrap != nil {
		hubStore = wrap(st)
	}
	hub := core.NewHub(hubStore, core.Config{BannedWords: cfg.Chat.BannedWords}, &disabledLogger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, server: server, store: st, auth: authService, hub: hub}
}

func (s *testServer) user(t *testing.T, name string) (store.User, string) {
	t.Helper()
	ctx := context.Background()

	u, err := s.store.CreateUser(ctx, name, store.UserRoleStudent)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := s.auth.IssueToken(ctx, u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return *u, token
}

func (s *testServer) room(t *testing.T, name string, members ...store.User) int64 {
	t.Helper()
	ctx := context.Background()

	r, err := s.store.CreateRoom(ctx, name, store.RoomTypeGroup, nil)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	for _, m := range members {
		if err := s.store.AddMember(ctx, m.ID, r.ID, store.MemberRoleMember); err != nil {
			t.Fatalf("add member: %v", err)
		}
	}
	return r.ID
}

func (s *testServer) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil skips frames until one matches typ and, for events, the event name.
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, event string) proto.Outbound {
	t.Helper()

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s %s: %v", typ, event, err)
		}
		if out.Type == typ && (typ == proto.OutboundTypeError || out.Event == event) {
			return out
		}
	}
}
