// Package client is a Go client for the chat socket. It keeps a typed
// listener registry per event kind and a local typing debounce.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/proto"
)

// DefaultTypingIdle is how long Typing waits for another keystroke before sending typing_stop.
const DefaultTypingIdle = 2 * time.Second

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithTypingIdle overrides the typing debounce interval.
func WithTypingIdle(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.typingIdle = d
		}
	}
}

// WithClock sets the clock driving the typing debounce.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

type typingState struct {
	timer    clockwork.Timer
	gen      uint64
	lastSent time.Time
}

// Session is one authenticated chat connection.
type Session struct {
	conn       *websocket.Conn
	log        *zerolog.Logger
	clock      clockwork.Clock
	typingIdle time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu         sync.Mutex
	err        error
	listeners  map[string][]listener
	nextID     uint64
	activeRoom int64
	typing     map[int64]*typingState
}

// Dial connects to the chat socket at url, authenticating with token.
func Dial(ctx context.Context, url, token string, opts ...Option) (*Session, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("dial chat socket: %w", err)
	}

	nop := zerolog.Nop()
	s := &Session{
		conn:       conn,
		log:        &nop,
		clock:      clockwork.NewRealClock(),
		typingIdle: DefaultTypingIdle,
		done:       make(chan struct{}),
		listeners:  make(map[string][]listener),
		typing:     make(map[int64]*typingState),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.readLoop()

	return s, nil
}

// Done is closed once the connection has stopped reading.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the read loop, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close cancels pending typing timers and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	for room, st := range s.typing {
		st.timer.Stop()
		delete(s.typing, room)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		s.cancel()
		return nil
	default:
	}

	err := s.conn.Close(websocket.StatusNormalClosure, "bye")
	s.cancel()
	<-s.done
	return err
}

// ActiveRoom returns the room selected with SwitchRoom, or zero.
func (s *Session) ActiveRoom() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRoom
}

// Join subscribes to a room.
func (s *Session) Join(ctx context.Context, roomID int64) error {
	return s.write(ctx, proto.InboundTypeJoinRoom, proto.RoomData{RoomID: roomID})
}

// Leave unsubscribes from a room.
func (s *Session) Leave(ctx context.Context, roomID int64) error {
	s.clearTyping(roomID)
	return s.write(ctx, proto.InboundTypeLeaveRoom, proto.RoomData{RoomID: roomID})
}

// SwitchRoom leaves the current active room, if any, and joins roomID.
func (s *Session) SwitchRoom(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	prev := s.activeRoom
	s.mu.Unlock()

	if prev == roomID {
		return nil
	}
	if prev != 0 {
		if err := s.Leave(ctx, prev); err != nil {
			return err
		}
	}
	if err := s.Join(ctx, roomID); err != nil {
		return err
	}

	s.mu.Lock()
	s.activeRoom = roomID
	s.mu.Unlock()
	return nil
}

// Send posts content to a room. The message comes back as a new_message event.
func (s *Session) Send(ctx context.Context, roomID int64, content string) error {
	s.clearTyping(roomID)
	return s.write(ctx, proto.InboundTypeSendMessage, proto.SendMessageData{RoomID: roomID, Content: content})
}

// StartTyping sends typing_start once.
func (s *Session) StartTyping(ctx context.Context, roomID int64) error {
	return s.write(ctx, proto.InboundTypeTypingStart, proto.RoomData{RoomID: roomID})
}

// StopTyping cancels the local debounce and sends typing_stop.
func (s *Session) StopTyping(ctx context.Context, roomID int64) error {
	s.clearTyping(roomID)
	return s.write(ctx, proto.InboundTypeTypingStop, proto.RoomData{RoomID: roomID})
}

// MarkRead records a read receipt for a message.
func (s *Session) MarkRead(ctx context.Context, messageID int64) error {
	return s.write(ctx, proto.InboundTypeMarkRead, proto.MarkReadData{MessageID: messageID})
}

// DeleteMessage asks the server to tombstone a message posted in roomID.
// The server answers not_found if the message belongs to another room.
func (s *Session) DeleteMessage(ctx context.Context, messageID, roomID int64) error {
	return s.write(ctx, proto.InboundTypeDeleteMessage, proto.DeleteMessageData{MessageID: messageID, RoomID: roomID})
}

// Typing records a keystroke in roomID. The first keystroke sends typing_start,
// later ones refresh it at half the idle interval, and typing_stop follows once
// no keystroke arrives for the idle interval.
func (s *Session) Typing(ctx context.Context, roomID int64) error {
	s.mu.Lock()
	now := s.clock.Now()
	st, ok := s.typing[roomID]
	if ok {
		st.timer.Stop()
	} else {
		st = &typingState{}
		s.typing[roomID] = st
	}
	needStart := !ok || now.Sub(st.lastSent) >= s.typingIdle/2
	if needStart {
		st.lastSent = now
	}
	st.gen++
	gen := st.gen
	st.timer = s.clock.AfterFunc(s.typingIdle, func() { s.typingIdleExpired(roomID, gen) })
	s.mu.Unlock()

	if needStart {
		return s.StartTyping(ctx, roomID)
	}
	return nil
}

func (s *Session) typingIdleExpired(roomID int64, gen uint64) {
	s.mu.Lock()
	st, ok := s.typing[roomID]
	if !ok || st.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.typing, roomID)
	s.mu.Unlock()

	if err := s.write(s.ctx, proto.InboundTypeTypingStop, proto.RoomData{RoomID: roomID}); err != nil && !errors.Is(err, ErrClosed) {
		s.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to send typing_stop")
	}
}

// clearTyping drops local typing state without notifying the server.
func (s *Session) clearTyping(roomID int64) {
	s.mu.Lock()
	if st, ok := s.typing[roomID]; ok {
		st.timer.Stop()
		delete(s.typing, roomID)
	}
	s.mu.Unlock()
}

func (s *Session) write(ctx context.Context, typ string, data any) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	if err := wsjson.Write(ctx, s.conn, proto.Inbound{Type: typ, Data: payload}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)

	for {
		var out proto.Outbound
		if err := wsjson.Read(s.ctx, s.conn, &out); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure && s.ctx.Err() == nil {
				s.log.Warn().Err(err).Msg("chat socket read failed")
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		switch out.Type {
		case proto.OutboundTypeEvent:
			s.dispatch(out.Event, out.Data)
		case proto.OutboundTypeError:
			if out.Error == nil {
				continue
			}
			raw, _ := json.Marshal(out.Error)
			s.dispatch(proto.OutboundTypeError, raw)
		default:
			s.log.Debug().Str("type", out.Type).Msg("ignoring unknown frame")
		}
	}
}
