package client

import (
	"encoding/json"
	"sync"

	"github.com/campuslms/chatcore/internal/proto"
)

type listener struct {
	id uint64
	fn func(json.RawMessage)
}

// subscribe registers fn for event and returns a func that removes it.
func (s *Session) subscribe(event string, fn func(json.RawMessage)) func() {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[event] = append(s.listeners[event], listener{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			ls := s.listeners[event]
			for i, l := range ls {
				if l.id == id {
					s.listeners[event] = append(ls[:i:i], ls[i+1:]...)
					break
				}
			}
		})
	}
}

// dispatch calls every listener for event, in registration order, outside the lock.
func (s *Session) dispatch(event string, data json.RawMessage) {
	s.mu.Lock()
	ls := append([]listener(nil), s.listeners[event]...)
	s.mu.Unlock()

	for _, l := range ls {
		l.fn(data)
	}
}

func on[T any](s *Session, event string, fn func(T)) func() {
	return s.subscribe(event, func(raw json.RawMessage) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			s.log.Warn().Err(err).Str("event", event).Msg("undecodable event payload")
			return
		}
		fn(v)
	})
}

// OnUserJoined registers fn for user_joined events.
func (s *Session) OnUserJoined(fn func(proto.EventUserJoined)) func() {
	return on(s, "user_joined", fn)
}

// OnUserLeft registers fn for user_left events.
func (s *Session) OnUserLeft(fn func(proto.EventUserLeft)) func() {
	return on(s, "user_left", fn)
}

// OnOnlineUsers registers fn for the roster sent after a join.
func (s *Session) OnOnlineUsers(fn func(proto.EventOnlineUsers)) func() {
	return on(s, "online_users", fn)
}

// OnNewMessage registers fn for new_message events.
func (s *Session) OnNewMessage(fn func(proto.Message)) func() {
	return on(s, "new_message", func(ev proto.EventNewMessage) { fn(ev.Message) })
}

// OnUserTyping registers fn for user_typing events.
func (s *Session) OnUserTyping(fn func(proto.EventTyping)) func() {
	return on(s, "user_typing", fn)
}

// OnUserStoppedTyping registers fn for user_stopped_typing events.
func (s *Session) OnUserStoppedTyping(fn func(proto.EventTyping)) func() {
	return on(s, "user_stopped_typing", fn)
}

// OnMessageRead registers fn for message_read events.
func (s *Session) OnMessageRead(fn func(proto.EventMessageRead)) func() {
	return on(s, "message_read", fn)
}

// OnMessageDeleted registers fn for message_deleted events.
func (s *Session) OnMessageDeleted(fn func(proto.EventMessageDeleted)) func() {
	return on(s, "message_deleted", fn)
}

// OnError registers fn for error frames.
func (s *Session) OnError(fn func(proto.Error)) func() {
	return on(s, proto.OutboundTypeError, fn)
}
