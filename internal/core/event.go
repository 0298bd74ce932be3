package core

import (
	"time"

	"github.com/campuslms/chatcore/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventUserJoined notifies room subscribers that a user came online in the room.
	EventUserJoined EventKind = iota
	// EventUserLeft notifies room subscribers that a user left the room.
	EventUserLeft
	// EventOnlineUsers delivers the current roster to a client that just joined.
	EventOnlineUsers
	// EventNewMessage carries a freshly persisted message.
	EventNewMessage
	// EventUserTyping notifies that a user started typing.
	EventUserTyping
	// EventUserStoppedTyping notifies that a user stopped typing or the indicator expired.
	EventUserStoppedTyping
	// EventMessageRead notifies that a user read a message.
	EventMessageRead
	// EventMessageDeleted notifies that a message was tombstoned.
	EventMessageDeleted
	// EventError notifies a single client about a rejected operation.
	EventError
)

var eventKindNames = [...]string{
	EventUserJoined:        "user_joined",
	EventUserLeft:          "user_left",
	EventOnlineUsers:       "online_users",
	EventNewMessage:        "new_message",
	EventUserTyping:        "user_typing",
	EventUserStoppedTyping: "user_stopped_typing",
	EventMessageRead:       "message_read",
	EventMessageDeleted:    "message_deleted",
	EventError:             "error",
}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind        EventKind
	RoomID      int64
	UserID      int64
	User        *store.User    // EventUserJoined
	OnlineCount int            // EventUserJoined, EventUserLeft
	Users       []store.User   // EventOnlineUsers
	Message     *store.Message // EventNewMessage
	MessageID   int64          // EventMessageRead, EventMessageDeleted
	DeletedBy   int64
	At          time.Time // readAt / deletedAt
	Error       *CoreError
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
