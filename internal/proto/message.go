package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeJoinRoom      = "join_room"
	InboundTypeLeaveRoom     = "leave_room"
	InboundTypeSendMessage   = "send_message"
	InboundTypeTypingStart   = "typing_start"
	InboundTypeTypingStop    = "typing_stop"
	InboundTypeMarkRead      = "mark_read"
	InboundTypeDeleteMessage = "delete_message"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// RoomData addresses a room: join_room, leave_room, typing_start, typing_stop.
// UserID is optional; when present it must match the authenticated user.
type RoomData struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId,omitempty"`
}

// SendMessageData posts content to a room.
type SendMessageData struct {
	RoomID  int64  `json:"roomId"`
	UserID  int64  `json:"userId,omitempty"`
	Content string `json:"content"`
}

// MarkReadData records a read receipt.
type MarkReadData struct {
	MessageID int64 `json:"messageId"`
	UserID    int64 `json:"userId,omitempty"`
}

// DeleteMessageData requests a tombstone.
type DeleteMessageData struct {
	MessageID int64 `json:"messageId"`
	RoomID    int64 `json:"roomId,omitempty"`
	UserID    int64 `json:"userId,omitempty"`
	DeletedBy int64 `json:"deletedBy,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// User is the public profile attached to presence and message events.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	Role      string `json:"role"`
}

// ReadReceipt marks a message as read by a user.
type ReadReceipt struct {
	UserID int64     `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

// Message is a persisted chat message.
type Message struct {
	ID           int64         `json:"id"`
	RoomID       int64         `json:"roomId"`
	SenderID     int64         `json:"senderId"`
	Sender       User          `json:"sender"`
	Content      string        `json:"content"`
	CreatedAt    time.Time     `json:"createdAt"`
	DeletedBy    *int64        `json:"deletedBy"`
	DeletedAt    *time.Time    `json:"deletedAt"`
	ReadReceipts []ReadReceipt `json:"readReceipts"`
}

// EventUserJoined notifies that a user came online in a room.
type EventUserJoined struct {
	RoomID      int64 `json:"roomId"`
	UserID      int64 `json:"userId"`
	User        User  `json:"user"`
	OnlineCount int   `json:"onlineCount"`
}

// EventUserLeft notifies that a user left a room.
type EventUserLeft struct {
	RoomID      int64 `json:"roomId"`
	UserID      int64 `json:"userId"`
	OnlineCount int   `json:"onlineCount"`
}

// EventOnlineUsers is the roster sent to a client that just joined.
type EventOnlineUsers struct {
	RoomID int64  `json:"roomId"`
	Users  []User `json:"users"`
}

// EventNewMessage carries a freshly stored message.
type EventNewMessage struct {
	Message Message `json:"message"`
}

// EventTyping is used for both user_typing and user_stopped_typing.
type EventTyping struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId"`
}

// EventMessageRead notifies that a user read a message.
type EventMessageRead struct {
	RoomID    int64     `json:"roomId"`
	MessageID int64     `json:"messageId"`
	UserID    int64     `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// EventMessageDeleted notifies that a message was tombstoned.
type EventMessageDeleted struct {
	RoomID    int64     `json:"roomId"`
	MessageID int64     `json:"messageId"`
	DeletedBy int64     `json:"deletedBy"`
	DeletedAt time.Time `json:"deletedAt"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
