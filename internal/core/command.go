package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a room.
	CommandLeaveRoom
	// CommandSendMessage posts a message to a room.
	CommandSendMessage
	// CommandTypingStart marks the user as typing in a room.
	CommandTypingStart
	// CommandTypingStop clears the typing indicator.
	CommandTypingStop
	// CommandMarkRead records a read receipt.
	CommandMarkRead
	// CommandDeleteMessage tombstones a message.
	CommandDeleteMessage
)

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	RoomID    int64
	MessageID int64
	Content   string
}
