package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// UserRole is the campus-wide role of a user.
type UserRole string

const (
	UserRoleStudent    UserRole = "student"
	UserRoleInstructor UserRole = "instructor"
	UserRoleAdmin      UserRole = "admin"
)

// User is the public profile of a campus user as seen by chat.
type User struct {
	ID        int64
	Name      string
	AvatarURL string
	Role      UserRole
	CreatedAt time.Time
}

// RoomType defines different types of rooms.
type RoomType string

const (
	RoomTypeDirect RoomType = "DIRECT"
	RoomTypeGroup  RoomType = "GROUP"
	RoomTypeCourse RoomType = "COURSE"
)

// Room represents a chat room.
type Room struct {
	ID             int64
	Name           string
	Type           RoomType
	CourseID       *int64 // set for COURSE rooms
	CreatedAt      time.Time
	LastActivityAt time.Time
}

// MemberRole is the role a user holds inside a single room.
type MemberRole string

const (
	MemberRoleMember     MemberRole = "member"
	MemberRoleInstructor MemberRole = "instructor"
	MemberRoleAdmin      MemberRole = "admin"
)

// IsModerator reports whether the role may moderate messages of other members.
func (r MemberRole) IsModerator() bool {
	return r == MemberRoleInstructor || r == MemberRoleAdmin
}

// Membership links a user to a room.
type Membership struct {
	UserID   int64
	RoomID   int64
	Active   bool
	Role     MemberRole
	JoinedAt time.Time
}

// Message represents a persisted chat message.
// Only the tombstone fields change after creation.
type Message struct {
	ID           int64
	RoomID       int64
	SenderID     int64
	Sender       User
	Body         string
	CreatedAt    time.Time
	DeletedBy    *int64
	DeletedAt    *time.Time
	ReadReceipts []ReadReceipt
}

// Deleted reports whether the message carries a tombstone.
func (m *Message) Deleted() bool {
	return m.DeletedBy != nil
}

// ReadReceipt records that a user has seen a message.
type ReadReceipt struct {
	MessageID int64
	UserID    int64
	ReadAt    time.Time
}

// UserStore handles user lookups.
type UserStore interface {
	// CreateUser creates a user profile. Used by seeding and tests.
	CreateUser(ctx context.Context, name string, role UserRole) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)
}

// RoomStore handles rooms and memberships.
type RoomStore interface {
	// CreateRoom creates a new room.
	CreateRoom(ctx context.Context, name string, roomType RoomType, courseID *int64) (*Room, error)

	// GetRoomByID retrieves a room by ID.
	GetRoomByID(ctx context.Context, id int64) (*Room, error)

	// AddMember grants membership or updates an existing one.
	AddMember(ctx context.Context, userID, roomID int64, role MemberRole) error

	// SetMemberActive toggles the active flag of an existing membership.
	SetMemberActive(ctx context.Context, userID, roomID int64, active bool) error

	// GetMembership returns the membership of user in room, or ErrNotFound.
	GetMembership(ctx context.Context, userID, roomID int64) (*Membership, error)

	// TouchRoom updates the room's last-activity timestamp.
	TouchRoom(ctx context.Context, roomID int64, at time.Time) error
}

// MessageStore handles message and receipt persistence.
type MessageStore interface {
	// AppendMessage persists a message and returns the stored record with the
	// sender profile resolved and an empty receipt list.
	AppendMessage(ctx context.Context, roomID, senderID int64, body string, createdAt time.Time) (*Message, error)

	// GetMessage retrieves a message with its receipts, or ErrNotFound.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// TombstoneMessage marks the message deleted. Content is retained.
	// Returns false if the message already carried a tombstone.
	TombstoneMessage(ctx context.Context, id, deletedBy int64, at time.Time) (bool, error)

	// HasReadReceipt reports whether (messageID, userID) has a receipt.
	HasReadReceipt(ctx context.Context, messageID, userID int64) (bool, error)

	// CreateReadReceipt inserts a receipt unless one exists.
	// Returns false when the receipt was already present.
	CreateReadReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	RoomStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
