package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/campuslms/chatcore/internal/store"
)

const dsnParams = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=1"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies pending migrations.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Tests pass Migrate (or a hand-written schema) together with ":memory:".
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Optimize runs SQLite's housekeeping pragma. Called by the maintenance scheduler.
func (s *SQLiteStore) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA optimize`); err != nil {
		return fmt.Errorf("pragma optimize: %w", err)
	}
	return nil
}

// ==== UserStore implementation ====

// CreateUser creates a user profile.
func (s *SQLiteStore) CreateUser(ctx context.Context, name string, role store.UserRole) (*store.User, error) {
	if role == "" {
		role = store.UserRoleStudent
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO users (name, role) VALUES (?, ?)`, name, string(role))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, name, avatar_url, role, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	var role string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Name,
		&user.AvatarURL,
		&role,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Role = store.UserRole(role)

	return &user, nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a new room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, roomType store.RoomType, courseID *int64) (*store.Room, error) {
	query := `
		INSERT INTO rooms (name, type, course_id)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, string(roomType), courseID)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetRoomByID(ctx, id)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `
		SELECT id, name, type, course_id, created_at, last_activity_at
		FROM rooms
		WHERE id = ?
	`
	var room store.Room
	var roomType string
	var courseID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&room.ID,
		&room.Name,
		&roomType,
		&courseID,
		&room.CreatedAt,
		&room.LastActivityAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	room.Type = store.RoomType(roomType)
	if courseID.Valid {
		room.CourseID = &courseID.Int64
	}

	return &room, nil
}

// AddMember grants membership or updates the role and reactivates an existing one.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64, role store.MemberRole) error {
	if role == "" {
		role = store.MemberRoleMember
	}
	query := `
		INSERT INTO room_members (user_id, room_id, role, active)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (room_id, user_id) DO UPDATE SET role = excluded.role, active = 1
	`
	if _, err := s.db.ExecContext(ctx, query, userID, roomID, string(role)); err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}

	return nil
}

// SetMemberActive toggles the active flag of an existing membership.
func (s *SQLiteStore) SetMemberActive(ctx context.Context, userID, roomID int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE room_members SET active = ? WHERE user_id = ? AND room_id = ?`,
		active, userID, roomID)
	if err != nil {
		return fmt.Errorf("update room member: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("membership %d/%d: %w", userID, roomID, store.ErrNotFound)
	}

	return nil
}

// GetMembership returns the membership of user in room.
func (s *SQLiteStore) GetMembership(ctx context.Context, userID, roomID int64) (*store.Membership, error) {
	query := `
		SELECT user_id, room_id, active, role, joined_at
		FROM room_members
		WHERE user_id = ? AND room_id = ?
	`
	var m store.Membership
	var role string
	err := s.db.QueryRowContext(ctx, query, userID, roomID).Scan(
		&m.UserID,
		&m.RoomID,
		&m.Active,
		&role,
		&m.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("membership %d/%d: %w", userID, roomID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query membership: %w", err)
	}
	m.Role = store.MemberRole(role)

	return &m, nil
}

// TouchRoom updates the room's last-activity timestamp.
func (s *SQLiteStore) TouchRoom(ctx context.Context, roomID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rooms SET last_activity_at = ? WHERE id = ?`, at.UTC(), roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}

	return nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message and returns the stored record. The insert
// and the read-back share a transaction so a failed read leaves no row behind.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, senderID int64, body string, createdAt time.Time) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after Commit
	}()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`, roomID, senderID, body, createdAt.UTC())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	msg, err := getMessage(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit message: %w", err)
	}
	return msg, nil
}

// GetMessage retrieves a message with its sender profile and receipts.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	return getMessage(ctx, s.db, id)
}

// querier is the subset of *sql.DB and *sql.Tx the read helpers need.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getMessage(ctx context.Context, q querier, id int64) (*store.Message, error) {
	query := `
		SELECT m.id, m.room_id, m.sender_id, m.body, m.created_at, m.deleted_by, m.deleted_at,
		       u.id, u.name, u.avatar_url, u.role, u.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.id = ?
	`
	var msg store.Message
	var deletedBy sql.NullInt64
	var deletedAt sql.NullTime
	var role string
	err := q.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.Body,
		&msg.CreatedAt,
		&deletedBy,
		&deletedAt,
		&msg.Sender.ID,
		&msg.Sender.Name,
		&msg.Sender.AvatarURL,
		&role,
		&msg.Sender.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.Sender.Role = store.UserRole(role)
	if deletedBy.Valid {
		msg.DeletedBy = &deletedBy.Int64
	}
	if deletedAt.Valid {
		msg.DeletedAt = &deletedAt.Time
	}

	receipts, err := listReadReceipts(ctx, q, id)
	if err != nil {
		return nil, err
	}
	msg.ReadReceipts = receipts

	return &msg, nil
}

func listReadReceipts(ctx context.Context, q querier, messageID int64) ([]store.ReadReceipt, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT message_id, user_id, read_at
		FROM read_receipts
		WHERE message_id = ?
		ORDER BY read_at ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]store.ReadReceipt, 0)
	for rows.Next() {
		var r store.ReadReceipt
		if err := rows.Scan(&r.MessageID, &r.UserID, &r.ReadAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}

	return receipts, rows.Err()
}

// TombstoneMessage marks the message deleted without removing its content.
func (s *SQLiteStore) TombstoneMessage(ctx context.Context, id, deletedBy int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET deleted_by = ?, deleted_at = ?
		WHERE id = ? AND deleted_by IS NULL
	`, deletedBy, at.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("tombstone message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rows == 1, nil
}

// HasReadReceipt reports whether the user already read the message.
func (s *SQLiteStore) HasReadReceipt(ctx context.Context, messageID, userID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM read_receipts WHERE message_id = ? AND user_id = ?`,
		messageID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query receipt: %w", err)
	}

	return true, nil
}

// CreateReadReceipt inserts a receipt unless (messageID, userID) already has one.
func (s *SQLiteStore) CreateReadReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO read_receipts (message_id, user_id, read_at)
		VALUES (?, ?, ?)
	`, messageID, userID, at.UTC())
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	return rows == 1, nil
}
