package core

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/campuslms/chatcore/internal/store"
)

// DefaultTypingTimeout is how long a typing indicator lives without a new start signal.
const DefaultTypingTimeout = 2 * time.Second

// Store is the persistence the hub depends on.
type Store interface {
	GetMembership(ctx context.Context, userID, roomID int64) (*store.Membership, error)
	AppendMessage(ctx context.Context, roomID, senderID int64, body string, createdAt time.Time) (*store.Message, error)
	TouchRoom(ctx context.Context, roomID int64, at time.Time) error
	GetMessage(ctx context.Context, id int64) (*store.Message, error)
	TombstoneMessage(ctx context.Context, id, deletedBy int64, at time.Time) (bool, error)
	HasReadReceipt(ctx context.Context, messageID, userID int64) (bool, error)
	CreateReadReceipt(ctx context.Context, messageID, userID int64, at time.Time) (bool, error)
}

// Config tunes hub limits. Zero values fall back to defaults.
type Config struct {
	MaxMessageLength int
	RateLimitWindow  time.Duration
	RateLimitMax     int
	TypingTimeout    time.Duration
	BannedWords      []string
	MaskRune         rune
	Clock            clockwork.Clock
}

func (c *Config) applyDefaults() {
	if c.MaxMessageLength <= 0 {
		c.MaxMessageLength = DefaultMaxMessageLength
	}
	if c.TypingTimeout <= 0 {
		c.TypingTimeout = DefaultTypingTimeout
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
}

// Hub routes chat commands between connections, the trackers, and the store.
// Operations run on the caller's goroutine; each room serializes its own state.
type Hub struct {
	store   Store
	limiter *RateLimiter
	filter  *ContentFilter
	cfg     Config
	clock   clockwork.Clock
	log     *zerolog.Logger

	mu      sync.Mutex
	rooms   map[int64]*Room
	clients map[string]*Client
}

// NewHub creates a hub backed by st.
func NewHub(st Store, cfg Config, logger *zerolog.Logger) *Hub {
	cfg.applyDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:   st,
		limiter: NewRateLimiter(cfg.RateLimitWindow, cfg.RateLimitMax, cfg.Clock),
		filter:  NewContentFilter(cfg.BannedWords, cfg.MaskRune),
		cfg:     cfg,
		clock:   cfg.Clock,
		log:     logger,
		rooms:   make(map[int64]*Room),
		clients: make(map[string]*Client),
	}
}

// Limiter exposes the message rate limiter for maintenance sweeps.
func (h *Hub) Limiter() *RateLimiter {
	return h.limiter
}

// Run blocks until ctx is done, then cancels every pending typing timer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()
		r.typing.Clear()
		r.mu.Unlock()
	}
	h.log.Info().Int("rooms", len(rooms)).Msg("hub stopped")
}

// RegisterClient makes a connection known to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Msg("client registered")
}

// Disconnect leaves every room the connection joined and closes its event
// channel. It is safe to call more than once and never reports errors.
func (h *Hub) Disconnect(c *Client) {
	rooms := c.markClosed()
	for _, roomID := range rooms {
		if room := h.existingRoom(roomID); room != nil {
			room.mu.Lock()
			h.leaveLocked(room, c)
			room.mu.Unlock()
		}
	}

	h.mu.Lock()
	_, known := h.clients[c.ID]
	delete(h.clients, c.ID)
	h.mu.Unlock()

	if known {
		c.mu.Lock()
		close(c.Events)
		c.mu.Unlock()
		h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Int("rooms", len(rooms)).Msg("client disconnected")
	}
}

// Handle executes cmd on behalf of c. Rejections are delivered to c as an error event.
func (h *Hub) Handle(ctx context.Context, c *Client, cmd *Command) error {
	switch cmd.Kind {
	case CommandJoinRoom:
		return h.Join(ctx, c, cmd.RoomID)
	case CommandLeaveRoom:
		h.Leave(c, cmd.RoomID)
		return nil
	case CommandSendMessage:
		return h.Send(ctx, c, cmd.RoomID, cmd.Content)
	case CommandTypingStart:
		return h.StartTyping(c, cmd.RoomID)
	case CommandTypingStop:
		h.StopTyping(c, cmd.RoomID)
		return nil
	case CommandMarkRead:
		return h.MarkRead(ctx, c, cmd.MessageID)
	case CommandDeleteMessage:
		return h.DeleteMessage(ctx, c, cmd.MessageID, cmd.RoomID)
	default:
		return h.reject(c, BadRequest("unknown command"))
	}
}

// Join subscribes c to roomID after checking the user's membership.
func (h *Hub) Join(ctx context.Context, c *Client, roomID int64) error {
	if cerr := h.authorizeMember(ctx, c.UserID, roomID); cerr != nil {
		return h.reject(c, cerr)
	}

	room := h.room(roomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.hasClient(c) {
		h.deliver(c, &Event{Kind: EventOnlineUsers, RoomID: roomID, Users: room.presence.Snapshot()})
		return nil
	}
	// Disconnect may have run while the membership lookup was in flight.
	if !c.subscribe(roomID) {
		return nil
	}
	room.addClient(c)

	if room.presence.Add(c.Profile) {
		profile := c.Profile
		h.broadcast(room, &Event{
			Kind:        EventUserJoined,
			RoomID:      roomID,
			UserID:      c.UserID,
			User:        &profile,
			OnlineCount: room.presence.Len(),
		}, c)
	}
	h.deliver(c, &Event{Kind: EventOnlineUsers, RoomID: roomID, Users: room.presence.Snapshot()})

	h.log.Debug().Int64("room_id", roomID).Int64("user_id", c.UserID).Str("conn_id", c.ID).
		Int("online", room.presence.Len()).Msg("joined room")
	return nil
}

// Leave unsubscribes c from roomID. Leaving a room that was not joined is a no-op.
func (h *Hub) Leave(c *Client, roomID int64) {
	room := h.existingRoom(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	h.leaveLocked(room, c)
	room.mu.Unlock()
}

func (h *Hub) leaveLocked(room *Room, c *Client) {
	if !room.removeClient(c) {
		return
	}
	c.unsubscribe(room.ID)

	if room.typing.Stop(c.UserID) {
		h.broadcastExceptUser(room, &Event{Kind: EventUserStoppedTyping, RoomID: room.ID, UserID: c.UserID}, c.UserID)
	}
	if room.presence.Remove(c.UserID) {
		h.broadcast(room, &Event{
			Kind:        EventUserLeft,
			RoomID:      room.ID,
			UserID:      c.UserID,
			OnlineCount: room.presence.Len(),
		}, c)
	}

	h.log.Debug().Int64("room_id", room.ID).Int64("user_id", c.UserID).Str("conn_id", c.ID).
		Int("online", room.presence.Len()).Msg("left room")
}

// Send runs the message pipeline: rate limit, validate, authorize, mask,
// persist, touch the room, and broadcast to every subscriber including c.
func (h *Hub) Send(ctx context.Context, c *Client, roomID int64, body string) error {
	if !h.limiter.Allow(strconv.FormatInt(c.UserID, 10)) {
		return h.reject(c, coreError(ErrCodeRateLimited, "too many messages, slow down"))
	}
	if cerr := validateBody(body, h.cfg.MaxMessageLength); cerr != nil {
		return h.reject(c, cerr)
	}
	if cerr := h.authorizeMember(ctx, c.UserID, roomID); cerr != nil {
		return h.reject(c, cerr)
	}

	body = h.filter.Mask(body)

	room := h.room(roomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	now := h.clock.Now()
	msg, err := h.store.AppendMessage(ctx, roomID, c.UserID, body, now)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Int64("user_id", c.UserID).Msg("failed to persist message")
		return h.reject(c, coreError(ErrCodeStoreFailure, "message could not be saved"))
	}
	if err := h.store.TouchRoom(ctx, roomID, now); err != nil {
		h.log.Warn().Err(err).Int64("room_id", roomID).Msg("failed to touch room")
	}

	if room.typing.Stop(c.UserID) {
		h.broadcastExceptUser(room, &Event{Kind: EventUserStoppedTyping, RoomID: roomID, UserID: c.UserID}, c.UserID)
	}
	h.broadcast(room, &Event{Kind: EventNewMessage, RoomID: roomID, UserID: c.UserID, Message: msg}, nil)

	h.log.Debug().Int64("room_id", roomID).Int64("user_id", c.UserID).Int64("message_id", msg.ID).Msg("message sent")
	return nil
}

// StartTyping marks the user as typing in a joined room and arms the expiry timer.
func (h *Hub) StartTyping(c *Client, roomID int64) error {
	room := h.existingRoom(roomID)
	if room == nil {
		return h.reject(c, coreError(ErrCodeNotAuthorized, "join the room first"))
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if !room.hasClient(c) {
		return h.reject(c, coreError(ErrCodeNotAuthorized, "join the room first"))
	}

	userID := c.UserID
	started := room.typing.Start(userID, h.cfg.TypingTimeout, func(gen uint64) {
		h.expireTyping(room, userID, gen)
	})
	if started {
		h.broadcastExceptUser(room, &Event{Kind: EventUserTyping, RoomID: roomID, UserID: userID}, userID)
	}
	return nil
}

// StopTyping clears the typing indicator. Stopping a user who is not typing is a no-op.
func (h *Hub) StopTyping(c *Client, roomID int64) {
	room := h.existingRoom(roomID)
	if room == nil {
		return
	}
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.typing.Stop(c.UserID) {
		h.broadcastExceptUser(room, &Event{Kind: EventUserStoppedTyping, RoomID: roomID, UserID: c.UserID}, c.UserID)
	}
}

func (h *Hub) expireTyping(room *Room, userID int64, gen uint64) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.typing.Expire(userID, gen) {
		h.broadcastExceptUser(room, &Event{Kind: EventUserStoppedTyping, RoomID: room.ID, UserID: userID}, userID)
	}
}

// MarkRead records that c's user read messageID and tells the rest of the room.
// Marking an already read message is a silent no-op.
func (h *Hub) MarkRead(ctx context.Context, c *Client, messageID int64) error {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return h.reject(c, h.storeError(err, "message not found"))
	}
	if cerr := h.authorizeMember(ctx, c.UserID, msg.RoomID); cerr != nil {
		return h.reject(c, cerr)
	}

	has, err := h.store.HasReadReceipt(ctx, messageID, c.UserID)
	if err != nil {
		return h.reject(c, h.storeError(err, "message not found"))
	}
	if has {
		return nil
	}

	room := h.room(msg.RoomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	readAt := h.clock.Now()
	created, err := h.store.CreateReadReceipt(ctx, messageID, c.UserID, readAt)
	if err != nil {
		return h.reject(c, h.storeError(err, "message not found"))
	}
	if !created {
		return nil
	}

	h.broadcast(room, &Event{
		Kind:      EventMessageRead,
		RoomID:    msg.RoomID,
		UserID:    c.UserID,
		MessageID: messageID,
		At:        readAt,
	}, c)
	return nil
}

// DeleteMessage tombstones messageID when c's user is its sender or a room moderator.
// A non-zero roomID must name the room the message was posted in.
func (h *Hub) DeleteMessage(ctx context.Context, c *Client, messageID, roomID int64) error {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return h.reject(c, h.storeError(err, "message not found"))
	}
	if roomID != 0 && msg.RoomID != roomID {
		return h.reject(c, coreError(ErrCodeNotFound, "message not found in this room"))
	}

	if msg.SenderID != c.UserID {
		ok, cerr := h.canModerate(ctx, c, msg.RoomID)
		if cerr != nil {
			return h.reject(c, cerr)
		}
		if !ok {
			return h.reject(c, coreError(ErrCodeNotAuthorized, "only the sender or a moderator can delete this message"))
		}
	}

	room := h.room(msg.RoomID)
	room.mu.Lock()
	defer room.mu.Unlock()

	deletedAt := h.clock.Now()
	tombstoned, err := h.store.TombstoneMessage(ctx, messageID, c.UserID, deletedAt)
	if err != nil {
		return h.reject(c, h.storeError(err, "message not found"))
	}
	if !tombstoned {
		return nil
	}

	h.broadcast(room, &Event{
		Kind:      EventMessageDeleted,
		RoomID:    msg.RoomID,
		MessageID: messageID,
		DeletedBy: c.UserID,
		At:        deletedAt,
	}, nil)

	h.log.Info().Int64("room_id", msg.RoomID).Int64("message_id", messageID).Int64("deleted_by", c.UserID).Msg("message deleted")
	return nil
}

// Online returns the users currently present in roomID.
func (h *Hub) Online(roomID int64) []store.User {
	room := h.existingRoom(roomID)
	if room == nil {
		return []store.User{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.presence.Snapshot()
}

// IsTyping reports whether userID is currently typing in roomID.
func (h *Hub) IsTyping(roomID, userID int64) bool {
	room := h.existingRoom(roomID)
	if room == nil {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.typing.Contains(userID)
}

func (h *Hub) canModerate(ctx context.Context, c *Client, roomID int64) (bool, *CoreError) {
	if c.Profile.Role == store.UserRoleAdmin {
		return true, nil
	}
	m, err := h.store.GetMembership(ctx, c.UserID, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, h.storeError(err, "")
	}
	return m.Active && m.Role.IsModerator(), nil
}

func (h *Hub) authorizeMember(ctx context.Context, userID, roomID int64) *CoreError {
	m, err := h.store.GetMembership(ctx, userID, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return coreError(ErrCodeNotAuthorized, "not a member of this room")
		}
		return h.storeError(err, "")
	}
	if !m.Active {
		return coreError(ErrCodeNotAuthorized, "membership is inactive")
	}
	return nil
}

func (h *Hub) storeError(err error, notFoundMsg string) *CoreError {
	cerr := errorFromStore(err, notFoundMsg)
	if cerr.Code == ErrCodeStoreFailure {
		h.log.Error().Err(err).Msg("store failure")
	}
	return cerr
}

func (h *Hub) room(id int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[id]
	if !ok {
		r = NewRoom(id, h.clock)
		h.rooms[id] = r
	}
	return r
}

func (h *Hub) existingRoom(id int64) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[id]
}

// reject reports cerr to c only and returns it.
func (h *Hub) reject(c *Client, cerr *CoreError) error {
	h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID).Str("code", cerr.Code).Msg(cerr.Message)
	h.deliver(c, errorEvent(cerr))
	return cerr
}

// broadcast sends ev to every subscriber of room except skip. Caller holds room.mu.
func (h *Hub) broadcast(room *Room, ev *Event, skip *Client) {
	for client := range room.clients {
		if client == skip {
			continue
		}
		h.deliver(client, ev)
	}
}

// broadcastExceptUser skips every connection owned by userID. Caller holds room.mu.
func (h *Hub) broadcastExceptUser(room *Room, ev *Event, userID int64) {
	for client := range room.clients {
		if client.UserID == userID {
			continue
		}
		h.deliver(client, ev)
	}
}

func (h *Hub) deliver(c *Client, ev *Event) {
	if !c.send(ev) {
		h.log.Warn().Str("conn_id", c.ID).Str("event", ev.Kind.String()).Msg("dropping event for closed or slow client")
	}
}
