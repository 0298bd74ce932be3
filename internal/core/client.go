package core

import (
	"sync"

	"github.com/campuslms/chatcore/internal/store"
)

const defaultEventBuffer = 64

// Client is one live connection (a browser tab) as seen by the core layer.
// A user may own several clients at once.
type Client struct {
	ID      string
	UserID  int64
	Profile store.User
	Events  chan *Event

	mu     sync.Mutex
	rooms  map[int64]struct{}
	closed bool
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string, profile store.User, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Client{
		ID:      id,
		UserID:  profile.ID,
		Profile: profile,
		Events:  make(chan *Event, buffer),
		rooms:   make(map[int64]struct{}),
	}
}

// Rooms returns the IDs of rooms the client is subscribed to.
func (c *Client) Rooms() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// InRoom reports whether the client is subscribed to roomID.
func (c *Client) InRoom(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// subscribe records roomID; it fails once the client is closed.
func (c *Client) subscribe(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

func (c *Client) unsubscribe(roomID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

// markClosed stops future subscriptions and returns the rooms still held.
func (c *Client) markClosed() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	ids := make([]int64, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// send enqueues ev without blocking. Returns false if the event was dropped.
func (c *Client) send(ev *Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
