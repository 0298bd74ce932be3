package core

import (
	"sync"

	"github.com/jonboulle/clockwork"
)

// Room holds the live state of one chat room: subscribed connections,
// presence and typing. Every mutation and broadcast for the room happens
// under mu, which keeps per-room event order identical for all subscribers.
type Room struct {
	ID int64

	mu       sync.Mutex
	clients  map[*Client]struct{}
	presence *PresenceSet
	typing   *TypingSet
}

// NewRoom constructs a room with no clients.
func NewRoom(id int64, clock clockwork.Clock) *Room {
	return &Room{
		ID:       id,
		clients:  make(map[*Client]struct{}),
		presence: NewPresenceSet(),
		typing:   NewTypingSet(clock),
	}
}

func (r *Room) addClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

func (r *Room) removeClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

func (r *Room) hasClient(c *Client) bool {
	_, ok := r.clients[c]
	return ok
}
