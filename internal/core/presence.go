package core

import (
	"sort"

	"github.com/campuslms/chatcore/internal/store"
)

type presenceEntry struct {
	profile store.User
	conns   int
}

// PresenceSet tracks which users are connected to one room.
// A user counts once no matter how many of their connections joined.
// Not safe for concurrent use; the owning room serializes access.
type PresenceSet struct {
	users map[int64]*presenceEntry
}

// NewPresenceSet constructs an empty presence set.
func NewPresenceSet() *PresenceSet {
	return &PresenceSet{users: make(map[int64]*presenceEntry)}
}

// Add registers one connection of the user. Returns true if the user was not present before.
func (p *PresenceSet) Add(profile store.User) bool {
	if e, ok := p.users[profile.ID]; ok {
		e.conns++
		return false
	}
	p.users[profile.ID] = &presenceEntry{profile: profile, conns: 1}
	return true
}

// Remove drops one connection of the user. Returns true if the user is no longer present.
func (p *PresenceSet) Remove(userID int64) bool {
	e, ok := p.users[userID]
	if !ok {
		return false
	}
	e.conns--
	if e.conns > 0 {
		return false
	}
	delete(p.users, userID)
	return true
}

// Contains reports whether the user is present.
func (p *PresenceSet) Contains(userID int64) bool {
	_, ok := p.users[userID]
	return ok
}

// Len returns the number of distinct users present.
func (p *PresenceSet) Len() int {
	return len(p.users)
}

// Snapshot returns the present users ordered by ID.
func (p *PresenceSet) Snapshot() []store.User {
	users := make([]store.User, 0, len(p.users))
	for _, e := range p.users {
		users = append(users, e.profile)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}
