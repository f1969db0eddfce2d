// Package presence tracks which users currently hold an open connection.
//
// The registry is the in-memory source of truth for "is this user
// reachable"; it is never authoritative for anything persisted. It holds at
// most one entry per user: a reconnect replaces the previous connection.
package presence

import (
	"sync"
	"time"
)

// Handle is an active connection capable of receiving server events.
// Sends are best-effort: a Handle that has been closed reports false and the
// caller moves on.
type Handle interface {
	Send(event string, data any) bool
}

// Meta carries the display fields broadcast alongside presence changes.
type Meta struct {
	Nickname string  `json:"displayName"`
	Avatar   *string `json:"avatarRef"`
}

type entry struct {
	handle      Handle
	meta        Meta
	rooms       map[string]struct{}
	connectedAt time.Time
}

// Registry maps user ids to their active connection. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	users map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]*entry),
	}
}

// Register records the connection for a user, replacing any previous entry.
// The connection starts joined to its personal room (the user id) and to the
// global room.
func (r *Registry) Register(userID string, h Handle, meta Meta) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[userID] = &entry{
		handle: h,
		meta:   meta,
		rooms: map[string]struct{}{
			userID:   {},
			"global": {},
		},
		connectedAt: time.Now(),
	}
}

// Deregister removes the user's entry, but only if the given handle is still
// the current one. A stale deregister from a connection that has already been
// replaced by a reconnect is a no-op.
func (r *Registry) Deregister(userID string, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.users[userID]
	if !ok || e.handle != h {
		return false
	}
	delete(r.users, userID)
	return true
}

// Join adds the user's connection to a room.
func (r *Registry) Join(userID, room string) {
	if room == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.users[userID]; ok {
		e.rooms[room] = struct{}{}
	}
}

// Leave removes the user's connection from a room. The personal room and the
// global room cannot be left.
func (r *Registry) Leave(userID, room string) {
	if room == "" || room == "global" || room == userID {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.users[userID]; ok {
		delete(e.rooms, room)
	}
}

// Rooms returns the rooms the user's connection has joined.
func (r *Registry) Rooms(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.users[userID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// IsOnline reports whether the user currently has a registered connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineCount returns the number of registered users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ListOnline returns the complete set of currently registered users with
// their display metadata. This is a snapshot, not a delta.
func (r *Registry) ListOnline() map[string]Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make(map[string]Meta, len(r.users))
	for id, e := range r.users {
		res[id] = e.meta
	}
	return res
}

// UsersInRoom returns the ids of users whose connection has joined the room.
func (r *Registry) UsersInRoom(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, e := range r.users {
		if _, ok := e.rooms[room]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// ResolveHandles returns the connection handles for the given users, skipping
// users without an active connection.
func (r *Registry) ResolveHandles(userIDs []string) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]Handle, 0, len(userIDs))
	for _, id := range userIDs {
		if e, ok := r.users[id]; ok {
			handles = append(handles, e.handle)
		}
	}
	return handles
}

// SendToUsers delivers an event to each listed user that is currently
// connected. Sends to closed handles are silent no-ops.
func (r *Registry) SendToUsers(userIDs []string, event string, data any) {
	for _, h := range r.ResolveHandles(userIDs) {
		h.Send(event, data)
	}
}

// Broadcast delivers an event to every connected user.
func (r *Registry) Broadcast(event string, data any) {
	r.mu.RLock()
	handles := make([]Handle, 0, len(r.users))
	for _, e := range r.users {
		handles = append(handles, e.handle)
	}
	r.mu.RUnlock()

	for _, h := range handles {
		h.Send(event, data)
	}
}
