package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// RoleStationDispatcher is the role bound to a single station; its holders
// see only their station's incidents and receive the sound-flagged
// assignment alert.
const RoleStationDispatcher = "station_dispatcher"

// Identity is the authenticated principal bound to a connection at
// handshake time.
type Identity struct {
	UserID    uuid.UUID
	Role      string
	StationID *uuid.UUID
}

// UserRoom addresses a single user's connections.
func UserRoom(id uuid.UUID) string { return "user:" + id.String() }

// RoleRoom addresses every connection bound to a role.
func RoleRoom(role string) string { return "role:" + role }

// StationRoom addresses connections attached to a station.
func StationRoom(id uuid.UUID) string { return "station:" + id.String() }

// Registry tracks live authenticated connections and their room
// memberships. It is an explicit service instance owned by the composition
// root; state never survives process restart.
type Registry struct {
	mu    sync.RWMutex
	conns map[*Client]struct{}
	rooms map[string]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Client]struct{}),
		rooms: make(map[string]map[*Client]struct{}),
	}
}

// Add registers a connection and joins its user and role rooms.
func (r *Registry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
	r.join(c, UserRoom(c.identity.UserID))
	r.join(c, RoleRoom(c.identity.Role))
}

// Remove drops a connection from the registry and every room it joined.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c)
	for room, members := range r.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Join adds the connection to a room.
func (r *Registry) Join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return
	}
	r.join(c, room)
}

// Leave removes the connection from a room.
func (r *Registry) Leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// All snapshots every live connection.
func (r *Registry) All() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// InRoom snapshots the members of a room.
func (r *Registry) InRoom(room string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Client, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// join requires r.mu held.
func (r *Registry) join(c *Client, room string) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
}
