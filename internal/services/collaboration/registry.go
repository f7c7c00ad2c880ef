package collaboration

import (
	"maps"
	"slices"
)

// Membership is what the registry remembers about a joined connection.
type Membership struct {
	SessionID string
	ListSlug  string
	RoomID    uint
}

// Registry maps live connections to the room they joined. It is not safe for
// concurrent use: the gateway's event loop is its only owner.
type Registry struct {
	members  map[string]Membership   // connID -> membership
	sessions map[string]int          // sessionID -> joined connections in any room
	rooms    map[uint]map[string]int // roomID -> sessionID -> joined connections
}

func NewRegistry() *Registry {
	return &Registry{
		members:  make(map[string]Membership),
		sessions: make(map[string]int),
		rooms:    make(map[uint]map[string]int),
	}
}

// Attach records the connection's membership. A connection holds at most one
// membership; callers detach first when switching rooms.
func (r *Registry) Attach(connID string, m Membership) {
	if prev, ok := r.members[connID]; ok {
		r.release(prev)
	}
	r.members[connID] = m
	r.sessions[m.SessionID]++

	room, ok := r.rooms[m.RoomID]
	if !ok {
		room = make(map[string]int)
		r.rooms[m.RoomID] = room
	}
	room[m.SessionID]++
}

// Detach removes and returns the connection's membership.
func (r *Registry) Detach(connID string) (Membership, bool) {
	m, ok := r.members[connID]
	if !ok {
		return Membership{}, false
	}
	delete(r.members, connID)
	r.release(m)
	return m, true
}

func (r *Registry) Lookup(connID string) (Membership, bool) {
	m, ok := r.members[connID]
	return m, ok
}

// SessionConnections counts joined connections carrying sessionID across all
// rooms. A tab that reconnects before its old socket times out briefly holds two.
func (r *Registry) SessionConnections(sessionID string) int {
	return r.sessions[sessionID]
}

// RoomConnections counts connections carrying sessionID joined to roomID.
func (r *Registry) RoomConnections(roomID uint, sessionID string) int {
	return r.rooms[roomID][sessionID]
}

// RoomSessions lists the sessions present in roomID other than except, sorted.
func (r *Registry) RoomSessions(roomID uint, except string) []string {
	ids := slices.Sorted(maps.Keys(r.rooms[roomID]))
	return slices.DeleteFunc(ids, func(id string) bool { return id == except })
}

// Len returns the number of joined connections.
func (r *Registry) Len() int {
	return len(r.members)
}

func (r *Registry) release(m Membership) {
	if r.sessions[m.SessionID] <= 1 {
		delete(r.sessions, m.SessionID)
	} else {
		r.sessions[m.SessionID]--
	}

	room := r.rooms[m.RoomID]
	if room[m.SessionID] <= 1 {
		delete(room, m.SessionID)
	} else {
		room[m.SessionID]--
	}
	if len(room) == 0 {
		delete(r.rooms, m.RoomID)
	}
}
