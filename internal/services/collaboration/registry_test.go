package collaboration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AttachLookupDetach(t *testing.T) {
	r := NewRegistry()
	r.Attach("c1", Membership{SessionID: "tab-a", ListSlug: "Alpha-Bravo-123", RoomID: 1})

	m, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, uint(1), m.RoomID)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, r.SessionConnections("tab-a"))

	got, ok := r.Detach("c1")
	require.True(t, ok)
	assert.Equal(t, m, got)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 0, r.SessionConnections("tab-a"))

	_, ok = r.Detach("c1")
	assert.False(t, ok, "second detach is a no-op")
}

func TestRegistry_ReattachReplacesMembership(t *testing.T) {
	r := NewRegistry()
	r.Attach("c1", Membership{SessionID: "tab-a", RoomID: 1})
	r.Attach("c1", Membership{SessionID: "tab-b", RoomID: 2})

	m, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, uint(2), m.RoomID)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 0, r.SessionConnections("tab-a"))
	assert.Equal(t, 1, r.SessionConnections("tab-b"))
	assert.Equal(t, 0, r.RoomConnections(1, "tab-a"))
	assert.Equal(t, 1, r.RoomConnections(2, "tab-b"))
	assert.NotContains(t, r.rooms, uint(1))
}

func TestRegistry_CountsConnectionsPerSession(t *testing.T) {
	r := NewRegistry()
	r.Attach("old-socket", Membership{SessionID: "tab-a", RoomID: 1})
	r.Attach("new-socket", Membership{SessionID: "tab-a", RoomID: 1})
	assert.Equal(t, 2, r.SessionConnections("tab-a"))

	r.Detach("old-socket")
	assert.Equal(t, 1, r.SessionConnections("tab-a"))

	r.Detach("new-socket")
	assert.Equal(t, 0, r.SessionConnections("tab-a"))
	assert.Empty(t, r.sessions)
	assert.Empty(t, r.rooms)
}

func TestRegistry_CountsSessionsPerRoom(t *testing.T) {
	r := NewRegistry()
	r.Attach("old-socket", Membership{SessionID: "tab-a", RoomID: 1})
	r.Attach("watcher", Membership{SessionID: "tab-w", RoomID: 1})
	r.Attach("new-socket", Membership{SessionID: "tab-a", RoomID: 2})

	assert.Equal(t, 2, r.SessionConnections("tab-a"))
	assert.Equal(t, 1, r.RoomConnections(1, "tab-a"))
	assert.Equal(t, 1, r.RoomConnections(2, "tab-a"))
	assert.Equal(t, []string{"tab-a", "tab-w"}, r.RoomSessions(1, ""))
	assert.Equal(t, []string{"tab-w"}, r.RoomSessions(1, "tab-a"))
	assert.Empty(t, r.RoomSessions(2, "tab-a"))

	r.Detach("old-socket")
	assert.Equal(t, 0, r.RoomConnections(1, "tab-a"))
	assert.Equal(t, 1, r.SessionConnections("tab-a"))
	assert.Equal(t, []string{"tab-w"}, r.RoomSessions(1, ""))
	assert.Empty(t, r.RoomSessions(3, ""))
}
