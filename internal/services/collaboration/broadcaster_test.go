package collaboration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_PublishExcludesAndIsolates(t *testing.T) {
	b := NewBroadcaster()
	a1 := newFakePeer("a1", 4)
	a2 := newFakePeer("a2", 4)
	other := newFakePeer("other", 4)

	b.Subscribe(1, a1)
	b.Subscribe(1, a2)
	b.Subscribe(2, other)

	delivered, slow := b.Publish(1, []byte(`{"event":"x"}`), "a1")
	assert.Equal(t, 1, delivered)
	assert.Empty(t, slow)
	assert.Len(t, a1.frames, 0)
	assert.Len(t, a2.frames, 1)
	assert.Len(t, other.frames, 0)

	delivered, _ = b.Publish(1, []byte(`{"event":"y"}`), "")
	assert.Equal(t, 2, delivered)
}

func TestBroadcaster_ReportsSlowPeers(t *testing.T) {
	b := NewBroadcaster()
	fast := newFakePeer("fast", 4)
	slowPeer := newFakePeer("slow", 1)
	b.Subscribe(1, fast)
	b.Subscribe(1, slowPeer)

	_, slow := b.Publish(1, []byte(`1`), "")
	assert.Empty(t, slow)

	delivered, slow := b.Publish(1, []byte(`2`), "")
	assert.Equal(t, 1, delivered)
	require.Len(t, slow, 1)
	assert.Equal(t, "slow", slow[0].ID())
}

func TestBroadcaster_RoomLifecycle(t *testing.T) {
	b := NewBroadcaster()
	p := newFakePeer("p", 1)

	b.Subscribe(7, p)
	b.Subscribe(7, p)
	assert.Equal(t, 1, b.RoomSize(7))
	assert.Equal(t, 1, b.RoomCount())

	b.Unsubscribe(7, "p")
	assert.Equal(t, 0, b.RoomSize(7))
	assert.Equal(t, 0, b.RoomCount(), "empty rooms are removed")

	b.Unsubscribe(7, "p")
	delivered, slow := b.Publish(7, []byte(`1`), "")
	assert.Zero(t, delivered)
	assert.Empty(t, slow)
}
