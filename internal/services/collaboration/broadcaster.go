package collaboration

// Peer is one connected client as seen by the broadcaster. The websocket
// client implements it; tests use in-process fakes.
type Peer interface {
	ID() string
	// Deliver queues a frame without blocking. It reports false when the
	// peer cannot keep up.
	Deliver(frame []byte) bool
	Close()
}

// Broadcaster fans frames out to the peers subscribed to a room. Rooms are
// created on first subscribe and removed when their last peer leaves.
// Like the Registry it belongs to the gateway's event loop.
type Broadcaster struct {
	rooms map[uint]map[string]Peer // roomID -> peerID -> peer
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{rooms: make(map[uint]map[string]Peer)}
}

func (b *Broadcaster) Subscribe(roomID uint, p Peer) {
	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]Peer)
		b.rooms[roomID] = room
	}
	room[p.ID()] = p
}

func (b *Broadcaster) Unsubscribe(roomID uint, peerID string) {
	room, ok := b.rooms[roomID]
	if !ok {
		return
	}
	delete(room, peerID)
	if len(room) == 0 {
		delete(b.rooms, roomID)
	}
}

// Publish delivers frame to every subscriber of roomID except excludeID
// (empty excludes nobody). Peers whose queue was full are returned so the
// caller can drop them. A room without subscribers swallows the frame.
func (b *Broadcaster) Publish(roomID uint, frame []byte, excludeID string) (delivered int, slow []Peer) {
	for id, p := range b.rooms[roomID] {
		if id == excludeID {
			continue
		}
		if p.Deliver(frame) {
			delivered++
			continue
		}
		slow = append(slow, p)
	}
	return delivered, slow
}

// RoomSize returns the number of subscribers in a room.
func (b *Broadcaster) RoomSize(roomID uint) int {
	return len(b.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one subscriber.
func (b *Broadcaster) RoomCount() int {
	return len(b.rooms)
}
