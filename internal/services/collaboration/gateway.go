package collaboration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"listsync/internal/middleware"
	"listsync/internal/models"
	"listsync/internal/services"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: SINGLE-OWNER EVENT LOOP

Every join, relay and disconnect is turned into an event and handled, one at
a time, by the goroutine started in Start. That goroutine is the only one
that touches the Registry and the Broadcaster, so neither needs a lock and a
handler can never observe a half-updated room.

The one slow step, resolving a slug to a list, runs off the loop. Its result
comes back as a joinResolved event and is checked again on the loop: if the
connection went away in the meantime, or sent a newer join, the stale result
is dropped instead of registering a ghost session.
*/

var (
	// ErrRoomNotFound means a join named a slug that does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrNotJoined means a relay arrived from a connection with no room.
	ErrNotJoined = errors.New("connection has not joined a room")
)

const (
	defaultLookupTimeout = 5 * time.Second
	eventQueueSize       = 1024
)

// ListResolver maps a public slug to its list. Unknown slugs return an error
// wrapping services.ErrListNotFound.
type ListResolver interface {
	ResolveList(ctx context.Context, slug string) (*models.List, error)
}

// SessionPersister records presence in the background. Errors mean the
// write was not queued; they are logged and never reach the peer.
type SessionPersister interface {
	Touch(listID uint, sessionID, userAgent string) error
	Remove(sessionID string) error
}

// Stats is a point-in-time view of the gateway.
type Stats struct {
	Connections int `json:"connections"`
	Joined      int `json:"joined"`
	Rooms       int `json:"rooms"`
}

type gatewayEvent interface{}

type connectEvent struct {
	peer      Peer
	userAgent string
}

type joinEvent struct {
	connID string
	req    models.JoinRequest
}

type joinResolvedEvent struct {
	connID string
	seq    uint64
	req    models.JoinRequest
	list   *models.List
	err    error
}

type relayEvent struct {
	connID string
	event  string
	data   json.RawMessage
}

type disconnectEvent struct {
	connID string
}

type statsEvent struct {
	reply chan Stats
}

// connState is the loop's view of one live connection.
type connState struct {
	peer      Peer
	userAgent string
	joinSeq   uint64
}

// Gateway is the server side of the sync protocol.
type Gateway struct {
	resolver      ListResolver
	presence      SessionPersister
	registry      *Registry
	rooms         *Broadcaster
	conns         map[string]*connState
	lookupTimeout time.Duration

	ctx     context.Context // cancelled on shutdown, parents room lookups
	cancel  context.CancelFunc
	events  chan gatewayEvent
	done    chan struct{}
	stopped chan struct{}
	lookups sync.WaitGroup
	once    sync.Once
	started atomic.Bool

	log *logrus.Entry
}

func NewGateway(resolver ListResolver, presence SessionPersister) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		ctx:           ctx,
		cancel:        cancel,
		resolver:      resolver,
		presence:      presence,
		registry:      NewRegistry(),
		rooms:         NewBroadcaster(),
		conns:         make(map[string]*connState),
		lookupTimeout: defaultLookupTimeout,
		events:        make(chan gatewayEvent, eventQueueSize),
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
		log:           logrus.WithField("component", "gateway"),
	}
}

// Start runs the event loop.
func (g *Gateway) Start() {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	g.log.Info("🔄 Starting sync gateway...")

	go func() {
		defer close(g.stopped)
		for {
			select {
			case <-g.done:
				return
			case ev := <-g.events:
				g.handle(ev)
			}
		}
	}()

	g.log.Info("✓ Sync gateway started")
}

// Connect registers a live connection. It receives nothing until it joins.
func (g *Gateway) Connect(peer Peer, userAgent string) {
	g.enqueue(connectEvent{peer: peer, userAgent: userAgent})
}

// Join asks to attach the connection to the list named by req.ListSlug.
func (g *Gateway) Join(connID string, req models.JoinRequest) {
	g.enqueue(joinEvent{connID: connID, req: req})
}

// Relay broadcasts a committed mutation to the connection's room, the
// sender included. Connections that have not joined are ignored.
func (g *Gateway) Relay(connID, event string, data json.RawMessage) {
	g.enqueue(relayEvent{connID: connID, event: event, data: data})
}

// Disconnect releases everything the connection held.
func (g *Gateway) Disconnect(connID string) {
	g.enqueue(disconnectEvent{connID: connID})
}

// HandleFrame decodes one inbound frame and dispatches it.
func (g *Gateway) HandleFrame(connID string, frame []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}

	if env.Event == models.EventJoinList {
		var req models.JoinRequest
		if err := json.Unmarshal(env.Data, &req); err != nil {
			return fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
		}
		g.Join(connID, req)
		return nil
	}

	if _, ok := models.RelayEvents[env.Event]; !ok {
		return fmt.Errorf("unknown event %q", env.Event)
	}
	g.Relay(connID, env.Event, env.Data)
	return nil
}

// Stats asks the loop for a snapshot.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case g.events <- statsEvent{reply: reply}:
	case <-g.done:
		return Stats{}, errors.New("gateway is shut down")
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-g.done:
		return Stats{}, errors.New("gateway is shut down")
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Shutdown stops the loop and closes every connection.
func (g *Gateway) Shutdown() {
	g.once.Do(func() {
		g.log.Info("🛑 Shutting down sync gateway...")
		close(g.done)
		g.cancel()
	})
	if g.started.Load() {
		<-g.stopped
	}
	g.lookups.Wait()

	for id, c := range g.conns {
		c.peer.Close()
		delete(g.conns, id)
	}
	g.log.Info("✓ Sync gateway shutdown complete")
}

func (g *Gateway) enqueue(ev gatewayEvent) {
	select {
	case g.events <- ev:
	case <-g.done:
	}
}

func (g *Gateway) handle(ev gatewayEvent) {
	switch e := ev.(type) {
	case connectEvent:
		g.conns[e.peer.ID()] = &connState{peer: e.peer, userAgent: e.userAgent}
	case joinEvent:
		g.handleJoin(e)
	case joinResolvedEvent:
		g.handleJoinResolved(e)
	case relayEvent:
		g.handleRelay(e)
	case disconnectEvent:
		g.handleDisconnect(e.connID)
	case statsEvent:
		e.reply <- Stats{Connections: len(g.conns), Joined: g.registry.Len(), Rooms: g.rooms.RoomCount()}
	}
}

func (g *Gateway) handleJoin(e joinEvent) {
	c, ok := g.conns[e.connID]
	if !ok {
		return
	}

	if e.req.ListSlug == "" || e.req.SessionID == "" {
		g.sendTo(c, models.EventError, models.ErrorEvent{Message: "listSlug and sessionId are required"})
		return
	}

	// Only the latest join from a connection may take effect
	c.joinSeq++
	seq := c.joinSeq

	g.lookups.Add(1)
	go func() {
		defer g.lookups.Done()

		ctx, cancel := context.WithTimeout(g.ctx, g.lookupTimeout)
		defer cancel()

		list, err := g.resolver.ResolveList(ctx, e.req.ListSlug)
		g.enqueue(joinResolvedEvent{connID: e.connID, seq: seq, req: e.req, list: list, err: err})
	}()
}

func (g *Gateway) handleJoinResolved(e joinResolvedEvent) {
	log := g.log.WithFields(logrus.Fields{"conn_id": e.connID, "list_slug": e.req.ListSlug})

	c, ok := g.conns[e.connID]
	if !ok || c.joinSeq != e.seq {
		log.Debug("Dropping stale join result")
		return
	}

	ctx, span := middleware.StartSpan(context.Background(), "Gateway.Join",
		attribute.String("conn.id", e.connID),
		attribute.String("list.slug", e.req.ListSlug),
	)
	defer span.End()

	if e.err != nil {
		if errors.Is(e.err, services.ErrListNotFound) {
			log.WithError(fmt.Errorf("%w: %s", ErrRoomNotFound, e.req.ListSlug)).Info("Join rejected")
			g.sendTo(c, models.EventError, models.ErrorEvent{Message: "List not found"})
			return
		}
		log.WithError(e.err).Error("❌ Room lookup failed")
		middleware.AddSpanError(ctx, e.err)
		g.sendTo(c, models.EventError, models.ErrorEvent{Message: "Failed to join list"})
		return
	}

	roomID := e.list.ID

	// Switching rooms is a leave from the old one
	if prev, joined := g.registry.Lookup(e.connID); joined {
		g.leaveRoom(e.connID, prev)
	}

	g.registry.Attach(e.connID, Membership{SessionID: e.req.SessionID, ListSlug: e.req.ListSlug, RoomID: roomID})
	if err := g.presence.Touch(roomID, e.req.SessionID, c.userAgent); err != nil {
		log.WithError(err).Warn("⚠️  Session touch not persisted")
	}
	g.rooms.Subscribe(roomID, c.peer)

	// A second socket of a session already in the room is not news to anyone
	if g.registry.RoomConnections(roomID, e.req.SessionID) == 1 {
		g.publish(roomID, models.EventUserJoined, models.PresenceEvent{
			SessionID: e.req.SessionID,
			Timestamp: models.NowMillis(),
		}, e.connID)
	} else {
		log.WithField("session_id", e.req.SessionID).Debug("Session already present in room")
	}

	g.sendTo(c, models.EventJoinedList, models.JoinedList{
		ListID:       roomID,
		ListSlug:     e.req.ListSlug,
		Participants: g.registry.RoomSessions(roomID, e.req.SessionID),
		Timestamp:    models.NowMillis(),
	})

	log.WithFields(logrus.Fields{
		"room_id":    roomID,
		"session_id": e.req.SessionID,
		"room_size":  g.rooms.RoomSize(roomID),
	}).Info("Connection joined room")
}

func (g *Gateway) handleRelay(e relayEvent) {
	updateType, ok := models.RelayEvents[e.event]
	if !ok {
		return
	}

	m, joined := g.registry.Lookup(e.connID)
	if !joined {
		g.log.WithError(ErrNotJoined).WithFields(logrus.Fields{
			"conn_id": e.connID,
			"event":   e.event,
		}).Debug("Ignoring relay")
		return
	}

	_, span := middleware.StartSpan(context.Background(), "Gateway.Relay",
		attribute.String("conn.id", e.connID),
		attribute.Int64("room.id", int64(m.RoomID)),
		attribute.String("update.type", string(updateType)),
	)
	defer span.End()

	data := e.data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}

	delivered := g.publish(m.RoomID, models.EventUpdate, models.ListUpdate{
		Type:      updateType,
		Data:      data,
		Timestamp: models.NowMillis(),
	}, "")
	span.SetAttributes(attribute.Int("update.delivered", delivered))
}

func (g *Gateway) handleDisconnect(connID string) {
	if _, ok := g.conns[connID]; !ok {
		return
	}
	delete(g.conns, connID)

	if m, joined := g.registry.Lookup(connID); joined {
		g.leaveRoom(connID, m)
	}
}

// leaveRoom detaches the connection. The persisted session is removed once no
// connection carries it anywhere; the room hears user-left once no connection
// carries it in that room.
func (g *Gateway) leaveRoom(connID string, m Membership) {
	g.registry.Detach(connID)
	g.rooms.Unsubscribe(m.RoomID, connID)

	log := g.log.WithFields(logrus.Fields{
		"conn_id":    connID,
		"room_id":    m.RoomID,
		"session_id": m.SessionID,
	})

	if g.registry.SessionConnections(m.SessionID) == 0 {
		if err := g.presence.Remove(m.SessionID); err != nil {
			log.WithError(err).Warn("⚠️  Session removal not persisted")
		}
	}

	if g.registry.RoomConnections(m.RoomID, m.SessionID) > 0 {
		log.Debug("Session still in room through another connection")
		return
	}

	g.publish(m.RoomID, models.EventUserLeft, models.PresenceEvent{
		SessionID: m.SessionID,
		Timestamp: models.NowMillis(),
	}, "")

	log.WithField("room_size", g.rooms.RoomSize(m.RoomID)).Info("Connection left room")
}

// publish sends one event to a room and drops peers that could not keep up.
func (g *Gateway) publish(roomID uint, event string, payload any, excludeID string) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		g.log.WithError(err).WithField("event", event).Error("❌ Failed to encode frame")
		return 0
	}

	delivered, slow := g.rooms.Publish(roomID, frame, excludeID)
	for _, p := range slow {
		g.dropSlowPeer(p)
	}
	return delivered
}

func (g *Gateway) sendTo(c *connState, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		g.log.WithError(err).WithField("event", event).Error("❌ Failed to encode frame")
		return
	}
	if !c.peer.Deliver(frame) {
		g.dropSlowPeer(c.peer)
	}
}

func (g *Gateway) dropSlowPeer(p Peer) {
	g.log.WithField("conn_id", p.ID()).Warn("⚠️  Send buffer full, closing connection")
	p.Close()
	g.handleDisconnect(p.ID())
}

func encodeFrame(event string, payload any) ([]byte, error) {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
