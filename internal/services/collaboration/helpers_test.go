package collaboration

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listsync/internal/models"
	"listsync/internal/services"

	"github.com/stretchr/testify/require"
)

// fakePeer is an in-process connection with a bounded inbox.
type fakePeer struct {
	id     string
	frames chan []byte
	closed atomic.Bool
}

func newFakePeer(id string, buffer int) *fakePeer {
	return &fakePeer{id: id, frames: make(chan []byte, buffer)}
}

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Deliver(frame []byte) bool {
	select {
	case p.frames <- frame:
		return true
	default:
		return false
	}
}

func (p *fakePeer) Close() { p.closed.Store(true) }

// next waits for the next frame.
func (p *fakePeer) next(t *testing.T) models.Envelope {
	t.Helper()
	select {
	case frame := <-p.frames:
		var env models.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatalf("peer %s: no frame received", p.id)
		return models.Envelope{}
	}
}

// expect waits for the next frame and checks its event name.
func (p *fakePeer) expect(t *testing.T, event string, out any) {
	t.Helper()
	env := p.next(t)
	require.Equal(t, event, env.Event, "peer %s got %s", p.id, string(env.Data))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
}

// expectNothing asserts no frame is queued. Callers sync with the loop first.
func (p *fakePeer) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case frame := <-p.frames:
		t.Fatalf("peer %s: unexpected frame %s", p.id, string(frame))
	default:
	}
}

// fakeResolver resolves from a map. Slugs listed in gates block until the
// gate is closed.
type fakeResolver struct {
	lists map[string]*models.List
	gates map[string]chan struct{}
	calls chan string
}

func newFakeResolver(lists ...*models.List) *fakeResolver {
	r := &fakeResolver{
		lists: make(map[string]*models.List),
		gates: make(map[string]chan struct{}),
		calls: make(chan string, 64),
	}
	for _, l := range lists {
		r.lists[l.Slug] = l
	}
	return r
}

func (r *fakeResolver) gate(slug string) chan struct{} {
	g := make(chan struct{})
	r.gates[slug] = g
	return g
}

func (r *fakeResolver) ResolveList(ctx context.Context, slug string) (*models.List, error) {
	r.calls <- slug
	if g, ok := r.gates[slug]; ok {
		select {
		case <-g:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l, ok := r.lists[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", services.ErrListNotFound, slug)
	}
	return l, nil
}

// fakePersister records presence writes.
type fakePersister struct {
	mu  sync.Mutex
	ops []string
	err error
}

func (p *fakePersister) Touch(listID uint, sessionID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, fmt.Sprintf("touch %s %d", sessionID, listID))
	return p.err
}

func (p *fakePersister) Remove(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "remove "+sessionID)
	return p.err
}

func (p *fakePersister) recorded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

var (
	groceries = &models.List{ID: 1, Slug: "Alpha-Bravo-123", Title: "Groceries"}
	chores    = &models.List{ID: 2, Slug: "Charlie-Delta-456", Title: "Chores"}
)

func newTestGateway(t *testing.T, resolver ListResolver, persister SessionPersister) *Gateway {
	t.Helper()
	g := NewGateway(resolver, persister)
	g.Start()
	t.Cleanup(g.Shutdown)
	return g
}

// settle waits until every event queued so far, including finished room
// lookups, has been handled by the loop.
func settle(t *testing.T, g *Gateway) Stats {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The first round trip guarantees every queued join has started its lookup
	_, err := g.Stats(ctx)
	require.NoError(t, err)
	g.lookups.Wait()

	stats, err := g.Stats(ctx)
	require.NoError(t, err)
	return stats
}

// join connects a peer and completes the handshake.
func join(t *testing.T, g *Gateway, p *fakePeer, slug, sessionID string) models.JoinedList {
	t.Helper()
	g.Connect(p, "test-agent")
	g.Join(p.ID(), models.JoinRequest{ListSlug: slug, SessionID: sessionID})
	var ack models.JoinedList
	p.expect(t, models.EventJoinedList, &ack)
	return ack
}

func relay(t *testing.T, g *Gateway, connID, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	g.Relay(connID, event, data)
}
