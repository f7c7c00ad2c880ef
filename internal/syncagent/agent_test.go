package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"listsync/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer speaks just enough of the protocol to drive the agent.
type fakeServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader
	joins    atomic.Int32
	dials    atomic.Int32

	mu           sync.Mutex
	conn         *websocket.Conn
	participants []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.srv = httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http") + "/ws"
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	fs.dials.Add(1)

	fs.mu.Lock()
	fs.conn = conn
	fs.mu.Unlock()

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Event != models.EventJoinList {
			continue
		}
		fs.joins.Add(1)

		var req models.JoinRequest
		_ = json.Unmarshal(env.Data, &req)

		fs.mu.Lock()
		participants := fs.participants
		fs.mu.Unlock()

		var reply *models.Envelope
		switch req.ListSlug {
		case "ghost-slug-000":
			reply, _ = models.NewEnvelope(models.EventError, models.ErrorEvent{Message: "List not found"})
		case "garbled-slug-000":
			reply, _ = models.NewEnvelope(models.EventError, "not an object")
		default:
			reply, _ = models.NewEnvelope(models.EventJoinedList, models.JoinedList{
				ListID:       1,
				ListSlug:     req.ListSlug,
				Participants: participants,
			})
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (fs *fakeServer) setParticipants(ids ...string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.participants = ids
}

// push writes one frame to the current connection.
func (fs *fakeServer) push(t *testing.T, event string, data any) {
	t.Helper()
	env, err := models.NewEnvelope(event, data)
	require.NoError(t, err)
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotNil(t, fs.conn)
	require.NoError(t, fs.conn.WriteJSON(env))
}

// kill drops the current connection from the server side.
func (fs *fakeServer) kill() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.conn != nil {
		fs.conn.Close()
	}
}

type stubFetcher struct {
	calls atomic.Int32
	list  *models.ListWithItems
}

func (f *stubFetcher) FetchList(context.Context, string) (*models.ListWithItems, error) {
	f.calls.Add(1)
	return f.list, nil
}

func fastOptions(url string) Options {
	return Options{
		URL:                  url,
		SessionID:            "tab-test",
		ReconnectDelay:       5 * time.Millisecond,
		MaxReconnectDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 5,
	}
}

func runAgent(t *testing.T, a *Agent) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	finished := make(chan struct{})
	go func() {
		errc <- a.Run(ctx)
		close(finished)
	}()
	t.Cleanup(func() {
		cancelFn()
		<-finished
	})
	return cancelFn, errc
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	a := New(Options{URL: "ws://unused"})

	got := make([]time.Duration, 0, 5)
	for attempt := 1; attempt <= 5; attempt++ {
		got = append(got, a.backoff(attempt))
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

func TestNewGeneratesSessionID(t *testing.T) {
	a := New(Options{URL: "ws://unused"})
	b := New(Options{URL: "ws://unused"})
	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
	assert.Equal(t, StateDisconnected, a.State())
}

func TestAgent_JoinsAndRefetches(t *testing.T) {
	fs := newFakeServer(t)
	fetcher := &stubFetcher{list: &models.ListWithItems{
		List:  models.List{ID: 1, Title: "Groceries"},
		Items: []models.ListItem{{ID: 7, Text: "milk"}},
	}}

	opts := fastOptions(fs.url())
	opts.Fetcher = fetcher
	a := New(opts)
	require.NoError(t, a.Join("Alpha-Bravo-123"))
	runAgent(t, a)

	require.Eventually(t, a.Joined, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(a.Snapshot().Items) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "Groceries", a.Snapshot().Title)

	// A reconnect joins again and re-fetches to recover missed events
	fs.kill()
	require.Eventually(t, func() bool { return fetcher.calls.Load() == 2 && a.Joined() }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), fs.joins.Load())
}

func TestAgent_JoinErrorIsNotRetried(t *testing.T) {
	fs := newFakeServer(t)
	a := New(fastOptions(fs.url()))
	require.NoError(t, a.Join("ghost-slug-000"))
	runAgent(t, a)

	require.Eventually(t, func() bool { return a.JoinError() != nil }, time.Second, 5*time.Millisecond)
	var joinErr *JoinError
	require.ErrorAs(t, a.JoinError(), &joinErr)
	assert.Equal(t, "List not found", joinErr.Message)
	assert.Equal(t, StateConnected, a.State())

	// The transport reconnects, the rejected join stays rejected
	fs.kill()
	require.Eventually(t, func() bool { return fs.dials.Load() == 2 && a.State() == StateConnected }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), fs.joins.Load())
	assert.False(t, a.Joined())

	// New input from the caller clears the rejection
	require.NoError(t, a.Join("Alpha-Bravo-123"))
	require.Eventually(t, a.Joined, time.Second, 5*time.Millisecond)
	assert.NoError(t, a.JoinError())
}

func TestAgent_MalformedJoinErrorHasMessage(t *testing.T) {
	fs := newFakeServer(t)
	a := New(fastOptions(fs.url()))
	require.NoError(t, a.Join("garbled-slug-000"))
	runAgent(t, a)

	require.Eventually(t, func() bool { return a.JoinError() != nil }, time.Second, 5*time.Millisecond)
	var joinErr *JoinError
	require.ErrorAs(t, a.JoinError(), &joinErr)
	assert.Equal(t, unknownJoinError, joinErr.Message)
	assert.False(t, a.Joined())
}

func TestAgent_ReconnectReplacesParticipants(t *testing.T) {
	fs := newFakeServer(t)
	fs.setParticipants("tab-b")
	a := New(fastOptions(fs.url()))
	require.NoError(t, a.Join("Alpha-Bravo-123"))
	runAgent(t, a)

	require.Eventually(t, a.Joined, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tab-b"}, a.Snapshot().ParticipantIDs())

	fs.push(t, models.EventUserJoined, models.PresenceEvent{SessionID: "tab-c"})
	require.Eventually(t, func() bool {
		return len(a.Snapshot().ParticipantIDs()) == 2
	}, time.Second, 5*time.Millisecond)

	// tab-b and tab-c leave while the agent is offline
	fs.setParticipants("tab-d")
	fs.kill()
	require.Eventually(t, func() bool {
		return fs.joins.Load() == 2 && a.Joined()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tab-d"}, a.Snapshot().ParticipantIDs())
}

func TestAgent_GivesUpAfterMaxAttempts(t *testing.T) {
	fs := newFakeServer(t)
	url := fs.url()
	fs.srv.Close()

	opts := fastOptions(url)
	opts.MaxReconnectAttempts = 3
	a := New(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReconnectFailed))
	assert.Equal(t, StateDisconnected, a.State())
}

func TestAgent_EmitAppliesLocallyBeforeJoin(t *testing.T) {
	a := New(Options{URL: "ws://unused"})

	err := a.EmitItemAdded(models.ListItem{ID: 1, Text: "milk"})
	assert.ErrorIs(t, err, ErrNotConnected)

	item, ok := a.Snapshot().Item(1)
	require.True(t, ok)
	assert.Equal(t, "milk", item.Text)
}

func TestAgent_StopsOnCancel(t *testing.T) {
	fs := newFakeServer(t)
	a := New(fastOptions(fs.url()))
	cancel, done := runAgent(t, a)

	require.Eventually(t, func() bool { return a.State() == StateConnected }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
	assert.Equal(t, StateDisconnected, a.State())
}
