package syncagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"listsync/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

/*
LEARNING: CLIENT STATE MACHINE

	disconnected -> connecting -> connected -> joined
	      ^______________|____________|__________|   (socket dropped)

The transport reconnects on its own with a doubling delay and a bounded
number of attempts. Joining is separate: a rejected join is remembered and
NOT retried, not even after a reconnect, until the caller asks again with
Join. Every successful join re-fetches the full list, which is how events
missed while offline are recovered.
*/

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateJoined:
		return "joined"
	default:
		return "disconnected"
	}
}

var (
	ErrNotConnected    = errors.New("not connected")
	ErrNotJoined       = errors.New("not joined to a list")
	ErrReconnectFailed = errors.New("reconnect attempts exhausted")
)

// JoinError is the server's rejection of a join.
type JoinError struct {
	Slug    string
	Message string
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join %q rejected: %s", e.Slug, e.Message)
}

// Fetcher loads the full state of a list.
type Fetcher interface {
	FetchList(ctx context.Context, slug string) (*models.ListWithItems, error)
}

type NotificationKind string

const (
	NotifyState    NotificationKind = "state"
	NotifyUpdate   NotificationKind = "update"
	NotifyPresence NotificationKind = "presence"
	NotifySynced   NotificationKind = "synced"
	NotifyError    NotificationKind = "error"
)

// Notification tells the caller something changed.
type Notification struct {
	Kind      NotificationKind
	State     State
	Update    *models.ListUpdate
	SessionID string
	Joined    bool // for presence: joined or left
	Err       error
}

type Options struct {
	// URL of the websocket endpoint, e.g. ws://localhost:8080/ws
	URL       string
	SessionID string
	UserAgent string
	Fetcher   Fetcher
	Dialer    *websocket.Dialer

	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
}

func (o *Options) setDefaults() {
	if o.SessionID == "" {
		o.SessionID = uuid.NewString()
	}
	if o.UserAgent == "" {
		o.UserAgent = "listsync-agent"
	}
	if o.Dialer == nil {
		o.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = time.Second
	}
	if o.MaxReconnectDelay <= 0 {
		o.MaxReconnectDelay = 5 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
}

const fetchTimeout = 10 * time.Second

// unknownJoinError stands in for a rejection the server did not explain.
const unknownJoinError = "join rejected by server"

// Agent keeps a local copy of one list in sync with the server.
type Agent struct {
	opts Options
	log  *logrus.Entry

	mu      sync.Mutex
	state   State
	slug    string
	joinErr error
	list    *ListState
	conn    *websocket.Conn

	writeMu sync.Mutex
	notify  chan Notification
}

func New(opts Options) *Agent {
	opts.setDefaults()
	return &Agent{
		opts:   opts,
		list:   NewListState(),
		notify: make(chan Notification, 128),
		log: logrus.WithFields(logrus.Fields{
			"component":  "syncagent",
			"session_id": opts.SessionID,
		}),
	}
}

// Run connects and keeps reconnecting until ctx is done or the attempts
// run out, in which case the agent stays disconnected for good.
func (a *Agent) Run(ctx context.Context) error {
	attempt := 0
	for {
		connected, err := a.runSession(ctx)
		if ctx.Err() != nil {
			a.setState(StateDisconnected)
			return ctx.Err()
		}

		if connected {
			attempt = 0
		}
		attempt++
		if attempt > a.opts.MaxReconnectAttempts {
			a.setState(StateDisconnected)
			a.emit(Notification{Kind: NotifyError, Err: ErrReconnectFailed})
			a.log.WithError(err).Error("❌ Giving up on reconnecting")
			return fmt.Errorf("%w: %v", ErrReconnectFailed, err)
		}

		delay := a.backoff(attempt)
		a.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"delay":   delay.String(),
		}).Warn("⚠️  Connection lost, reconnecting")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.setState(StateDisconnected)
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff doubles the base delay per attempt up to the maximum.
func (a *Agent) backoff(attempt int) time.Duration {
	d := a.opts.ReconnectDelay
	for i := 1; i < attempt && d < a.opts.MaxReconnectDelay; i++ {
		d *= 2
	}
	if d > a.opts.MaxReconnectDelay {
		d = a.opts.MaxReconnectDelay
	}
	return d
}

func (a *Agent) runSession(ctx context.Context) (connected bool, err error) {
	a.setState(StateConnecting)

	header := http.Header{}
	header.Set("User-Agent", a.opts.UserAgent)
	conn, _, err := a.opts.Dialer.DialContext(ctx, a.opts.URL, header)
	if err != nil {
		a.setState(StateDisconnected)
		return false, fmt.Errorf("failed to dial: %w", err)
	}

	a.mu.Lock()
	a.conn = conn
	a.state = StateConnected
	slug, joinErr := a.slug, a.joinErr
	a.mu.Unlock()
	a.emit(Notification{Kind: NotifyState, State: StateConnected})
	a.log.Info("✓ Connected")

	stop := make(chan struct{})
	defer func() {
		close(stop)
		conn.Close()
		a.mu.Lock()
		a.conn = nil
		a.state = StateDisconnected
		// Presence seen on this socket is stale once it is gone
		a.list.SetParticipants(nil)
		a.mu.Unlock()
		a.emit(Notification{Kind: NotifyState, State: StateDisconnected})
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
		}
	}()

	// A rejected join stays rejected across reconnects
	if slug != "" && joinErr == nil {
		if err := a.sendJoin(conn, slug); err != nil {
			return true, err
		}
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		a.handleFrame(ctx, frame)
	}
}

func (a *Agent) handleFrame(ctx context.Context, frame []byte) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		a.log.WithError(err).Debug("Ignoring malformed frame")
		return
	}

	switch env.Event {
	case models.EventJoinedList:
		var ack models.JoinedList
		if err := json.Unmarshal(env.Data, &ack); err != nil {
			a.log.WithError(err).Warn("⚠️  Bad joined-list payload")
			return
		}
		a.mu.Lock()
		a.state = StateJoined
		a.joinErr = nil
		a.list.ListID = ack.ListID
		a.list.SetParticipants(ack.Participants)
		slug := a.slug
		a.mu.Unlock()
		a.emit(Notification{Kind: NotifyState, State: StateJoined})
		a.log.WithFields(logrus.Fields{"list_id": ack.ListID, "list_slug": ack.ListSlug}).Info("✓ Joined list")
		a.refetch(ctx, slug)

	case models.EventError:
		var e models.ErrorEvent
		if err := json.Unmarshal(env.Data, &e); err != nil || e.Message == "" {
			a.log.WithError(err).Debug("Bad error payload")
			e.Message = unknownJoinError
		}
		a.mu.Lock()
		joinErr := &JoinError{Slug: a.slug, Message: e.Message}
		a.joinErr = joinErr
		if a.state == StateJoined {
			a.state = StateConnected
		}
		a.mu.Unlock()
		a.emit(Notification{Kind: NotifyError, Err: joinErr})
		a.log.WithError(joinErr).Warn("⚠️  Join rejected")

	case models.EventUpdate:
		var u models.ListUpdate
		if err := json.Unmarshal(env.Data, &u); err != nil {
			a.log.WithError(err).Debug("Ignoring malformed update")
			return
		}
		a.mu.Lock()
		if a.state != StateJoined {
			a.mu.Unlock()
			return
		}
		err := a.list.Apply(u)
		a.mu.Unlock()
		if err != nil {
			a.log.WithError(err).Debug("Update not applied")
			return
		}
		a.emit(Notification{Kind: NotifyUpdate, Update: &u})

	case models.EventUserJoined, models.EventUserLeft:
		var p models.PresenceEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return
		}
		joined := env.Event == models.EventUserJoined
		a.mu.Lock()
		if joined {
			a.list.AddParticipant(p.SessionID)
		} else {
			a.list.RemoveParticipant(p.SessionID)
		}
		a.mu.Unlock()
		a.emit(Notification{Kind: NotifyPresence, SessionID: p.SessionID, Joined: joined})
	}
}

// refetch loads the full list after a join. Frames queue on the socket while
// it runs and are applied on top afterwards.
func (a *Agent) refetch(ctx context.Context, slug string) {
	if a.opts.Fetcher == nil {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	full, err := a.opts.Fetcher.FetchList(fctx, slug)
	if err != nil {
		a.log.WithError(err).Warn("⚠️  Failed to fetch list state")
		a.emit(Notification{Kind: NotifyError, Err: err})
		return
	}

	a.mu.Lock()
	a.list.Load(full)
	a.mu.Unlock()
	a.emit(Notification{Kind: NotifySynced})
}

// Join (re)starts joining slug. It clears any earlier rejection; when not
// connected the join is sent once the socket is up.
func (a *Agent) Join(slug string) error {
	a.mu.Lock()
	if slug != a.slug {
		a.list = NewListState()
	}
	a.slug = slug
	a.joinErr = nil
	if a.state == StateJoined {
		a.state = StateConnected
	}
	conn := a.conn
	a.mu.Unlock()

	if conn == nil {
		return nil
	}
	return a.sendJoin(conn, slug)
}

func (a *Agent) sendJoin(conn *websocket.Conn, slug string) error {
	return a.write(conn, models.EventJoinList, models.JoinRequest{ListSlug: slug, SessionID: a.opts.SessionID})
}

func (a *Agent) write(conn *websocket.Conn, event string, payload any) error {
	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", event, err)
	}
	return nil
}

// EmitItemAdded applies a committed item locally and relays it to the room.
func (a *Agent) EmitItemAdded(item models.ListItem) error {
	return a.emitMutation(models.EventItemAdded, item)
}

func (a *Agent) EmitItemUpdated(item models.ListItem) error {
	return a.emitMutation(models.EventItemUpdated, item)
}

func (a *Agent) EmitItemDeleted(itemID uint) error {
	return a.emitMutation(models.EventItemDeleted, models.ItemDeleted{ItemID: itemID})
}

func (a *Agent) EmitItemsReordered(orders []models.ItemOrder) error {
	return a.emitMutation(models.EventItemsReordered, orders)
}

func (a *Agent) EmitListUpdated(list models.List) error {
	return a.emitMutation(models.EventListUpdated, list)
}

func (a *Agent) emitMutation(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", event, err)
	}

	a.mu.Lock()
	applyErr := a.list.Apply(models.ListUpdate{
		Type:      models.RelayEvents[event],
		Data:      data,
		Timestamp: models.NowMillis(),
	})
	state, conn := a.state, a.conn
	a.mu.Unlock()
	if applyErr != nil {
		return applyErr
	}

	switch {
	case conn == nil:
		return ErrNotConnected
	case state != StateJoined:
		return ErrNotJoined
	}
	return a.write(conn, event, json.RawMessage(data))
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.mu.Unlock()
	if changed {
		a.emit(Notification{Kind: NotifyState, State: s})
	}
}

// emit never blocks; a caller that stops reading misses notifications.
func (a *Agent) emit(n Notification) {
	select {
	case a.notify <- n:
	default:
	}
}

// Notifications streams changes for display.
func (a *Agent) Notifications() <-chan Notification {
	return a.notify
}

func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) Joined() bool {
	return a.State() == StateJoined
}

// JoinError returns the last join rejection, or nil.
func (a *Agent) JoinError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.joinErr
}

func (a *Agent) SessionID() string {
	return a.opts.SessionID
}

// Snapshot returns a copy of the local list state.
func (a *Agent) Snapshot() *ListState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.list.Clone()
}
