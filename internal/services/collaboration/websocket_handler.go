package collaboration

import (
	"net/http"
	"sync"
	"time"

	"listsync/internal/middleware"

	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: READ PUMP / WRITE PUMP

gorilla/websocket allows one concurrent reader and one concurrent writer per
connection. Each client therefore gets exactly two goroutines:
- readPump owns reads, turns frames into gateway events, and reports the
  disconnect when the socket dies
- writePump owns writes: queued frames plus a periodic ping

The gateway never writes to the socket itself; it only drops frames into the
client's buffered send queue, so a slow reader can't stall a room.
*/

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WebSocketHandler upgrades HTTP requests and attaches the sockets to the
// gateway.
type WebSocketHandler struct {
	gateway    *Gateway
	upgrader   websocket.Upgrader
	sendBuffer int
	log        *logrus.Entry
}

// NewWebSocketHandler builds the handler. allowedOrigin "*" accepts any
// browser origin; requests without an Origin header (non-browser clients)
// are always accepted.
func NewWebSocketHandler(gateway *Gateway, allowedOrigin string, sendBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		gateway:    gateway,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || origin == allowedOrigin
			},
		},
		log: logrus.WithField("component", "websocket"),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connID := ksuid.New().String()
	userAgent := r.Header.Get("User-Agent")

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect",
		attribute.String("conn.id", connID),
		attribute.String("http.user_agent", userAgent),
	)
	defer span.End()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.WithError(err).Warn("⚠️  Failed to upgrade WebSocket")
		middleware.AddSpanError(ctx, err)
		return
	}

	c := &client{
		id:      connID,
		conn:    conn,
		send:    make(chan []byte, h.sendBuffer),
		closed:  make(chan struct{}),
		gateway: h.gateway,
		log:     h.log.WithField("conn_id", connID),
	}

	h.gateway.Connect(c, userAgent)

	go c.writePump()
	go c.readPump()

	c.log.WithField("remote_addr", r.RemoteAddr).Info("✓ WebSocket connection established")
}

// client is the websocket-backed Peer.
type client struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	closed  chan struct{}
	once    sync.Once
	gateway *Gateway
	log     *logrus.Entry
}

func (c *client) ID() string {
	return c.id
}

// Deliver queues a frame for the write pump without blocking.
func (c *client) Deliver(frame []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the write pump, which closes the socket and with it the read
// pump. Safe to call more than once.
func (c *client) Close() {
	c.once.Do(func() { close(c.closed) })
}

func (c *client) readPump() {
	defer func() {
		c.gateway.Disconnect(c.id)
		c.Close()
		c.conn.Close()
		c.log.Info("WebSocket connection closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("⚠️  WebSocket read error")
			}
			return
		}

		if err := c.gateway.HandleFrame(c.id, frame); err != nil {
			c.log.WithError(err).Debug("Ignoring inbound frame")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			// One event per text frame; clients decode frames independently
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.WithError(err).Debug("WebSocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
