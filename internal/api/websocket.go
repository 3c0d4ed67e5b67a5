package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/webthing-core/internal/infrastructure/config"
	"github.com/nerrad567/webthing-core/internal/infrastructure/logging"
)

const (
	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// LiveHandler receives the lifecycle and inbound messages of every
// connection. *publisher.Publisher implements it.
type LiveHandler interface {
	Connected(connID, deviceID string) error
	Disconnected(connID string)
	HandleMessage(connID string, raw []byte)
}

// Hub tracks open WebSocket connections per thing and delivers the
// publisher's outbound messages to them.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	live    LiveHandler
	onCount func(n int)

	mu      sync.RWMutex
	clients map[string]*WSClient
}

// WSClient is one WebSocket connection bound to a thing.
type WSClient struct {
	id       string
	deviceID string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
}

// upgrader accepts any origin; Host validation runs before the upgrade.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// NewHub creates a hub forwarding connection activity to live.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger, live LiveHandler) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		live:    live,
		clients: make(map[string]*WSClient),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client and announces it to the live handler. The
// client is not kept if the handler rejects it.
func (h *Hub) Register(client *WSClient) error {
	h.mu.Lock()
	h.clients[client.id] = client
	n := len(h.clients)
	h.mu.Unlock()

	if err := h.live.Connected(client.id, client.deviceID); err != nil {
		h.mu.Lock()
		delete(h.clients, client.id)
		n = len(h.clients)
		h.mu.Unlock()
		h.countChanged(n)
		return err
	}
	h.countChanged(n)
	h.logger.Debug("websocket client connected", "conn", client.id, "thing", client.deviceID, "clients", n)
	return nil
}

// Unregister removes a client. Only the caller that removes it from the
// map closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client.id]
	delete(h.clients, client.id)
	n := len(h.clients)
	h.mu.Unlock()

	if !existed {
		return
	}
	close(client.send)
	h.live.Disconnected(client.id)
	h.countChanged(n)
	h.logger.Debug("websocket client disconnected", "conn", client.id, "clients", n)
}

// BroadcastDevice queues msg on every connection of deviceID.
func (h *Hub) BroadcastDevice(deviceID string, msg []byte) {
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		if c.deviceID == deviceID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(msg)
	}
}

// SendTo queues msg on one connection. It reports false if the
// connection is gone or its buffer is full.
func (h *Hub) SendTo(connID string, msg []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.trySend(msg)
}

// Connections lists the connection ids open on deviceID, sorted.
func (h *Hub) Connections(deviceID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var ids []string
	for id, c := range h.clients {
		if c.deviceID == deviceID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) countChanged(n int) {
	if h.onCount != nil {
		h.onCount(n)
	}
}

// closeAll disconnects all clients so their pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// handleWebSocket upgrades a /things/{id} request into a live connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, thingID string) {
	if err := s.router.CheckHost(r.Host); err != nil {
		writeForbidden(w, "host not allowed")
		return
	}
	if _, ok := s.router.Device(thingID); !ok {
		writeNotFound(w, "thing not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:       uuid.NewString(),
		deviceID: thingID,
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, wsSendBufferSize),
	}
	if err := s.hub.Register(client); err != nil {
		s.logger.Warn("websocket registration rejected", "thing", thingID, "error", err)
		conn.Close()
		return
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// readPump forwards inbound text frames to the live handler.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval, pongWait := wsTimings(cfg)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "conn", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "conn", c.id, "error", err)
			}
			return
		}
		// Any client message keeps the connection alive.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.hub.live.HandleMessage(c.id, message)
	}
}

// writePump writes queued messages and keepalive pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval, pongWait := wsTimings(cfg)
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsTimings returns the ping interval and pong wait, defaulting
// non-positive settings.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping = time.Duration(cfg.PingInterval) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	pong = time.Duration(cfg.PongTimeout) * time.Second
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

// trySend queues data without blocking. It absorbs the send-on-closed
// panic of a client disconnecting mid-broadcast.
func (c *WSClient) trySend(data []byte) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		c.hub.logger.Debug("websocket send buffer full", "conn", c.id)
		return false
	}
}
