// Package ws bridges the signal bus to WebSocket clients so frontends can
// watch pool and resolution events live.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Pablito-AI/playmark-mvp/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds incoming frames; clients only send filter
	// updates.
	maxMessageSize = 1024

	// sendBufferSize is the per-client outgoing buffer.
	sendBufferSize = 64
)

// eventChannels are the bus channels the hub forwards to clients.
var eventChannels = []string{"pools"}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the CORS layer in front.
		return true
	},
}

// client is one WebSocket connection.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	markets map[string]bool // empty means all markets
	mu      sync.RWMutex
}

// filterMsg is the frame a client sends to narrow the event stream to
// specific markets. An empty list resets to all markets.
type filterMsg struct {
	Markets []string `json:"markets"`
}

// busEvent is the subset of the bus payload the hub needs for routing.
type busEvent struct {
	MarketID string `json:"market_id"`
}

// Hub fans signal-bus events out to connected WebSocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a Hub reading from the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger,
		startedAt:  time.Now().UTC(),
	}
}

// Run drives the hub until ctx is cancelled. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	go h.pump(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			var evt busEvent
			_ = json.Unmarshal(msg, &evt)

			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(evt.MarketID) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					// Slow client, drop the message.
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pump subscribes to the bus and feeds events into the broadcast loop.
func (h *Hub) pump(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, eventChannels...)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed")
				return
			}
			h.broadcast <- data
		}
	}
}

// HandleWS upgrades the request and registers the client.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		markets: make(map[string]bool),
	}

	h.register <- c
	c.sendWelcome()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wants reports whether the client's market filter matches the event. An
// empty filter matches everything, as do events without a market.
func (c *client) wants(marketID string) bool {
	if marketID == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.markets) == 0 || c.markets[marketID]
}

// readPump consumes client frames, which carry only market filter updates.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var f filterMsg
		if err := json.Unmarshal(message, &f); err != nil {
			continue
		}
		c.mu.Lock()
		c.markets = make(map[string]bool, len(f.Markets))
		for _, id := range f.Markets {
			c.markets[id] = true
		}
		c.mu.Unlock()
	}
}

// sendWelcome pushes a connection envelope so clients can mark the stream
// healthy before the first event arrives.
func (c *client) sendWelcome() {
	msg, err := json.Marshal(map[string]any{
		"event":          "connected",
		"uptime_seconds": int64(time.Since(c.hub.startedAt).Seconds()),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump sends hub messages and keepalive pings to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
