// Package feed streams surebets found by the calculator to websocket subscribers.
package feed

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Vodeneev/surebet/internal/pkg/models"
)

const broadcastBufferSize = 1000

// Message types sent to subscribers.
const (
	MessageTypeHello   = "hello"
	MessageTypeSurebet = "surebet"
)

// Message is the JSON frame written to subscribers.
type Message struct {
	Type      string            `json:"type"`
	ClientID  string            `json:"client_id,omitempty"`
	Surebet   *models.Arbitrage `json:"surebet,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Hub maintains the set of active clients and broadcasts surebets to them
type Hub struct {
	clients   map[*Client]bool
	clientsMu sync.RWMutex

	broadcast  chan models.Arbitrage
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	upgrader websocket.Upgrader

	totalConnections atomic.Int64
	totalMessages    atomic.Int64
}

// NewHub builds a hub that accepts websocket handshakes from allowedOrigins.
// "*" allows any origin; an empty list keeps gorilla's same-host check.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients:    make(map[*Client]bool),
		broadcast:  make(chan models.Arbitrage, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, after
// closing every client connection.
func (h *Hub) Run(ctx context.Context) error {
	slog.Info("Feed: hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case arb := <-h.broadcast:
			h.broadcastSurebet(arb)
		}
	}
}

// Publish queues a surebet for broadcast without blocking the caller.
func (h *Hub) Publish(arb models.Arbitrage) {
	select {
	case h.broadcast <- arb:
	default:
		slog.Warn("Feed: broadcast buffer full, dropping surebet", "match", arb.MatchName)
	}
}

// Register adds a client to the hub. It reports false once the hub is stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Metrics returns hub counters for the status endpoint.
func (h *Hub) Metrics() map[string]any {
	return map[string]any{
		"active_clients":     h.ClientCount(),
		"total_connections":  h.totalConnections.Load(),
		"total_messages":     h.totalMessages.Load(),
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

// ServeWS upgrades the request to a websocket subscription. An optional
// ?sport= query limits the feed to one sport.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed: websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.NewString(), conn, h, strings.ToLower(strings.TrimSpace(r.URL.Query().Get("sport"))))
	c.trySend(Message{Type: MessageTypeHello, ClientID: c.ID, Timestamp: time.Now().UTC()})
	if !h.Register(c) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// originChecker returns nil for an empty list so the upgrader falls back to
// its same-host check. Requests without an Origin header are not from a
// browser and are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[o] = true
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.totalConnections.Add(1)
	slog.Info("Feed: client connected", "client_id", c.ID, "sport", c.sport, "clients", total)
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		slog.Info("Feed: client disconnected", "client_id", c.ID, "clients", len(h.clients))
	}
}

// broadcastSurebet sends a surebet to every client whose filter matches.
// Clients with a full buffer are too slow and get disconnected.
func (h *Hub) broadcastSurebet(arb models.Arbitrage) {
	msg := Message{Type: MessageTypeSurebet, Surebet: &arb, Timestamp: time.Now().UTC()}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	sent := 0
	for c := range h.clients {
		if !c.wants(arb) {
			continue
		}
		if c.trySend(msg) {
			sent++
			continue
		}
		slog.Warn("Feed: client buffer full, disconnecting", "client_id", c.ID)
		delete(h.clients, c)
		close(c.send)
	}
	if sent > 0 {
		h.totalMessages.Add(1)
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	slog.Info("Feed: shutting down hub", "clients", len(h.clients))
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}
