package feed

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vodeneev/surebet/internal/pkg/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512

	sendBufferSize = 256
)

// Client is one websocket subscriber.
type Client struct {
	ID    string
	conn  *websocket.Conn
	send  chan Message
	hub   *Hub
	sport string
}

func newClient(id string, conn *websocket.Conn, hub *Hub, sport string) *Client {
	return &Client{
		ID:    id,
		conn:  conn,
		send:  make(chan Message, sendBufferSize),
		hub:   hub,
		sport: sport,
	}
}

// wants reports whether the client's sport filter accepts arb.
func (c *Client) wants(arb models.Arbitrage) bool {
	return c.sport == "" || strings.EqualFold(c.sport, arb.Sport)
}

// trySend queues msg without blocking. Returns false if the buffer is full.
func (c *Client) trySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump discards inbound frames and keeps the read deadline moving on pongs.
// It unregisters the client once the connection breaks.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("Feed: unexpected close", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// writePump writes queued messages and pings until the hub closes send.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				slog.Warn("Feed: write failed", "client_id", c.ID, "error", err)
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
