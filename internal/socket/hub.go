// server/internal/socket/hub.go
package socket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"relief-dispatch-api-server/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait = 5 * time.Second
	// Messages queued per client before it is considered stalled and dropped.
	sendBuffer = 32
)

// ErrClientDropped is returned by Send when the user's queue was full and
// the connection has been closed.
var ErrClientDropped = errors.New("websocket client dropped")

// Message is the envelope pushed to staff clients.
type Message struct {
	Event string    `json:"event"`
	Data  any       `json:"data"`
	At    time.Time `json:"at"`
}

// client owns one connection. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// enqueue never blocks. A client whose queue is full is closed.
func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.close()
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub tracks connected staff clients, one connection per user id.
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*client),
	}
}

// Register adds a connection. An older connection of the same user is closed.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	old := h.clients[userID]
	h.clients[userID] = newClient(conn)
	h.mu.Unlock()

	if old != nil {
		old.close()
	}
	logger.L().Info("ws_client_registered", "user_id", userID)
}

// Unregister removes the user's connection if it is still conn.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	c, ok := h.clients[userID]
	if ok && c.conn == conn {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	if ok && c.conn == conn {
		c.close()
		logger.L().Info("ws_client_unregistered", "user_id", userID)
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues one event for one user. An offline user is not an error.
func (h *Hub) Send(userID, event string, data any) error {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		logger.L().Debug("ws_client_not_found", "user_id", userID)
		return nil
	}
	payload, err := json.Marshal(Message{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if !c.enqueue(payload) {
		logger.L().Warn("ws_client_dropped", "user_id", userID, "event", event)
		return ErrClientDropped
	}
	return nil
}

// Broadcast queues one event for every connected user and returns without
// waiting for delivery.
func (h *Hub) Broadcast(event string, data any) {
	payload, err := json.Marshal(Message{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		logger.L().Error("ws_encode_failed", "event", event, "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		if !c.enqueue(payload) {
			logger.L().Warn("ws_client_dropped", "user_id", id, "event", event)
		}
	}
}
