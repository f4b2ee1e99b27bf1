// Package events streams finished deletions to WebSocket subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"safe-delete/internal/deletion"
	"safe-delete/internal/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

var (
	errHubStopped  = errors.New("event hub stopped")
	errBacklogFull = errors.New("event backlog full, event dropped")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Message is the JSON document sent for every finished deletion.
type Message struct {
	Type       string    `json:"type"`
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action"`
	Path       string    `json:"path"`
	ObjectType string    `json:"object_type"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// NewMessage converts a deletion event to its wire form.
func NewMessage(ev deletion.Event) Message {
	return Message{
		Type:       "deletion",
		RequestID:  ev.RequestID,
		Timestamp:  ev.StartedAt,
		Action:     ev.Action(),
		Path:       ev.Request.Path,
		ObjectType: ev.Request.ObjectType(),
		Kind:       ev.Outcome.Kind.String(),
		Message:    ev.Outcome.Message,
		DurationMS: ev.Duration.Milliseconds(),
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active WebSocket connections
type Hub struct {
	logger     *slog.Logger
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	count      atomic.Int64
}

// NewHub creates a hub. Nothing is delivered until Run is started.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, sendBuffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's main loop. It returns when ctx is done, after closing
// every client connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			h.logger.Info("event subscriber connected", "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Info("event subscriber disconnected", "clients", len(h.clients))
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// slow subscriber
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	if metrics.EventClients != nil {
		metrics.EventClients.Set(float64(len(h.clients)))
	}
}

// Clients returns the number of registered subscribers.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// DeletionFinished queues the event for every subscriber. It never blocks;
// when the backlog is full the event is dropped and an error returned.
// It implements deletion.Observer.
func (h *Hub) DeletionFinished(ev deletion.Event) error {
	data, err := json.Marshal(NewMessage(ev))
	if err != nil {
		return err
	}

	select {
	case <-h.done:
		return errHubStopped
	default:
	}

	select {
	case h.broadcast <- data:
		return nil
	default:
		return errBacklogFull
	}
}

// Handler upgrades the request and subscribes the connection.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
		select {
		case h.register <- c:
		case <-h.done:
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump()
	}
}

// readPump discards inbound frames and keeps the read deadline alive.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
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
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
