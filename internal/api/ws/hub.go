// Package ws pushes reflection-session and scheduler-metric events to
// connected monitoring clients over WebSocket, adapted from the teacher's
// web/handlers/websocket.go hub-and-client pattern.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// Event is one lifecycle notification broadcast to every connected client:
// a reflection session starting/completing/failing, or a tier migration.
type Event struct {
	Type      string    `json:"type"`
	MemoryID  string    `json:"memory_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Tier      string    `json:"tier,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type clientInterface interface {
	sendChannel() chan []byte
	close()
}

// client wraps one accepted WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *client) sendChannel() chan []byte { return c.send }

func (c *client) close() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}
}

// Hub fans Event broadcasts out to every connected client, matching the
// teacher's WebSocketHub register/unregister/broadcast channel loop.
type Hub struct {
	clients    map[clientInterface]bool
	broadcast  chan any
	register   chan clientInterface
	unregister chan clientInterface
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc

	allowedOrigins map[string]bool
}

// NewHub builds a Hub. allowedOrigins lists the Origin header values
// permitted to upgrade; an empty Origin header (non-browser clients) is
// always allowed.
func NewHub(allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		clients:        make(map[clientInterface]bool),
		broadcast:      make(chan any, 256),
		register:       make(chan clientInterface),
		unregister:     make(chan clientInterface),
		ctx:            ctx,
		cancel:         cancel,
		allowedOrigins: origins,
	}
}

// Run processes register/unregister/broadcast events until Stop is called.
// Callers must run it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.sendChannel())
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			data, err := json.Marshal(message)
			if err != nil {
				log.Printf("ws: failed to marshal broadcast: %v", err)
				h.mu.Unlock()
				continue
			}
			for c := range h.clients {
				select {
				case c.sendChannel() <- data:
				default:
					close(c.sendChannel())
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			return
		}
	}
}

// Stop closes every connected client and stops the hub's loop.
func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		close(c.sendChannel())
		c.close()
	}
	h.clients = make(map[clientInterface]bool)
	h.mu.Unlock()
}

// Broadcast enqueues an Event for delivery to every connected client. It
// never blocks: a full broadcast buffer drops the event rather than stall
// the caller (a reflection session completing should never wait on a slow
// monitoring client).
func (h *Hub) Broadcast(evt Event) {
	select {
	case h.broadcast <- evt:
	default:
		log.Printf("ws: broadcast buffer full, dropping %s event", evt.Type)
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and registers
// the resulting client with the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var acceptOpts *websocket.AcceptOptions
	if origin := r.Header.Get("Origin"); origin != "" {
		if len(h.allowedOrigins) > 0 && !h.allowedOrigins[origin] {
			http.Error(w, "forbidden: invalid origin", http.StatusForbidden)
			return
		}
	}

	conn, err := websocket.Accept(w, r, acceptOpts)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for message := range c.send {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.conn.Write(ctx, websocket.MessageText, message)
		cancel()
		if err != nil {
			return
		}
	}
}

// readPump drains incoming frames to detect client disconnects; this hub
// is push-only and does not interpret any client-sent message.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		if _, _, err := c.conn.Read(context.Background()); err != nil {
			return
		}
	}
}
