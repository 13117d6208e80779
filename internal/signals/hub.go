// Package signals pushes presentation events (such as a missing emergency
// contact list) to connected app clients over websockets.
package signals

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"healthmate/internal/logger"
	"healthmate/internal/metrics"
)

// Event kinds
const (
	KindContactsMissing  = "contacts.missing"
	KindReadingEvaluated = "reading.evaluated"
)

const (
	pingInterval = 25 * time.Second
	writeTimeout = 5 * time.Second
)

// Event is the JSON frame sent to clients
type Event struct {
	Kind   string    `json:"kind"`
	UserID string    `json:"user_id"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// Hub tracks websocket clients per user
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
	metrics.SignalClients.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	_, ok := set[c]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.SignalClients.Dec()
		_ = c.conn.Close()
	}
}

// Clients returns how many connections a user has open
func (h *Hub) Clients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Broadcast sends an event to every connection of the user
func (h *Hub) Broadcast(userID string, ev Event) {
	ev.UserID = userID
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		log := logger.WithComponent("signal_hub")
		log.Error().Err(err).Str("kind", ev.Kind).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			h.unregister(c)
		}
	}
}

// NoContacts tells the app to prompt the user for emergency contacts
func (h *Hub) NoContacts(userID string) {
	h.Broadcast(userID, Event{Kind: KindContactsMissing})
}

// ReadingEvaluated forwards an evaluation result to the app
func (h *Hub) ReadingEvaluated(userID string, data any) {
	h.Broadcast(userID, Event{Kind: KindReadingEvaluated, Data: data})
}

// ServeHTTP upgrades GET /ws?user_id=... and keeps the connection registered until it closes
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{userID: userID, conn: conn}
	h.register(c)

	done := make(chan struct{})
	defer close(done)

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					h.unregister(c)
					return
				}
			}
		}
	}()

	// read loop ends on client close or error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.unregister(c)
			return
		}
	}
}
