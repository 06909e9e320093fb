// Package gateway pushes cycle events to WebSocket dashboards.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"trading-bands/internal/model"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// envelope is the wire frame sent to clients.
type envelope struct {
	Type    string           `json:"type"`
	Seq     int64            `json:"seq"`
	TS      time.Time        `json:"ts"`
	Initial bool             `json:"initial,omitempty"`
	Data    model.CycleEvent `json:"data"`
}

// Hub tracks WebSocket clients and fans cycle events out to them.
// It keeps the latest event per pair so new clients get a snapshot.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]model.CycleEvent
	seq     int64

	now func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]model.CycleEvent),
		now:     time.Now,
	}
}

// Publish implements model.EventPublisher. Slow clients drop frames rather
// than stalling the trading loop.
func (h *Hub) Publish(_ context.Context, ev model.CycleEvent) error {
	h.mu.Lock()
	h.latest[ev.Pair] = ev
	h.seq++
	env := envelope{Type: "cycle", Seq: h.seq, TS: h.now().UTC(), Data: ev}
	h.mu.Unlock()

	buf, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.Pair) {
			continue
		}
		select {
		case c.send <- buf:
		default:
		}
	}
	return nil
}

// Latest returns the most recent event per pair, sorted by pair.
func (h *Hub) Latest() []model.CycleEvent {
	h.mu.RLock()
	out := make([]model.CycleEvent, 0, len(h.latest))
	for _, ev := range h.latest {
		out = append(out, ev)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
// An optional ?pairs=XBT/USD,ETH/USD query restricts the stream.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade: %v", err)
		return
	}
	h.register(conn, parsePairs(r.URL.Query().Get("pairs")))
}

func (h *Hub) register(conn *websocket.Conn, pairs map[string]bool) {
	c := &Client{
		conn:  conn,
		send:  make(chan []byte, 256),
		hub:   h,
		pairs: pairs,
	}
	c.sendInitialState()

	h.mu.Lock()
	h.clients[c] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go c.writePump()
	go c.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
