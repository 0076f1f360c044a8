// Package websocket pushes navigation decisions to connected UI shells
package websocket

import (
	"encoding/json"
	"sync"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  logger.Logger
}

func NewHub(l logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  l,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes client and closes its send channel. Safe to call twice
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast msg as JSON to every client. Slow clients with full buffer miss the message
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("websocket client buffer full, message dropped")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
