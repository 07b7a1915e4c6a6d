// Package transport is the client-facing edge: a gorilla/websocket hub
// generalized from a leaderboard-subscription model to per-player
// session-tag addressing and per-match broadcast, carrying the
// transport events of spec §6.
package transport

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub maintains every connected client, addressable by its session tag,
// and fans out sends to one tag or to a list of tags (a match's
// participants). It never blocks the core loop: a send to a full or
// absent client is dropped with a warning.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client // sessionTag -> client

	register   chan *Client
	unregister chan *Client

	logger *slog.Logger
	done   chan struct{}
}

// NewHub creates a Hub. Call Run in its own goroutine to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run processes register/unregister requests until Stop is called.
func (h *Hub) Run() {
	h.logger.Info("websocket hub started")
	for {
		select {
		case <-h.done:
			h.logger.Info("websocket hub stopping")
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.sessionTag] = c
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.clients[c.sessionTag]; ok && existing == c {
				delete(h.clients, c.sessionTag)
				close(c.send)
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub's loop down.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a client under its session tag.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// SendToTag delivers msg to the client owning tag, if connected. A
// missing or backed-up client is a silent, logged drop — the Event
// Fan-Out never blocks the core loop on transport delivery.
func (h *Hub) SendToTag(tag string, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal server message", "error", err)
		return
	}

	h.mu.RLock()
	client, ok := h.clients[tag]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("client send buffer full, dropping message", "session_tag", tag)
	}
}

// SendToTags delivers msg to every tag in tags, e.g. a match's
// participants.
func (h *Hub) SendToTags(tags []string, msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal server message", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, tag := range tags {
		client, ok := h.clients[tag]
		if !ok {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full, dropping message", "session_tag", tag)
		}
	}
}

// TotalConnections reports how many clients are currently registered,
// surfaced by the /api/v1/ws/stats collaborator endpoint.
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
