package hub

import (
	"encoding/json"
	"sync"

	"gameshelf/backend/internal/logging"
)

// Event types published on chat threads.
const (
	EventMessage = "message"
)

// Event represents a real-time event to be sent to clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Client represents a single client connection (a user watching a thread).
// The SSE handler drains it until the hub closes it.
type Client chan []byte

// NewClient returns a buffered client channel.
func NewClient() Client {
	return make(Client, 16)
}

// Hub fans chat events out to the clients subscribed to each thread.
type Hub struct {
	threads map[uint]map[Client]bool
	mu      sync.RWMutex
}

// GlobalHub is the singleton instance of our Hub.
var GlobalHub = NewHub()

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		threads: make(map[uint]map[Client]bool),
	}
}

// Subscribe adds a client to a thread.
func (h *Hub) Subscribe(threadID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.threads[threadID]; !ok {
		h.threads[threadID] = make(map[Client]bool)
	}
	h.threads[threadID][client] = true
}

// Unsubscribe removes a client from a thread and closes its channel.
func (h *Hub) Unsubscribe(threadID uint, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.threads[threadID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client)
			if len(clients) == 0 {
				delete(h.threads, threadID)
			}
		}
	}
}

// CloseThread disconnects every client of a thread, e.g. when the friendship
// behind it is removed.
func (h *Hub) CloseThread(threadID uint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.threads[threadID] {
		close(client)
	}
	delete(h.threads, threadID)
}

// Subscribers returns the number of clients on a thread.
func (h *Hub) Subscribers(threadID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.threads[threadID])
}

// Broadcast sends an event to all clients of a thread. Slow clients whose
// buffer is full miss the event rather than blocking the sender.
func (h *Hub) Broadcast(threadID uint, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.threads[threadID]
	if !ok {
		return
	}

	messageBytes, err := json.Marshal(event)
	if err != nil {
		logging.Logger().Error().Err(err).Uint("thread_id", threadID).Msg("marshal hub event")
		return
	}

	for client := range clients {
		select {
		case client <- messageBytes:
		default:
			logging.Logger().Warn().Uint("thread_id", threadID).Msg("dropping event for slow client")
		}
	}
}
