// Package realtime broadcasts hub events to websocket subscribers. Channels
// are plain names: "conversation.<id>" for per-thread updates,
// "admin.notifications" for the operator dashboard, and "webchat.<session>"
// for visitor widgets.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// AdminChannel receives a summary event for every new incoming message.
const AdminChannel = "admin.notifications"

// ConversationChannel returns the per-conversation channel name.
func ConversationChannel(conversationID string) string {
	return "conversation." + conversationID
}

// Hub manages active websocket connections keyed by channel name. Delivery
// is best-effort and at-most-once: a subscriber that is not connected when
// an event fires simply misses it.
type Hub struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	conns   map[string]map[*websocket.Conn]struct{}
	writers map[*websocket.Conn]*sync.Mutex
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		logger:  log.With(slog.String("service", "realtime")),
		conns:   make(map[string]map[*websocket.Conn]struct{}),
		writers: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// Subscribe attaches a connection to the given channels.
func (h *Hub) Subscribe(conn *websocket.Conn, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range channels {
		if name == "" {
			continue
		}
		if h.conns[name] == nil {
			h.conns[name] = make(map[*websocket.Conn]struct{})
		}
		h.conns[name][conn] = struct{}{}
		if h.writers[conn] == nil {
			h.writers[conn] = &sync.Mutex{}
		}
	}
}

// Unsubscribe detaches a connection from every channel it joined.
func (h *Hub) Unsubscribe(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, conns := range h.conns {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, name)
		}
	}
	delete(h.writers, conn)
}

// Publish sends the payload to every subscriber of the channel. Connections
// that fail to write are closed; removal happens on their read-loop exit.
// Writes are serialized per connection: gorilla/websocket allows at most one
// concurrent writer, and publishers run on independent goroutines.
func (h *Hub) Publish(name string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns, ok := h.conns[name]
	if !ok {
		return
	}
	event := map[string]any{
		"channel": name,
		"payload": payload,
	}
	for conn := range conns {
		if err := h.write(conn, event); err != nil {
			h.logger.Debug("realtime write failed, closing connection",
				slog.String("channel", name), slog.String("error", err.Error()))
			conn.Close()
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, event map[string]any) error {
	w := h.writers[conn]
	if w == nil {
		return conn.WriteJSON(event)
	}
	w.Lock()
	defer w.Unlock()
	return conn.WriteJSON(event)
}

// SubscriberCount reports how many connections listen on the channel.
func (h *Hub) SubscriberCount(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[name])
}
