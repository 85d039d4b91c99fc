// Package realtime fans activity log entries out to live subscribers.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/JonMunkholm/completions/internal/core"
)

const (
	subscriberBuffer = 32
	seenLimit        = 1024
)

// Hub delivers each activity entry once to every subscriber. Entries
// arrive both from the local service and from database notifications, so
// it remembers recent IDs and drops repeats.
type Hub struct {
	mu   sync.Mutex
	subs map[chan core.ActivityLogEntry]struct{}

	seen  map[string]struct{}
	order []string
}

var _ core.ActivityPublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan core.ActivityLogEntry]struct{}),
		seen: make(map[string]struct{}),
	}
}

// Publish sends e to every subscriber without blocking. A subscriber whose
// buffer is full misses the entry.
func (h *Hub) Publish(e core.ActivityLogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.ID != "" {
		if _, dup := h.seen[e.ID]; dup {
			return
		}
		h.remember(e.ID)
	}

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			slog.Warn("activity subscriber lagging, entry dropped", "entry_id", e.ID)
		}
	}
}

func (h *Hub) remember(id string) {
	h.seen[id] = struct{}{}
	h.order = append(h.order, id)
	if len(h.order) > seenLimit {
		delete(h.seen, h.order[0])
		h.order = h.order[1:]
	}
}

// Subscribe registers a new subscriber. The returned cancel func
// unregisters it and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe() (<-chan core.ActivityLogEntry, func()) {
	ch := make(chan core.ActivityLogEntry, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
