package sse

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Event represents an SSE event to be sent to subscribers
type Event struct {
	ID   string
	Name string
	Data interface{}
}

// Publisher is the write side of the hub.
type Publisher interface {
	Publish(key string, name string, data interface{})
}

// Hub fans events out to subscribers grouped by key. The attendance stream
// keys subscribers by employee ID.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	buffer      int
	dropped     atomic.Int64
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subscribers: make(map[string]map[chan Event]struct{}),
		buffer:      buffer,
	}
}

// Subscribe registers a subscriber for key and returns its channel and an
// idempotent cleanup function that closes the channel.
func (h *Hub) Subscribe(key string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[chan Event]struct{})
	}
	h.subscribers[key][ch] = struct{}{}

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers[key], ch)
			close(ch)
			if len(h.subscribers[key]) == 0 {
				delete(h.subscribers, key)
			}
		})
	}

	return ch, cleanup
}

// Publish sends an event to every subscriber of key. A subscriber whose
// buffer is full misses the event; Publish never blocks.
func (h *Hub) Publish(key string, name string, data interface{}) {
	event := Event{
		ID:   uuid.NewString(),
		Name: name,
		Data: data,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[key] {
		select {
		case ch <- event:
		default:
			h.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers for key
func (h *Hub) SubscriberCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[key])
}

// TotalSubscribers returns the total number of active subscribers across all keys
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subscribers {
		total += len(subs)
	}
	return total
}

// Dropped returns how many events were skipped because a subscriber was slow.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
