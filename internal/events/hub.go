package events

import (
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 16

// Hub fans events out to SSE subscribers. A subscriber whose buffer is full
// loses the event; the pipeline never waits on a reader.
type Hub struct {
	mu      sync.Mutex
	clients map[chan string]struct{}
	dropped atomic.Int64
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan string]struct{})}
}

func (h *Hub) Subscribe() chan string {
	ch := make(chan string, subscriberBuffer)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe closes ch. Calling it twice is a no-op.
func (h *Hub) Unsubscribe(ch chan string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; !ok {
		return
	}
	delete(h.clients, ch)
	close(ch)
}

// Publish is safe on a nil Hub so the CLI can run without an HTTP surface.
func (h *Hub) Publish(evt string) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- evt:
		default:
			h.dropped.Add(1)
		}
	}
}

// Emit encodes data as a versioned event of type typ and publishes it.
func (h *Hub) Emit(typ string, data any) {
	if h == nil {
		return
	}
	h.Publish(MakeEvent("", typ, 1, data))
}

// Subscribers reports the number of connected readers.
func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped counts events lost to full subscriber buffers.
func (h *Hub) Dropped() int64 {
	if h == nil {
		return 0
	}
	return h.dropped.Load()
}
