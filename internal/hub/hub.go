package hub

import (
	"sync"
	"time"

	"kimp/internal/logger"
)

// Event is one broadcast message.
type Event struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Subscriber receives broadcast events. A Send error marks the subscriber
// dead and removes it from the registry.
type Subscriber interface {
	Send(Event) error
}

// Hub is a concurrency-safe subscriber registry. Delivery failure to one
// subscriber removes it without affecting delivery to the rest.
type Hub struct {
	mu   sync.Mutex
	subs map[Subscriber]struct{}
}

func New() *Hub {
	return &Hub{subs: make(map[Subscriber]struct{})}
}

func (h *Hub) Subscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[s] = struct{}{}
}

func (h *Hub) Unsubscribe(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, s)
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Broadcast delivers the event to every subscriber. Failing subscribers
// are dropped after the sweep completes.
func (h *Hub) Broadcast(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.subs))
	for s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	var dead []Subscriber
	for _, s := range targets {
		if err := s.Send(evt); err != nil {
			logger.Warnf("dropping subscriber after send failure: %v", err)
			dead = append(dead, s)
		}
	}
	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, s := range dead {
		delete(h.subs, s)
	}
	h.mu.Unlock()
}
