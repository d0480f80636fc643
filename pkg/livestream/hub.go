// Package livestream fans ingested events out to connected observers.
// Delivery is fire-and-forget: nothing is persisted, nothing is
// replayed, and a slow observer can never block a publisher.
package livestream

import (
	"sync"
	"time"

	"alertledger/pkg/metrics"
)

// Event is the ephemeral superset of an ingested alert pushed to live
// observers. It exists only for the duration of delivery.
type Event struct {
	AlertID       string    `json:"alertId"`
	SourceType    string    `json:"sourceType"`
	LogData       string    `json:"logData"`
	Severity      string    `json:"severity,omitempty"`
	Suspicious    bool      `json:"isSuspicious"`
	ConfidencePct int       `json:"confidencePct"`
	ModelVersion  string    `json:"modelVersion"`
	Timestamp     time.Time `json:"timestamp"`
}

// Subscription is one observer's feed. Events arrive on C in publish
// order until Close or until the hub drops the subscriber.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Close detaches the subscription from the hub.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub is the in-process broadcast channel. Publish never blocks: events
// for a subscriber whose buffer is full are dropped and counted.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	bufSize int
}

// NewHub creates a hub whose subscribers buffer up to bufSize events.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{subs: make(map[*Subscription]struct{}), bufSize: bufSize}
}

// Subscribe attaches a new observer. Events published before the call
// are not replayed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.bufSize)
	sub := &Subscription{C: ch, ch: ch, hub: h}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.LiveSubscribers.Inc()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, present := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if present {
		metrics.LiveSubscribers.Dec()
		close(sub.ch)
	}
}

// Publish delivers evt to every current subscriber. Sends are
// non-blocking under the read lock, so per-subscriber order follows
// publish order and a lagging subscriber only loses its own events.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			metrics.BroadcastDropped.Inc()
		}
	}
}

// SubscriberCount reports the current number of observers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
