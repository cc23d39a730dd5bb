package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSendTimeout bounds one delivery to one subscriber
const DefaultSendTimeout = 5 * time.Second

// Subscriber receives broadcast events. Send returning an error evicts the
// subscriber from the hub. Send must return once ctx is done.
type Subscriber interface {
	ID() string
	Send(ctx context.Context, event Event) error
}

// Hub keeps the set of live subscribers and delivers every event to each of them
type Hub struct {
	subscribers map[string]Subscriber
	mu          sync.RWMutex
	sendTimeout time.Duration
	log         zerolog.Logger
}

// NewHub creates an empty hub
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]Subscriber),
		sendTimeout: DefaultSendTimeout,
		log:         log.With().Str("component", "event_hub").Logger(),
	}
}

// Subscribe registers a subscriber. Subscribing twice is a no-op.
func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscribers[sub.ID()]; exists {
		return
	}
	h.subscribers[sub.ID()] = sub
	h.log.Debug().
		Str("subscriber", sub.ID()).
		Int("total", len(h.subscribers)).
		Msg("Subscriber added")
}

// Unsubscribe removes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unsubscribe(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.subscribers[sub.ID()]; !exists {
		return
	}
	delete(h.subscribers, sub.ID())
	h.log.Debug().
		Str("subscriber", sub.ID()).
		Int("total", len(h.subscribers)).
		Msg("Subscriber removed")
}

// Count returns the number of live subscribers
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast delivers the event to every current subscriber concurrently and
// returns how many deliveries succeeded. Each send gets its own timeout, so a
// slow subscriber neither delays the others nor holds the publisher past
// sendTimeout. A failing subscriber is removed; the rest still receive the
// event.
func (h *Hub) Broadcast(ctx context.Context, event Event) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		resultMu  sync.Mutex
		delivered int
		failed    []Subscriber
	)
	for _, sub := range targets {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()

			sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
			err := sub.Send(sendCtx, event)
			cancel()

			resultMu.Lock()
			defer resultMu.Unlock()
			if err != nil {
				h.log.Warn().
					Err(err).
					Str("subscriber", sub.ID()).
					Str("event", string(event.Type)).
					Msg("Dropping subscriber after failed send")
				failed = append(failed, sub)
				return
			}
			delivered++
		}(sub)
	}
	wg.Wait()

	if len(failed) > 0 {
		h.mu.Lock()
		for _, sub := range failed {
			// Only evict the exact instance that failed
			if current, ok := h.subscribers[sub.ID()]; ok && current == sub {
				delete(h.subscribers, sub.ID())
			}
		}
		h.mu.Unlock()
	}

	return delivered
}

// Publish wraps typed data in a timestamped event and broadcasts it
func (h *Hub) Publish(ctx context.Context, data EventData) int {
	return h.Broadcast(ctx, NewEvent(data))
}
