package main

import (
	"sync"

	"go.uber.org/zap"
)

var _ Notifier = (*EventBus)(nil)

// Notifier publishes job completion events.
type Notifier interface {
	Publish(event Event)
}

// EventBus is an in-process fan-out of events to the current subscribers.
// Delivery is at-most-once: a subscriber whose buffer is full misses the
// event and nothing is replayed to late subscribers.
type EventBus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]subscriber
}

type subscriber struct {
	ch    chan Event
	match func(Event) bool
}

// NewEventBus provides a ready to use EventBus.
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[uint64]subscriber),
	}
}

// Subscribe registers a new listener of every event with a buffer of the
// given size. The returned function must be called to release the
// subscription, it closes the channel.
func (eb *EventBus) Subscribe(size int) (<-chan Event, func()) {
	return eb.SubscribeFunc(size, nil)
}

// SubscribeFunc is like Subscribe but only the events accepted by match are
// delivered, so unrelated events never take room in the buffer. A nil match
// accepts every event.
func (eb *EventBus) SubscribeFunc(size int, match func(Event) bool) (<-chan Event, func()) {
	if size <= 0 {
		size = 1
	}
	ch := make(chan Event, size)
	eb.mu.Lock()
	id := eb.nextID
	eb.nextID++
	eb.subs[id] = subscriber{ch: ch, match: match}
	eb.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			eb.mu.Lock()
			delete(eb.subs, id)
			eb.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for id, sub := range eb.subs {
		if sub.match != nil && !sub.match(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.logger.Warn("events: subscriber buffer full, event dropped",
				zap.Uint64("subscriber", id),
				zap.String("event.kind", string(event.Kind)),
				zap.String("job.id", event.JobID),
			)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs)
}
