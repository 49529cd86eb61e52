// Package eventbus implements the process-wide, in-memory event bus: a
// single buffered-channel producer side fanning out to any number of
// subscribers, with publish never blocking the publisher.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/hermanngeorge15/qawave-automation-sub004/pkg/models"
)

// DefaultCapacity is the per-subscriber buffer size when none is given.
const DefaultCapacity = 1024

// Bus is a single-producer-multiple-subscriber event fan-out. Publish never
// blocks: a subscriber whose buffer is full has the event dropped and
// counted, rather than stalling the publisher.
type Bus struct {
	capacity int

	mu          sync.RWMutex
	subscribers map[int]chan models.Event
	nextID      int

	droppedMu sync.Mutex
	dropped   int
}

// New builds a Bus whose subscriber channels are buffered to capacity (or
// DefaultCapacity when capacity <= 0).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		capacity:    capacity,
		subscribers: make(map[int]chan models.Event),
	}
}

// Subscription is a live subscriber's channel plus its unsubscribe handle.
type Subscription struct {
	Events chan models.Event
	bus    *Bus
	id     int
}

// Unsubscribe removes and closes the subscription's channel. Safe to call
// once; repeated calls are no-ops.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new subscriber and returns its Subscription.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan models.Event, b.capacity)
	b.subscribers[id] = ch
	return &Subscription{Events: ch, bus: b, id: id}
}

func (b *Bus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish fans evt out to every current subscriber without blocking. A
// subscriber that cannot accept the event immediately (full buffer) has it
// dropped; Dropped() reports the cumulative count for observability.
func (b *Bus) Publish(evt models.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			b.droppedMu.Lock()
			b.dropped++
			b.droppedMu.Unlock()
			slog.Warn("eventbus: subscriber buffer full, dropping event", "kind", evt.Kind)
		}
	}
}

// Dropped returns the cumulative number of events dropped due to a full
// subscriber buffer since the bus was created.
func (b *Bus) Dropped() int {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	return b.dropped
}
