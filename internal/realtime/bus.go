package realtime

import (
	"context"
	"sync"
	"time"

	"campusbook/internal/metrics"
)

// Bus provides in-process pub/sub for reservation events.
type Bus struct {
	subscribers map[string]*Subscription
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]*Subscription)}
}

// Subscribe registers for events of roomID (AllRooms for every room).
func (b *Bus) Subscribe(ctx context.Context, roomID int64) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(roomID)
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	sub.bind(ctx, func() { b.remove(sub.id) })
	return sub, nil
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

// Publish notifies matching subscribers without blocking.
func (b *Bus) Publish(_ context.Context, ev Event) error {
	if ev.Type == "" {
		ev.Type = EventReservationUpdate
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.matches(ev) {
			sub.offer(ev)
		}
	}
	metrics.IncRealtimeEvent("bus")
	return nil
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
