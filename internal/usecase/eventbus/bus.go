// Package eventbus fans dispatch state transitions out to subscribers.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"lexroute/internal/domain"
)

// Handler receives one transition.
type Handler func(ctx context.Context, t domain.Transition)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is an in-process, goroutine-safe transition bus. Handlers run
// synchronously on the publishing goroutine so each subscriber sees the
// transitions of a request in order.
type Bus struct {
	mu      sync.RWMutex
	byID    map[string][]subscription
	allSubs []subscription
	nextID  atomic.Uint64
	logger  *slog.Logger
	closed  atomic.Bool
}

// New creates a bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		byID:   make(map[string][]subscription),
		logger: logger,
	}
}

// Publish delivers t to the subscribers of its correlation id and to all
// catch-all subscribers. Panicking handlers are recovered.
func (b *Bus) Publish(ctx context.Context, t domain.Transition) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	subs := make([]subscription, 0, len(b.byID[t.CorrelationID])+len(b.allSubs))
	subs = append(subs, b.byID[t.CorrelationID]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		b.deliver(ctx, t, sub)
	}
}

func (b *Bus) deliver(ctx context.Context, t domain.Transition, sub subscription) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("transition handler panicked",
				"correlation_id", t.CorrelationID,
				"to", string(t.To),
				"panic", r,
			)
		}
	}()
	sub.handler(ctx, t)
}

// Subscribe registers a handler for the transitions of one request.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(correlationID string, handler Handler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.byID[correlationID] = append(b.byID[correlationID], sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.byID[correlationID]
		for i, s := range subs {
			if s.id == id {
				subs = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(subs) == 0 {
			delete(b.byID, correlationID)
		} else {
			b.byID[correlationID] = subs
		}
	}
}

// SubscribeAll registers a handler that receives every transition.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler Handler) func() {
	id := b.nextID.Add(1)
	sub := subscription{id: id, handler: handler}

	b.mu.Lock()
	b.allSubs = append(b.allSubs, sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == id {
				b.allSubs = append(b.allSubs[:i:i], b.allSubs[i+1:]...)
				return
			}
		}
	}
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.allSubs)
	for _, subs := range b.byID {
		n += len(subs)
	}
	return n
}

// Close stops delivery. It is idempotent.
func (b *Bus) Close() {
	b.closed.Store(true)
}
