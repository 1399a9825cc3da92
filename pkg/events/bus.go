package events

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
)

// Handler consumes delivered events. Handlers for one subscription run
// sequentially (FIFO); handlers across subscriptions run independently.
type Handler func(*UniversalEvent)

// Bus is the pluggable pub/sub contract. The in-process fan-out is the
// only backend in-tree; durable or distributed backends implement the
// same interface.
type Bus interface {
	Publish(ctx context.Context, event *UniversalEvent) error
	Subscribe(pattern string, handler Handler) (*Subscription, error)
	Close()
}

// subscriberBuffer is the per-subscription delivery queue depth. A full
// queue drops events (best-effort delivery) rather than blocking the
// publisher.
const subscriberBuffer = 256

// Subscription is one registered topic-pattern listener.
type Subscription struct {
	ID      int
	Pattern string

	re     *regexp.Regexp
	ch     chan *UniversalEvent
	done   chan struct{}
	cancel func()
}

// Unsubscribe removes the subscription and stops its delivery goroutine.
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// InMemoryBus is the in-process fan-out backend with synchronous
// best-effort delivery into per-subscriber FIFO queues.
type InMemoryBus struct {
	mu     sync.RWMutex
	subs   map[int]*Subscription
	nextID int
	closed bool
}

// NewInMemoryBus creates the in-process bus backend.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{subs: make(map[int]*Subscription)}
}

// Publish fans the event out to every subscription whose pattern matches
// the event topic. Delivery into a full subscriber queue is dropped with
// a warning; the publisher never blocks.
func (b *InMemoryBus) Publish(_ context.Context, event *UniversalEvent) error {
	topic := NormalizeTopic(event.Topic)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, sub := range b.subs {
		if !sub.re.MatchString(topic) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slog.Warn("Event bus subscriber queue full, dropping event",
				"pattern", sub.Pattern, "topic", topic, "event_id", event.ID)
		}
	}
	return nil
}

// Subscribe registers a handler for a topic pattern and starts its
// delivery goroutine.
func (b *InMemoryBus) Subscribe(pattern string, handler Handler) (*Subscription, error) {
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.nextID++
	sub := &Subscription{
		ID:      b.nextID,
		Pattern: pattern,
		re:      re,
		ch:      make(chan *UniversalEvent, subscriberBuffer),
		done:    make(chan struct{}),
	}
	sub.cancel = func() { b.remove(sub) }
	b.subs[sub.ID] = sub
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for event := range sub.ch {
			handler(event)
		}
	}()
	return sub, nil
}

func (b *InMemoryBus) remove(sub *Subscription) {
	b.mu.Lock()
	if _, ok := b.subs[sub.ID]; !ok {
		b.mu.Unlock()
		return
	}
	delete(b.subs, sub.ID)
	b.mu.Unlock()

	close(sub.ch)
	<-sub.done
}

// Close removes all subscriptions and waits for in-flight deliveries.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.remove(s)
	}
}
