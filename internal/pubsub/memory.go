package pubsub

import (
	"context"
	"log/slog"
	"sync"
)

// memorySubscription removes itself from its topic's subscriber set on
// Unsubscribe.
type memorySubscription struct {
	bus   *MemoryPubSub
	topic string
	id    uint64
	fn    Handler
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.drop(s.topic, s.id)
	return nil
}

// MemoryPubSub is the single-process event bus: a topic-to-subscribers
// map guarded by one mutex. It never leaves the process, so it's the
// right default for a SyncRoom deployment with one Session Gateway
// instance.
type MemoryPubSub struct {
	mu     sync.RWMutex
	topics map[string]map[uint64]*memorySubscription
	seq    uint64
	closed bool
	logger *slog.Logger
}

// NewMemoryPubSub constructs an empty bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		topics: make(map[string]map[uint64]*memorySubscription),
		logger: slog.Default().With("component", "pubsub", "backend", "memory"),
	}
}

// Publish delivers msg to every current subscriber of topic, each in its
// own goroutine so one slow handler can't stall the others or block the
// publisher (the Room Actor's command loop calls Publish while holding no
// lock of its own, but it still shouldn't wait on gateway delivery).
func (bus *MemoryPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return ErrClosed
	}
	subs := bus.topics[topic]
	if len(subs) == 0 {
		bus.mu.RUnlock()
		return nil
	}
	handlers := make([]Handler, 0, len(subs))
	for _, sub := range subs {
		handlers = append(handlers, sub.fn)
	}
	bus.mu.RUnlock()

	bus.logger.Debug("publish", "topic", topic, "type", msg.Type, "subscribers", len(handlers))
	for _, h := range handlers {
		go h(ctx, msg)
	}
	return nil
}

// Subscribe registers fn for topic.
func (bus *MemoryPubSub) Subscribe(ctx context.Context, topic string, fn Handler) (Subscription, error) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return nil, ErrClosed
	}

	bus.seq++
	sub := &memorySubscription{bus: bus, topic: topic, id: bus.seq, fn: fn}

	if bus.topics[topic] == nil {
		bus.topics[topic] = make(map[uint64]*memorySubscription)
	}
	bus.topics[topic][sub.id] = sub

	return sub, nil
}

func (bus *MemoryPubSub) drop(topic string, id uint64) {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	subs, ok := bus.topics[topic]
	if !ok {
		return
	}
	delete(subs, id)
	if len(subs) == 0 {
		delete(bus.topics, topic)
	}
}

// Close tears down every subscription and rejects further operations.
func (bus *MemoryPubSub) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	bus.closed = true
	bus.topics = make(map[string]map[uint64]*memorySubscription)
	return nil
}

// SubscriberCount reports how many live subscriptions topic has.
func (bus *MemoryPubSub) SubscriberCount(topic string) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.topics[topic])
}

// TopicCount reports how many topics currently have at least one subscriber.
func (bus *MemoryPubSub) TopicCount() int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()
	return len(bus.topics)
}
