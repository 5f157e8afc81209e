package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub is the cross-instance bus: Publish fans out through a Redis
// channel instead of an in-process map, so a message published on one
// Session Gateway replica reaches subscribers registered on another.
type RedisPubSub struct {
	client *redis.Client

	mu     sync.RWMutex
	subs   map[uint64]*redisSubscription
	seq    atomic.Uint64
	closed bool

	logger *slog.Logger
}

// redisSubscription owns the goroutine draining one Redis channel.
type redisSubscription struct {
	bus     *RedisPubSub
	id      uint64
	topic   string
	channel *redis.PubSub
	cancel  context.CancelFunc
	fn      Handler
}

func (s *redisSubscription) Unsubscribe() error {
	s.cancel()
	if s.channel != nil {
		s.channel.Close()
	}
	s.bus.drop(s.id)
	return nil
}

// NewRedisPubSub dials url (e.g. "redis://host:6379" or
// "redis://:password@host:6379") and pings it before returning, so a
// misconfigured REDIS_URL fails fast at startup rather than on the first
// room's first publish.
func NewRedisPubSub(url string) (*RedisPubSub, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("pubsub: invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("pubsub: connecting to redis: %w", err)
	}

	logger := slog.Default().With("component", "pubsub", "backend", "redis")
	logger.Info("connected to redis", "addr", opts.Addr)

	return &RedisPubSub{
		client: client,
		subs:   make(map[uint64]*redisSubscription),
		logger: logger,
	}, nil
}

// Publish marshals msg and publishes it to topic's Redis channel.
func (bus *RedisPubSub) Publish(ctx context.Context, topic string, msg *Message) error {
	bus.mu.RLock()
	if bus.closed {
		bus.mu.RUnlock()
		return ErrClosed
	}
	bus.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pubsub: marshaling message: %w", err)
	}

	n, err := bus.client.Publish(ctx, topic, data).Result()
	if err != nil {
		return fmt.Errorf("pubsub: publishing to redis: %w", err)
	}

	bus.logger.Debug("publish", "topic", topic, "type", msg.Type, "subscribers", n)
	return nil
}

// Subscribe opens a Redis channel subscription for topic and starts a
// goroutine relaying its messages to fn until Unsubscribe or Close.
func (bus *RedisPubSub) Subscribe(ctx context.Context, topic string, fn Handler) (Subscription, error) {
	bus.mu.Lock()
	if bus.closed {
		bus.mu.Unlock()
		return nil, ErrClosed
	}

	channel := bus.client.Subscribe(ctx, topic)
	if _, err := channel.Receive(ctx); err != nil {
		bus.mu.Unlock()
		channel.Close()
		return nil, fmt.Errorf("pubsub: subscribing to redis channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	id := bus.seq.Add(1)
	sub := &redisSubscription{bus: bus, id: id, topic: topic, channel: channel, cancel: cancel, fn: fn}
	bus.subs[id] = sub
	bus.mu.Unlock()

	go bus.relay(subCtx, sub)

	bus.logger.Debug("subscribe", "topic", topic, "sub_id", id)
	return sub, nil
}

// relay drains sub's Redis channel and dispatches each message to its
// handler in its own goroutine, same delivery shape as MemoryPubSub.
func (bus *RedisPubSub) relay(ctx context.Context, sub *redisSubscription) {
	ch := sub.channel.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				bus.logger.Error("decoding redis message", "error", err, "topic", sub.topic)
				continue
			}
			go sub.fn(ctx, &msg)
		}
	}
}

func (bus *RedisPubSub) drop(id uint64) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	delete(bus.subs, id)
}

// Close cancels every live subscription and closes the Redis client.
func (bus *RedisPubSub) Close() error {
	bus.mu.Lock()
	defer bus.mu.Unlock()

	if bus.closed {
		return nil
	}
	bus.closed = true

	for _, sub := range bus.subs {
		sub.cancel()
		if sub.channel != nil {
			sub.channel.Close()
		}
	}
	bus.subs = make(map[uint64]*redisSubscription)

	if err := bus.client.Close(); err != nil {
		return fmt.Errorf("pubsub: closing redis client: %w", err)
	}
	bus.logger.Info("redis pubsub closed")
	return nil
}

// SubscriberCount reports this instance's local subscriber count for
// topic; it does not see subscribers registered on other replicas.
func (bus *RedisPubSub) SubscriberCount(topic string) int {
	bus.mu.RLock()
	defer bus.mu.RUnlock()

	count := 0
	for _, sub := range bus.subs {
		if sub.topic == topic {
			count++
		}
	}
	return count
}
