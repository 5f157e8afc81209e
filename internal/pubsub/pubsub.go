// Package pubsub is SyncRoom's internal event bus: the Room Actor and the
// SFU Bridge publish room/user-scoped events here, and the Session Gateway
// subscribes to relay them to WebSocket clients. A single process only
// ever needs the in-memory backend; the Redis-backed one exists so a
// deployment can run several Session Gateway replicas behind a load
// balancer while still receiving events published on another instance.
package pubsub

import (
	"context"
	"encoding/json"
)

// Message is one event on the bus: which topic it belongs to, what kind
// of event it is, and its JSON-encoded body (the Room Actor's broadcast
// envelope, see internal/room/broadcast.go).
type Message struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler processes one delivered Message.
type Handler func(ctx context.Context, msg *Message)

// Subscription is a live registration that can be torn down.
type Subscription interface {
	Unsubscribe() error
}

// PubSub is the bus contract both backends satisfy. Implementations must
// be safe for concurrent use, since the gateway subscribes/unsubscribes
// from many goroutines (one pair of read/write pumps per connection).
type PubSub interface {
	// Publish fans msg out to every current subscriber of topic.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Subscribe registers handler for topic, returning a Subscription the
	// caller must Unsubscribe when it stops caring (on disconnect, or on
	// leaving a room).
	Subscribe(ctx context.Context, topic string, handler Handler) (Subscription, error)

	// Close tears down the bus and every live subscription.
	Close() error
}

// TopicBuilder names the two topic families SyncRoom needs: one per room
// (chat, playback, signaling, SFU producer events — everyone in the room
// subscribes) and one per session (direct emits like screen-share offers,
// kicks, and existing-producer snapshots that only one connection should
// see).
type TopicBuilder struct{}

// Room returns the topic every participant in roomCode subscribes to.
func (t TopicBuilder) Room(roomCode string) string {
	return "room:" + roomCode
}

// User returns the topic for events addressed to one session.
func (t TopicBuilder) User(sessionID string) string {
	return "user:" + sessionID
}

// Topics is the package-level topic name builder.
var Topics = TopicBuilder{}
