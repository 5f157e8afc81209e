package room

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/syncroom/server/internal/pubsub"
)

// Broadcaster decouples the Room Actor from the Session Gateway's
// transport. The actor never touches a websocket connection directly; it
// only publishes events, mirroring the teacher's websocket.RoomBroadcaster
// / PubSubBroadcaster split.
type Broadcaster interface {
	// Broadcast fans an event out to every session joined to roomCode,
	// optionally excluding one session (the sender, for events that echo
	// back to everyone else but not the caller).
	Broadcast(ctx context.Context, roomCode, event string, payload interface{}, exclude string)

	// Emit delivers an event to exactly one session (e.g. `kicked`,
	// screen-share signaling relays).
	Emit(ctx context.Context, sessionID, event string, payload interface{})
}

// envelope is the payload carried over pubsub for both broadcast and direct
// delivery; the gateway subscriber unwraps it and applies the Exclude
// filter at the point of fan-out to live connections. SessionID is carried
// but not checked there.
type envelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Exclude   string          `json:"exclude,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

// PubSubBroadcaster implements Broadcaster over the pubsub bus, keeping the
// room package ignorant of websocket/Redis specifics exactly as the
// teacher's PubSubBroadcaster keeps the API layer ignorant of the socket
// implementation.
type PubSubBroadcaster struct {
	ps     pubsub.PubSub
	logger *slog.Logger
}

// NewPubSubBroadcaster constructs a Broadcaster over ps.
func NewPubSubBroadcaster(ps pubsub.PubSub) *PubSubBroadcaster {
	return &PubSubBroadcaster{ps: ps, logger: slog.Default().With("component", "room.broadcaster")}
}

func (b *PubSubBroadcaster) Broadcast(ctx context.Context, roomCode, event string, payload interface{}, exclude string) {
	b.publish(ctx, pubsub.Topics.Room(roomCode), envelope{Event: event, Exclude: exclude}, payload)
}

func (b *PubSubBroadcaster) Emit(ctx context.Context, sessionID, event string, payload interface{}) {
	b.publish(ctx, pubsub.Topics.User(sessionID), envelope{Event: event, SessionID: sessionID}, payload)
}

func (b *PubSubBroadcaster) publish(ctx context.Context, topic string, env envelope, payload interface{}) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("marshal broadcast payload", "event", env.Event, "error", err)
		return
	}
	env.Payload = payloadBytes

	envBytes, err := json.Marshal(env)
	if err != nil {
		b.logger.Error("marshal broadcast envelope", "event", env.Event, "error", err)
		return
	}

	msg := &pubsub.Message{Topic: topic, Type: env.Event, Payload: envBytes}
	// A delivery failure to one recipient must not abort delivery to
	// others; Publish already fans out independently per subscriber, so we
	// only log here.
	if err := b.ps.Publish(ctx, topic, msg); err != nil {
		b.logger.Error("publish broadcast", "topic", topic, "event", env.Event, "error", err)
	}
}
