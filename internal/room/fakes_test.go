package room

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// testLogger discards output so test runs stay quiet.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock lets tests advance time deterministically instead of sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordedEvent captures one Broadcast or Emit call for assertions.
type recordedEvent struct {
	kind      string // "broadcast" or "emit"
	roomCode  string
	sessionID string
	event     string
	payload   interface{}
	exclude   string
}

// recordingBroadcaster is an in-memory Broadcaster used by tests in place
// of the pubsub-backed implementation.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{}
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, roomCode, event string, payload interface{}, exclude string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{kind: "broadcast", roomCode: roomCode, event: event, payload: payload, exclude: exclude})
}

func (b *recordingBroadcaster) Emit(_ context.Context, sessionID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{kind: "emit", sessionID: sessionID, event: event, payload: payload})
}

func (b *recordingBroadcaster) ofType(event string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
