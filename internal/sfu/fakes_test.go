package sfu

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

type recordedEvent struct {
	roomCode  string
	sessionID string
	event     string
	payload   interface{}
	exclude   string
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, roomCode, event string, payload interface{}, exclude string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{roomCode: roomCode, event: event, payload: payload, exclude: exclude})
}

func (b *recordingBroadcaster) Emit(ctx context.Context, sessionID, event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{sessionID: sessionID, event: event, payload: payload})
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

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
