package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/syncroom/server/internal/auth"
	"github.com/syncroom/server/internal/room"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a Client with no real network connection, usable
// anywhere Dispatch only needs the send channel and identity state.
func newTestClient(sessionID string) *Client {
	return &Client{
		send:        make(chan []byte, 64),
		logger:      testLogger(),
		sessionID:   sessionID,
		syncLimiter: room.NewSyncLimiter(),
	}
}

// fakeResolver resolves any non-empty token to an identity of the same
// name, so tests don't need real JWTs.
type fakeResolver struct{}

func (fakeResolver) Resolve(_ context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, errors.New("invalid token")
	}
	return auth.Identity{Identity: token, DisplayName: token}, nil
}

// drainSend reads the next frame off a client's send channel, failing the
// test if nothing arrives within the timeout.
func drainSend(c *Client, timeout time.Duration) ([]byte, bool) {
	select {
	case b := <-c.send:
		return b, true
	case <-time.After(timeout):
		return nil, false
	}
}
