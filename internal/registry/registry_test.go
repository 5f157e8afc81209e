package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/room"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(context.Context, string, string, interface{}, string) {}
func (noopBroadcaster) Emit(context.Context, string, string, interface{})              {}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	cfg := room.Config{
		ReconnectGrace: 10 * time.Millisecond,
		LeaveGrace:     10 * time.Millisecond,
		IdleTimeout:    10 * time.Millisecond,
		ChatBound:      domain.ChatBound,
	}
	return New(cfg, noopBroadcaster{}, room.RealClock, testLogger(), 100)
}

func TestCreateRoom_AddsHostAndIsLookupable(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	code, snap, err := reg.CreateRoom(ctx, CreateRoomInput{
		Identity: "host-1", Name: "Host", RoomName: "Movie Night",
		Kind: domain.KindVideo, Privacy: domain.PrivacyPublic, SessionID: "sess-1",
	})
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Equal(t, "host-1", snap.HostIdentity)
	assert.NotNil(t, reg.Lookup(code))
}

func TestJoinRoom_UnknownCodeNotFound(t *testing.T) {
	reg := testRegistry(t)
	_, err := reg.JoinRoom(context.Background(), JoinRoomInput{RoomCode: "NOEXST", Identity: "x", SessionID: "sess-9"})
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestLeaveRoom_IsIdempotentForUnknownSession(t *testing.T) {
	reg := testRegistry(t)
	err := reg.LeaveRoom(context.Background(), "never-joined")
	assert.NoError(t, err)
}

func TestLeaveRoom_RemovesKnownSession(t *testing.T) {
	reg := testRegistry(t)
	ctx := context.Background()

	code, _, err := reg.CreateRoom(ctx, CreateRoomInput{
		Identity: "host-1", Name: "Host", RoomName: "R",
		Kind: domain.KindVideo, Privacy: domain.PrivacyPublic, SessionID: "sess-1",
	})
	require.NoError(t, err)

	snap, err := reg.JoinRoom(ctx, JoinRoomInput{RoomCode: code, Identity: "member-1", Name: "Mem", SessionID: "sess-2"})
	require.NoError(t, err)
	require.Len(t, snap.Users, 2)

	require.NoError(t, reg.LeaveRoom(ctx, "sess-2"))
	time.Sleep(30 * time.Millisecond)

	latest, err := reg.Lookup(code).Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, latest.Users, 1)
}

func TestCreateRoom_ThrottlesPerIdentity(t *testing.T) {
	cfg := room.Config{ReconnectGrace: 10 * time.Millisecond, LeaveGrace: 10 * time.Millisecond, IdleTimeout: 10 * time.Millisecond, ChatBound: domain.ChatBound}
	reg := New(cfg, noopBroadcaster{}, room.RealClock, testLogger(), 1)
	ctx := context.Background()

	_, _, err := reg.CreateRoom(ctx, CreateRoomInput{Identity: "spammer", Name: "A", RoomName: "R1", Kind: domain.KindVideo, Privacy: domain.PrivacyPublic, SessionID: "s1"})
	require.NoError(t, err)

	_, _, err = reg.CreateRoom(ctx, CreateRoomInput{Identity: "spammer", Name: "A", RoomName: "R2", Kind: domain.KindVideo, Privacy: domain.PrivacyPublic, SessionID: "s2"})
	assert.Error(t, err)
}
