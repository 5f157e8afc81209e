package room

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncroom/server/internal/domain"
)

func joinHost(t *testing.T, a *Actor) {
	t.Helper()
	_, err := a.Join(context.Background(), "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
}

func TestSendMessage_BroadcastsAndAppends(t *testing.T) {
	a, bc, _ := newTestActor(t)
	ctx := context.Background()
	joinHost(t, a)

	require.NoError(t, a.SendMessage(ctx, "host-1", "Host", "", "hello", ""))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	// The host's join system message comes first, then "hello".
	require.Len(t, snap.Chat, 2)
	assert.Equal(t, "hello", snap.Chat[1].Content)
	assert.NotEmpty(t, snap.Chat[1].ID)

	msgs := bc.ofType("new_message")
	require.Len(t, msgs, 2)
}

func TestChatEviction_KeepsLastN(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()
	joinHost(t, a)

	total := domain.ChatBound + 5
	for i := 0; i < total; i++ {
		require.NoError(t, a.SendMessage(ctx, "host-1", "Host", "", fmt.Sprintf("msg-%d", i), ""))
	}

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Chat, domain.ChatBound)
	assert.Equal(t, fmt.Sprintf("msg-%d", total-1), snap.Chat[len(snap.Chat)-1].Content)
	assert.Equal(t, fmt.Sprintf("msg-%d", total-domain.ChatBound), snap.Chat[0].Content)
}

func TestEditMessage_ForbiddenForNonAuthor(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()
	joinHost(t, a)
	_, err := a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)

	require.NoError(t, a.SendMessage(ctx, "host-1", "Host", "", "hello", ""))
	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	msgID := snap.Chat[len(snap.Chat)-1].ID // "hello", after the join system messages

	err = a.EditMessage(ctx, "member-1", msgID, "changed")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestEditMessage_NotFound(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()
	joinHost(t, a)

	err := a.EditMessage(ctx, "host-1", "no-such-id", "x")
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)
}

func TestAddMessageReaction_ToggleIsIdempotentAtZero(t *testing.T) {
	a, bc, _ := newTestActor(t)
	ctx := context.Background()
	joinHost(t, a)
	require.NoError(t, a.SendMessage(ctx, "host-1", "Host", "", "hello", ""))
	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	last := len(snap.Chat) - 1 // "hello", after the host's join system message
	msgID := snap.Chat[last].ID

	// S3 / property 7: applied twice by the same identity yields the same
	// count as zero applications.
	require.NoError(t, a.AddMessageReaction(ctx, "host-1", msgID, "❤️"))
	require.NoError(t, a.AddMessageReaction(ctx, "host-1", msgID, "❤️"))

	snap, err = a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Chat[last].Reactions)

	updates := bc.ofType("message_reaction_update")
	require.Len(t, updates, 2)
}
