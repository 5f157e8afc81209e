package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncroom/server/internal/domain"
)

func TestJoin_ReconnectUpdatesSessionNoDuplicate(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)

	// Property 6: create_room then join_room with the same identity
	// returns the same participant, no duplicate.
	res, err := a.Join(ctx, "host-1", "Host", "", "sess-2", false)
	require.NoError(t, err)
	assert.Len(t, res.Snapshot.Users, 1)
	assert.Equal(t, "sess-2", res.Snapshot.Users[0].SessionID)
}

func TestLeave_CancelledByReconnectWithinGrace(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)

	require.NoError(t, a.Leave(ctx, "member-1"))
	// Reconnect well within the test's 20ms leave grace.
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-3", false)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	// Property 8: disconnect-then-reconnect within grace yields exactly
	// the same participant list as before the disconnect.
	assert.Len(t, snap.Users, 2)
}

func TestLeave_HostElectionAfterGraceExpires(t *testing.T) {
	a, bc, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)

	// S2: host disconnects and does not reconnect within T_grace.
	require.NoError(t, a.Leave(ctx, "host-1"))
	time.Sleep(60 * time.Millisecond)

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "member-1", snap.HostIdentity)

	hostUpdates := bc.ofType("host_update")
	require.NotEmpty(t, hostUpdates)

	// Subsequent update_playback from the new host is accepted.
	err = a.UpdatePlayback(ctx, "member-1", UpdatePlaybackInput{Action: ActionPlay, IsPlaying: true, CurrentTime: 0})
	assert.NoError(t, err)
}

func TestJoin_LockedRoomRefusesStrangerAdmitsReturning(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "returning-1", "Ret", "", "sess-2", false)
	require.NoError(t, err)

	require.NoError(t, a.ToggleLock(ctx, "host-1"))

	// S4: stranger is refused.
	_, err = a.Join(ctx, "stranger-1", "Stranger", "", "sess-3", false)
	assert.Error(t, err)

	// Returning participant, still within grace, succeeds.
	require.NoError(t, a.Leave(ctx, "returning-1"))
	_, err = a.Join(ctx, "returning-1", "Ret", "", "sess-4", false)
	assert.NoError(t, err)
}

func TestKick_RemovesTargetAndNotifiesDirectly(t *testing.T) {
	a, bc, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)

	require.NoError(t, a.Kick(ctx, "host-1", "member-1"))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Users, 1)

	kicks := bc.ofType("kicked")
	require.Len(t, kicks, 1)
	assert.Equal(t, "sess-2", kicks[0].sessionID)
}

func TestToggleLock_ForbiddenForNonHost(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)

	err = a.ToggleLock(ctx, "member-1")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Locked)
}

func TestJoinVoice_AddsIdentityToVoiceMembers(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)

	require.NoError(t, a.JoinVoice(ctx, "host-1"))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"host-1"}, snap.VoiceUsers)
}

func TestLeaveVoice_RemovesIdentityFromVoiceMembers(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	require.NoError(t, a.JoinVoice(ctx, "host-1"))

	require.NoError(t, a.LeaveVoice(ctx, "host-1"))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.VoiceUsers)
}

func TestLeaveVoice_IsIdempotentForNonMember(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)

	require.NoError(t, a.LeaveVoice(ctx, "host-1"))

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.VoiceUsers)
}

// TestFinalizeLeave_RemovesFromVoiceMembers covers invariant §8.3: a
// participant who leaves voice and then the room entirely should not
// linger in VoiceMembers after cleanup.
func TestFinalizeLeave_RemovesFromVoiceMembers(t *testing.T) {
	a, _, _ := newTestActor(t)
	ctx := context.Background()

	_, err := a.Join(ctx, "host-1", "Host", "", "sess-1", true)
	require.NoError(t, err)
	_, err = a.Join(ctx, "member-1", "Mem", "", "sess-2", false)
	require.NoError(t, err)
	require.NoError(t, a.JoinVoice(ctx, "member-1"))

	require.NoError(t, a.Leave(ctx, "member-1"))
	time.Sleep(60 * time.Millisecond) // past the test config's leave grace

	snap, err := a.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.VoiceUsers)
}
