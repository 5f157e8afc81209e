package room

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/syncroom/server/internal/domain"
)

// JoinResult carries what the registry needs to hand back to the caller and
// to track which room a session belongs to.
type JoinResult struct {
	Snapshot *domain.Snapshot
}

// Join adds identity/sessionID as a participant, or re-links sessionID onto
// an existing participant on reconnect. asHost is true only for the very
// first join that creates the room.
func (a *Actor) Join(ctx context.Context, identity, displayName, avatar, sessionID string, asHost bool) (*JoinResult, error) {
	var snap *domain.Snapshot
	var joinErr error

	err := a.submit(ctx, func(r *domain.Room) {
		now := a.clock.Now()
		_, existing := r.Participants[identity]

		if r.Locked && !existing && !asHost {
			joinErr = domain.ErrLocked
			return
		}

		reconnect := existing
		p, ok := r.Participants[identity]
		if ok {
			p.SessionID = sessionID
		} else {
			p = &domain.Participant{
				Identity:    identity,
				DisplayName: displayName,
				Avatar:      avatar,
				SessionID:   sessionID,
				IsHost:      asHost,
				JoinedAt:    now,
			}
			r.Participants[identity] = p
			if asHost {
				r.HostIdentity = identity
			}
		}
		r.CancelPendingLeave(identity)

		suppressJoinMessage := reconnect && r.RecentlyDisconnected(identity, now, a.reconnectGrace)
		if !suppressJoinMessage {
			a.appendSystemMessage(r, now, displayName+" joined")
		}

		r.Touch(now)
		a.scheduleIdleCheck(r)
		snap = domain.BuildSnapshot(r, now)

		a.broadcaster.Broadcast(ctx, a.code, "user_joined", map[string]interface{}{
			"identity":  identity,
			"name":      displayName,
			"avatar":    avatar,
			"sessionId": sessionID,
		}, "")
	})
	if err != nil {
		return nil, err
	}
	if joinErr != nil {
		return nil, joinErr
	}
	return &JoinResult{Snapshot: snap}, nil
}

// Leave defers removal of identity by leaveGrace, so a fast reconnect can
// cancel it. Safe to call from the gateway's disconnect handler.
func (a *Actor) Leave(ctx context.Context, identity string) error {
	return a.submit(ctx, func(r *domain.Room) {
		if _, ok := r.Participants[identity]; !ok {
			return
		}
		now := a.clock.Now()
		r.MarkPendingLeave(identity)
		r.RecordDisconnect(identity, now)

		time.AfterFunc(a.leaveGrace, func() {
			_ = a.submit(context.Background(), func(r *domain.Room) {
				a.finalizeLeave(r, identity)
			})
		})
	})
}

// finalizeLeave runs after leaveGrace elapses; it is a no-op if the identity
// reconnected in the meantime (CancelPendingLeave already cleared the
// marker from inside Join).
func (a *Actor) finalizeLeave(r *domain.Room, identity string) {
	if !r.IsPendingLeave(identity) {
		return
	}
	r.CancelPendingLeave(identity)

	p, ok := r.Participants[identity]
	if !ok {
		return
	}
	wasHost := p.IsHost
	delete(r.Participants, identity)
	delete(r.VoiceMembers, identity)

	now := a.clock.Now()
	a.appendSystemMessage(r, now, p.DisplayName+" left")
	a.broadcaster.Broadcast(context.Background(), a.code, "user_left", map[string]interface{}{
		"identity": identity,
	}, "")

	if wasHost {
		a.electHost(r)
	}

	r.Touch(now)
	a.scheduleIdleCheck(r)
}

// electHost promotes the participant with the earliest JoinedAt. No-op if
// the room is now empty.
func (a *Actor) electHost(r *domain.Room) {
	var next *domain.Participant
	for _, p := range r.Participants {
		p.IsHost = false
		if next == nil || p.JoinedAt.Before(next.JoinedAt) {
			next = p
		}
	}
	if next == nil {
		r.HostIdentity = ""
		return
	}
	next.IsHost = true
	r.HostIdentity = next.Identity
	a.broadcaster.Broadcast(context.Background(), a.code, "host_update", map[string]interface{}{
		"newHostIdentity": next.Identity,
		"users":           participantList(r),
	}, "")
}

// TransferHost moves host status from caller to target. Non-host callers
// get ErrForbidden.
func (a *Actor) TransferHost(ctx context.Context, callerIdentity, targetIdentity string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		if r.HostIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		target, ok := r.Participants[targetIdentity]
		if !ok {
			return
		}
		if current, ok := r.Participants[callerIdentity]; ok {
			current.IsHost = false
		}
		target.IsHost = true
		r.HostIdentity = targetIdentity
		r.Touch(a.clock.Now())

		a.broadcaster.Broadcast(ctx, a.code, "host_update", map[string]interface{}{
			"newHostIdentity": targetIdentity,
			"users":           participantList(r),
		}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// Kick force-removes target; host-only. Non-host callers get ErrForbidden.
func (a *Actor) Kick(ctx context.Context, callerIdentity, targetIdentity string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		if r.HostIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		target, ok := r.Participants[targetIdentity]
		if !ok {
			return
		}
		a.broadcaster.Emit(ctx, target.SessionID, "kicked", map[string]interface{}{})

		delete(r.Participants, targetIdentity)
		delete(r.VoiceMembers, targetIdentity)
		r.CancelPendingLeave(targetIdentity)

		now := a.clock.Now()
		a.appendSystemMessage(r, now, target.DisplayName+" was removed")
		a.broadcaster.Broadcast(ctx, a.code, "user_left", map[string]interface{}{
			"identity": targetIdentity,
		}, "")

		r.Touch(now)
		a.scheduleIdleCheck(r)
	})
	if err != nil {
		return err
	}
	return opErr
}

// ToggleLock flips Room.Locked; host-only. Non-host callers get
// ErrForbidden.
func (a *Actor) ToggleLock(ctx context.Context, callerIdentity string) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		if r.HostIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		r.Locked = !r.Locked
		r.Touch(a.clock.Now())
		a.broadcaster.Broadcast(ctx, a.code, "room_locked", map[string]interface{}{
			"isLocked": r.Locked,
		}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// JoinVoice marks identity as present in the room's voice channel, called
// once the SFU Bridge accepts a voice producer from them.
func (a *Actor) JoinVoice(ctx context.Context, identity string) error {
	return a.submit(ctx, func(r *domain.Room) {
		if _, ok := r.Participants[identity]; !ok {
			return
		}
		r.VoiceMembers[identity] = true
		r.Touch(a.clock.Now())
	})
}

// LeaveVoice removes identity from the room's voice channel, called when
// their voice producer is closed by the SFU session cleanup on disconnect. Idempotent: a no-op if identity was never in it.
func (a *Actor) LeaveVoice(ctx context.Context, identity string) error {
	return a.submit(ctx, func(r *domain.Room) {
		delete(r.VoiceMembers, identity)
		r.Touch(a.clock.Now())
	})
}

func participantList(r *domain.Room) []*domain.Participant {
	out := make([]*domain.Participant, 0, len(r.Participants))
	for _, p := range r.Participants {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// appendSystemMessage inserts a system chat entry and applies the same
// FIFO eviction policy as user messages.
func (a *Actor) appendSystemMessage(r *domain.Room, now time.Time, content string) {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: now,
		Kind:      "system",
	}
	a.appendMessage(r, msg)
}
