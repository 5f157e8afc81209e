package room

import (
	"context"

	"github.com/google/uuid"
	"github.com/syncroom/server/internal/domain"
	"golang.org/x/time/rate"
)

// PlaybackAction enumerates the actions update_playback accepts.
type PlaybackAction string

const (
	ActionPlay        PlaybackAction = "play"
	ActionPause       PlaybackAction = "pause"
	ActionSeek        PlaybackAction = "seek"
	ActionMediaChange PlaybackAction = "media_change"
	ActionMediaClear  PlaybackAction = "media_clear"
)

// UpdatePlaybackInput mirrors the update_playback payload.
type UpdatePlaybackInput struct {
	Action      PlaybackAction
	IsPlaying   bool
	CurrentTime float64
	Media       *domain.Media // only read for media_change
}

// UpdatePlayback applies a host-only playback mutation and broadcasts the
// resulting anchor to every session. Non-host callers get ErrForbidden.
func (a *Actor) UpdatePlayback(ctx context.Context, callerIdentity string, in UpdatePlaybackInput) error {
	var opErr error
	err := a.submit(ctx, func(r *domain.Room) {
		if r.HostIdentity != callerIdentity {
			opErr = domain.ErrForbidden
			return
		}
		now := a.clock.Now()

		switch in.Action {
		case ActionMediaClear:
			r.Media = nil
			r.Playback = domain.Playback{Playing: false, BaseTime: 0, BaseServerInstant: now}
		case ActionMediaChange:
			media := domain.Media{Kind: "video"}
			if in.Media != nil {
				media = *in.Media
			}
			media.ID = uuid.NewString()
			r.Media = &media
			r.Playback = domain.Playback{Playing: false, BaseTime: 0, BaseServerInstant: now}
		default: // play, pause, seek
			r.Playback = domain.Playback{
				Playing:           in.IsPlaying,
				BaseTime:          in.CurrentTime,
				BaseServerInstant: now,
			}
		}

		r.Touch(now)
		a.broadcaster.Broadcast(ctx, a.code, "playback_sync", map[string]interface{}{
			"media":       r.Media,
			"isPlaying":   r.Playback.Playing,
			"currentTime": r.Playback.EffectivePosition(now),
			"serverTime":  now,
			"action":      in.Action,
		}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// SyncState is the effective playback state returned by sync_request.
type SyncState struct {
	IsPlaying   bool
	CurrentTime float64
}

// SyncRequest returns the current effective playback position. Rate
// limiting (1/session/sec) is applied by the caller via a per-session
// limiter (see NewSyncLimiter).
func (a *Actor) SyncRequest(ctx context.Context) (*SyncState, error) {
	var state *SyncState
	err := a.submit(ctx, func(r *domain.Room) {
		now := a.clock.Now()
		state = &SyncState{
			IsPlaying:   r.Playback.Playing,
			CurrentTime: r.Playback.EffectivePosition(now),
		}
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// SyncRequestRate and SyncRequestBurst size the one token bucket per session
// that guards sync_request at 1/sec/session. The buckets are owned by the gateway, not the actor, since the limit is
// per-connection rather than per-room state; exposed here so both packages
// share the same rate.Limiter construction.
const SyncRequestRate = rate.Limit(1)
const SyncRequestBurst = 1

// NewSyncLimiter builds the per-session limiter used to throttle
// sync_request, grounded on the teacher's internal/middleware/ratelimit.go
// use of golang.org/x/time/rate.
func NewSyncLimiter() *rate.Limiter {
	return rate.NewLimiter(SyncRequestRate, SyncRequestBurst)
}
