package room

import (
	"context"

	"github.com/syncroom/server/internal/domain"
)

// sessionInfo is the minimal identity/session pair the signaling relay
// needs to validate that sender and target share a room.
type sessionInfo struct {
	identity  string
	sessionID string
}

func sessionByID(r *domain.Room, sessionID string) *sessionInfo {
	for _, p := range r.Participants {
		if p.SessionID == sessionID {
			return &sessionInfo{identity: p.Identity, sessionID: p.SessionID}
		}
	}
	return nil
}

// ScreenShareStart broadcasts screen_share_started from the host to
// everyone else in the room.
func (a *Actor) ScreenShareStart(ctx context.Context, hostSessionID string) error {
	return a.submit(ctx, func(r *domain.Room) {
		if sessionByID(r, hostSessionID) == nil {
			return
		}
		a.broadcaster.Broadcast(ctx, a.code, "screen_share_started", map[string]interface{}{}, hostSessionID)
	})
}

// ScreenShareStop broadcasts screen_share_stopped.
func (a *Actor) ScreenShareStop(ctx context.Context, hostSessionID string) error {
	return a.submit(ctx, func(r *domain.Room) {
		if sessionByID(r, hostSessionID) == nil {
			return
		}
		a.broadcaster.Broadcast(ctx, a.code, "screen_share_stopped", map[string]interface{}{}, hostSessionID)
	})
}

// ScreenShareReady relays a receiving member's readiness to the host as
// screen_share_request_offer.
func (a *Actor) ScreenShareReady(ctx context.Context, memberSessionID, hostSessionID string) error {
	return a.submit(ctx, func(r *domain.Room) {
		if sessionByID(r, memberSessionID) == nil || sessionByID(r, hostSessionID) == nil {
			return
		}
		a.broadcaster.Emit(ctx, hostSessionID, "screen_share_request_offer", map[string]interface{}{
			"memberSessionId": memberSessionID,
		})
	})
}

// RelaySDP forwards an offer or answer between host and member, rewriting
// `from` to the sender's session id. eventOut is "screen_share_offer" or
// "screen_share_answer".
func (a *Actor) RelaySDP(ctx context.Context, eventOut, fromSessionID, toSessionID string, payload map[string]interface{}) error {
	return a.submit(ctx, func(r *domain.Room) {
		if sessionByID(r, fromSessionID) == nil || sessionByID(r, toSessionID) == nil {
			// Unknown targets are dropped silently.
			return
		}
		out := make(map[string]interface{}, len(payload)+1)
		for k, v := range payload {
			out[k] = v
		}
		out["from"] = fromSessionID
		a.broadcaster.Emit(ctx, toSessionID, eventOut, out)
	})
}

// RelayICE forwards an ICE candidate, same routing rules as RelaySDP.
func (a *Actor) RelayICE(ctx context.Context, fromSessionID, toSessionID string, payload map[string]interface{}) error {
	return a.RelaySDP(ctx, "screen_share_ice", fromSessionID, toSessionID, payload)
}
