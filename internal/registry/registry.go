// Package registry implements the Room Registry: creates, looks up, and
// destroys Room Actors. It owns only the code-to-actor mapping, guarded by
// a single mutex; all room state lives inside the Actor itself.
package registry

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/syncroom/server/internal/domain"
	"github.com/syncroom/server/internal/metrics"
	"github.com/syncroom/server/internal/room"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

const (
	codeAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength     = 6
	codeRetryBound = 5
)

// CreateRoomInput mirrors the create_room payload.
type CreateRoomInput struct {
	Identity    string
	Name        string
	Avatar      string
	RoomName    string
	Kind        domain.Kind
	Privacy     domain.Privacy
	SessionID   string
}

// JoinRoomInput mirrors the join_room payload.
type JoinRoomInput struct {
	RoomCode  string
	Identity  string
	Name      string
	Avatar    string
	SessionID string
}

// sessionLocation tracks which room a session belongs to, so LeaveRoom can
// be idempotent without the caller needing to remember the room code.
type sessionLocation struct {
	roomCode string
	identity string
}

// Registry is the single mutex-guarded map from room code to Actor.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room.Actor
	byConn map[string]sessionLocation // sessionID -> location

	cfg         room.Config
	broadcaster room.Broadcaster
	clock       room.Clock
	logger      *slog.Logger

	// createLimiter throttles create_room per identity, an anti-abuse
	// concern distinct from the gateway's per-session sync_request token
	// bucket.
	createLimiter *limiter.Limiter

	// onDestroy, if set, is notified after a room's Actor is stopped so the
	// SFU Bridge can tear down the matching Router. Wired from main.go via
	// SetDestroyHook rather than held as a Bridge field, so the Registry
	// does not import the sfu package.
	onDestroy func(code string)
}

// SetDestroyHook registers fn to be called with a room's code once that
// room's Actor has been stopped. Used to let the SFU Bridge release its
// Router without the Registry importing the sfu package.
func (reg *Registry) SetDestroyHook(fn func(code string)) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.onDestroy = fn
}

// New constructs an empty Registry. createRoomPerMinute configures the
// anti-abuse throttle on create_room.
func New(cfg room.Config, broadcaster room.Broadcaster, clock room.Clock, logger *slog.Logger, createRoomPerMinute int) *Registry {
	if clock == nil {
		clock = room.RealClock
	}
	if createRoomPerMinute <= 0 {
		createRoomPerMinute = 10
	}
	rate := limiter.Rate{Period: time.Minute, Limit: int64(createRoomPerMinute)}
	return &Registry{
		rooms:         make(map[string]*room.Actor),
		byConn:        make(map[string]sessionLocation),
		cfg:           cfg,
		broadcaster:   broadcaster,
		clock:         clock,
		logger:        logger.With("component", "registry"),
		createLimiter: limiter.New(memory.NewStore(), rate),
	}
}

// CreateRoom generates a unique room code, spins up its Actor, and joins
// the caller as host.
func (reg *Registry) CreateRoom(ctx context.Context, in CreateRoomInput) (string, *domain.Snapshot, error) {
	allowed, err := reg.allowCreate(ctx, in.Identity)
	if err != nil {
		return "", nil, domain.NewError(domain.CodeInternal, "rate limiter unavailable")
	}
	if !allowed {
		return "", nil, domain.NewError(domain.CodeBadRequest, "too many rooms created, slow down")
	}

	code, err := reg.allocateCode()
	if err != nil {
		return "", nil, err
	}

	actor := room.New(code, in.RoomName, in.Kind, in.Privacy, reg.cfg, reg.broadcaster, reg.clock, reg.logger, reg.destroy)

	reg.mu.Lock()
	reg.rooms[code] = actor
	reg.mu.Unlock()

	res, err := actor.Join(ctx, in.Identity, in.Name, in.Avatar, in.SessionID, true)
	if err != nil {
		reg.destroy(code)
		return "", nil, err
	}

	reg.mu.Lock()
	reg.byConn[in.SessionID] = sessionLocation{roomCode: code, identity: in.Identity}
	reg.mu.Unlock()

	metrics.Rooms.Inc()
	metrics.Participants.Inc()

	reg.logger.Info("room created", "room_code", code, "identity", in.Identity)
	return code, res.Snapshot, nil
}

// JoinRoom looks up roomCode and joins the caller.
func (reg *Registry) JoinRoom(ctx context.Context, in JoinRoomInput) (*domain.Snapshot, error) {
	actor := reg.lookup(in.RoomCode)
	if actor == nil {
		return nil, domain.ErrRoomNotFound
	}

	res, err := actor.Join(ctx, in.Identity, in.Name, in.Avatar, in.SessionID, false)
	if err != nil {
		return nil, err
	}

	reg.mu.Lock()
	reg.byConn[in.SessionID] = sessionLocation{roomCode: in.RoomCode, identity: in.Identity}
	reg.mu.Unlock()

	metrics.Participants.Inc()

	return res.Snapshot, nil
}

// LeaveRoom is idempotent: it removes sessionID from whichever room it
// belongs to, or does nothing if the session is unknown.
func (reg *Registry) LeaveRoom(ctx context.Context, sessionID string) error {
	reg.mu.Lock()
	loc, ok := reg.byConn[sessionID]
	if ok {
		delete(reg.byConn, sessionID)
	}
	actor := reg.rooms[loc.roomCode]
	reg.mu.Unlock()

	if !ok || actor == nil {
		return nil
	}
	err := actor.Leave(ctx, loc.identity)
	metrics.Participants.Dec()
	return err
}

// Lookup returns the Actor for roomCode, or nil if it does not exist. Used
// by the SFU Bridge and gateway to route events that don't go through
// CreateRoom/JoinRoom (chat, playback, signaling, SFU RPCs).
func (reg *Registry) Lookup(roomCode string) *room.Actor {
	return reg.lookup(roomCode)
}

// LocationOf returns the room code and identity a session is currently
// joined to, if any.
func (reg *Registry) LocationOf(sessionID string) (roomCode, identity string, ok bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	loc, found := reg.byConn[sessionID]
	return loc.roomCode, loc.identity, found
}

func (reg *Registry) lookup(roomCode string) *room.Actor {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return reg.rooms[roomCode]
}

// destroy removes code from the map and stops its actor. Passed to
// room.New as the onEmpty callback, invoked once the idle timer confirms
// the room has no participants left. Active SFU producers are not checked.
func (reg *Registry) destroy(code string) {
	reg.mu.Lock()
	actor, ok := reg.rooms[code]
	delete(reg.rooms, code)
	hook := reg.onDestroy
	reg.mu.Unlock()

	if ok {
		go actor.Stop()
		metrics.Rooms.Dec()
	}
	if hook != nil {
		hook(code)
	}
}

// allocateCode draws a 6-character uppercase alphanumeric code, retrying on
// collision up to codeRetryBound times.
func (reg *Registry) allocateCode() (string, error) {
	for attempt := 0; attempt < codeRetryBound; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", domain.NewError(domain.CodeInternal, "failed to generate room code")
		}
		reg.mu.Lock()
		_, exists := reg.rooms[code]
		reg.mu.Unlock()
		if !exists {
			return code, nil
		}
	}
	return "", domain.NewError(domain.CodeInternal, "could not allocate a unique room code")
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, codeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// allowCreate throttles create_room per identity; a distinct concern from
// the gateway's per-session sync_request token-bucket limiter.
func (reg *Registry) allowCreate(ctx context.Context, identity string) (bool, error) {
	limiterCtx, err := reg.createLimiter.Get(ctx, "create_room:"+identity)
	if err != nil {
		return false, err
	}
	return !limiterCtx.Reached, nil
}
