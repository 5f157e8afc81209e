// Package room implements the Room Actor: a single-writer state machine
// owning one watch-together room's participants, chat, playback clock, and
// screen-share signaling table. Generalized from the teacher's
// websocket.Hub goroutine-per-resource pattern, from "one hub for all
// rooms" to "one actor per room" with a serialized command channel
// standing in for the hub's mutex-guarded maps.
package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/syncroom/server/internal/domain"
)

// command is a closure dispatched on the actor's single goroutine. Every
// mutation and every read goes through this channel, so nothing in domain.Room
// needs its own locking.
type command func(r *domain.Room)

// Actor owns one Room's state and serializes all access to it.
type Actor struct {
	code string

	commands chan command
	done     chan struct{}

	broadcaster Broadcaster
	clock       Clock
	logger      *slog.Logger

	reconnectGrace time.Duration
	leaveGrace     time.Duration
	idleTimeout    time.Duration
	chatBound      int

	// onEmpty is invoked (from the actor's own goroutine) once the idle
	// timer fires with zero participants, letting the registry remove the
	// actor from its map. It must not block.
	onEmpty func(code string)

	room *domain.Room

	idleTimer *time.Timer
}

// Config bundles the actor's tunables, grounded on config.Config's room
// timer fields.
type Config struct {
	ReconnectGrace time.Duration
	LeaveGrace     time.Duration
	IdleTimeout    time.Duration
	ChatBound      int
}

// New constructs and starts a Room Actor. The caller is expected to have
// already inserted the caller as host via the returned Actor's Join method.
func New(code, name string, kind domain.Kind, privacy domain.Privacy, cfg Config, broadcaster Broadcaster, clock Clock, logger *slog.Logger, onEmpty func(code string)) *Actor {
	if clock == nil {
		clock = RealClock
	}
	a := &Actor{
		code:           code,
		commands:       make(chan command, 64),
		done:           make(chan struct{}),
		broadcaster:    broadcaster,
		clock:          clock,
		logger:         logger.With("component", "room.actor", "room_code", code),
		reconnectGrace: cfg.ReconnectGrace,
		leaveGrace:     cfg.LeaveGrace,
		idleTimeout:    cfg.IdleTimeout,
		chatBound:      cfg.ChatBound,
		onEmpty:        onEmpty,
		room:           domain.NewRoom(code, name, kind, privacy, clock.Now()),
	}
	go a.run()
	return a
}

// Code returns the room's code.
func (a *Actor) Code() string { return a.code }

// run is the actor's single goroutine: every command is applied in
// arrival order, so readers and writers never race.
func (a *Actor) run() {
	defer close(a.done)
	for cmd := range a.commands {
		cmd(a.room)
	}
}

// submit enqueues cmd and blocks until it has been applied. It is the only
// way code outside this package touches domain.Room.
func (a *Actor) submit(ctx context.Context, cmd command) error {
	applied := make(chan struct{})
	wrapped := func(r *domain.Room) {
		cmd(r)
		close(applied)
	}
	select {
	case a.commands <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return domain.NewError(domain.CodeNotFound, "room is shutting down")
	}
	select {
	case <-applied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a consistent point-in-time view of the room.
func (a *Actor) Snapshot(ctx context.Context) (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := a.submit(ctx, func(r *domain.Room) {
		snap = domain.BuildSnapshot(r, a.clock.Now())
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Stop terminates the actor's goroutine. Called by the registry once the
// idle timer confirms the room should be destroyed.
func (a *Actor) Stop() {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	close(a.commands)
	<-a.done
}

// scheduleIdleCheck arms (or re-arms) the idle-destruction timer. Must only
// be called from within the actor's own goroutine (i.e. from inside a
// command), since it reads a.room directly.
func (a *Actor) scheduleIdleCheck(r *domain.Room) {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	if !r.Empty() {
		return
	}
	a.idleTimer = time.AfterFunc(a.idleTimeout, func() {
		_ = a.submit(context.Background(), func(r *domain.Room) {
			if r.Empty() && a.onEmpty != nil {
				a.logger.Info("room idle timeout reached, destroying")
				a.onEmpty(a.code)
			}
		})
	})
}
