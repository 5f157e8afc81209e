package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/syncroom/server/internal/auth"
	"github.com/syncroom/server/internal/config"
	"github.com/syncroom/server/internal/gateway"
	"github.com/syncroom/server/internal/pubsub"
	"github.com/syncroom/server/internal/registry"
	"github.com/syncroom/server/internal/room"
	"github.com/syncroom/server/internal/server"
	"github.com/syncroom/server/internal/sfu"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	signingKey := cfg.IdentitySigningKey
	if signingKey == "" {
		if cfg.IsDevelopment() {
			signingKey = "dev-signing-key-do-not-use-in-production!!" // 42 chars
			slog.Warn("using default identity signing key - DO NOT USE IN PRODUCTION")
		} else {
			slog.Error("IDENTITY_SIGNING_KEY is required in production")
			os.Exit(1)
		}
	}
	resolver, err := auth.NewJWTResolver(signingKey)
	if err != nil {
		slog.Error("failed to create identity resolver", "error", err)
		os.Exit(1)
	}

	ps, err := newPubSub(cfg, logger)
	if err != nil {
		slog.Error("failed to initialize pubsub", "error", err)
		os.Exit(1)
	}
	defer ps.Close()

	broadcaster := room.NewPubSubBroadcaster(ps)

	bridge := sfu.NewBridge(sfu.Config{
		WorkerCount:     cfg.SFUWorkerCount,
		AnnouncedIP:     cfg.SFUAnnouncedIP,
		Production:      !cfg.IsDevelopment(),
		ProbeTimeout:    cfg.SFUProbeTimeout,
		WorkerDeathWait: cfg.WorkerDeathExitWait,
		STUNURLs:        cfg.ICESTUNURLs,
		TURNURLs:        cfg.ICETURNURLs,
		TURNUsername:    cfg.TURNUsername,
		TURNPassword:    cfg.TURNPassword,
	}, broadcaster, logger)

	reg := registry.New(room.Config{
		ReconnectGrace: cfg.ReconnectGraceTimer,
		LeaveGrace:     cfg.LeaveGraceTimer,
		IdleTimeout:    cfg.RoomIdleTimer,
		ChatBound:      cfg.ChatBound,
	}, broadcaster, room.RealClock, logger, cfg.CreateRoomPerMinute)
	reg.SetDestroyHook(bridge.DestroyRouter)

	dispatcher := gateway.NewDispatcher(reg, bridge, resolver, ps, logger)
	gw := gateway.NewGateway(dispatcher, logger)

	deps := &server.Dependencies{
		Gateway:  gw,
		Registry: reg,
		Logger:   logger,
	}
	srv := server.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCtx.Done()
	slog.Info("shutting down gracefully...")

	timeoutCtx, timeoutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer timeoutCancel()

	if err := srv.Shutdown(timeoutCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}

func newPubSub(cfg *config.Config, logger *slog.Logger) (pubsub.PubSub, error) {
	if cfg.PubSubBackend == "redis" {
		logger.Info("using redis pubsub backend")
		return pubsub.NewRedisPubSub(cfg.RedisURL)
	}
	logger.Info("using in-memory pubsub backend")
	return pubsub.NewMemoryPubSub(), nil
}
