// Package config loads SyncRoom's process configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// We use a struct (not globals) so it's testable and explicit.
type Config struct {
	// Server
	ServerAddr string
	Env        string // "development" or "production"

	// Identity resolution (the real auth provider is an external
	// collaborator; this key only backs the default JWT-based resolver
	// used for local/dev use, see internal/auth).
	IdentitySigningKey string

	// Room registry / room actor timers
	ChatBound           int
	ReconnectGraceTimer time.Duration // T_reconnect
	LeaveGraceTimer     time.Duration // T_grace
	RoomIdleTimer       time.Duration // T_idle

	// WebRTC / TURN / ICE
	ICESTUNURLs  []string
	ICETURNURLs  []string
	TURNUsername string
	TURNPassword string

	// SFU bridge
	SFUWorkerCount      int
	SFURTPPortMin       int
	SFURTPPortMax       int
	SFUAnnouncedIP      string // environment override, step 1 of the precedence
	SFUProbeTimeout     time.Duration
	WorkerDeathExitWait time.Duration

	// PubSub backend (in-process fan-out bus, not room-state sharding —
	// cross-process room sharding is out of scope: authoritative room
	// state always stays single-process/single-actor, Redis here only
	// widens the broadcast transport)
	PubSubBackend string // "memory" or "redis"
	RedisURL      string

	// Anti-abuse
	CreateRoomPerMinute int

	// CORSAllowedOrigin is the single origin the CORS middleware grants
	// Access-Control-Allow-* headers to in production; ignored in
	// development, where any origin is granted so the frontend can be
	// reached from a phone on the local network. Requests from other
	// origins are not rejected, and WebSocket upgrades accept any origin.
	CORSAllowedOrigin string
}

// Load reads configuration from the environment, first loading a local
// .env file if present (grounded in s3gfaultx-broadcast-box and
// RoseWrightdev-Video-Conferencing, both of which load .env via godotenv
// before reading os.Getenv; the teacher itself does not use godotenv).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr: getEnvOrDefault("SERVER_ADDR", "0.0.0.0:8080"),
		Env:        getEnvOrDefault("APP_ENV", "development"),

		IdentitySigningKey: os.Getenv("IDENTITY_SIGNING_KEY"),

		ChatBound:           getEnvInt("CHAT_BOUND", 200),
		ReconnectGraceTimer: getEnvDuration("RECONNECT_GRACE", 5*time.Second),
		LeaveGraceTimer:     getEnvDuration("LEAVE_GRACE", 3*time.Second),
		RoomIdleTimer:       getEnvDuration("ROOM_IDLE_TIMEOUT", 60*time.Second),

		ICESTUNURLs:  splitEnv("ICE_STUN_URLS", "stun:stun.l.google.com:19302"),
		ICETURNURLs:  splitEnv("ICE_TURN_URLS", ""),
		TURNUsername: os.Getenv("TURN_USERNAME"),
		TURNPassword: os.Getenv("TURN_PASSWORD"),

		SFUWorkerCount:      getEnvInt("SFU_WORKER_COUNT", 2),
		SFURTPPortMin:       getEnvInt("SFU_RTP_PORT_MIN", 40000),
		SFURTPPortMax:       getEnvInt("SFU_RTP_PORT_MAX", 49999),
		SFUAnnouncedIP:      os.Getenv("SFU_ANNOUNCED_IP"),
		SFUProbeTimeout:     getEnvDuration("SFU_PROBE_TIMEOUT", 3*time.Second),
		WorkerDeathExitWait: getEnvDuration("WORKER_DEATH_EXIT_WAIT", 2*time.Second),

		PubSubBackend: getEnvOrDefault("PUBSUB_TYPE", "memory"),
		RedisURL:      os.Getenv("REDIS_URL"),

		CreateRoomPerMinute: getEnvInt("CREATE_ROOM_PER_MIN", 10),

		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.PubSubBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when PUBSUB_TYPE=redis")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

// splitEnv splits a comma-separated env var into a slice
func splitEnv(key, defaultVal string) []string {
	val := os.Getenv(key)
	if val == "" {
		val = defaultVal
	}
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
