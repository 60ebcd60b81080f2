// Package config loads environment-driven settings for the API server.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config stores environment-driven settings for accessdesk-api.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"ACCESSDESK_ADDR" envDefault:":8080"`
	// GRPCAddr enables the gRPC health listener when non-empty.
	GRPCAddr string `env:"ACCESSDESK_GRPC_ADDR"`
	// PGDSN selects the Postgres repository when set; otherwise the
	// in-memory repository is used.
	PGDSN string `env:"ACCESSDESK_PG_DSN"`
	// SeedUsers is a comma-separated email:role:password list registered
	// into the token directory at startup.
	SeedUsers string `env:"ACCESSDESK_SEED_USERS"`
	// TokenTTL bounds issued access token lifetime.
	TokenTTL time.Duration `env:"ACCESSDESK_TOKEN_TTL" envDefault:"15m"`
	// RateBurst and RatePerSec tune the per-client token bucket.
	RateBurst  int `env:"ACCESSDESK_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"ACCESSDESK_RATE_PER_SEC" envDefault:"10"`
	// ShutdownTimeout controls graceful shutdown duration.
	ShutdownTimeout time.Duration `env:"ACCESSDESK_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses environment variables into Config.
func Load() (Config, error) {
	return env.ParseAs[Config]()
}
