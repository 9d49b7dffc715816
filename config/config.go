/*
Package config loads runtime configuration from the environment.

A .env file, when present, is loaded first via godotenv; real
environment variables win. Every setting has a default so the server
runs out of the box with an in-process SQLite database and no provider
configured.
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Port is the HTTP listen port.
	Port string

	// DBBackend selects the store: "sqlite", "postgres", or "memory".
	DBBackend string

	// DBPath is the SQLite database path (":memory:" allowed).
	DBPath string

	// DBSource is the PostgreSQL connection string, required when
	// DBBackend is "postgres".
	DBSource string

	// ProviderBaseURL/ProviderToken configure the invoicing provider
	// feed. Empty base URL means no provider: syncs fail fast instead of
	// silently running against nothing.
	ProviderBaseURL string
	ProviderToken   string

	// SyncInterval and TickInterval drive the background scheduler.
	// Zero disables the corresponding job.
	SyncInterval time.Duration
	TickInterval time.Duration

	// SettlementMode is "preserve-local" (default) or "provider".
	SettlementMode string
}

func Load() (*Config, error) {
	// Missing .env is fine; env vars may come from the real environment.
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		DBBackend:       getenv("DB_BACKEND", "sqlite"),
		DBPath:          getenv("DB_PATH", "bookkeeper.db"),
		DBSource:        os.Getenv("DB_SOURCE"),
		ProviderBaseURL: os.Getenv("PROVIDER_BASE_URL"),
		ProviderToken:   os.Getenv("PROVIDER_TOKEN"),
		SettlementMode:  getenv("SETTLEMENT_MODE", "preserve-local"),
	}

	var err error
	if cfg.SyncInterval, err = getDuration("SYNC_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = getDuration("TICK_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}

	switch cfg.DBBackend {
	case "sqlite", "memory":
	case "postgres":
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE is required when DB_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown DB_BACKEND %q", cfg.DBBackend)
	}

	switch cfg.SettlementMode {
	case "preserve-local", "provider":
	default:
		return nil, fmt.Errorf("unknown SETTLEMENT_MODE %q", cfg.SettlementMode)
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
