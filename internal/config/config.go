// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the lottery service.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// DBURL selects the Postgres document store. When empty and DB.Host is
	// empty too, an in-memory store is used.
	DBURL string   `env:"DB_URL"`
	DB    DBConfig `envPrefix:"DB_"`

	NotificationsDBPath string `env:"NOTIFICATIONS_DB_PATH" envDefault:"data/notifications.db"`

	ProfileSyncBackoff time.Duration `env:"PROFILE_SYNC_BACKOFF" envDefault:"60s"`
	ProfileSyncIdle    time.Duration `env:"PROFILE_SYNC_IDLE" envDefault:"10m"`
	NotifyConcurrency  int           `env:"NOTIFY_CONCURRENCY" envDefault:"8"`
	ReconcileSchedule  string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 1m"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

// DBConfig holds discrete PostgreSQL connection settings.
type DBConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:"postgres"`
	Name     string `env:"NAME" envDefault:"eventlottery"`
	SSLMode  string `env:"SSLMODE" envDefault:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// PostgresDSN returns the connection string to use, or "" when Postgres is not configured.
func (c Config) PostgresDSN() string {
	if url := strings.TrimSpace(c.DBURL); url != "" {
		return url
	}
	if strings.TrimSpace(c.DB.Host) != "" {
		return c.DB.DSN()
	}
	return ""
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads an optional .env file and parses the environment into Config.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.NotifyConcurrency <= 0 {
		return Config{}, fmt.Errorf("NOTIFY_CONCURRENCY must be positive, got %d", cfg.NotifyConcurrency)
	}
	if cfg.ProfileSyncBackoff <= 0 {
		return Config{}, fmt.Errorf("PROFILE_SYNC_BACKOFF must be positive, got %s", cfg.ProfileSyncBackoff)
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
