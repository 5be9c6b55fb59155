// Package config defines the service configuration and its validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Config is populated from an optional TOML file and then overridden by
// environment variables.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Feed     FeedConfig     `toml:"feed"`
	Archive  ArchiveConfig  `toml:"archive"`
	LogLevel string         `toml:"log_level"`
}

type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

type AuthConfig struct {
	JWTSecret string   `toml:"jwt_secret"`
	TokenTTL  duration `toml:"token_ttl"`
}

// StorageConfig selects the key-value backend for ledgers and users:
// "postgres", "redis", "sqlite" or "memory".
type StorageConfig struct {
	Backend        string   `toml:"backend"`
	DatabaseURL    string   `toml:"database_url"`
	MigrationsPath string   `toml:"migrations_path"`
	SQLitePath     string   `toml:"sqlite_path"`
	MaxOpenConns   int      `toml:"max_open_conns"`
	MaxIdleConns   int      `toml:"max_idle_conns"`
	ConnMaxLife    duration `toml:"conn_max_lifetime"`
}

// RedisConfig is optional unless the storage backend is redis. Without it
// quotes are kept in process.
type RedisConfig struct {
	URL string `toml:"url"`
}

type LedgerConfig struct {
	InitialCapital float64 `toml:"initial_capital"`
	// ShortPolicy is "allow" or "deny".
	ShortPolicy string `toml:"short_policy"`
}

type FeedConfig struct {
	TickInterval duration `toml:"tick_interval"`
	// Seed of 0 seeds from the clock.
	Seed int64 `toml:"seed"`
}

type ArchiveConfig struct {
	Enabled        bool   `toml:"enabled"`
	Schedule       string `toml:"schedule"`
	Prefix         string `toml:"prefix"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration lets the TOML decoder read strings like "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:         8080,
			CORSOrigins:  []string{"http://localhost:5173"},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{15 * time.Second},
		},
		Auth: AuthConfig{TokenTTL: duration{24 * time.Hour}},
		Storage: StorageConfig{
			Backend:        "sqlite",
			MigrationsPath: "migrations",
			SQLitePath:     "tradequest.db",
			MaxOpenConns:   25,
			MaxIdleConns:   5,
			ConnMaxLife:    duration{5 * time.Minute},
		},
		Ledger: LedgerConfig{InitialCapital: 10000, ShortPolicy: "allow"},
		Feed:   FeedConfig{TickInterval: duration{2 * time.Second}},
		Archive: ArchiveConfig{
			Schedule: "@hourly",
			Prefix:   "ledgers",
		},
		LogLevel: "info",
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres backend"))
		}
	case "redis":
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis backend"))
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite backend"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of postgres, redis, sqlite, memory", c.Storage.Backend))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Ledger.InitialCapital <= 0 {
		errs = append(errs, errors.New("ledger.initial_capital must be positive"))
	}
	if p := c.Ledger.ShortPolicy; p != "allow" && p != "deny" {
		errs = append(errs, fmt.Errorf("ledger.short_policy %q must be allow or deny", p))
	}
	if c.Feed.TickInterval.Duration <= 0 {
		errs = append(errs, errors.New("feed.tick_interval must be positive"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Archive.Enabled {
		if c.Archive.Bucket == "" || c.Archive.Region == "" {
			errs = append(errs, errors.New("archive.bucket and archive.region are required when the archive is enabled"))
		}
		if c.Archive.Schedule == "" {
			errs = append(errs, errors.New("archive.schedule is required when the archive is enabled"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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
