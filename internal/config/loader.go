package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path (skipped when path is empty or the file
// does not exist) over Defaults, loads .env if present, and applies
// environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Plain names kept for existing deployments.
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Storage.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.Redis.URL, "REDIS_URL")
	setStr(&cfg.Auth.JWTSecret, "JWT_SECRET")

	setInt(&cfg.Server.Port, "TRADEQUEST_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "TRADEQUEST_SERVER_CORS_ORIGINS")

	setStr(&cfg.Auth.JWTSecret, "TRADEQUEST_AUTH_JWT_SECRET")
	setDuration(&cfg.Auth.TokenTTL, "TRADEQUEST_AUTH_TOKEN_TTL")

	setStr(&cfg.Storage.Backend, "TRADEQUEST_STORAGE_BACKEND")
	setStr(&cfg.Storage.DatabaseURL, "TRADEQUEST_STORAGE_DATABASE_URL")
	setStr(&cfg.Storage.MigrationsPath, "TRADEQUEST_STORAGE_MIGRATIONS_PATH")
	setStr(&cfg.Storage.SQLitePath, "TRADEQUEST_STORAGE_SQLITE_PATH")

	setStr(&cfg.Redis.URL, "TRADEQUEST_REDIS_URL")

	setFloat64(&cfg.Ledger.InitialCapital, "TRADEQUEST_LEDGER_INITIAL_CAPITAL")
	setStr(&cfg.Ledger.ShortPolicy, "TRADEQUEST_LEDGER_SHORT_POLICY")

	setDuration(&cfg.Feed.TickInterval, "TRADEQUEST_FEED_TICK_INTERVAL")
	setInt64(&cfg.Feed.Seed, "TRADEQUEST_FEED_SEED")

	setBool(&cfg.Archive.Enabled, "TRADEQUEST_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Schedule, "TRADEQUEST_ARCHIVE_SCHEDULE")
	setStr(&cfg.Archive.Endpoint, "TRADEQUEST_ARCHIVE_ENDPOINT")
	setStr(&cfg.Archive.Region, "TRADEQUEST_ARCHIVE_REGION")
	setStr(&cfg.Archive.Bucket, "TRADEQUEST_ARCHIVE_BUCKET")
	setStr(&cfg.Archive.AccessKey, "TRADEQUEST_ARCHIVE_ACCESS_KEY")
	setStr(&cfg.Archive.SecretKey, "TRADEQUEST_ARCHIVE_SECRET_KEY")
	setBool(&cfg.Archive.ForcePathStyle, "TRADEQUEST_ARCHIVE_FORCE_PATH_STYLE")

	setStr(&cfg.LogLevel, "TRADEQUEST_LOG_LEVEL")
}

// Each helper only touches dst when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
