package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path, merges it over the defaults, applies
// PLAYMARK_* environment overrides, and returns the result. The caller is
// expected to invoke Validate afterwards.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// A .env file is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites config fields from well-known PLAYMARK_*
// variables, so operators can inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// Database
	setStr(&cfg.Database.DSN, "PLAYMARK_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "PLAYMARK_DATABASE_HOST")
	setInt(&cfg.Database.Port, "PLAYMARK_DATABASE_PORT")
	setStr(&cfg.Database.Database, "PLAYMARK_DATABASE_NAME")
	setStr(&cfg.Database.User, "PLAYMARK_DATABASE_USER")
	setStr(&cfg.Database.Password, "PLAYMARK_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "PLAYMARK_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "PLAYMARK_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "PLAYMARK_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "PLAYMARK_DATABASE_RUN_MIGRATIONS")

	// Redis
	setBool(&cfg.Redis.Enabled, "PLAYMARK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PLAYMARK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PLAYMARK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PLAYMARK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PLAYMARK_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PLAYMARK_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PLAYMARK_REDIS_TLS_ENABLED")

	// S3
	setBool(&cfg.S3.Enabled, "PLAYMARK_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PLAYMARK_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PLAYMARK_S3_REGION")
	setStr(&cfg.S3.Bucket, "PLAYMARK_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PLAYMARK_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PLAYMARK_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PLAYMARK_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PLAYMARK_S3_FORCE_PATH_STYLE")

	// Auth
	setStr(&cfg.Auth.TokenSecret, "PLAYMARK_AUTH_TOKEN_SECRET")
	setStringSlice(&cfg.Auth.AdminEmails, "PLAYMARK_AUTH_ADMIN_EMAILS")
	setStringSlice(&cfg.Auth.AdminEmails, "ADMIN_EMAILS") // compatibility alias
	setStr(&cfg.Auth.CronSecret, "PLAYMARK_AUTH_CRON_SECRET")
	setStr(&cfg.Auth.CronSecret, "CRON_SECRET") // compatibility alias

	// Ledger
	setDuration(&cfg.Ledger.SweepInterval, "PLAYMARK_LEDGER_SWEEP_INTERVAL")
	setDuration(&cfg.Ledger.ArchiveInterval, "PLAYMARK_LEDGER_ARCHIVE_INTERVAL")

	// Server
	setInt(&cfg.Server.Port, "PLAYMARK_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PLAYMARK_SERVER_CORS_ORIGINS")

	// Notify
	setStr(&cfg.Notify.TelegramToken, "PLAYMARK_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PLAYMARK_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PLAYMARK_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PLAYMARK_NOTIFY_EVENTS")

	// Top-level
	setStr(&cfg.Mode, "PLAYMARK_MODE")
	setStr(&cfg.LogLevel, "PLAYMARK_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the variable is
// present and non-empty.

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
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
