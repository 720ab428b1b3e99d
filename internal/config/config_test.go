package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.TokenSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "banana"
	cfg.Server.Port = 0
	cfg.Ledger.SweepInterval = duration{}
	// TokenSecret left empty on purpose.

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "server: port")
	assert.Contains(t, err.Error(), "sweep_interval")
	assert.Contains(t, err.Error(), "token_secret")
}

func TestValidateOptionalBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.TokenSecret = "secret"

	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: addr")

	// Disabled backends are not validated.
	cfg.Redis.Enabled = false
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "serve"
log_level = "debug"

[database]
dsn = "postgres://postgres@localhost:5432/playmark"

[redis]
enabled = false

[auth]
token_secret = "from-file"
admin_emails = ["admin@example.com"]

[ledger]
sweep_interval = "30s"

[server]
port = 9090
cors_origins = ["https://playmark.example.com"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://postgres@localhost:5432/playmark", cfg.Database.DSN)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "from-file", cfg.Auth.TokenSecret)
	assert.Equal(t, 30*time.Second, cfg.Ledger.SweepInterval.Duration)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, 6*time.Hour, cfg.Ledger.ArchiveInterval.Duration)
	assert.Equal(t, "playmark-archive", cfg.S3.Bucket)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[auth]
token_secret = "from-file"
`), 0o600))

	t.Setenv("PLAYMARK_AUTH_TOKEN_SECRET", "from-env")
	t.Setenv("PLAYMARK_SERVER_PORT", "7070")
	t.Setenv("PLAYMARK_REDIS_ENABLED", "false")
	t.Setenv("PLAYMARK_LEDGER_SWEEP_INTERVAL", "5m")
	t.Setenv("ADMIN_EMAILS", "a@example.com, b@example.com,")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.TokenSecret)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Ledger.SweepInterval.Duration)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.Auth.AdminEmails)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
