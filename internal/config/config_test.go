package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
mode = "serve"

[postgres]
database = "markets"

[engine]
amm_fee_bps = 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "markets", cfg.Postgres.Database)
	assert.Equal(t, uint64(50), cfg.Engine.AMMFeeBps)
	// Untouched fields keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `mode = "serve"`)

	t.Setenv("PREDENGINE_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("PREDENGINE_SERVER_PORT", "9001")
	t.Setenv("PREDENGINE_ENGINE_MIN_ORDER_AMOUNT", "25")
	t.Setenv("PREDENGINE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, uint64(25), cfg.Engine.MinOrderAmount)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "race"
	cfg.Redis.Addr = ""
	cfg.Engine.AMMFeeBps = 10000

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "amm_fee_bps")
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Server.APIKey = "key"
	cfg.Notify.TelegramToken = "token"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)
	// The original is untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)
	// Empty secrets stay empty rather than gaining a placeholder.
	assert.Empty(t, red.Redis.Password)
}
