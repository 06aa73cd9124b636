package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDENGINE_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PREDENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDENGINE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDENGINE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDENGINE_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setUint64(&cfg.Engine.MinOrderAmount, "PREDENGINE_ENGINE_MIN_ORDER_AMOUNT")
	setUint64(&cfg.Engine.AMMFeeBps, "PREDENGINE_ENGINE_AMM_FEE_BPS")
	setStr(&cfg.Engine.Operator, "PREDENGINE_ENGINE_OPERATOR")
	setInt(&cfg.Engine.PlaceOrderRateLimit, "PREDENGINE_ENGINE_PLACE_ORDER_RATE_LIMIT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PREDENGINE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PREDENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PREDENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDENGINE_SERVER_CORS_ORIGINS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDENGINE_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PREDENGINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "PREDENGINE_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Cron, "PREDENGINE_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDENGINE_NOTIFY_EVENTS")
	setUint64(&cfg.Notify.LargeTradeAmount, "PREDENGINE_NOTIFY_LARGE_TRADE_AMOUNT")
	setUint64(&cfg.Notify.LargeSwapInput, "PREDENGINE_NOTIFY_LARGE_SWAP_INPUT")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDENGINE_MODE")
	setStr(&cfg.LogLevel, "PREDENGINE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

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

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
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
