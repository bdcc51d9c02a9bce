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
// built-in defaults, applies RANGEMAKER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
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

// applyEnvOverrides reads well-known RANGEMAKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file. Per-market fields have no overrides; markets come from the file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setFloat64(&cfg.Engine.SlippageTolerance, "RANGEMAKER_ENGINE_SLIPPAGE_TOLERANCE")
	setDuration(&cfg.Engine.SubmitTimeout, "RANGEMAKER_ENGINE_SUBMIT_TIMEOUT")
	setInt(&cfg.Engine.OrdersPerSecond, "RANGEMAKER_ENGINE_ORDERS_PER_SECOND")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxBucketShares, "RANGEMAKER_RISK_MAX_BUCKET_SHARES")
	setFloat64(&cfg.Risk.MaxPositionShares, "RANGEMAKER_RISK_MAX_POSITION_SHARES")
	setFloat64(&cfg.Risk.SpreadMult, "RANGEMAKER_RISK_SPREAD_MULT")
	setFloat64(&cfg.Risk.LiquidityScale, "RANGEMAKER_RISK_LIQUIDITY_SCALE")
	setFloat64(&cfg.Risk.BreakerThreshold, "RANGEMAKER_RISK_BREAKER_THRESHOLD")
	setDuration(&cfg.Risk.BreakerWindow, "RANGEMAKER_RISK_BREAKER_WINDOW")
	setDuration(&cfg.Risk.BreakerCooldown, "RANGEMAKER_RISK_BREAKER_COOLDOWN")
	setFloat64(&cfg.Risk.MaxRealizedLoss, "RANGEMAKER_RISK_MAX_REALIZED_LOSS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "RANGEMAKER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "RANGEMAKER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RANGEMAKER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "RANGEMAKER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "RANGEMAKER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "RANGEMAKER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "RANGEMAKER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "RANGEMAKER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "RANGEMAKER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "RANGEMAKER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "RANGEMAKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "RANGEMAKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "RANGEMAKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "RANGEMAKER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "RANGEMAKER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "RANGEMAKER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "RANGEMAKER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "RANGEMAKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "RANGEMAKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "RANGEMAKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "RANGEMAKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "RANGEMAKER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "RANGEMAKER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "RANGEMAKER_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "RANGEMAKER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "RANGEMAKER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "RANGEMAKER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "RANGEMAKER_SERVER_API_KEY")
	setInt(&cfg.Server.RequestsPerSecond, "RANGEMAKER_SERVER_REQUESTS_PER_SECOND")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "RANGEMAKER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "RANGEMAKER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "RANGEMAKER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "RANGEMAKER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "RANGEMAKER_MODE")
	setStr(&cfg.LogLevel, "RANGEMAKER_LOG_LEVEL")
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
