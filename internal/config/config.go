// Package config defines the top-level configuration for the range market
// maker and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by RANGEMAKER_* environment variables.
type Config struct {
	Markets  []MarketConfig `toml:"markets"`
	Engine   EngineConfig   `toml:"engine"`
	Risk     RiskConfig     `toml:"risk"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig describes one market to create at startup.
type MarketConfig struct {
	ID  string  `toml:"id"`
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`

	// Policy selects the bucket layout: "fixed" or "log_decade".
	Policy     string  `toml:"policy"`
	FixedWidth float64 `toml:"fixed_width"`

	// Ceiling caps how far above max the grid may extend to admit
	// out-of-range targets. Zero uses the grid package default.
	Ceiling float64 `toml:"ceiling"`

	// Bankroll funds the maker's worst case; b = bankroll / ln(n).
	// Liquidity, when positive, sets b directly and wins over Bankroll.
	Bankroll  float64 `toml:"bankroll"`
	Liquidity float64 `toml:"liquidity"`

	// Prior selects the seed distribution: "uniform" or "lognormal".
	Prior       string  `toml:"prior"`
	PriorMedian float64 `toml:"prior_median"`
	PriorSigma  float64 `toml:"prior_sigma"`
}

// EngineConfig holds trade execution parameters.
type EngineConfig struct {
	SlippageTolerance float64  `toml:"slippage_tolerance"`
	SubmitTimeout     duration `toml:"submit_timeout"`
	OrdersPerSecond   int      `toml:"orders_per_second"`
}

// RiskConfig holds the risk controller parameters.
type RiskConfig struct {
	MaxBucketShares   float64  `toml:"max_bucket_shares"`
	MaxPositionShares float64  `toml:"max_position_shares"`
	SpreadMult        float64  `toml:"spread_mult"`
	LiquidityScale    float64  `toml:"liquidity_scale"`
	BreakerThreshold  float64  `toml:"breaker_threshold"`
	BreakerWindow     duration `toml:"breaker_window"`
	BreakerCooldown   duration `toml:"breaker_cooldown"`
	MaxRealizedLoss   float64  `toml:"max_realized_loss"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the ledger
// archive.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled           bool     `toml:"enabled"`
	Port              int      `toml:"port"`
	CORSOrigins       []string `toml:"cors_origins"`
	APIKey            string   `toml:"api_key"`
	RequestsPerSecond int      `toml:"requests_per_second"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Markets: []MarketConfig{
			{
				ID:       "default",
				Min:      1_000_000,
				Max:      300_000_000,
				Policy:   "log_decade",
				Bankroll: 10_000,
				Prior:    "uniform",
			},
		},
		Engine: EngineConfig{
			SlippageTolerance: 0.02,
			SubmitTimeout:     duration{2 * time.Second},
			OrdersPerSecond:   10,
		},
		Risk: RiskConfig{
			SpreadMult:       1.25,
			LiquidityScale:   1.5,
			BreakerThreshold: 0.20,
			BreakerWindow:    duration{time.Hour},
			BreakerCooldown:  duration{15 * time.Minute},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "rangemaker",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "rangemaker-ledger",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:           true,
			Port:              8000,
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:5173"},
			RequestsPerSecond: 50,
		},
		Notify: NotifyConfig{
			Events: []string{"circuit_breaker_tripped", "trading_paused", "market_unhealthy"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode. "local" runs
// without Postgres, Redis or S3, keeping everything in process memory.
var validModes = map[string]bool{
	"local": true,
	"full":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPolicies enumerates the accepted bucket layout policies.
var validPolicies = map[string]bool{
	"fixed":      true,
	"log_decade": true,
}

// validPriors enumerates the accepted seed distributions.
var validPriors = map[string]bool{
	"uniform":   true,
	"lognormal": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: local, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if len(c.Markets) == 0 {
		errs = append(errs, "markets: at least one market must be configured")
	}
	seen := map[string]bool{}
	for i, m := range c.Markets {
		tag := fmt.Sprintf("markets[%d]", i)
		if m.ID == "" {
			errs = append(errs, tag+": id must not be empty")
		} else if seen[m.ID] {
			errs = append(errs, fmt.Sprintf("%s: duplicate market id %q", tag, m.ID))
		}
		seen[m.ID] = true

		if m.Max <= m.Min {
			errs = append(errs, fmt.Sprintf("%s: max (%g) must exceed min (%g)", tag, m.Max, m.Min))
		}
		if !validPolicies[strings.ToLower(m.Policy)] {
			errs = append(errs, fmt.Sprintf("%s: unknown policy %q (valid: fixed, log_decade)", tag, m.Policy))
		}
		if strings.ToLower(m.Policy) == "fixed" && m.FixedWidth <= 0 {
			errs = append(errs, tag+": fixed_width must be > 0 for the fixed policy")
		}
		if strings.ToLower(m.Policy) == "log_decade" && m.Min <= 0 {
			errs = append(errs, tag+": min must be > 0 for the log_decade policy")
		}
		if m.Ceiling != 0 && m.Ceiling < m.Max {
			errs = append(errs, fmt.Sprintf("%s: ceiling (%g) must be at least max (%g)", tag, m.Ceiling, m.Max))
		}
		if m.Bankroll <= 0 && m.Liquidity <= 0 {
			errs = append(errs, tag+": either bankroll or liquidity must be > 0")
		}
		if !validPriors[strings.ToLower(m.Prior)] {
			errs = append(errs, fmt.Sprintf("%s: unknown prior %q (valid: uniform, lognormal)", tag, m.Prior))
		}
		if strings.ToLower(m.Prior) == "lognormal" {
			if m.PriorMedian <= 0 {
				errs = append(errs, tag+": prior_median must be > 0 for the lognormal prior")
			}
			if m.PriorSigma <= 0 {
				errs = append(errs, tag+": prior_sigma must be > 0 for the lognormal prior")
			}
		}
	}

	if c.Engine.SlippageTolerance < 0 || c.Engine.SlippageTolerance >= 1 {
		errs = append(errs, fmt.Sprintf("engine: slippage_tolerance must be in [0, 1), got %g", c.Engine.SlippageTolerance))
	}
	if c.Engine.SubmitTimeout.Duration <= 0 {
		errs = append(errs, "engine: submit_timeout must be > 0")
	}
	if c.Engine.OrdersPerSecond < 0 {
		errs = append(errs, "engine: orders_per_second must be >= 0")
	}

	if c.Risk.SpreadMult < 1 {
		errs = append(errs, "risk: spread_mult must be >= 1")
	}
	if c.Risk.LiquidityScale < 1 {
		errs = append(errs, "risk: liquidity_scale must be >= 1")
	}
	if c.Risk.BreakerThreshold <= 0 || c.Risk.BreakerThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("risk: breaker_threshold must be in (0, 1), got %g", c.Risk.BreakerThreshold))
	}
	if c.Risk.MaxBucketShares < 0 || c.Risk.MaxPositionShares < 0 || c.Risk.MaxRealizedLoss < 0 {
		errs = append(errs, "risk: share and loss limits must be >= 0 (zero disables)")
	}

	full := strings.ToLower(c.Mode) == "full"
	if full {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		if c.S3.Enabled {
			if c.S3.Endpoint == "" {
				errs = append(errs, "s3: endpoint must not be empty when enabled")
			}
			if c.S3.Bucket == "" {
				errs = append(errs, "s3: bucket must not be empty when enabled")
			}
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RequestsPerSecond < 0 {
			errs = append(errs, "server: requests_per_second must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
