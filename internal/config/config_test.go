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
	assert.NoError(t, cfg.Validate())
}

func TestValidateModes(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	assert.ErrorContains(t, cfg.Validate(), "unknown mode")

	cfg = Defaults()
	cfg.Mode = "local"
	// Local mode skips the infrastructure checks entirely.
	cfg.Postgres.Host = ""
	cfg.Redis.Addr = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidateMarkets(t *testing.T) {
	cfg := Defaults()
	cfg.Markets = nil
	assert.ErrorContains(t, cfg.Validate(), "at least one market")

	cfg = Defaults()
	cfg.Markets = append(cfg.Markets, cfg.Markets[0])
	assert.ErrorContains(t, cfg.Validate(), "duplicate market id")

	cfg = Defaults()
	cfg.Markets[0].Min = 500
	cfg.Markets[0].Max = 100
	assert.ErrorContains(t, cfg.Validate(), "must exceed min")

	cfg = Defaults()
	cfg.Markets[0].Policy = "fixed"
	cfg.Markets[0].FixedWidth = 0
	assert.ErrorContains(t, cfg.Validate(), "fixed_width")

	cfg = Defaults()
	cfg.Markets[0].Bankroll = 0
	assert.ErrorContains(t, cfg.Validate(), "bankroll or liquidity")

	cfg = Defaults()
	cfg.Markets[0].Prior = "lognormal"
	assert.ErrorContains(t, cfg.Validate(), "prior_median")

	cfg = Defaults()
	cfg.Markets[0].Ceiling = cfg.Markets[0].Max / 2
	assert.ErrorContains(t, cfg.Validate(), "ceiling")
}

func TestValidateEngineAndRisk(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.SlippageTolerance = 1.5
	assert.ErrorContains(t, cfg.Validate(), "slippage_tolerance")

	cfg = Defaults()
	cfg.Risk.BreakerThreshold = 0
	assert.ErrorContains(t, cfg.Validate(), "breaker_threshold")

	cfg = Defaults()
	cfg.Risk.SpreadMult = 0.5
	assert.ErrorContains(t, cfg.Validate(), "spread_mult")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
mode = "local"
log_level = "debug"

[[markets]]
id = "btc-eoy"
min = 10000.0
max = 500000.0
policy = "fixed"
fixed_width = 10000.0
bankroll = 25000.0
prior = "uniform"

[engine]
slippage_tolerance = 0.05
submit_timeout = "5s"

[server]
port = 9000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "local", cfg.Mode)
	require.Len(t, cfg.Markets, 1)
	assert.Equal(t, "btc-eoy", cfg.Markets[0].ID)
	assert.Equal(t, 0.05, cfg.Engine.SlippageTolerance)
	assert.Equal(t, 5*time.Second, cfg.Engine.SubmitTimeout.Duration)
	assert.Equal(t, 9000, cfg.Server.Port)
	// Untouched sections keep their defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = \"local\"\n"), 0o644))

	t.Setenv("RANGEMAKER_SERVER_PORT", "9443")
	t.Setenv("RANGEMAKER_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("RANGEMAKER_RISK_BREAKER_WINDOW", "30m")
	t.Setenv("RANGEMAKER_NOTIFY_EVENTS", "trading_paused, circuit_breaker_tripped")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 30*time.Minute, cfg.Risk.BreakerWindow.Duration)
	assert.Equal(t, []string{"trading_paused", "circuit_breaker_tripped"}, cfg.Notify.Events)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.AccessKey = "AKIA123"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "secret"
	cfg.Notify.TelegramToken = "secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// The original is untouched.
	assert.Equal(t, "secret", cfg.Postgres.Password)

	// Empty secrets stay empty rather than gaining a placeholder.
	assert.Empty(t, red.Notify.DiscordWebhookURL)
}
