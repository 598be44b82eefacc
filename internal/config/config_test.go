package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	// Change to temp dir so no config.yaml is found
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "mdm.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, 2, cfg.Batch.FlushIntervalSecs)
	assert.Equal(t, "anthropic", cfg.Resolver.Provider)
	assert.Equal(t, 30, cfg.Resolver.TimeoutSecs)
	assert.Equal(t, 3, cfg.Resolver.MaxAttempts)
	assert.Equal(t, 500, cfg.Resolver.InitialBackoffMs)
	assert.Equal(t, 30000, cfg.Resolver.MaxBackoffMs)
	assert.Equal(t, 5, cfg.Resolver.BreakerThreshold)
	assert.Equal(t, 30, cfg.Resolver.BreakerResetSecs)
	assert.InDelta(t, 0.6, cfg.Resolver.DefaultConfidence, 0.001)
	assert.Equal(t, 256, cfg.Resolver.MaxTokens)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Empty(t, cfg.Ingest.MappingFile)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitoring.LookbackHours)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.5, cfg.Monitoring.ReviewShareThreshold, 0.001)
	assert.Equal(t, 30, cfg.Monitoring.StuckJobMins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/mdm
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  concurrency: 8
resolver:
  provider: gemini
  timeout_secs: 10
monitoring:
  enabled: true
  webhook_url: https://hooks.example.com/mdm
  failure_rate_threshold: 0.1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/mdm", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, "gemini", cfg.Resolver.Provider)
	assert.Equal(t, 10, cfg.Resolver.TimeoutSecs)
	assert.True(t, cfg.Monitoring.Enabled)
	assert.Equal(t, "https://hooks.example.com/mdm", cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.1, cfg.Monitoring.FailureRateThreshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Resolver.MaxAttempts)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, 300, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("MDM_STORE_DRIVER", "postgres")
	t.Setenv("MDM_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MDM_SERVER_PORT", "3000")
	t.Setenv("MDM_ANTHROPIC_KEY", "sk-ant-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sk-ant-test", cfg.Anthropic.Key)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: ["), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "mdm.db"
	cfg.Batch.Concurrency = 4
	cfg.Resolver.Provider = "anthropic"
	cfg.Resolver.DefaultConfidence = 0.6
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
}

func TestValidateRun_GeminiProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.Provider = "gemini"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini.key is required")

	cfg.Gemini.Key = "AIza-test"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.Provider = "openai"

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver.provider must be anthropic or gemini")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateInspect_NoKeysNeeded(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("inspect"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 33
	err = cfg.Validate("inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 32
	assert.NoError(t, cfg.Validate("inspect"))
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateConfidenceBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.DefaultConfidence = 1.5

	err := cfg.Validate("inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver.default_confidence")
}
