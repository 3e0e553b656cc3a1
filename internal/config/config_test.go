package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"

parse:
  rules_dir: "./test-rules"
  sample_limit: 500
  max_size_mb: 5
  mask_pii: true
  default_dayfirst: true

webhook:
  enabled: true
  require_auth: true
  api_keys:
    partner: "tok-123"
  hmac_secrets:
    default: "s3cret"
  clock_skew_seconds: 60
  workers: 8
  output_dir: "./test-out"

adapters:
  json:
    exports: ["envelope"]
    gzip: true
  warehouse:
    enabled: true
    database_url: "postgres://localhost/ute"
    default_table: "invoices"

redis:
  enabled: true
  addr: "redis:6379"
  rate_per_minute: 30
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Test parse config
	assert.Equal(t, "./test-rules", cfg.Parse.RulesDir)
	assert.Equal(t, 500, cfg.Parse.SampleLimit)
	assert.Equal(t, 5*1024*1024, cfg.Parse.MaxSizeBytes())
	assert.True(t, cfg.Parse.MaskPII)
	assert.True(t, cfg.Parse.DefaultDayfirst)

	// Test webhook config
	assert.True(t, cfg.Webhook.Enabled)
	assert.True(t, cfg.Webhook.RequireAuth)
	assert.Equal(t, "tok-123", cfg.Webhook.APIKeys["partner"])
	assert.Equal(t, "s3cret", cfg.Webhook.HMACSecrets["default"])
	assert.Equal(t, 8, cfg.Webhook.Workers)
	assert.Equal(t, "./test-out", cfg.Webhook.OutputDir)

	// Test adapters config
	assert.Equal(t, []string{"envelope"}, cfg.Adapters.JSON.Exports)
	assert.True(t, cfg.Adapters.JSON.Gzip)
	assert.True(t, cfg.Adapters.Warehouse.Enabled)
	assert.Equal(t, "invoices", cfg.Adapters.Warehouse.DefaultTable)

	// Test redis config
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 30, cfg.Redis.RatePerMinute)
}

func TestLoadDefaults(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
webhook:
  enabled: true
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Verify defaults are applied
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 200, cfg.Parse.SampleLimit)
	assert.Equal(t, 10, cfg.Parse.HeaderSearchMax)
	assert.Equal(t, "json", cfg.Parse.DefaultAdapter)
	assert.Equal(t, 300, cfg.Webhook.ClockSkewSeconds)
	assert.Equal(t, 4, cfg.Webhook.Workers)
	assert.Equal(t, []string{"envelope", "ndjson"}, cfg.Adapters.JSON.Exports)
	assert.Equal(t, "append", cfg.Adapters.Sheets.DefaultMode)
	assert.Equal(t, "imports", cfg.Adapters.Warehouse.DefaultTable)
	assert.Equal(t, 120, cfg.Redis.RatePerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Parse.DefaultDayfirst, "ambiguous dates default to day-first")
}

func TestDayfirstExplicitFalseKept(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
parse:
  default_dayfirst: false
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.False(t, cfg.Parse.DefaultDayfirst)
}

func TestLoadFromEnv(t *testing.T) {
	// Create a minimal config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
parse:
  rules_dir: "file-rules"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	// Set environment variables
	os.Setenv("UTE_RULES_DIR", "env-rules")
	os.Setenv("DATABASE_URL", "postgres://env-host/ute")
	os.Setenv("WEBHOOK_HMAC_SECRET", "env-secret")
	defer func() {
		os.Unsetenv("UTE_RULES_DIR")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("WEBHOOK_HMAC_SECRET")
	}()

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "env-rules", cfg.Parse.RulesDir)
	assert.Equal(t, "postgres://env-host/ute", cfg.Adapters.Warehouse.DatabaseURL)
	assert.True(t, cfg.Adapters.Warehouse.Enabled)
	assert.Equal(t, "env-secret", cfg.Webhook.HMACSecrets["default"])
}

func TestLoadFromEnvMissingFile(t *testing.T) {
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Parse.DefaultDayfirst)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestSanitizedMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.Webhook.APIKeys = map[string]string{"partner": "tok-123"}
	cfg.Webhook.HMACSecrets = map[string]string{"default": "s3cret"}

	view := cfg.Sanitized()
	webhook := view["webhook"].(map[string]any)
	assert.Equal(t, map[string]string{"partner": "***"}, webhook["api_keys"])
	assert.Equal(t, map[string]string{"default": "***"}, webhook["hmac_secrets"])
}

func TestTimeout(t *testing.T) {
	cfg := PredictConfig{TimeoutSeconds: 45}
	assert.Equal(t, 45*1000000000, int(cfg.Timeout().Nanoseconds()))
}
