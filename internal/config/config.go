package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Parse     ParseConfig     `yaml:"parse"`
	Predict   PredictConfig   `yaml:"predict"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
	Presets   PresetsConfig   `yaml:"presets"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ParseConfig holds normalization pipeline settings
type ParseConfig struct {
	RulesDir        string `yaml:"rules_dir"`
	SampleLimit     int    `yaml:"sample_limit"`
	HeaderSearchMax int    `yaml:"header_search_max"`
	MaxSizeMB       int    `yaml:"max_size_mb"`
	DefaultAdapter  string `yaml:"default_adapter"`
	MaskPII         bool   `yaml:"mask_pii"`
	DefaultDayfirst bool   `yaml:"default_dayfirst"`
}

// MaxSizeBytes returns the upload cap in bytes
func (c ParseConfig) MaxSizeBytes() int {
	return c.MaxSizeMB * 1024 * 1024
}

// PredictConfig holds the optional LLM prediction service configuration
type PredictConfig struct {
	Enabled        bool   `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c PredictConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds the intake surface configuration
type WebhookConfig struct {
	Enabled          bool              `yaml:"enabled"`
	RequireAuth      bool              `yaml:"require_auth"`
	APIKeys          map[string]string `yaml:"api_keys"`
	HMACSecrets      map[string]string `yaml:"hmac_secrets"`
	AllowedIPs       []string          `yaml:"allowed_ips"`
	ClockSkewSeconds int               `yaml:"clock_skew_seconds"`
	AsyncDefault     bool              `yaml:"async_default"`
	Workers          int               `yaml:"workers"`
	OutputDir        string            `yaml:"output_dir"`
}

// ClockSkew returns the accepted signature timestamp drift
func (c WebhookConfig) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewSeconds) * time.Second
}

// AdaptersConfig holds downstream delivery configuration
type AdaptersConfig struct {
	JSON      JSONAdapterConfig      `yaml:"json"`
	Sheets    SheetsAdapterConfig    `yaml:"sheets"`
	Warehouse WarehouseAdapterConfig `yaml:"warehouse"`
}

// JSONAdapterConfig holds local JSON/NDJSON export settings
type JSONAdapterConfig struct {
	OutputDir string   `yaml:"output_dir"`
	Exports   []string `yaml:"exports"`
	Gzip      bool     `yaml:"gzip"`
	DropNulls bool     `yaml:"drop_nulls"`
}

// SheetsAdapterConfig holds workbook export settings
type SheetsAdapterConfig struct {
	Enabled      bool   `yaml:"enabled"`
	WorkbookPath string `yaml:"workbook_path"`
	DefaultMode  string `yaml:"default_mode"`
}

// WarehouseAdapterConfig holds Postgres streaming settings
type WarehouseAdapterConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabaseURL  string `yaml:"database_url"`
	DefaultTable string `yaml:"default_table"`
}

// PresetsConfig holds stored client default locations
type PresetsConfig struct {
	Dir string `yaml:"dir"`
}

// RedisConfig holds the rate limiter backend configuration
type RedisConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	RatePerMinute  int    `yaml:"rate_per_minute"`
	KeyPrefix      string `yaml:"key_prefix"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Default returns a configuration with every default applied, for
// running without a config file.
func Default() *Config {
	cfg := newConfig()
	cfg.applyDefaults()
	return cfg
}

// newConfig seeds the defaults that are true booleans, which
// applyDefaults cannot distinguish from an explicit false. Unmarshal
// runs on top of this, so a config file can still turn them off.
func newConfig() *Config {
	cfg := &Config{}
	cfg.Parse.DefaultDayfirst = true
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Parse.RulesDir == "" {
		cfg.Parse.RulesDir = "rules"
	}
	if cfg.Parse.SampleLimit == 0 {
		cfg.Parse.SampleLimit = 200
	}
	if cfg.Parse.HeaderSearchMax == 0 {
		cfg.Parse.HeaderSearchMax = 10
	}
	if cfg.Parse.MaxSizeMB == 0 {
		cfg.Parse.MaxSizeMB = 20
	}
	if cfg.Parse.DefaultAdapter == "" {
		cfg.Parse.DefaultAdapter = "json"
	}
	if cfg.Predict.BaseURL == "" {
		cfg.Predict.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Predict.Model == "" {
		cfg.Predict.Model = "gpt-4o-mini"
	}
	if cfg.Predict.TimeoutSeconds == 0 {
		cfg.Predict.TimeoutSeconds = 30
	}
	if cfg.Webhook.ClockSkewSeconds == 0 {
		cfg.Webhook.ClockSkewSeconds = 300
	}
	if cfg.Webhook.Workers == 0 {
		cfg.Webhook.Workers = 4
	}
	if cfg.Webhook.OutputDir == "" {
		cfg.Webhook.OutputDir = "out"
	}
	if cfg.Adapters.JSON.OutputDir == "" {
		cfg.Adapters.JSON.OutputDir = "out"
	}
	if len(cfg.Adapters.JSON.Exports) == 0 {
		cfg.Adapters.JSON.Exports = []string{"envelope", "ndjson"}
	}
	if cfg.Adapters.Sheets.WorkbookPath == "" {
		cfg.Adapters.Sheets.WorkbookPath = "out/workbook.xlsx"
	}
	if cfg.Adapters.Sheets.DefaultMode == "" {
		cfg.Adapters.Sheets.DefaultMode = "append"
	}
	if cfg.Adapters.Warehouse.DefaultTable == "" {
		cfg.Adapters.Warehouse.DefaultTable = "imports"
	}
	if cfg.Presets.Dir == "" {
		cfg.Presets.Dir = "presets"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.RatePerMinute == 0 {
		cfg.Redis.RatePerMinute = 120
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "ute:ratelimit"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env
// vars, so secrets can live in .env locally and in real env vars on a
// deployed host. A missing config file falls back to defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if v := os.Getenv("UTE_OUTPUT_DIR"); v != "" {
		cfg.Webhook.OutputDir = v
		cfg.Adapters.JSON.OutputDir = v
	}
	if v := os.Getenv("UTE_RULES_DIR"); v != "" {
		cfg.Parse.RulesDir = v
	}
	if v := os.Getenv("UTE_PRESETS_DIR"); v != "" {
		cfg.Presets.Dir = v
	}
	if v := os.Getenv("PREDICT_API_KEY"); v != "" {
		cfg.Predict.APIKey = v
		cfg.Predict.Enabled = true
	}
	if v := os.Getenv("PREDICT_BASE_URL"); v != "" {
		cfg.Predict.BaseURL = v
	}
	if v := os.Getenv("WEBHOOK_HMAC_SECRET"); v != "" {
		if cfg.Webhook.HMACSecrets == nil {
			cfg.Webhook.HMACSecrets = map[string]string{}
		}
		cfg.Webhook.HMACSecrets["default"] = v
	}
	if v := os.Getenv("WEBHOOK_API_KEY"); v != "" {
		if cfg.Webhook.APIKeys == nil {
			cfg.Webhook.APIKeys = map[string]string{}
		}
		cfg.Webhook.APIKeys["default"] = v
	}

	// Database override (deployed hosts carry the DSN in the environment)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Adapters.Warehouse.DatabaseURL = dbURL
		if !cfg.Adapters.Warehouse.Enabled {
			cfg.Adapters.Warehouse.Enabled = true
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Sanitized returns the settings view exposed on the admin surface,
// with every secret masked.
func (cfg *Config) Sanitized() map[string]any {
	maskKeys := func(m map[string]string) map[string]string {
		out := map[string]string{}
		for name := range m {
			out[name] = "***"
		}
		return out
	}
	return map[string]any{
		"server": map[string]any{
			"host": cfg.Server.Host,
			"port": cfg.Server.Port,
		},
		"parse": map[string]any{
			"rules_dir":        cfg.Parse.RulesDir,
			"sample_limit":     cfg.Parse.SampleLimit,
			"max_size_mb":      cfg.Parse.MaxSizeMB,
			"default_adapter":  cfg.Parse.DefaultAdapter,
			"mask_pii":         cfg.Parse.MaskPII,
			"default_dayfirst": cfg.Parse.DefaultDayfirst,
		},
		"predict": map[string]any{
			"enabled": cfg.Predict.Enabled,
			"model":   cfg.Predict.Model,
		},
		"webhook": map[string]any{
			"enabled":       cfg.Webhook.Enabled,
			"require_auth":  cfg.Webhook.RequireAuth,
			"api_keys":      maskKeys(cfg.Webhook.APIKeys),
			"hmac_secrets":  maskKeys(cfg.Webhook.HMACSecrets),
			"allowed_ips":   cfg.Webhook.AllowedIPs,
			"async_default": cfg.Webhook.AsyncDefault,
			"workers":       cfg.Webhook.Workers,
			"output_dir":    cfg.Webhook.OutputDir,
		},
		"adapters": map[string]any{
			"json": map[string]any{
				"output_dir": cfg.Adapters.JSON.OutputDir,
				"exports":    cfg.Adapters.JSON.Exports,
			},
			"sheets": map[string]any{
				"enabled":       cfg.Adapters.Sheets.Enabled,
				"workbook_path": cfg.Adapters.Sheets.WorkbookPath,
				"default_mode":  cfg.Adapters.Sheets.DefaultMode,
			},
			"warehouse": map[string]any{
				"enabled":       cfg.Adapters.Warehouse.Enabled,
				"default_table": cfg.Adapters.Warehouse.DefaultTable,
			},
		},
		"redis": map[string]any{
			"enabled":         cfg.Redis.Enabled,
			"rate_per_minute": cfg.Redis.RatePerMinute,
		},
	}
}
