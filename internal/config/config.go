// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.strive/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Providers: Azure OpenAI, DeepSeek and Cohere credentials and models
//   - Storage: PostgreSQL connection for the conversation memory store
//   - Server: HTTP listen address
//   - Limits: provider timeout, max plan turns, rate limits
//
// Security: API keys and passwords are never logged; MarshalJSON masks them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEndpoint indicates a provider endpoint URL is malformed.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTimeout indicates the provider timeout is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidMaxTurns indicates the multi-step plan turn limit is out of range.
	ErrInvalidMaxTurns = errors.New("invalid max turns")

	// ErrInvalidPostgres indicates the PostgreSQL configuration is incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

const (
	// DefaultProviderTimeout bounds a single upstream LLM call.
	DefaultProviderTimeout = 45 * time.Second

	// DefaultMaxTurns is the default turn limit for multi-step plan execution.
	DefaultMaxTurns = 6

	// MaxAllowedTurns is the absolute ceiling for multi-step execution.
	MaxAllowedTurns = 20
)

// ProviderConfig holds credentials for one OpenAI-compatible provider.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Provider credentials
	AzureOpenAI ProviderConfig `mapstructure:"azure_openai" json:"azure_openai"`
	DeepSeek    ProviderConfig `mapstructure:"deepseek" json:"deepseek"`
	Cohere      ProviderConfig `mapstructure:"cohere" json:"cohere"`

	// Execution limits
	ProviderTimeout time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`
	MaxTurns        int           `mapstructure:"max_turns" json:"max_turns"`
	RateLimit       float64       `mapstructure:"rate_limit" json:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" json:"rate_burst"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Memory store (optional; empty host disables conversation memory)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
	LogLevel string `mapstructure:"log_level" json:"log_level"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".strive")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("azure_openai.model", "gpt-4o")
	v.SetDefault("deepseek.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("deepseek.model", "deepseek-chat")
	v.SetDefault("cohere.base_url", "https://api.cohere.com/compatibility/v1")
	v.SetDefault("cohere.model", "command-r-plus")

	// Execution limits
	v.SetDefault("provider_timeout", DefaultProviderTimeout)
	v.SetDefault("max_turns", DefaultMaxTurns)
	v.SetDefault("rate_limit", 10.0)
	v.SetDefault("rate_burst", 30)

	// Server defaults
	v.SetDefault("listen_addr", "127.0.0.1:3600")

	// PostgreSQL defaults (memory store disabled unless host set)
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "strive")
	v.SetDefault("postgres_db_name", "strive")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Logging defaults
	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// bindEnvVariables binds sensitive environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("azure_openai.api_key", "AZURE_OPENAI_API_KEY")
	mustBind("azure_openai.base_url", "AZURE_OPENAI_ENDPOINT")
	mustBind("azure_openai.model", "AZURE_OPENAI_DEPLOYMENT")
	mustBind("deepseek.api_key", "DEEPSEEK_API_KEY")
	mustBind("cohere.api_key", "COHERE_API_KEY")

	mustBind("listen_addr", "STRIVE_LISTEN_ADDR")
	mustBind("log_level", "STRIVE_LOG_LEVEL")
	mustBind("log_json", "STRIVE_LOG_JSON")

	mustBind("postgres_host", "STRIVE_POSTGRES_HOST")
	mustBind("postgres_password", "STRIVE_POSTGRES_PASSWORD")
}

// Validate performs fail-fast validation of the loaded configuration.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ProviderTimeout < time.Second || c.ProviderTimeout > 5*time.Minute {
		return fmt.Errorf("%w: %v (want 1s..5m)", ErrInvalidTimeout, c.ProviderTimeout)
	}
	if c.MaxTurns < 1 || c.MaxTurns > MaxAllowedTurns {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidMaxTurns, c.MaxTurns, MaxAllowedTurns)
	}

	for _, p := range []struct {
		name string
		cfg  ProviderConfig
	}{
		{"azure_openai", c.AzureOpenAI},
		{"deepseek", c.DeepSeek},
		{"cohere", c.Cohere},
	} {
		if p.cfg.Model == "" {
			return fmt.Errorf("%w: %s.model is empty", ErrInvalidModelName, p.name)
		}
		if p.cfg.BaseURL != "" {
			if _, err := url.ParseRequestURI(p.cfg.BaseURL); err != nil {
				return fmt.Errorf("%w: %s.base_url: %v", ErrInvalidEndpoint, p.name, err)
			}
		}
	}

	// Memory store config is only checked when enabled.
	if c.MemoryEnabled() {
		if c.PostgresUser == "" || c.PostgresDBName == "" {
			return fmt.Errorf("%w: user and db_name are required", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port %d out of range", ErrInvalidPostgres, c.PostgresPort)
		}
	}

	return nil
}

// ValidateServe performs the additional checks required for serve mode,
// where at least one provider must be usable.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.AzureOpenAI.APIKey == "" && c.DeepSeek.APIKey == "" && c.Cohere.APIKey == "" {
		return fmt.Errorf("%w: no provider API key configured", ErrMissingAPIKey)
	}
	return nil
}

// MemoryEnabled reports whether the PostgreSQL-backed conversation memory
// store should be wired up.
func (c *Config) MemoryEnabled() bool {
	return c.PostgresHost != ""
}

// PostgresURL returns the connection string in URL form, as consumed by
// golang-migrate and pgxpool.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// LogLevelValue maps the configured level string onto slog levels.
// Unknown values fall back to Info.
func (c *Config) LogLevelValue() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	masked.AzureOpenAI.APIKey = mask(c.AzureOpenAI.APIKey)
	masked.DeepSeek.APIKey = mask(c.DeepSeek.APIKey)
	masked.Cohere.APIKey = mask(c.Cohere.APIKey)
	masked.PostgresPassword = mask(c.PostgresPassword)
	return json.Marshal(masked)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
