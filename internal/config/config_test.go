package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

// validConfig returns a configuration that passes Validate().
func validConfig() *Config {
	return &Config{
		AzureOpenAI:     ProviderConfig{APIKey: "key-a", BaseURL: "https://example.openai.azure.com", Model: "gpt-4o"},
		DeepSeek:        ProviderConfig{APIKey: "key-d", BaseURL: "https://api.deepseek.com/v1", Model: "deepseek-chat"},
		Cohere:          ProviderConfig{Model: "command-r-plus"},
		ProviderTimeout: DefaultProviderTimeout,
		MaxTurns:        DefaultMaxTurns,
		ListenAddr:      "127.0.0.1:3600",
		PostgresPort:    5432,
		PostgresUser:    "strive",
		PostgresDBName:  "strive",
		PostgresSSLMode: "disable",
	}
}

func TestValidate_OK(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "timeout too small",
			mutate:  func(c *Config) { c.ProviderTimeout = 100 * time.Millisecond },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "timeout too large",
			mutate:  func(c *Config) { c.ProviderTimeout = time.Hour },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "max turns zero",
			mutate:  func(c *Config) { c.MaxTurns = 0 },
			wantErr: ErrInvalidMaxTurns,
		},
		{
			name:    "empty model",
			mutate:  func(c *Config) { c.DeepSeek.Model = "" },
			wantErr: ErrInvalidModelName,
		},
		{
			name:    "bad endpoint",
			mutate:  func(c *Config) { c.Cohere.BaseURL = "not a url" },
			wantErr: ErrInvalidEndpoint,
		},
		{
			name: "memory enabled without user",
			mutate: func(c *Config) {
				c.PostgresHost = "localhost"
				c.PostgresUser = ""
			},
			wantErr: ErrInvalidPostgres,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServe_RequiresAnyKey(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.AzureOpenAI.APIKey = ""
	cfg.DeepSeek.APIKey = ""
	cfg.Cohere.APIKey = ""

	if err := cfg.ValidateServe(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("ValidateServe() = %v, want %v", err, ErrMissingAPIKey)
	}

	cfg.Cohere.APIKey = "key-c"
	if err := cfg.ValidateServe(); err != nil {
		t.Errorf("ValidateServe() with one key = %v, want nil", err)
	}
}

func TestMemoryEnabled(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.MemoryEnabled() {
		t.Error("memory should be disabled without postgres host")
	}
	cfg.PostgresHost = "localhost"
	if !cfg.MemoryEnabled() {
		t.Error("memory should be enabled with postgres host")
	}
}

func TestPostgresURL(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresHost = "db.internal"
	cfg.PostgresPassword = "p@ss word"

	got := cfg.PostgresURL()
	if !strings.HasPrefix(got, "postgres://strive:") {
		t.Errorf("unexpected URL prefix: %s", got)
	}
	if strings.Contains(got, "p@ss word") {
		t.Error("password must be URL-escaped")
	}
	if !strings.Contains(got, "db.internal:5432/strive?sslmode=disable") {
		t.Errorf("unexpected URL: %s", got)
	}
}

func TestMarshalJSON_MasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PostgresPassword = "super-secret"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	out := string(data)
	for _, secret := range []string{"key-a", "key-d", "super-secret"} {
		if strings.Contains(out, secret) {
			t.Errorf("marshaled config leaks secret %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, "***") {
		t.Error("expected masked values in marshaled config")
	}
}
