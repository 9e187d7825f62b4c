package app

import (
	"context"
	"testing"
	"time"

	"github.com/strivehq/strive/internal/config"
	"github.com/strivehq/strive/internal/provider"
)

func testConfig() *config.Config {
	return &config.Config{
		AzureOpenAI:     config.ProviderConfig{APIKey: "a", Model: "gpt-4o"},
		DeepSeek:        config.ProviderConfig{Model: "deepseek-chat"},
		Cohere:          config.ProviderConfig{APIKey: "c", Model: "command-r"},
		ProviderTimeout: 45 * time.Second,
		MaxTurns:        6,
	}
}

func TestModelNames_SkipsUnconfiguredProviders(t *testing.T) {
	t.Parallel()

	models := modelNames(testConfig())
	if got := models[provider.AzureOpenAI]; got != "azureopenai/gpt-4o" {
		t.Errorf("azure model = %q", got)
	}
	if got := models[provider.Cohere]; got != "cohere/command-r" {
		t.Errorf("cohere model = %q", got)
	}
	if _, ok := models[provider.DeepSeek]; ok {
		t.Error("deepseek has no API key and must be omitted")
	}
}

func TestInitGenkit_NoProviderConfigured(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AzureOpenAI.APIKey = ""
	cfg.Cohere.APIKey = ""

	if _, _, err := initGenkit(context.Background(), cfg); err == nil {
		t.Fatal("initGenkit must fail when no provider has an API key")
	}
}

func TestProviderConfigs_CoversAllProviders(t *testing.T) {
	t.Parallel()

	cfgs := providerConfigs(testConfig())
	for _, p := range []provider.Provider{provider.AzureOpenAI, provider.DeepSeek, provider.Cohere} {
		if _, ok := cfgs[p]; !ok {
			t.Errorf("missing config entry for %s", p)
		}
	}
}
