// Package app wires the application: genkit and its provider plugins, the
// conversation core, the optional memory store, and the HTTP surface's
// collaborators. Construction order matters; Setup owns it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/strivehq/strive/db"
	"github.com/strivehq/strive/internal/config"
	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/document"
	"github.com/strivehq/strive/internal/functions"
	"github.com/strivehq/strive/internal/intent"
	"github.com/strivehq/strive/internal/memory"
	"github.com/strivehq/strive/internal/orchestrator"
	"github.com/strivehq/strive/internal/pdf"
	"github.com/strivehq/strive/internal/provider"
	"github.com/strivehq/strive/internal/workflow"
)

// embedderModel backs the conversation memory store. Its output dimension
// must match the conversation_contexts migration.
const embedderModel = "text-embedding-3-small"

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Genkit *genkit.Genkit

	Store        *conversation.Store
	Tracker      *workflow.Tracker
	Registry     *functions.Registry
	Client       *provider.Client
	Orchestrator *orchestrator.Orchestrator

	// Pool is non-nil only when conversation memory is enabled.
	Pool *pgxpool.Pool
}

// Setup creates and initializes the application. Call Close to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	g, plugins, err := initGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Store = conversation.NewStore(logger)
	a.Tracker = workflow.NewTracker(workflow.LexicalDetector{}, logger)

	a.Registry = functions.NewRegistry(logger)
	functions.RegisterOKRFunctions(a.Registry, functions.NewInMemoryService(logger))
	tools := functions.RegisterTools(g, a.Registry)

	client, err := provider.NewClient(provider.Config{
		Genkit:      g,
		Logger:      logger,
		Models:      modelNames(cfg),
		Tools:       tools,
		MaxTurns:    cfg.MaxTurns,
		Timeout:     cfg.ProviderTimeout,
		RateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}
	a.Client = client

	var mem orchestrator.Memory
	if cfg.MemoryEnabled() {
		store, err := setupMemory(ctx, cfg, plugins, logger)
		if err != nil {
			return nil, err
		}
		a.Pool = store.pool
		mem = store.store
	}

	analyzer := intent.NewAnalyzer(client, a.Registry.Names(), logger)
	coordinator := intent.NewCoordinator(a.Registry, logger)
	processor := document.NewProcessor(a.Store, a.Tracker, logger)

	a.Orchestrator = orchestrator.New(
		a.Store, a.Tracker, client, analyzer, coordinator,
		mem, pdf.NewRenderer(), processor, logger,
	)
	return a, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
	return nil
}

// initGenkit initializes genkit with one OpenAI-compatible plugin per
// configured provider. Model names like "azureopenai/gpt-4o" resolve
// dynamically through each plugin, so no per-model registration is needed.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, map[provider.Provider]*compat_oai.OpenAICompatible, error) {
	plugins := make(map[provider.Provider]*compat_oai.OpenAICompatible)
	var initList []api.Plugin

	for p, pc := range providerConfigs(cfg) {
		if pc.APIKey == "" {
			continue
		}
		opts := []option.RequestOption{option.WithAPIKey(pc.APIKey)}
		if pc.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(pc.BaseURL))
		}
		plugin := &compat_oai.OpenAICompatible{
			Provider: p.String(),
			Opts:     opts,
		}
		plugins[p] = plugin
		initList = append(initList, plugin)
	}
	if len(initList) == 0 {
		return nil, nil, errors.New("no provider configured")
	}

	g := genkit.Init(ctx, genkit.WithPlugins(initList...))
	if g == nil {
		return nil, nil, errors.New("initializing genkit")
	}
	return g, plugins, nil
}

// providerConfigs maps the provider enum onto the loaded credentials.
func providerConfigs(cfg *config.Config) map[provider.Provider]config.ProviderConfig {
	return map[provider.Provider]config.ProviderConfig{
		provider.AzureOpenAI: cfg.AzureOpenAI,
		provider.DeepSeek:    cfg.DeepSeek,
		provider.Cohere:      cfg.Cohere,
	}
}

// modelNames builds the provider-qualified model names for the client.
// Unconfigured providers are omitted so calls to them fail fast.
func modelNames(cfg *config.Config) map[provider.Provider]string {
	models := make(map[provider.Provider]string)
	for p, pc := range providerConfigs(cfg) {
		if pc.APIKey == "" {
			continue
		}
		models[p] = p.String() + "/" + pc.Model
	}
	return models
}

// memorySetup bundles the pool and store so Setup can keep ownership clear.
type memorySetup struct {
	pool  *pgxpool.Pool
	store *memory.Store
}

// setupMemory migrates the schema, opens the pool, and builds the pgvector
// context store. The embedder comes from the primary provider's plugin.
func setupMemory(ctx context.Context, cfg *config.Config, plugins map[provider.Provider]*compat_oai.OpenAICompatible, logger *slog.Logger) (*memorySetup, error) {
	azure, ok := plugins[provider.AzureOpenAI]
	if !ok {
		return nil, errors.New("conversation memory requires the azureopenai provider for embeddings")
	}
	embedder := azure.DefineEmbedder(provider.AzureOpenAI.String(), embedderModel, &ai.EmbedderOptions{
		Label:      provider.AzureOpenAI.String() + "/" + embedderModel,
		Dimensions: memory.VectorDimension,
		Supports:   &ai.EmbedderSupports{Input: []string{"text"}},
	})
	if embedder == nil {
		return nil, errors.New("defining embedder")
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store, err := memory.NewStore(pool, embedder, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating memory store: %w", err)
	}
	return &memorySetup{pool: pool, store: store}, nil
}
