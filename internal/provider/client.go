package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/functions"
)

// fallbackText is returned when a model produces an empty completion.
const fallbackText = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

// Sentinel errors for provider execution.
var (
	// ErrNoModel indicates no model is configured for the provider.
	ErrNoModel = errors.New("no model configured for provider")
)

// Config contains the parameters for the provider client.
type Config struct {
	Genkit *genkit.Genkit
	Logger *slog.Logger

	// Models maps each provider to its provider-qualified model name
	// (e.g. "azureopenai/gpt-4o").
	Models map[Provider]string

	// Tools are the pre-registered domain function tools used by the
	// multi-step plan path.
	Tools []ai.Tool

	// MaxTurns bounds the agentic loop of ExecuteMultiStepPlan.
	MaxTurns int

	// Timeout bounds a single upstream call (default 45s).
	Timeout time.Duration

	// Resilience settings; zero values use defaults.
	Retry          RetryConfig
	CircuitBreaker CircuitBreakerConfig
	RateLimiter    *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Models) == 0 {
		return errors.New("at least one provider model is required")
	}
	return nil
}

// Client executes chat completions and multi-step function-calling plans
// against the configured providers.
//
// All configuration is captured immutably at construction time, so a single
// Client is safe for concurrent use across conversations.
type Client struct {
	g        *genkit.Genkit
	models   map[Provider]string
	toolRefs []ai.ToolRef
	maxTurns int
	timeout  time.Duration

	retry    RetryConfig
	breakers map[Provider]*CircuitBreaker
	limiter  *rate.Limiter

	logger *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 6
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	toolRefs := make([]ai.ToolRef, len(cfg.Tools))
	for i, t := range cfg.Tools {
		toolRefs[i] = t
	}

	breakers := make(map[Provider]*CircuitBreaker, len(cfg.Models))
	for p := range cfg.Models {
		breakers[p] = NewCircuitBreaker(cfg.CircuitBreaker)
	}

	return &Client{
		g:        cfg.Genkit,
		models:   cfg.Models,
		toolRefs: toolRefs,
		maxTurns: maxTurns,
		timeout:  timeout,
		retry:    retry,
		breakers: breakers,
		limiter:  limiter,
		logger:   cfg.Logger,
	}, nil
}

// CompleteChat runs a single-turn completion against the provider with the
// conversation history as context. No tools are exposed to the model.
func (c *Client) CompleteChat(ctx context.Context, p Provider, systemPrompt string, history []*conversation.Message, userText string) (string, error) {
	messages := toModelMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(userText)))

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
	}
	return c.generate(ctx, p, opts)
}

// ExecuteMultiStepPlan runs a function-calling execution capable of
// chaining multiple domain operations in one turn. The user context is
// propagated through the request context for the tool handlers.
func (c *Client) ExecuteMultiStepPlan(ctx context.Context, p Provider, systemPrompt, userText string, uc functions.UserContext) (string, error) {
	ctx = functions.WithUserContext(ctx, uc)

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(userText))),
		ai.WithTools(c.toolRefs...),
		ai.WithMaxTurns(c.maxTurns),
	}
	return c.generate(ctx, p, opts)
}

// generate is the shared execution path: model lookup, circuit breaker,
// timeout, retry, empty-response fallback.
func (c *Client) generate(ctx context.Context, p Provider, opts []ai.GenerateOption) (string, error) {
	modelName, ok := c.models[p]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoModel, p)
	}
	opts = append(opts, ai.WithModelName(modelName))

	breaker := c.breakers[p]
	if err := breaker.Allow(); err != nil {
		c.logger.Warn("circuit breaker rejecting request",
			"provider", p.String(),
			"state", breaker.State().String(),
		)
		return "", fmt.Errorf("provider %s unavailable: %w", p, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.withRetry(callCtx, func() (string, error) {
		resp, genErr := genkit.Generate(callCtx, c.g, opts...)
		if genErr != nil {
			return "", genErr
		}
		return resp.Text(), nil
	})
	if err != nil {
		breaker.Failure()
		return "", fmt.Errorf("provider %s: %w", p, err)
	}
	breaker.Success()

	c.logger.Debug("provider call completed",
		"provider", p.String(),
		"model", modelName,
		"elapsed", time.Since(start),
	)

	if strings.TrimSpace(text) == "" {
		c.logger.Warn("model returned empty response", "provider", p.String())
		return fallbackText, nil
	}
	return text, nil
}

// toModelMessages converts stored conversation turns into model messages.
// System turns are skipped; the system prompt travels separately.
func toModelMessages(history []*conversation.Message) []*ai.Message {
	messages := make([]*ai.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case conversation.RoleUser:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		case conversation.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		}
	}
	return messages
}
