// Package provider routes LLM calls across the configured backends.
//
// The three backends (Azure OpenAI, DeepSeek, Cohere) are all addressed
// through their OpenAI-compatible endpoints via Genkit. Provider selection
// is a closed enum: free-form hint strings from callers are parsed once at
// the edge and unknown hints fall back to the legacy Cohere path.
//
// Every upstream call is bounded by a timeout and guarded by a rate
// limiter, retry with exponential backoff, and a per-provider circuit
// breaker.
package provider

import "strings"

// Provider identifies one LLM backend.
type Provider int

const (
	// AzureOpenAI is the primary provider: role-aware prompts and
	// multi-step function calling.
	AzureOpenAI Provider = iota

	// DeepSeek is the secondary provider: plain single-turn completion.
	DeepSeek

	// Cohere is the legacy default: serves the intent-analysis path.
	Cohere
)

// String returns the canonical provider name, as used in hints, model name
// prefixes, and message metadata.
func (p Provider) String() string {
	switch p {
	case AzureOpenAI:
		return "azureopenai"
	case DeepSeek:
		return "deepseek"
	case Cohere:
		return "cohere"
	default:
		return "unknown"
	}
}

// Parse maps a caller-supplied provider hint onto the enum. Unknown or
// empty hints select Cohere, the legacy default path.
func Parse(hint string) Provider {
	switch strings.ToLower(strings.TrimSpace(hint)) {
	case "azureopenai", "azure", "azure-openai", "openai":
		return AzureOpenAI
	case "deepseek":
		return DeepSeek
	default:
		return Cohere
	}
}
