// Package intent turns free-text user utterances into ordered, named domain
// operations and executes them as a best-effort batch.
package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/provider"
)

// Intent is one structured operation extracted from an utterance. Order of
// appearance in the analyzer output is the execution order.
type Intent struct {
	Name       string            `json:"intent"`
	Parameters map[string]string `json:"parameters"`
}

// GeneralConversation is the synthetic intent the analyzer degrades to when
// the model output cannot be parsed. It carries the raw utterance under
// the userMessage parameter.
const GeneralConversation = "GeneralConversation"

// analysisPrompt instructs the model to emit multi-intent JSON. The known
// function names are interpolated so the model stays inside the registry.
const analysisPrompt = `You are an intent analyzer for an OKR management assistant.
Convert the user's message into a JSON array of intents, in the order they
should be executed. Each intent has the shape:
  {"intent": "<name>", "parameters": {"<key>": "<value>"}}

Known intents: %s

One message may contain several intents. If the message is small talk or does
not map to any known intent, emit:
  [{"intent": "GeneralConversation", "parameters": {"userMessage": "<the message>"}}]

Respond with the JSON array only.`

// Completer is the single-turn completion the analyzer needs from the
// provider layer.
type Completer interface {
	CompleteChat(ctx context.Context, p provider.Provider, systemPrompt string, history []*conversation.Message, userText string) (string, error)
}

// Analyzer extracts intents from utterances via the legacy provider path.
type Analyzer struct {
	completer Completer
	functions []string
	logger    *slog.Logger
}

// NewAnalyzer creates an analyzer. functions is the list of registered
// function names advertised to the model.
func NewAnalyzer(completer Completer, functions []string, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		completer: completer,
		functions: functions,
		logger:    logger,
	}
}

// Analyze asks the model for structured intents. It never fails the request
// on malformed output: anything unparseable degrades to a single
// GeneralConversation intent carrying the raw utterance.
func (a *Analyzer) Analyze(ctx context.Context, conversationID, utterance string) []Intent {
	prompt := fmt.Sprintf(analysisPrompt, strings.Join(a.functions, ", "))

	raw, err := a.completer.CompleteChat(ctx, provider.Cohere, prompt, nil, utterance)
	if err != nil {
		a.logger.Warn("intent analysis call failed, degrading to general conversation",
			"conversation_id", conversationID,
			"error", err,
		)
		return fallbackIntents(utterance)
	}

	intents, err := ParseIntents(raw)
	if err != nil {
		a.logger.Warn("intent analysis output unparseable, degrading to general conversation",
			"conversation_id", conversationID,
			"error", err,
		)
		return fallbackIntents(utterance)
	}
	if len(intents) == 0 {
		return fallbackIntents(utterance)
	}

	a.logger.Debug("intents extracted",
		"conversation_id", conversationID,
		"count", len(intents),
	)
	return intents
}

func fallbackIntents(utterance string) []Intent {
	return []Intent{{
		Name:       GeneralConversation,
		Parameters: map[string]string{"userMessage": utterance},
	}}
}

// rawIntent tolerates non-string parameter values from the model.
type rawIntent struct {
	Intent     string         `json:"intent"`
	Parameters map[string]any `json:"parameters"`
}

// ParseIntents parses model output into intents. It accepts a bare JSON
// array, an array inside a fenced code block, or an {"intents": [...]}
// wrapper object. Entries without an intent name are dropped.
func ParseIntents(text string) ([]Intent, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("no JSON found in %d bytes of output", len(text))
	}

	var raws []rawIntent
	if err := json.Unmarshal([]byte(payload), &raws); err != nil {
		var wrapper struct {
			Intents []rawIntent `json:"intents"`
		}
		if wrapErr := json.Unmarshal([]byte(payload), &wrapper); wrapErr != nil || wrapper.Intents == nil {
			return nil, fmt.Errorf("parse intents: %w", err)
		}
		raws = wrapper.Intents
	}

	intents := make([]Intent, 0, len(raws))
	for _, r := range raws {
		name := strings.TrimSpace(r.Intent)
		if name == "" {
			continue
		}
		params := make(map[string]string, len(r.Parameters))
		for k, v := range r.Parameters {
			params[k] = stringify(v)
		}
		intents = append(intents, Intent{Name: name, Parameters: params})
	}
	return intents, nil
}

// extractJSON locates the JSON payload in model output: a ```json fenced
// block wins, then a bare ``` block, then the first [ or { in the text.
func extractJSON(text string) string {
	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(text, fence); start >= 0 {
			rest := text[start+len(fence):]
			if end := strings.Index(rest, "```"); end >= 0 {
				return strings.TrimSpace(rest[:end])
			}
		}
	}

	arr := strings.Index(text, "[")
	obj := strings.Index(text, "{")
	start := arr
	if start < 0 || (obj >= 0 && obj < start) {
		start = obj
	}
	if start < 0 {
		return ""
	}
	return strings.TrimSpace(text[start:])
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
