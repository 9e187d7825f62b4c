package orchestrator

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// postProcess extracts a fenced JSON block from model output. When the block
// parses and carries a PromptTemplate field, that template becomes the
// user-visible text and the parsed object is retained as structured payload.
// Unparseable blocks are not an error: the raw text is shown verbatim.
func postProcess(text string, logger *slog.Logger) (display string, payload json.RawMessage) {
	block := extractFencedJSON(text)
	if block == "" {
		return text, nil
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		logger.Warn("model emitted a fenced JSON block that does not parse, returning raw text",
			"error", err, "block_bytes", len(block))
		return text, nil
	}
	payload = json.RawMessage(block)

	for _, key := range []string{"PromptTemplate", "promptTemplate"} {
		raw, ok := parsed[key]
		if !ok {
			continue
		}
		var template string
		if err := json.Unmarshal(raw, &template); err == nil && template != "" {
			return template, payload
		}
	}
	return text, payload
}

// extractFencedJSON returns the content of the first ```json fenced block,
// or "" when none exists.
func extractFencedJSON(text string) string {
	start := strings.Index(text, "```json")
	if start < 0 {
		return ""
	}
	rest := text[start+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
