package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/strivehq/strive/internal/functions"
)

// ExecutionItem is the per-intent outcome inside an ExecutionResult.
type ExecutionItem struct {
	Intent     string `json:"intent"`
	Payload    any    `json:"payload,omitempty"`
	EntityType string `json:"entityType,omitempty"`
	EntityID   string `json:"entityId,omitempty"`
	Operation  string `json:"operation,omitempty"`
	Message    string `json:"message,omitempty"`
	Failed     bool   `json:"failed,omitempty"`
}

// ExecutionResult aggregates a batch run. Success is true only when every
// item executed without error.
type ExecutionResult struct {
	Success          bool              `json:"success"`
	Message          string            `json:"message"`
	Items            []ExecutionItem   `json:"items"`
	MergedParameters map[string]string `json:"mergedParameters"`
}

// Invoker is the slice of the function registry the coordinator needs.
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]string, uc functions.UserContext) (*functions.Result, error)
}

// Coordinator executes ordered intent batches against the function registry.
type Coordinator struct {
	invoker Invoker
	logger  *slog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(invoker Invoker, logger *slog.Logger) *Coordinator {
	return &Coordinator{invoker: invoker, logger: logger}
}

// Execute runs each intent in order against its handler. A failing intent is
// recorded and the batch continues, so a compound request still applies the
// operations that can succeed. organizationId from the user context is
// injected into each intent's parameters unless explicitly supplied.
func (c *Coordinator) Execute(ctx context.Context, intents []Intent, uc functions.UserContext) *ExecutionResult {
	result := &ExecutionResult{
		Success:          true,
		Items:            make([]ExecutionItem, 0, len(intents)),
		MergedParameters: make(map[string]string),
	}

	var messages []string
	for _, in := range intents {
		params := make(map[string]string, len(in.Parameters)+1)
		for k, v := range in.Parameters {
			params[k] = v
		}
		if _, ok := params["organizationId"]; !ok && uc.OrganizationID != "" {
			params["organizationId"] = uc.OrganizationID
		}

		item := ExecutionItem{Intent: in.Name}

		res, err := c.invoker.Invoke(ctx, in.Name, params, uc)
		if err != nil {
			c.logger.Warn("intent execution failed",
				"intent", in.Name,
				"error", err,
			)
			item.Failed = true
			item.Message = err.Error()
			result.Success = false
		} else {
			item.Payload = res.Payload
			item.EntityType = res.EntityType
			item.EntityID = res.EntityID
			item.Operation = res.Operation
			item.Message = res.Message
		}

		if item.Message != "" {
			messages = append(messages, item.Message)
		}
		result.Items = append(result.Items, item)

		// Last-write-wins merge, used only for response echoing.
		for k, v := range params {
			result.MergedParameters[k] = v
		}
	}

	result.Message = strings.Join(messages, " ")
	return result
}
