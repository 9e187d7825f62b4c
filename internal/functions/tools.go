package functions

import (
	"encoding/json"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ToolInput is the generic input schema for registry-backed tools. The
// model supplies the target function's parameters as a string map, matching
// the registry's Invoke contract.
type ToolInput struct {
	Parameters map[string]string `json:"parameters" jsonschema_description:"Parameters for the operation, as name/value string pairs."`
}

// ToolOutput is what the model sees back from a registry-backed tool.
type ToolOutput struct {
	Message           string          `json:"message"`
	EntityType        string          `json:"entityType,omitempty"`
	EntityID          string          `json:"entityId,omitempty"`
	Operation         string          `json:"operation,omitempty"`
	NeedsConfirmation bool            `json:"needsConfirmation,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
}

// toolDescriptions drives the per-function tool registration. Descriptions
// are what the model routes on, so they name the operation and its key
// parameters explicitly.
var toolDescriptions = map[string]string{
	FnCreateTeam:       "Create a new team. Parameters: name (required), description.",
	FnAddTeamMember:    "Add a member to a team. Parameters: teamId (required), member (required).",
	FnCreateOKRSession: "Create a new OKR session (a planning period). Parameters: title (required), startDate, endDate.",
	FnCreateObjective:  "Create an objective inside an OKR session. Parameters: title (required), sessionId, description.",
	FnCreateKeyResult:  "Create a key result under an objective. Parameters: title (required), objectiveId, target.",
	FnCreateTask:       "Create a task under a key result. Parameters: title (required), keyResultId, assignee.",
	FnUpdateTaskStatus: "Update a task's status. Parameters: taskId (required), status (required).",
	FnDeleteObjective: "Delete an objective and everything under it. DESTRUCTIVE: requires confirmed=true, " +
		"which you must only set after the user explicitly confirmed in a previous turn. " +
		"Parameters: objectiveId (required), confirmed.",
}

// RegisterTools exposes every described registry function as a Genkit tool
// so the function-calling execution paths can chain domain operations.
// The per-request UserContext travels in the request context (see
// WithUserContext) and is extracted here.
func RegisterTools(g *genkit.Genkit, r *Registry) []ai.Tool {
	tools := make([]ai.Tool, 0, len(toolDescriptions))
	for name, description := range toolDescriptions {
		tool := genkit.DefineTool(g, name, description,
			func(ctx *ai.ToolContext, input ToolInput) (ToolOutput, error) {
				uc := UserContextFrom(ctx.Context)

				params := input.Parameters
				if params == nil {
					params = map[string]string{}
				}
				// Same contextual injection the intent coordinator applies.
				if _, ok := params["organizationId"]; !ok && uc.OrganizationID != "" {
					params["organizationId"] = uc.OrganizationID
				}

				res, err := r.Invoke(ctx.Context, name, params, uc)
				if err != nil {
					return ToolOutput{}, err
				}

				out := ToolOutput{
					Message:           res.Message,
					EntityType:        res.EntityType,
					EntityID:          res.EntityID,
					Operation:         res.Operation,
					NeedsConfirmation: res.NeedsConfirmation,
				}
				if res.Payload != nil {
					if raw, merr := json.Marshal(res.Payload); merr == nil {
						out.Payload = raw
					}
				}
				return out, nil
			},
		)
		tools = append(tools, tool)
	}
	return tools
}
