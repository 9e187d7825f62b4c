package orchestrator

import (
	"fmt"
	"strings"

	"github.com/strivehq/strive/internal/functions"
)

// rolePrompt embeds the permission model and the standing confirmation rule
// for destructive operations into the primary provider's system prompt.
const rolePrompt = `You are Strive, an assistant for OKR management. You help users manage
teams, OKR sessions, objectives, key results and tasks.

Permission model (enforce it in your answers and tool usage):
- SuperAdmin: full access to every operation.
- OrganizationAdmin: manages teams, members and all OKR entities in their organization.
- TeamManager: manages OKR sessions, objectives and key results for their teams.
- Collaborator: creates and updates tasks; reads everything else.

Destructive operations (deleting or irreversibly changing entities) always
require an explicit user confirmation turn before execution. If the user has
not confirmed yet, ask for confirmation instead of executing.`

// documentContinuationPrompt is appended when the conversation carries an
// active document workflow.
const documentContinuationPrompt = `This conversation is processing an uploaded planning document. Follow the
guided creation protocol strictly: propose exactly one entity at a time
(session, then objective, then key result, then task) and wait for the
user's confirmation before creating it or proposing the next one.`

// simplePrompt is the secondary provider's system prompt.
const simplePrompt = `You are Strive, an assistant for OKR management. Answer the user's
question helpfully and concisely.`

// riskAnalysisPrompt drives the dedicated risk-analysis path.
const riskAnalysisPrompt = `You are Strive's risk analyst. Review the conversation and any document
content in your context and produce a structured risk analysis of the
user's OKR plan: top risks, likelihood, impact, and a concrete mitigation
for each. Use short paragraphs, no markdown tables.`

// riskTriggers are the reserved phrases that route a message onto the
// risk-analysis path. Matched case-insensitively after trimming.
var riskTriggers = map[string]struct{}{
	"analyze risks":         {},
	"risk analysis":         {},
	"analyze the risks":     {},
	"perform risk analysis": {},
	"run risk analysis":     {},
}

// isRiskTrigger reports whether the utterance is a reserved risk-analysis
// phrase.
func isRiskTrigger(text string) bool {
	_, ok := riskTriggers[strings.ToLower(strings.TrimSpace(text))]
	return ok
}

// primarySystemPrompt assembles the role prompt with the caller's identity.
func primarySystemPrompt(uc functions.UserContext) string {
	var b strings.Builder
	b.WriteString(rolePrompt)
	if uc.UserName != "" || uc.Role != "" {
		b.WriteString("\n\n")
		b.WriteString(fmt.Sprintf("The current user is %s with role %s.", orUnknown(uc.UserName), orUnknown(string(uc.Role))))
	}
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
