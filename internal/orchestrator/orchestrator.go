// Package orchestrator is the single entry point for inbound chat turns. It
// routes each message onto a provider path, drives intent analysis or
// function calling, applies the document workflow continuation, and
// guarantees that every turn appends exactly one assistant message.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/document"
	"github.com/strivehq/strive/internal/functions"
	"github.com/strivehq/strive/internal/intent"
	"github.com/strivehq/strive/internal/memory"
	"github.com/strivehq/strive/internal/pdf"
	"github.com/strivehq/strive/internal/provider"
	"github.com/strivehq/strive/internal/workflow"
)

// failureText is recorded as the assistant turn when every upstream path
// failed. Diagnostic detail goes to the log, never to the user.
const failureText = "I apologize, something went wrong while handling your request. Please try again."

// LLM is the provider capability the orchestrator consumes.
type LLM interface {
	CompleteChat(ctx context.Context, p provider.Provider, systemPrompt string, history []*conversation.Message, userText string) (string, error)
	ExecuteMultiStepPlan(ctx context.Context, p provider.Provider, systemPrompt, userText string, uc functions.UserContext) (string, error)
}

// Analyzer extracts intents on the legacy path.
type Analyzer interface {
	Analyze(ctx context.Context, conversationID, utterance string) []intent.Intent
}

// Executor runs intent batches on the legacy path.
type Executor interface {
	Execute(ctx context.Context, intents []intent.Intent, uc functions.UserContext) *intent.ExecutionResult
}

// Memory is the optional conversation-context collaborator. A nil Memory
// disables retrieval and persistence without changing routing behavior.
type Memory interface {
	GetRelevantContext(ctx context.Context, query, conversationID string) (string, error)
	SaveContext(ctx context.Context, conversationID, text, userID string) error
}

// Response is the outcome of one handled turn.
type Response struct {
	ConversationID       string                 `json:"conversationId"`
	Text                 string                 `json:"text"`
	Provider             string                 `json:"provider"`
	Intents              []intent.Intent        `json:"intents,omitempty"`
	MergedParameters     map[string]string      `json:"mergedParameters,omitempty"`
	Results              []intent.ExecutionItem `json:"results,omitempty"`
	History              *conversation.History  `json:"history"`
	UsingFunctionCalling bool                   `json:"usingFunctionCalling"`
	Payload              json.RawMessage        `json:"payload,omitempty"`
	PDF                  []byte                 `json:"pdf,omitempty"`
}

// Orchestrator coordinates the conversation core. All mutable state lives in
// the injected store and tracker.
type Orchestrator struct {
	store     *conversation.Store
	tracker   *workflow.Tracker
	llm       LLM
	analyzer  Analyzer
	executor  Executor
	memory    Memory
	renderer  pdf.Renderer
	processor *document.Processor
	logger    *slog.Logger
}

// New creates an orchestrator. memory may be nil.
func New(
	store *conversation.Store,
	tracker *workflow.Tracker,
	llm LLM,
	analyzer Analyzer,
	executor Executor,
	mem Memory,
	renderer pdf.Renderer,
	processor *document.Processor,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		tracker:   tracker,
		llm:       llm,
		analyzer:  analyzer,
		executor:  executor,
		memory:    mem,
		renderer:  renderer,
		processor: processor,
		logger:    logger,
	}
}

// HandleMessage processes one inbound user message. Turns for the same
// conversation are serialized; distinct conversations proceed concurrently.
// Every invocation appends exactly one user and one assistant message.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID, userText string, uc functions.UserContext, providerHint string) (*Response, error) {
	release := o.store.Acquire(conversationID)
	defer release()

	o.store.AppendMessage(conversationID, conversation.NewMessage(
		conversation.RoleUser, userText, map[string]string{
			conversation.MetaAuthor: uc.UserName,
			conversation.MetaUserID: uc.UserID,
		},
	))

	p := provider.Parse(providerHint)
	resp := &Response{
		ConversationID: conversationID,
		Provider:       p.String(),
	}

	o.runTurn(ctx, conversationID, userText, uc, p, resp)

	display, payload := postProcess(resp.Text, o.logger)
	resp.Text = display
	if resp.Payload == nil {
		resp.Payload = payload
	}

	assistant := conversation.NewMessage(conversation.RoleAssistant, resp.Text, map[string]string{
		conversation.MetaProvider: resp.Provider,
	})
	assistant.FunctionPayload = resp.Payload
	o.store.AppendMessage(conversationID, assistant)

	o.saveContext(ctx, conversationID, userText, resp.Text, uc.UserID)

	resp.History = o.store.GetOrCreateHistory(conversationID)
	return resp, nil
}

// runTurn fills resp.Text (and path-specific fields) for the routed branch.
// It never returns an error: upstream failures and panics degrade to the
// generic failure text so the assistant turn is always recorded.
func (o *Orchestrator) runTurn(ctx context.Context, conversationID, userText string, uc functions.UserContext, p provider.Provider, resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("turn handler panicked",
				"conversation_id", conversationID,
				"panic", r,
			)
			resp.Text = failureText
		}
	}()

	var err error
	switch {
	case isRiskTrigger(userText):
		err = o.riskAnalysisTurn(ctx, conversationID, p, resp)
	case p == provider.AzureOpenAI:
		err = o.primaryTurn(ctx, conversationID, userText, uc, resp)
	case p == provider.DeepSeek:
		err = o.secondaryTurn(ctx, conversationID, userText, resp)
	default:
		err = o.legacyTurn(ctx, conversationID, userText, uc, resp)
	}
	if err != nil {
		o.logger.Error("turn failed, degrading to generic response",
			"conversation_id", conversationID,
			"provider", p.String(),
			"error", err,
		)
		resp.Text = failureText
		resp.UsingFunctionCalling = false
	}
}

// primaryTurn is the Azure OpenAI path: role-aware prompt, memory context,
// multi-step function calling, document continuation.
func (o *Orchestrator) primaryTurn(ctx context.Context, conversationID, userText string, uc functions.UserContext, resp *Response) error {
	prompt := primarySystemPrompt(uc)

	if o.memory != nil {
		contextBlock, err := o.memory.GetRelevantContext(ctx, userText, conversationID)
		if err != nil {
			o.logger.Warn("memory retrieval failed",
				"conversation_id", conversationID,
				"error", err,
			)
		} else {
			prompt = memory.EnhanceSystemMessage(prompt, contextBlock)
		}
	}

	documentActive := o.tracker.Active(conversationID)
	if documentActive {
		prompt += "\n\n" + documentContinuationPrompt
	}

	text, err := o.llm.ExecuteMultiStepPlan(ctx, provider.AzureOpenAI, prompt, userText, uc)
	if err != nil {
		return fmt.Errorf("multi-step execution: %w", err)
	}

	if documentActive {
		text = o.tracker.EnsureContinuation(text, conversationID)
	}

	resp.Text = text
	resp.UsingFunctionCalling = true
	return nil
}

// secondaryTurn is the DeepSeek path: plain single-turn completion, no role
// or document logic.
func (o *Orchestrator) secondaryTurn(ctx context.Context, conversationID, userText string, resp *Response) error {
	history := o.historyBefore(conversationID)
	text, err := o.llm.CompleteChat(ctx, provider.DeepSeek, simplePrompt, history, userText)
	if err != nil {
		return fmt.Errorf("chat completion: %w", err)
	}
	resp.Text = text
	return nil
}

// legacyTurn is the default path: intent analysis then best-effort batch
// execution. A clean batch answers directly from the coordinator; anything
// else falls back to a conversational reply seeded with the batch message.
func (o *Orchestrator) legacyTurn(ctx context.Context, conversationID, userText string, uc functions.UserContext, resp *Response) error {
	intents := o.analyzer.Analyze(ctx, conversationID, userText)
	resp.Intents = intents

	result := o.executor.Execute(ctx, intents, uc)
	resp.Results = result.Items
	resp.MergedParameters = result.MergedParameters

	if result.Success && result.Message != "" {
		resp.Text = result.Message
		return nil
	}

	seed := userText
	if result.Message != "" {
		seed = fmt.Sprintf("%s\n\n(Note for the assistant: partial results so far: %s)", userText, result.Message)
	}
	history := o.historyBefore(conversationID)
	text, err := o.llm.CompleteChat(ctx, provider.Cohere, simplePrompt, history, seed)
	if err != nil {
		return fmt.Errorf("legacy fallback completion: %w", err)
	}
	resp.Text = text
	return nil
}

// riskAnalysisTurn bypasses normal routing: it produces a textual risk
// analysis and renders it into a PDF artifact. A failed render is logged
// and the text still ships.
func (o *Orchestrator) riskAnalysisTurn(ctx context.Context, conversationID string, p provider.Provider, resp *Response) error {
	history := o.historyBefore(conversationID)
	text, err := o.llm.CompleteChat(ctx, p, riskAnalysisPrompt, history, "Produce the risk analysis now.")
	if err != nil {
		return fmt.Errorf("risk analysis completion: %w", err)
	}
	resp.Text = text

	if o.renderer != nil {
		data, renderErr := o.renderer.Generate("Risk Analysis", text)
		if renderErr != nil {
			o.logger.Warn("pdf rendering failed",
				"conversation_id", conversationID,
				"error", renderErr,
			)
		} else {
			resp.PDF = data
		}
	}
	return nil
}

// HandleDocument ingests an uploaded document and produces the first
// proposal turn of the guided creation protocol.
func (o *Orchestrator) HandleDocument(ctx context.Context, conversationID string, r io.Reader, uc functions.UserContext) (*Response, error) {
	release := o.store.Acquire(conversationID)
	defer release()

	res, err := o.processor.Process(ctx, conversationID, r)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ConversationID: conversationID,
		Provider:       provider.AzureOpenAI.String(),
	}

	prompt := primarySystemPrompt(uc) + "\n\n" + documentContinuationPrompt
	text, err := o.llm.CompleteChat(ctx, provider.AzureOpenAI, prompt,
		o.historyBefore(conversationID),
		"The document has been processed. Propose an OKR session based on it and ask me to confirm.")
	if err != nil {
		o.logger.Error("document proposal turn failed",
			"conversation_id", conversationID,
			"error", err,
		)
		text = failureText
	} else {
		text = o.tracker.EnsureContinuation(text, conversationID)
	}
	resp.Text = text

	assistant := conversation.NewMessage(conversation.RoleAssistant, text, map[string]string{
		conversation.MetaProvider:   resp.Provider,
		conversation.MetaDocumentID: res.DocumentID,
	})
	o.store.AppendMessage(conversationID, assistant)

	resp.History = o.store.GetOrCreateHistory(conversationID)
	return resp, nil
}

// ResetConversation clears one conversation's history and workflow state.
func (o *Orchestrator) ResetConversation(conversationID string) {
	o.store.Reset(conversationID)
	o.tracker.Reset(conversationID)
	o.logger.Info("conversation reset", "conversation_id", conversationID)
}

// ResetAll clears every conversation; returns how many were reset.
func (o *Orchestrator) ResetAll() int {
	return o.store.ResetAll()
}

// GetHistory returns the conversation history; unknown ids yield an empty
// well-formed history.
func (o *Orchestrator) GetHistory(conversationID string) *conversation.History {
	return o.store.GetOrCreateHistory(conversationID)
}

// SetSystemMessage replaces the conversation's system message.
func (o *Orchestrator) SetSystemMessage(conversationID, text string) {
	o.store.SetSystemMessage(conversationID, text)
}

// ListConversations returns every conversation, most recent first.
func (o *Orchestrator) ListConversations() []*conversation.Summary {
	return o.store.ListConversations()
}

// ListConversationsForUser returns the user's conversations, most recent
// first.
func (o *Orchestrator) ListConversationsForUser(userID string) []*conversation.Summary {
	return o.store.ListConversationsForUser(userID)
}

// Diagnostics returns per-conversation diagnostics for every conversation.
func (o *Orchestrator) Diagnostics() []*conversation.Diagnostics {
	return o.store.DiagnosticsReport()
}

// historyBefore snapshots the conversation's messages excluding the just-
// appended user turn, which travels separately as the completion input.
func (o *Orchestrator) historyBefore(conversationID string) []*conversation.Message {
	h := o.store.GetOrCreateHistory(conversationID)
	if n := len(h.Messages); n > 0 && h.Messages[n-1].Role == conversation.RoleUser {
		return h.Messages[:n-1]
	}
	return h.Messages
}

// saveContext persists the turn into conversation memory, best-effort.
func (o *Orchestrator) saveContext(ctx context.Context, conversationID, userText, assistantText, userID string) {
	if o.memory == nil {
		return
	}
	snippet := fmt.Sprintf("User: %s\nAssistant: %s", userText, assistantText)
	if err := o.memory.SaveContext(ctx, conversationID, snippet, userID); err != nil {
		o.logger.Warn("saving conversation context failed",
			"conversation_id", conversationID,
			"error", err,
		)
	}
}
