package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/document"
	"github.com/strivehq/strive/internal/functions"
	"github.com/strivehq/strive/internal/intent"
	"github.com/strivehq/strive/internal/log"
	"github.com/strivehq/strive/internal/provider"
	"github.com/strivehq/strive/internal/workflow"
)

// scriptedLLM returns canned responses and records which paths ran.
type scriptedLLM struct {
	chatResponse string
	chatErr      error
	planResponse string
	planErr      error

	chatCalls int
	planCalls int
	lastUser  functions.UserContext
}

func (s *scriptedLLM) CompleteChat(_ context.Context, _ provider.Provider, _ string, _ []*conversation.Message, _ string) (string, error) {
	s.chatCalls++
	return s.chatResponse, s.chatErr
}

func (s *scriptedLLM) ExecuteMultiStepPlan(_ context.Context, _ provider.Provider, _, _ string, uc functions.UserContext) (string, error) {
	s.planCalls++
	s.lastUser = uc
	return s.planResponse, s.planErr
}

type scriptedAnalyzer struct {
	intents []intent.Intent
}

func (s *scriptedAnalyzer) Analyze(context.Context, string, string) []intent.Intent {
	return s.intents
}

type scriptedExecutor struct {
	result *intent.ExecutionResult
	ran    bool
}

func (s *scriptedExecutor) Execute(context.Context, []intent.Intent, functions.UserContext) *intent.ExecutionResult {
	s.ran = true
	return s.result
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Generate(string, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

type recordingMemory struct {
	contextBlock string
	saved        []string
}

func (r *recordingMemory) GetRelevantContext(context.Context, string, string) (string, error) {
	return r.contextBlock, nil
}

func (r *recordingMemory) SaveContext(_ context.Context, _, text, _ string) error {
	r.saved = append(r.saved, text)
	return nil
}

// harness bundles an orchestrator with its scripted collaborators.
type harness struct {
	orch     *Orchestrator
	store    *conversation.Store
	tracker  *workflow.Tracker
	llm      *scriptedLLM
	analyzer *scriptedAnalyzer
	executor *scriptedExecutor
	memory   *recordingMemory
}

func newHarness() *harness {
	logger := log.NewNop()
	store := conversation.NewStore(logger)
	tracker := workflow.NewTracker(nil, logger)
	llm := &scriptedLLM{
		chatResponse: "a plain answer",
		planResponse: "Team Apollo has been created successfully.",
	}
	analyzer := &scriptedAnalyzer{}
	executor := &scriptedExecutor{result: &intent.ExecutionResult{Success: true}}
	mem := &recordingMemory{}
	processor := document.NewProcessor(store, tracker, logger)

	return &harness{
		orch:     New(store, tracker, llm, analyzer, executor, mem, &fakeRenderer{}, processor, logger),
		store:    store,
		tracker:  tracker,
		llm:      llm,
		analyzer: analyzer,
		executor: executor,
		memory:   mem,
	}
}

func user() functions.UserContext {
	return functions.UserContext{UserID: "u1", UserName: "Ada", Role: functions.RoleOrganizationAdmin, OrganizationID: "org-1"}
}

func TestHandleMessage_PrimaryFunctionCalling(t *testing.T) {
	t.Parallel()

	h := newHarness()
	resp, err := h.orch.HandleMessage(context.Background(), "c1", "Create a team named Apollo", user(), "azureopenai")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !resp.UsingFunctionCalling {
		t.Error("expected usingFunctionCalling=true on the primary path")
	}
	if resp.Provider != "azureopenai" {
		t.Errorf("Provider = %q", resp.Provider)
	}
	if len(resp.History.Messages) != 2 {
		t.Fatalf("history length = %d, want 2 (user + assistant)", len(resp.History.Messages))
	}
	if h.llm.planCalls != 1 || h.llm.chatCalls != 0 {
		t.Errorf("calls: plan=%d chat=%d, want plan only", h.llm.planCalls, h.llm.chatCalls)
	}
	if h.llm.lastUser != user() {
		t.Errorf("user context not propagated: %+v", h.llm.lastUser)
	}
}

func TestHandleMessage_SecondarySingleTurn(t *testing.T) {
	t.Parallel()

	h := newHarness()
	resp, err := h.orch.HandleMessage(context.Background(), "c1", "What is an OKR?", user(), "deepseek")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.UsingFunctionCalling {
		t.Error("secondary path must not use function calling")
	}
	if resp.Text != "a plain answer" {
		t.Errorf("Text = %q", resp.Text)
	}
	if h.llm.chatCalls != 1 || h.llm.planCalls != 0 {
		t.Errorf("calls: chat=%d plan=%d, want chat only", h.llm.chatCalls, h.llm.planCalls)
	}
}

func TestHandleMessage_LegacySuccessSkipsModel(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.analyzer.intents = []intent.Intent{{Name: "CreateTeam", Parameters: map[string]string{"name": "Apollo"}}}
	h.executor.result = &intent.ExecutionResult{
		Success:          true,
		Message:          "Team Apollo created.",
		Items:            []intent.ExecutionItem{{Intent: "CreateTeam", Message: "Team Apollo created."}},
		MergedParameters: map[string]string{"name": "Apollo"},
	}

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "create team Apollo", user(), "")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Text != "Team Apollo created." {
		t.Errorf("Text = %q, want coordinator message", resp.Text)
	}
	if h.llm.chatCalls != 0 {
		t.Error("successful batch must not trigger a model call")
	}
	if len(resp.Intents) != 1 || len(resp.Results) != 1 {
		t.Errorf("intents=%d results=%d, want 1/1", len(resp.Intents), len(resp.Results))
	}
	if resp.MergedParameters["name"] != "Apollo" {
		t.Errorf("MergedParameters = %v", resp.MergedParameters)
	}
}

func TestHandleMessage_LegacyFailureFallsBack(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.analyzer.intents = []intent.Intent{{Name: "GeneralConversation", Parameters: map[string]string{"userMessage": "hi"}}}
	h.executor.result = &intent.ExecutionResult{Success: false, Message: "GeneralConversation failed"}

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "hi", user(), "cohere")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Text != "a plain answer" {
		t.Errorf("Text = %q, want fallback completion", resp.Text)
	}
	if h.llm.chatCalls != 1 {
		t.Errorf("chatCalls = %d, want 1", h.llm.chatCalls)
	}
}

func TestHandleMessage_RiskTriggerProducesPDF(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.llm.chatResponse = "Top risk: overcommitment."

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "  Run Risk Analysis ", user(), "azureopenai")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(resp.PDF) == 0 {
		t.Error("expected a PDF artifact")
	}
	if resp.Text != "Top risk: overcommitment." {
		t.Errorf("Text = %q", resp.Text)
	}
	if h.llm.planCalls != 0 {
		t.Error("risk path must bypass function calling")
	}
}

func TestHandleMessage_UpstreamFailureStillAnswers(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.llm.planErr = errors.New("503 unavailable")

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "create a team", user(), "azureopenai")
	if err != nil {
		t.Fatalf("HandleMessage must not surface upstream errors, got %v", err)
	}
	if resp.Text != failureText {
		t.Errorf("Text = %q, want the generic failure message", resp.Text)
	}
	if resp.UsingFunctionCalling {
		t.Error("failed turn must not claim function calling")
	}
	if got := len(resp.History.Messages); got != 2 {
		t.Errorf("history length = %d, want user + assistant even on failure", got)
	}
}

func TestHandleMessage_PromptTemplateRoundTrip(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.llm.planResponse = "```json\n{\"PromptTemplate\": \"Hello\", \"entityId\": \"t-1\"}\n```"

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "make something", user(), "azure")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if resp.Text != "Hello" {
		t.Errorf("Text = %q, want template substitution", resp.Text)
	}
	if resp.Payload == nil {
		t.Fatal("expected structured payload to be retained")
	}
	last := resp.History.Messages[len(resp.History.Messages)-1]
	if last.FunctionPayload == nil {
		t.Error("assistant message should carry the structured payload")
	}
}

func TestHandleMessage_DocumentWorkflowContinuation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.tracker.Track("c1", workflow.KeyDocumentID, "doc-1")
	h.tracker.Track("c1", workflow.KeyCurrentStep, workflow.StepDocumentProcessed.String())
	h.llm.planResponse = "Based on the document, I propose an OKR session for Q3. Please confirm."

	resp, err := h.orch.HandleMessage(context.Background(), "c1", "let's begin", user(), "azureopenai")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if got := h.tracker.Get("c1", workflow.KeyCurrentStep, ""); got != workflow.StepSessionProposed.String() {
		t.Errorf("CurrentStep = %q, want SessionProposed", got)
	}
	if !strings.Contains(resp.Text, "I propose an OKR session") {
		t.Errorf("proposal lost from response: %q", resp.Text)
	}
}

func TestHandleMessage_SavesMemoryContext(t *testing.T) {
	t.Parallel()

	h := newHarness()
	if _, err := h.orch.HandleMessage(context.Background(), "c1", "hello", user(), "deepseek"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(h.memory.saved) != 1 {
		t.Fatalf("saved snippets = %d, want 1", len(h.memory.saved))
	}
	if !strings.Contains(h.memory.saved[0], "User: hello") {
		t.Errorf("snippet = %q", h.memory.saved[0])
	}
}

func TestHandleDocument(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.llm.chatResponse = "Based on the document, I propose an OKR session for Q3 planning. Please confirm."

	resp, err := h.orch.HandleDocument(context.Background(), "c1", strings.NewReader("Q3 plan: grow ARR"), user())
	if err != nil {
		t.Fatalf("HandleDocument: %v", err)
	}
	if !h.tracker.Active("c1") {
		t.Error("workflow should be active after upload")
	}
	if got := h.tracker.Get("c1", workflow.KeyCurrentStep, ""); got != workflow.StepSessionProposed.String() {
		t.Errorf("CurrentStep = %q, want SessionProposed", got)
	}
	if len(resp.History.Messages) != 1 {
		t.Errorf("history length = %d, want 1 assistant message", len(resp.History.Messages))
	}
	if resp.History.Messages[0].Metadata[conversation.MetaDocumentID] == "" {
		t.Error("assistant message should reference the document id")
	}
}

func TestResetConversation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	if _, err := h.orch.HandleMessage(context.Background(), "c1", "hello", user(), "deepseek"); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	h.tracker.Track("c1", workflow.KeyDocumentID, "doc-1")

	h.orch.ResetConversation("c1")

	hist := h.orch.GetHistory("c1")
	if len(hist.Messages) != 0 {
		t.Errorf("messages after reset = %d, want 0", len(hist.Messages))
	}
	if hist.SystemMessage != conversation.DefaultSystemMessage {
		t.Error("reset must restore the default system message")
	}
	if h.tracker.Active("c1") {
		t.Error("reset must clear workflow state")
	}
}

func TestGetHistory_UnknownConversation(t *testing.T) {
	t.Parallel()

	h := newHarness()
	hist := h.orch.GetHistory("never-seen")
	if hist == nil || hist.SystemMessage == "" {
		t.Fatal("unknown id must yield a well-formed history")
	}
	if len(hist.Messages) != 0 {
		t.Errorf("messages = %d, want 0", len(hist.Messages))
	}
}

func TestIsRiskTrigger(t *testing.T) {
	t.Parallel()

	for _, phrase := range []string{"analyze risks", "Risk Analysis", " PERFORM RISK ANALYSIS "} {
		if !isRiskTrigger(phrase) {
			t.Errorf("isRiskTrigger(%q) = false", phrase)
		}
	}
	for _, phrase := range []string{"please analyze risks for me", "risky business", ""} {
		if isRiskTrigger(phrase) {
			t.Errorf("isRiskTrigger(%q) = true", phrase)
		}
	}
}

func TestPostProcess(t *testing.T) {
	t.Parallel()

	t.Run("no json block", func(t *testing.T) {
		t.Parallel()

		text, payload := postProcess("plain answer", log.NewNop())
		if text != "plain answer" || payload != nil {
			t.Errorf("got (%q, %v)", text, payload)
		}
	})

	t.Run("unparseable block shows raw text and warns", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := log.NewWithWriter(&buf, log.Config{})

		raw := "```json\n{not json}\n```"
		text, payload := postProcess(raw, logger)
		if text != raw || payload != nil {
			t.Errorf("got (%q, %v)", text, payload)
		}
		if !strings.Contains(buf.String(), "level=WARN") {
			t.Errorf("expected a warning for the unparseable block, log output: %q", buf.String())
		}
	})

	t.Run("block without template keeps text", func(t *testing.T) {
		t.Parallel()

		raw := "created it\n```json\n{\"entityId\": \"x\"}\n```"
		text, payload := postProcess(raw, log.NewNop())
		if text != raw {
			t.Errorf("text = %q", text)
		}
		if payload == nil {
			t.Error("expected payload for valid block")
		}
	})
}
