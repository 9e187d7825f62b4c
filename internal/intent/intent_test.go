package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/strivehq/strive/internal/conversation"
	"github.com/strivehq/strive/internal/functions"
	"github.com/strivehq/strive/internal/log"
	"github.com/strivehq/strive/internal/provider"
)

// scriptedCompleter returns a fixed response or error.
type scriptedCompleter struct {
	response string
	err      error
}

func (s *scriptedCompleter) CompleteChat(_ context.Context, _ provider.Provider, _ string, _ []*conversation.Message, _ string) (string, error) {
	return s.response, s.err
}

func TestParseIntents_BareArray(t *testing.T) {
	t.Parallel()

	intents, err := ParseIntents(`[{"intent": "CreateTeam", "parameters": {"name": "Apollo"}}]`)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	if len(intents) != 1 || intents[0].Name != "CreateTeam" {
		t.Fatalf("intents = %+v", intents)
	}
	if intents[0].Parameters["name"] != "Apollo" {
		t.Errorf("name = %q, want Apollo", intents[0].Parameters["name"])
	}
}

func TestParseIntents_FencedBlock(t *testing.T) {
	t.Parallel()

	text := "Here are the intents:\n```json\n[{\"intent\": \"CreateTask\", \"parameters\": {\"title\": \"Ship\"}}]\n```\nDone."
	intents, err := ParseIntents(text)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	if len(intents) != 1 || intents[0].Name != "CreateTask" {
		t.Fatalf("intents = %+v", intents)
	}
}

func TestParseIntents_WrapperObject(t *testing.T) {
	t.Parallel()

	intents, err := ParseIntents(`{"intents": [{"intent": "AddTeamMember", "parameters": {"teamId": "t1"}}]}`)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	if len(intents) != 1 || intents[0].Name != "AddTeamMember" {
		t.Fatalf("intents = %+v", intents)
	}
}

func TestParseIntents_PreservesOrder(t *testing.T) {
	t.Parallel()

	intents, err := ParseIntents(`[
		{"intent": "CreateTeam", "parameters": {"name": "Apollo"}},
		{"intent": "AddTeamMember", "parameters": {"userName": "Grace"}}
	]`)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	if len(intents) != 2 || intents[0].Name != "CreateTeam" || intents[1].Name != "AddTeamMember" {
		t.Fatalf("intents = %+v", intents)
	}
}

func TestParseIntents_NonStringValues(t *testing.T) {
	t.Parallel()

	intents, err := ParseIntents(`[{"intent": "CreateKeyResult", "parameters": {"target": 95, "stretch": true}}]`)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	p := intents[0].Parameters
	if p["target"] != "95" || p["stretch"] != "true" {
		t.Errorf("parameters = %v", p)
	}
}

func TestParseIntents_DropsNamelessEntries(t *testing.T) {
	t.Parallel()

	intents, err := ParseIntents(`[{"intent": "", "parameters": {}}, {"intent": "CreateTask", "parameters": {}}]`)
	if err != nil {
		t.Fatalf("ParseIntents: %v", err)
	}
	if len(intents) != 1 || intents[0].Name != "CreateTask" {
		t.Fatalf("intents = %+v", intents)
	}
}

func TestParseIntents_Garbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseIntents("I could not determine any intents, sorry!"); err == nil {
		t.Error("expected error for non-JSON output")
	}
	if _, err := ParseIntents(`{"note": "no intents key"}`); err == nil {
		t.Error("expected error for object without intents")
	}
}

func TestAnalyze_DegradesOnModelError(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(&scriptedCompleter{err: errors.New("upstream down")}, []string{"CreateTeam"}, log.NewNop())

	intents := a.Analyze(context.Background(), "c1", "hello there")
	if len(intents) != 1 || intents[0].Name != GeneralConversation {
		t.Fatalf("intents = %+v, want single GeneralConversation", intents)
	}
	if intents[0].Parameters["userMessage"] != "hello there" {
		t.Errorf("userMessage = %q", intents[0].Parameters["userMessage"])
	}
}

func TestAnalyze_DegradesOnGarbageOutput(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(&scriptedCompleter{response: "no json here"}, []string{"CreateTeam"}, log.NewNop())

	intents := a.Analyze(context.Background(), "c1", "make me a team")
	if len(intents) != 1 || intents[0].Name != GeneralConversation {
		t.Fatalf("intents = %+v, want single GeneralConversation", intents)
	}
}

func TestAnalyze_ParsesModelOutput(t *testing.T) {
	t.Parallel()

	a := NewAnalyzer(&scriptedCompleter{
		response: `[{"intent": "CreateTeam", "parameters": {"name": "Apollo"}}]`,
	}, []string{"CreateTeam"}, log.NewNop())

	intents := a.Analyze(context.Background(), "c1", "create a team called Apollo")
	if len(intents) != 1 || intents[0].Name != "CreateTeam" {
		t.Fatalf("intents = %+v", intents)
	}
}

// scriptedInvoker fails the functions named in failOn and records call order.
type scriptedInvoker struct {
	failOn map[string]bool
	calls  []string
	params []map[string]string
}

func (s *scriptedInvoker) Invoke(_ context.Context, name string, params map[string]string, _ functions.UserContext) (*functions.Result, error) {
	s.calls = append(s.calls, name)
	s.params = append(s.params, params)
	if s.failOn[name] {
		return nil, errors.New(name + " blew up")
	}
	return &functions.Result{
		EntityType: "Entity",
		EntityID:   name + "-id",
		Operation:  "create",
		Message:    name + " done.",
	}, nil
}

func userCtx() functions.UserContext {
	return functions.UserContext{UserID: "u1", Role: functions.RoleOrganizationAdmin, OrganizationID: "org-7"}
}

func TestExecute_BestEffortBatch(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{failOn: map[string]bool{"B": true}}
	c := NewCoordinator(inv, log.NewNop())

	res := c.Execute(context.Background(), []Intent{
		{Name: "A", Parameters: map[string]string{}},
		{Name: "B", Parameters: map[string]string{}},
		{Name: "C", Parameters: map[string]string{}},
	}, userCtx())

	if len(inv.calls) != 3 {
		t.Fatalf("calls = %v, want all three executed", inv.calls)
	}
	if res.Success {
		t.Error("Success must be false when any item fails")
	}
	if len(res.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(res.Items))
	}
	if res.Items[0].Failed || !res.Items[1].Failed || res.Items[2].Failed {
		t.Errorf("failure flags = %v %v %v", res.Items[0].Failed, res.Items[1].Failed, res.Items[2].Failed)
	}
}

func TestExecute_AllSucceed(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{}
	c := NewCoordinator(inv, log.NewNop())

	res := c.Execute(context.Background(), []Intent{
		{Name: "A", Parameters: map[string]string{}},
		{Name: "B", Parameters: map[string]string{}},
	}, userCtx())

	if !res.Success {
		t.Error("expected Success for clean batch")
	}
	if res.Message != "A done. B done." {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestExecute_InjectsOrganizationID(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{}
	c := NewCoordinator(inv, log.NewNop())

	c.Execute(context.Background(), []Intent{
		{Name: "A", Parameters: map[string]string{}},
		{Name: "B", Parameters: map[string]string{"organizationId": "explicit"}},
	}, userCtx())

	if got := inv.params[0]["organizationId"]; got != "org-7" {
		t.Errorf("injected organizationId = %q, want org-7", got)
	}
	if got := inv.params[1]["organizationId"]; got != "explicit" {
		t.Errorf("organizationId = %q, explicit value must not be overwritten", got)
	}
}

func TestExecute_MergedParametersLastWriteWins(t *testing.T) {
	t.Parallel()

	inv := &scriptedInvoker{}
	c := NewCoordinator(inv, log.NewNop())

	res := c.Execute(context.Background(), []Intent{
		{Name: "A", Parameters: map[string]string{"title": "first", "only": "a"}},
		{Name: "B", Parameters: map[string]string{"title": "second"}},
	}, userCtx())

	if res.MergedParameters["title"] != "second" {
		t.Errorf("title = %q, want second", res.MergedParameters["title"])
	}
	if res.MergedParameters["only"] != "a" {
		t.Errorf("only = %q, want a", res.MergedParameters["only"])
	}
}

func TestExecute_EmptyBatch(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(&scriptedInvoker{}, log.NewNop())
	res := c.Execute(context.Background(), nil, userCtx())
	if !res.Success || len(res.Items) != 0 || res.Message != "" {
		t.Errorf("empty batch result = %+v", res)
	}
}
