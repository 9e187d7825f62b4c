package workflow

import (
	"log/slog"
	"sync"
)

// Well-known workflow state keys.
const (
	// KeyCurrentStep stores the Step name for the conversation.
	KeyCurrentStep = "CurrentStep"

	// KeyDocumentID stores the id of the uploaded document that started the
	// workflow.
	KeyDocumentID = "DocumentId"
)

// Tracker records per-conversation workflow state and applies the
// continuation rewrite after each model turn.
//
// Tracker is safe for concurrent use. Unknown conversation ids behave as
// fresh state and never produce an error.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]*state

	detector CueDetector
	logger   *slog.Logger
}

// state is the mutable workflow state of one conversation.
type state struct {
	fields map[string]string
	epoch  int
}

// NewTracker creates a workflow tracker. A nil detector defaults to the
// lexical implementation.
func NewTracker(detector CueDetector, logger *slog.Logger) *Tracker {
	if detector == nil {
		detector = LexicalDetector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		states:   make(map[string]*state),
		detector: detector,
		logger:   logger,
	}
}

// Reset clears the conversation's workflow state to a fresh map and bumps
// the epoch. Called on conversation reset and on every new document upload
// into the same conversation id.
func (t *Tracker) Reset(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.states[conversationID]
	epoch := 1
	if ok {
		epoch = prev.epoch + 1
	}
	t.states[conversationID] = &state{
		fields: make(map[string]string),
		epoch:  epoch,
	}
	t.logger.Debug("reset workflow state",
		"conversation_id", conversationID,
		"epoch", epoch,
	)
}

// Track sets one workflow state field.
func (t *Tracker) Track(conversationID, key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[conversationID]
	if !ok {
		st = &state{fields: make(map[string]string), epoch: 1}
		t.states[conversationID] = st
	}
	st.fields[key] = value
}

// Get returns one workflow state field, or fallback when the conversation
// or the key is unknown.
func (t *Tracker) Get(conversationID, key, fallback string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.states[conversationID]
	if !ok {
		return fallback
	}
	v, ok := st.fields[key]
	if !ok {
		return fallback
	}
	return v
}

// Epoch returns the conversation's reset epoch (0 when never tracked).
func (t *Tracker) Epoch(conversationID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if st, ok := t.states[conversationID]; ok {
		return st.epoch
	}
	return 0
}

// Active reports whether a document workflow is in progress for the
// conversation (state exists and is not terminal).
func (t *Tracker) Active(conversationID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.states[conversationID]
	if !ok {
		return false
	}
	if _, hasDoc := st.fields[KeyDocumentID]; !hasDoc {
		return false
	}
	return !ParseStep(st.fields[KeyCurrentStep]).Terminal()
}

// EnsureContinuation runs the protocol transition for the conversation
// against the model's latest response and returns the (possibly rewritten)
// response text. The new step is committed only here, after the model call
// has already returned — a cancelled request never half-advances state.
func (t *Tracker) EnsureContinuation(responseText, conversationID string) string {
	current := ParseStep(t.Get(conversationID, KeyCurrentStep, StepDocumentProcessed.String()))

	next, rewritten := Transition(current, responseText, t.detector)
	if next != current {
		t.Track(conversationID, KeyCurrentStep, next.String())
		t.logger.Debug("workflow step advanced",
			"conversation_id", conversationID,
			"from", current.String(),
			"to", next.String(),
		)
	}
	return rewritten
}
