// Package workflow enforces the document-to-OKR creation protocol.
//
// When OKR entities are proposed from an uploaded document, the upstream
// model cannot be trusted to honor step ordering from prompt instructions
// alone. This package records the per-conversation protocol position and
// rewrites assistant responses to force continuation: after every model
// turn the tracker inspects the response text, advances the recorded step,
// and appends the next protocol instruction when the model dropped it.
//
// The step inference is lexical by design and therefore fallible: a
// response that merely talks about "creating a session" can trigger a
// transition. The heuristics live behind the CueDetector interface so they
// can be replaced with structured model output without touching the state
// machine.
package workflow

// Step is the position inside the document-to-OKR workflow.
type Step int

// Workflow steps, in protocol order. The workflow starts at
// StepDocumentProcessed the moment a document upload completes and ends at
// StepDone.
const (
	StepDocumentProcessed Step = iota
	StepSessionProposed
	StepSessionConfirmed
	StepObjectiveProposed
	StepObjectiveConfirmed
	StepKeyResultProposed
	StepKeyResultConfirmed
	StepTaskProposed
	StepTaskConfirmed
	StepDone
)

var stepNames = map[Step]string{
	StepDocumentProcessed:  "DocumentProcessed",
	StepSessionProposed:    "SessionProposed",
	StepSessionConfirmed:   "SessionConfirmed",
	StepObjectiveProposed:  "ObjectiveProposed",
	StepObjectiveConfirmed: "ObjectiveConfirmed",
	StepKeyResultProposed:  "KeyResultProposed",
	StepKeyResultConfirmed: "KeyResultConfirmed",
	StepTaskProposed:       "TaskProposed",
	StepTaskConfirmed:      "TaskConfirmed",
	StepDone:               "Done",
}

// String returns the canonical step name, as stored in workflow state.
func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseStep maps a stored step name back to its Step. Unknown names map to
// StepDocumentProcessed, matching the "unknown state is fresh state"
// failure semantics.
func ParseStep(name string) Step {
	for step, n := range stepNames {
		if n == name {
			return step
		}
	}
	return StepDocumentProcessed
}

// Terminal reports whether the workflow has finished.
func (s Step) Terminal() bool {
	return s == StepDone
}

// Transition is the pure state transition: given the current step and the
// model's latest response text, it returns the next step and the response
// rewritten to carry the protocol's next instruction when the model's text
// does not already contain it.
//
// Calling Transition twice with the same step and the already-rewritten
// text yields the same step and text (idempotent on repeated input).
func Transition(step Step, response string, d CueDetector) (Step, string) {
	cues := d.Detect(response)

	next := advance(step, cues)
	if expectationMet(next, cues) {
		return next, response
	}
	return next, response + "\n\n" + continuation[next]
}

// advance applies the cue-driven transitions. Confirmation cues move a
// Proposed step to Confirmed; proposal cues move a Confirmed step (or the
// initial step) to the next Proposed. Both can fire on one response, e.g.
// "Session created. Here is the first objective... confirm?".
func advance(step Step, cues Cues) Step {
	// Creation acknowledgments advance Proposed -> Confirmed.
	switch step {
	case StepSessionProposed:
		if cues.Session.Created {
			step = StepSessionConfirmed
		}
	case StepObjectiveProposed:
		if cues.Objective.Created {
			step = StepObjectiveConfirmed
		}
	case StepKeyResultProposed:
		if cues.KeyResult.Created {
			step = StepKeyResultConfirmed
		}
	case StepTaskProposed:
		if cues.Task.Created {
			step = StepTaskConfirmed
		}
	}

	// Proposals advance Confirmed (or the initial step) to the next
	// Proposed state.
	switch step {
	case StepDocumentProcessed:
		if cues.Session.Proposed {
			step = StepSessionProposed
		}
	case StepSessionConfirmed:
		if cues.Objective.Proposed {
			step = StepObjectiveProposed
		}
	case StepObjectiveConfirmed:
		if cues.KeyResult.Proposed {
			step = StepKeyResultProposed
		}
	case StepKeyResultConfirmed:
		if cues.Task.Proposed {
			step = StepTaskProposed
		}
	case StepTaskConfirmed:
		if cues.Done {
			step = StepDone
		}
	}

	return step
}

// expectationMet reports whether the response already carries what the
// protocol expects next at the given step.
func expectationMet(step Step, cues Cues) bool {
	switch step {
	case StepDocumentProcessed:
		return cues.Session.Proposed
	case StepSessionProposed, StepObjectiveProposed, StepKeyResultProposed, StepTaskProposed:
		return cues.AsksConfirmation
	case StepSessionConfirmed:
		return cues.Objective.Proposed
	case StepObjectiveConfirmed:
		return cues.KeyResult.Proposed
	case StepKeyResultConfirmed:
		return cues.Task.Proposed
	case StepTaskConfirmed:
		return cues.Done || cues.Task.Proposed
	case StepDone:
		return true
	}
	return true
}

// continuation holds the instruction appended when the model's response
// dropped the protocol's next prompt.
var continuation = map[Step]string{
	StepDocumentProcessed: "Let's set up your OKRs from this document one step at a time. " +
		"First, I will propose an OKR session. Reply \"confirm\" to create it.",
	StepSessionProposed:   "Please confirm the proposed OKR session before we continue.",
	StepSessionConfirmed:  "Next, I will propose the first objective from the document. Please confirm it before we continue.",
	StepObjectiveProposed: "Please confirm the proposed objective before we continue.",
	StepObjectiveConfirmed: "Next, I will propose a key result for this objective. " +
		"Please confirm it before we continue.",
	StepKeyResultProposed: "Please confirm the proposed key result before we continue.",
	StepKeyResultConfirmed: "Next, I will propose a task for this key result. " +
		"Please confirm it before we continue.",
	StepTaskProposed: "Please confirm the proposed task before we continue.",
	StepTaskConfirmed: "We can add more tasks or finish the setup. " +
		"Say \"done\" when the plan is complete.",
}
