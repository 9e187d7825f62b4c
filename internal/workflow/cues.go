package workflow

import "strings"

// EntityCues captures what the model's response says about one entity kind.
type EntityCues struct {
	Proposed bool // the response proposes this entity and implies a pending decision
	Created  bool // the response acknowledges this entity was created
}

// Cues is the lexical summary of one model response, as seen by the state
// machine.
type Cues struct {
	Session   EntityCues
	Objective EntityCues
	KeyResult EntityCues
	Task      EntityCues

	// AsksConfirmation is true when the response seeks an explicit go-ahead.
	AsksConfirmation bool

	// Done is true when the response declares the document workflow finished.
	Done bool
}

// CueDetector extracts Cues from a model response. Implementations may be
// lexical (LexicalDetector) or backed by structured model output.
type CueDetector interface {
	Detect(response string) Cues
}

// LexicalDetector infers cues from keyword scanning over the lowercased
// response text. Fallible by construction; see the package comment.
type LexicalDetector struct{}

var (
	proposalMarkers = []string{
		"i propose", "proposed", "i suggest", "suggestion", "how about",
		"shall i create", "would you like", "here is a", "here's a",
		"i recommend", "based on the document",
	}
	creationMarkers = []string{
		"created", "has been created", "was created", "added", "saved",
		"successfully", "is now set up",
	}
	confirmationMarkers = []string{
		"confirm", "do you want", "shall i proceed", "would you like me to proceed",
		"shall i go ahead", "approve", "is that correct",
	}
	doneMarkers = []string{
		"workflow complete", "all set", "setup is complete", "we are done",
		"we're done", "everything from the document has been created",
		"finished creating",
	}
)

// Detect implements CueDetector.
func (LexicalDetector) Detect(response string) Cues {
	text := strings.ToLower(response)

	entity := func(names ...string) EntityCues {
		mentioned := containsAny(text, names...)
		if !mentioned {
			return EntityCues{}
		}
		return EntityCues{
			Proposed: containsAny(text, proposalMarkers...),
			Created:  containsAny(text, creationMarkers...),
		}
	}

	return Cues{
		Session:          entity("okr session", "session"),
		Objective:        entity("objective"),
		KeyResult:        entity("key result", "key-result", "keyresult"),
		Task:             entity("task"),
		AsksConfirmation: containsAny(text, confirmationMarkers...),
		Done:             containsAny(text, doneMarkers...),
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
