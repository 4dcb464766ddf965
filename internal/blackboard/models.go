package blackboard

import "github.com/ashita-ai/dialogflow/internal/ports"

// Proposal is an immutable suggestion made by a knowledge source. Sources
// never mutate a Proposal after creation; the resolver and validator only read it.
type Proposal struct {
	Kind     ProposalKind
	Value    string // action name (ACTION) or target state (TRANSITION)
	Priority Priority
	// PriorityRank tie-breaks within a Priority level. nil means "no rank
	// assigned" — distinct from a proposal explicitly ranked 0, which flow
	// configs commonly use as their strongest rank. Resolved to
	// UnrankedSentinel only when nil; never conflate the two.
	PriorityRank *int
	Combinable   bool
	ReasonCode   string
	SourceName   string
	Metadata     map[string]any

	// insertionIndex breaks ties after (Priority, PriorityRank); it is set by
	// the blackboard when the proposal is appended and is not part of the
	// source-visible API.
	insertionIndex int
}

// WithInsertionIndex returns a copy of p stamped with the given insertion
// index, used by the blackboard to preserve stable resolver ordering.
func (p Proposal) WithInsertionIndex(i int) Proposal {
	p.insertionIndex = i
	return p
}

// InsertionIndex returns the stamped insertion order of this proposal.
func (p Proposal) InsertionIndex() int { return p.insertionIndex }

func ptr[T any](v T) *T { return &v }

// String renders a short human-readable summary, used for event payloads.
func (p Proposal) String() string {
	switch p.Kind {
	case ProposalAction:
		return "action:" + p.Value + "(" + p.Priority.String() + ")"
	case ProposalTransition:
		return "transition:" + p.Value + "(" + p.Priority.String() + ")"
	default:
		return p.Kind.String() + ":" + p.Value
	}
}

// ObjectionFlowStats is the objection-tracking statistics view, filled by
// the orchestrator at commit time.
type ObjectionFlowStats struct {
	ConsecutiveObjections int
	TotalObjections       int
	History               []ports.IntentRecord
	ReturnState           string
	HasReturnState        bool
}

// ResolvedDecision is the single committed outcome of a turn. Its core fields
// are produced by the conflict resolver; the orchestrator enriches it with
// compatibility fields after applying side effects.
type ResolvedDecision struct {
	// Core (set by the resolver).
	Action            string
	NextState         string
	ReasonCodes       []string
	RejectedProposals []Proposal
	DataUpdates       map[string]any
	FlagsToSet        map[string]any
	ResolutionTrace   map[string]any

	// Compatibility fields, filled in by the orchestrator after commit.
	PrevState             string
	Goal                  string
	CollectedData         map[string]any
	MissingData           []string
	OptionalData          []string
	IsFinal               bool
	SpinPhase             string
	PrevPhase             string
	CircularFlow          map[string]any
	ObjectionFlow         ObjectionFlowStats
	DisambiguationOptions []string
	DisambiguationQuestion string
}

// AddReasonCode appends a reason code if non-empty.
func (d *ResolvedDecision) AddReasonCode(code string) {
	if code != "" {
		d.ReasonCodes = append(d.ReasonCodes, code)
	}
}
