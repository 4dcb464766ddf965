// Package ports defines the capability interfaces the blackboard core consumes
// from its host application: the dialog state machine, the intent tracker, and
// the flow configuration. Each is an explicit Go interface with no runtime
// type checks, satisfied by whatever concrete state machine the host wires in.
package ports

// TransitionOptions carries the atomic-update fields for StateMachine.TransitionTo.
type TransitionOptions struct {
	Action   string
	Phase    string
	HasPhase bool
	Source   string
	Validate bool
}

// CircularFlow tracks go-back navigation within a dialog.
type CircularFlow interface {
	GoBackCount() int
	MaxGoBacks() int
	Stats() map[string]any
	GoBackTarget(state string, transitions map[string]string) (string, bool)
	IsLimitReached() bool
	RemainingGoBacks() int
	History() []GoBackRecord
	RecordGoBack(from, to string)
}

// GoBackRecord is one entry in a CircularFlow's history.
type GoBackRecord struct {
	From string
	To   string
}

// IntentRecord is one entry recorded by an IntentTracker.
type IntentRecord struct {
	Intent string
	State  string
}

// IntentTracker records the intent history of a dialog and exposes
// streak/category statistics consumed by knowledge sources.
type IntentTracker interface {
	TurnNumber() int
	PrevIntent() (string, bool)
	Record(intent, state string)
	AdvanceTurn()
	ObjectionConsecutive() int
	ObjectionTotal() int
	TotalCount(intent string) int
	CategoryTotal(category string) int
	CategoryStreak(category string) int
	IntentsByCategory(category string) []IntentRecord
	RecentIntents(limit int) []IntentRecord
}

// StateMachine is the durable per-dialog state the blackboard core mutates
// only through this narrow interface.
type StateMachine interface {
	State() string
	CollectedData() map[string]any
	CurrentPhase() (string, bool)
	LastAction() (string, bool)
	StateBeforeObjection() (string, bool)
	SetStateBeforeObjection(state string, ok bool)
	CircularFlow() CircularFlow
	IntentTracker() IntentTracker
	UpdateData(updates map[string]any)
	IsFinal() bool
	// TransitionTo atomically updates state, phase, and last action together.
	// Returns false if validate is true and the target state failed validation.
	TransitionTo(nextState string, opts TransitionOptions) bool
	SyncPhaseFromState()
}

// StateConfig is the per-state configuration dictionary of a FlowConfig.
// Unknown fields are tolerated for forward compatibility.
type StateConfig struct {
	Goal                      string
	Rules                     map[string]any
	Transitions               map[string]string
	RequiredData              []string
	OptionalData              []string
	Phase                     string
	IsFinal                   bool
	Autonomous                bool
	OnEnterAction             string
	HasOnEnterAction          bool
	MaxTurnsInState           int
	PhaseExhaustThreshold     int
	MaxTurnsFallback          string
	TerminalStates            []string
	TerminalStateRequirements []string
	Parameters                map[string]any
}

// PriorityDefinition is one declarative entry of FlowConfig.Priorities,
// consumed by the priority assigner.
type PriorityDefinition struct {
	Name               string
	Priority           int
	Intents            []string
	IntentCategory     string
	Condition          string
	FeatureFlag        string
	Trigger            string // "data_complete" | "any"
	Action             string
	Handler            string // "phase_progress_handler" | "circular_flow_handler"
	UseTransitions     bool
	UseResolver        bool
	Source             string // "rules"
	ElseUseTransitions bool
}

// FlowConfig is the flow's static configuration: per-state dictionaries,
// declarative priority definitions, and phase mapping.
type FlowConfig interface {
	States() map[string]StateConfig
	StateConfig(state string) (StateConfig, bool)
	Priorities() []PriorityDefinition
	Constants() map[string]any
	PhaseForState(state string) (string, bool)
	IsPhaseState(state string) bool
	StateOnEnterFlags(state string) map[string]any
	IntentCategory(category string) []string
	EntryPoint(name string) (string, bool)
}

// ContextEnvelope carries behavioral signals computed upstream of the
// blackboard (engagement, momentum, frustration, secondary classification
// artifacts). All fields are read-only from the core's perspective.
type ContextEnvelope interface {
	FrustrationLevel() int
	IsStuck() bool
	HasOscillation() bool
	MomentumDirection() string
	Momentum() float64
	EngagementLevel() string
	RepeatedQuestion() (string, bool)
	ConfidenceTrend() string
	TotalObjections() int
	HasBreakthrough() bool
	TurnsSinceBreakthrough() (int, bool)
	GuardIntervention() (string, bool)
	Tone() (string, bool)
	UnclearCount() int
	ConsecutiveSameState() int
	IsProgressing() bool
	HasExtractedData() bool
}

// PersonaLimit bounds how many consecutive/total objections a persona may
// raise before ObjectionGuard forces a soft close.
type PersonaLimit struct {
	Consecutive int
	Total       int
}

// TenantConfig is multi-tenant configuration: feature flags and per-persona
// objection limit overrides.
type TenantConfig struct {
	TenantID             string
	BotName              string
	Tone                 string
	Features             map[string]bool
	PersonaLimitsOverride map[string]PersonaLimit
}

// IsFeatureEnabled reports whether a named feature flag is on for this tenant.
// Absent flags default to false.
func (t TenantConfig) IsFeatureEnabled(name string) bool {
	if t.Features == nil {
		return false
	}
	return t.Features[name]
}

// DefaultTenant is the zero-configuration tenant used when the host
// application does not supply one.
var DefaultTenant = TenantConfig{TenantID: "default"}

// ConditionRegistry evaluates named boolean conditions against an evaluator
// context. It is an external collaborator supplied by the host application,
// analogous to a rules engine; not implemented here.
type ConditionRegistry interface {
	Has(name string) bool
	Evaluate(name string, ctx EvaluatorContext) bool
}

// FeatureFlags gates process-wide feature flags, independent of tenant
// overrides (which layer on top via TenantConfig.IsFeatureEnabled).
type FeatureFlags interface {
	IsEnabled(name string) bool
}

// EvaluatorContext is the read-only view handed to ConditionRegistry.Evaluate,
// assembled from a ContextSnapshot by the priority assigner.
type EvaluatorContext struct {
	CollectedData       map[string]any
	State               string
	TurnNumber          int
	CurrentPhase        string
	IsPhaseState        bool
	CurrentIntent       string
	PrevIntent          string
	IntentTracker       IntentTracker
	MissingRequiredData []string
	StateConfig         StateConfig

	FrustrationLevel          int
	IsStuck                   bool
	HasOscillation            bool
	MomentumDirection         string
	Momentum                  float64
	EngagementLevel           string
	RepeatedQuestion          string
	HasRepeatedQuestion       bool
	ConfidenceTrend           string
	TotalObjections           int
	HasBreakthrough           bool
	TurnsSinceBreakthrough    int
	HasTurnsSinceBreakthrough bool
	GuardIntervention         string
	HasGuardIntervention      bool
	Tone                      string
	HasTone                   bool
	UnclearCount              int
}
