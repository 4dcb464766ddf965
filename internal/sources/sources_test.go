package sources

import (
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

type fakeIntentTracker struct {
	turnNumber     int
	objConsecutive int
	objTotal       int
	totalCounts    map[string]int
	categoryTotals map[string]int
	categoryHist   map[string][]ports.IntentRecord
}

func (f *fakeIntentTracker) TurnNumber() int             { return f.turnNumber }
func (f *fakeIntentTracker) PrevIntent() (string, bool)  { return "", false }
func (f *fakeIntentTracker) Record(intent, state string) {}
func (f *fakeIntentTracker) AdvanceTurn()                { f.turnNumber++ }
func (f *fakeIntentTracker) ObjectionConsecutive() int   { return f.objConsecutive }
func (f *fakeIntentTracker) ObjectionTotal() int         { return f.objTotal }
func (f *fakeIntentTracker) TotalCount(intent string) int {
	if f.totalCounts == nil {
		return 0
	}
	return f.totalCounts[intent]
}
func (f *fakeIntentTracker) CategoryTotal(category string) int {
	if f.categoryTotals == nil {
		return 0
	}
	return f.categoryTotals[category]
}
func (f *fakeIntentTracker) CategoryStreak(category string) int { return 0 }
func (f *fakeIntentTracker) IntentsByCategory(category string) []ports.IntentRecord {
	return f.categoryHist[category]
}
func (f *fakeIntentTracker) RecentIntents(limit int) []ports.IntentRecord { return nil }

type fakeCircularFlow struct {
	target        string
	hasTarget     bool
	limitReached  bool
	recordedFrom  string
	recordedTo    string
	recordedCalls int
}

func (f *fakeCircularFlow) GoBackCount() int    { return 0 }
func (f *fakeCircularFlow) MaxGoBacks() int     { return 3 }
func (f *fakeCircularFlow) Stats() map[string]any { return map[string]any{} }
func (f *fakeCircularFlow) GoBackTarget(state string, transitions map[string]string) (string, bool) {
	return f.target, f.hasTarget
}
func (f *fakeCircularFlow) IsLimitReached() bool          { return f.limitReached }
func (f *fakeCircularFlow) RemainingGoBacks() int         { return 1 }
func (f *fakeCircularFlow) History() []ports.GoBackRecord { return nil }
func (f *fakeCircularFlow) RecordGoBack(from, to string) {
	f.recordedFrom, f.recordedTo = from, to
	f.recordedCalls++
}

type fakeStateMachine struct {
	state                   string
	data                    map[string]any
	tracker                 *fakeIntentTracker
	circular                ports.CircularFlow
	stateBeforeObjection    string
	hasStateBeforeObjection bool
}

func (f *fakeStateMachine) State() string                { return f.state }
func (f *fakeStateMachine) CollectedData() map[string]any { return f.data }
func (f *fakeStateMachine) CurrentPhase() (string, bool)  { return "", false }
func (f *fakeStateMachine) LastAction() (string, bool)    { return "", false }
func (f *fakeStateMachine) StateBeforeObjection() (string, bool) {
	return f.stateBeforeObjection, f.hasStateBeforeObjection
}
func (f *fakeStateMachine) SetStateBeforeObjection(state string, ok bool) {
	f.stateBeforeObjection, f.hasStateBeforeObjection = state, ok
}
func (f *fakeStateMachine) CircularFlow() ports.CircularFlow   { return f.circular }
func (f *fakeStateMachine) IntentTracker() ports.IntentTracker { return f.tracker }
func (f *fakeStateMachine) UpdateData(updates map[string]any) {
	if f.data == nil {
		f.data = map[string]any{}
	}
	for k, v := range updates {
		f.data[k] = v
	}
}
func (f *fakeStateMachine) IsFinal() bool { return false }
func (f *fakeStateMachine) TransitionTo(nextState string, opts ports.TransitionOptions) bool {
	f.state = nextState
	return true
}
func (f *fakeStateMachine) SyncPhaseFromState() {}

type fakeFlowConfig struct {
	states           map[string]ports.StateConfig
	intentCategories map[string][]string
	entryPoints      map[string]string
	phases           map[string]string
}

func (f fakeFlowConfig) States() map[string]ports.StateConfig { return f.states }
func (f fakeFlowConfig) StateConfig(state string) (ports.StateConfig, bool) {
	sc, ok := f.states[state]
	return sc, ok
}
func (f fakeFlowConfig) Priorities() []ports.PriorityDefinition { return nil }
func (f fakeFlowConfig) Constants() map[string]any              { return nil }
func (f fakeFlowConfig) PhaseForState(state string) (string, bool) {
	p, ok := f.phases[state]
	return p, ok
}
func (f fakeFlowConfig) IsPhaseState(state string) bool                { return false }
func (f fakeFlowConfig) StateOnEnterFlags(state string) map[string]any { return nil }
func (f fakeFlowConfig) IntentCategory(category string) []string       { return f.intentCategories[category] }
func (f fakeFlowConfig) EntryPoint(name string) (string, bool) {
	v, ok := f.entryPoints[name]
	return v, ok
}

type fakeEnvelope struct {
	frustration      int
	consecutiveState int
	progressing      bool
	extractedData    bool
}

func (e *fakeEnvelope) FrustrationLevel() int            { return e.frustration }
func (e *fakeEnvelope) IsStuck() bool                    { return false }
func (e *fakeEnvelope) HasOscillation() bool              { return false }
func (e *fakeEnvelope) MomentumDirection() string         { return "" }
func (e *fakeEnvelope) Momentum() float64                 { return 0 }
func (e *fakeEnvelope) EngagementLevel() string           { return "" }
func (e *fakeEnvelope) RepeatedQuestion() (string, bool)  { return "", false }
func (e *fakeEnvelope) ConfidenceTrend() string           { return "" }
func (e *fakeEnvelope) TotalObjections() int              { return 0 }
func (e *fakeEnvelope) HasBreakthrough() bool              { return false }
func (e *fakeEnvelope) TurnsSinceBreakthrough() (int, bool) { return 0, false }
func (e *fakeEnvelope) GuardIntervention() (string, bool)  { return "", false }
func (e *fakeEnvelope) Tone() (string, bool)               { return "", false }
func (e *fakeEnvelope) UnclearCount() int                  { return 0 }
func (e *fakeEnvelope) ConsecutiveSameState() int          { return e.consecutiveState }
func (e *fakeEnvelope) IsProgressing() bool                { return e.progressing }
func (e *fakeEnvelope) HasExtractedData() bool             { return e.extractedData }

// testBB builds a Blackboard wired with fake collaborators, already past
// BeginTurn for the given intent/state, ready for a source's ShouldContribute
// and Contribute to run against it.
func testBB(states map[string]ports.StateConfig, initialState, intent string, configure func(sm *fakeStateMachine, fc *fakeFlowConfig)) (*blackboard.Blackboard, *fakeStateMachine) {
	return testBBWithEnvelope(states, initialState, intent, nil, configure)
}

// testBBWithEnvelope is testBB plus an explicit ContextEnvelope, needed by
// sources that gate on envelope-derived signals (stall/progress detection).
func testBBWithEnvelope(states map[string]ports.StateConfig, initialState, intent string, envelope ports.ContextEnvelope, configure func(sm *fakeStateMachine, fc *fakeFlowConfig)) (*blackboard.Blackboard, *fakeStateMachine) {
	sm := &fakeStateMachine{state: initialState, data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := &fakeFlowConfig{states: states}
	if configure != nil {
		configure(sm, fc)
	}
	bb := blackboard.New(sm, *fc, ports.TenantConfig{Features: map[string]bool{}}, nil)
	bb.BeginTurn(intent, nil, envelope, "test message", 0)
	return bb, sm
}

// newBlackboardWithTenant builds a Blackboard with an explicit TenantConfig,
// for sources that gate on tenant feature flags (AutonomousDecision).
func newBlackboardWithTenant(sm ports.StateMachine, fc ports.FlowConfig, tenant ports.TenantConfig) *blackboard.Blackboard {
	return blackboard.New(sm, fc, tenant, nil)
}

func actionValues(proposals []blackboard.Proposal) []string {
	var out []string
	for _, p := range proposals {
		if p.Kind == blackboard.ProposalAction {
			out = append(out, p.Value)
		}
	}
	return out
}

func transitionValues(proposals []blackboard.Proposal) []string {
	var out []string
	for _, p := range proposals {
		if p.Kind == blackboard.ProposalTransition {
			out = append(out, p.Value)
		}
	}
	return out
}
