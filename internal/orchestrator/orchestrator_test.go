package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
	"github.com/ashita-ai/dialogflow/internal/sources"
)

type fakeIntentTracker struct {
	turnNumber     int
	objConsecutive int
}

func (f *fakeIntentTracker) TurnNumber() int                                       { return f.turnNumber }
func (f *fakeIntentTracker) PrevIntent() (string, bool)                            { return "", false }
func (f *fakeIntentTracker) Record(intent, state string)                          {}
func (f *fakeIntentTracker) AdvanceTurn()                                          { f.turnNumber++ }
func (f *fakeIntentTracker) ObjectionConsecutive() int                             { return f.objConsecutive }
func (f *fakeIntentTracker) ObjectionTotal() int                                   { return 0 }
func (f *fakeIntentTracker) TotalCount(intent string) int                         { return 0 }
func (f *fakeIntentTracker) CategoryTotal(category string) int                    { return 0 }
func (f *fakeIntentTracker) CategoryStreak(category string) int                   { return 0 }
func (f *fakeIntentTracker) IntentsByCategory(category string) []ports.IntentRecord { return nil }
func (f *fakeIntentTracker) RecentIntents(limit int) []ports.IntentRecord           { return nil }

type fakeStateMachine struct {
	state                   string
	data                    map[string]any
	tracker                 *fakeIntentTracker
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
func (f *fakeStateMachine) CircularFlow() ports.CircularFlow   { return nil }
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
	states map[string]ports.StateConfig
}

func (f fakeFlowConfig) States() map[string]ports.StateConfig { return f.states }
func (f fakeFlowConfig) StateConfig(state string) (ports.StateConfig, bool) {
	sc, ok := f.states[state]
	return sc, ok
}
func (f fakeFlowConfig) Priorities() []ports.PriorityDefinition        { return nil }
func (f fakeFlowConfig) Constants() map[string]any                     { return nil }
func (f fakeFlowConfig) PhaseForState(state string) (string, bool)     { return f.states[state].Phase, f.states[state].Phase != "" }
func (f fakeFlowConfig) IsPhaseState(state string) bool                { return false }
func (f fakeFlowConfig) StateOnEnterFlags(state string) map[string]any { return nil }
func (f fakeFlowConfig) IntentCategory(category string) []string       { return nil }
func (f fakeFlowConfig) EntryPoint(name string) (string, bool)         { return "", false }

func newTestSetup(states map[string]ports.StateConfig, initialState string) (*blackboard.Blackboard, *fakeStateMachine, ports.FlowConfig) {
	sm := &fakeStateMachine{state: initialState, data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := fakeFlowConfig{states: states}
	bb := blackboard.New(sm, fc, ports.TenantConfig{}, nil)
	return bb, sm, fc
}

type stubSource struct {
	name       string
	contribute func(bb *blackboard.Blackboard) error
	shouldRun  bool
	enabled    bool
}

func (s *stubSource) Name() string  { return s.name }
func (s *stubSource) Enabled() bool { return s.enabled }
func (s *stubSource) Enable()       { s.enabled = true }
func (s *stubSource) Disable()      { s.enabled = false }
func (s *stubSource) ShouldContribute(bb *blackboard.Blackboard) bool { return s.shouldRun }
func (s *stubSource) Contribute(bb *blackboard.Blackboard) error      { return s.contribute(bb) }

func TestProcessTurnNoSourcesReturnsDefaultFallback(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Goal: "learn about the lead"}}
	bb, _, _ := newTestSetup(states, "discovery")
	resolver := blackboard.NewConflictResolver("continue_current_goal")
	priorityAssigner := blackboard.NewPriorityAssigner(bb.FlowConfig(), nil, nil)

	o := New(bb, nil, priorityAssigner, nil, resolver, nil, nil)
	decision := o.ProcessTurn("greeting", nil, nil, "hi", 0)

	require.NotNil(t, decision)
	assert.Equal(t, "continue_current_goal", decision.Action)
	assert.Equal(t, "discovery", decision.NextState)
	assert.Equal(t, "learn about the lead", decision.Goal)
}

func TestProcessTurnAppliesWinningTransition(t *testing.T) {
	states := map[string]ports.StateConfig{
		"discovery": {Goal: "learn"},
		"pricing":   {Goal: "discuss pricing"},
	}
	bb, sm, _ := newTestSetup(states, "discovery")
	resolver := blackboard.NewConflictResolver("continue_current_goal")
	priorityAssigner := blackboard.NewPriorityAssigner(bb.FlowConfig(), nil, nil)

	src := &stubSource{name: "PriceRouter", enabled: true, shouldRun: true, contribute: func(bb *blackboard.Blackboard) error {
		bb.ProposeTransition(blackboard.Proposal{Value: "pricing", Priority: blackboard.PriorityNormal, ReasonCode: "price_question", SourceName: "PriceRouter"})
		return nil
	}}

	o := New(bb, []sources.KnowledgeSource{src}, priorityAssigner, nil, resolver, nil, nil)
	decision := o.ProcessTurn("price_question", nil, nil, "how much?", 0)

	require.NotNil(t, decision)
	assert.Equal(t, "pricing", decision.NextState)
	assert.Equal(t, "pricing", sm.state)
	assert.Equal(t, "discuss pricing", decision.Goal)
	assert.Equal(t, "discovery", decision.PrevState)
}

func TestProcessTurnSourcePanicDoesNotAbortTurn(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Goal: "learn"}}
	bb, _, _ := newTestSetup(states, "discovery")
	resolver := blackboard.NewConflictResolver("continue_current_goal")
	priorityAssigner := blackboard.NewPriorityAssigner(bb.FlowConfig(), nil, nil)

	panicky := &stubSource{name: "Panicky", enabled: true, shouldRun: true, contribute: func(bb *blackboard.Blackboard) error {
		panic("boom")
	}}
	fine := &stubSource{name: "Fine", enabled: true, shouldRun: true, contribute: func(bb *blackboard.Blackboard) error {
		bb.ProposeAction(blackboard.Proposal{Value: "continue_current_goal", Priority: blackboard.PriorityNormal, Combinable: true, ReasonCode: "ok", SourceName: "Fine"})
		return nil
	}}

	o := New(bb, []sources.KnowledgeSource{panicky, fine}, priorityAssigner, nil, resolver, nil, nil)

	require.NotPanics(t, func() {
		decision := o.ProcessTurn("greeting", nil, nil, "hi", 0)
		assert.Equal(t, "discovery", decision.NextState)
	})
}

func TestProcessTurnSanitizesInvalidNextState(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Goal: "learn"}}
	bb, sm, _ := newTestSetup(states, "discovery")
	resolver := blackboard.NewConflictResolver("continue_current_goal")
	priorityAssigner := blackboard.NewPriorityAssigner(bb.FlowConfig(), nil, nil)

	badTransition := &stubSource{name: "Bad", enabled: true, shouldRun: true, contribute: func(bb *blackboard.Blackboard) error {
		bb.ProposeTransition(blackboard.Proposal{Value: "nonexistent_state", Priority: blackboard.PriorityNormal, ReasonCode: "buggy", SourceName: "Bad"})
		return nil
	}}

	o := New(bb, []sources.KnowledgeSource{badTransition}, priorityAssigner, nil, resolver, nil, nil)
	decision := o.ProcessTurn("greeting", nil, nil, "hi", 0)

	assert.Equal(t, "discovery", decision.NextState)
	assert.Equal(t, "discovery", sm.state)
	assert.Contains(t, decision.ReasonCodes, blackboard.InvalidNextStateReason)
}

func TestProcessTurnValidationBlockingErrorFallsBack(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Goal: "learn"}}
	bb, _, _ := newTestSetup(states, "discovery")
	resolver := blackboard.NewConflictResolver("continue_current_goal")
	priorityAssigner := blackboard.NewPriorityAssigner(bb.FlowConfig(), nil, nil)
	validator := blackboard.NewProposalValidator(nil, nil, nil, false)

	invalidProposal := &stubSource{name: "Broken", enabled: true, shouldRun: true, contribute: func(bb *blackboard.Blackboard) error {
		bb.ProposeAction(blackboard.Proposal{Value: "", SourceName: "Broken"})
		return nil
	}}

	o := New(bb, []sources.KnowledgeSource{invalidProposal}, priorityAssigner, validator, resolver, nil, nil)
	decision := o.ProcessTurn("greeting", nil, nil, "hi", 0)

	assert.Equal(t, "discovery", decision.NextState)
	assert.Contains(t, decision.ReasonCodes, "fallback_validation_error")
}
