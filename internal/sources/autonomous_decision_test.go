package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

type stubAutonomousLLM struct {
	result AutonomousDecisionResult
	err    error
}

func (l stubAutonomousLLM) Decide(ctx context.Context, req AutonomousDecisionRequest) (AutonomousDecisionResult, error) {
	return l.result, l.err
}

func autonomousStates() map[string]ports.StateConfig {
	return map[string]ports.StateConfig{
		"autonomous_discovery": {Autonomous: true, Phase: "discovery", MaxTurnsInState: 6, PhaseExhaustThreshold: 3},
		"autonomous_pricing":   {Autonomous: true, Phase: "pricing"},
	}
}

func tenantWithAutonomousFlow() ports.TenantConfig {
	return ports.TenantConfig{Features: map[string]bool{"autonomous_flow": true}}
}

func TestAutonomousDecisionRequiresFeatureFlagAndAutonomousState(t *testing.T) {
	sm := &fakeStateMachine{state: "autonomous_discovery", data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := fakeFlowConfig{states: autonomousStates()}
	bb := newBlackboardWithTenant(sm, fc, ports.TenantConfig{})
	bb.BeginTurn("info_provided", nil, nil, "msg", 0)

	s := NewAutonomousDecision(stubAutonomousLLM{})
	assert.False(t, s.ShouldContribute(bb), "disabled without the tenant feature flag")
}

func TestAutonomousDecisionProposesTransitionFromLLM(t *testing.T) {
	sm := &fakeStateMachine{state: "autonomous_discovery", data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := fakeFlowConfig{states: autonomousStates()}
	bb := newBlackboardWithTenant(sm, fc, tenantWithAutonomousFlow())
	bb.BeginTurn("info_provided", nil, nil, "msg", 0)

	llm := stubAutonomousLLM{result: AutonomousDecisionResult{ShouldTransition: true, NextState: "autonomous_pricing"}}
	s := NewAutonomousDecision(llm)
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	assert.Contains(t, actionValues(bb.GetActionProposals()), "autonomous_respond")
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "autonomous_pricing")
}

func TestAutonomousDecisionLLMErrorFallsBackToStay(t *testing.T) {
	sm := &fakeStateMachine{state: "autonomous_discovery", data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := fakeFlowConfig{states: autonomousStates()}
	bb := newBlackboardWithTenant(sm, fc, tenantWithAutonomousFlow())
	bb.BeginTurn("info_provided", nil, nil, "msg", 0)

	llm := stubAutonomousLLM{err: assert.AnError}
	s := NewAutonomousDecision(llm)
	require.NoError(t, s.Contribute(bb))

	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "autonomous_discovery")
}

func TestAutonomousDecisionHardOverrideAfterStayStreak(t *testing.T) {
	sm := &fakeStateMachine{state: "autonomous_discovery", data: map[string]any{}, tracker: &fakeIntentTracker{}}
	fc := fakeFlowConfig{states: autonomousStates()}
	bb := newBlackboardWithTenant(sm, fc, tenantWithAutonomousFlow())
	bb.BeginTurn("info_provided", nil, nil, "msg", 0)

	llm := stubAutonomousLLM{result: AutonomousDecisionResult{ShouldTransition: false}}
	s := NewAutonomousDecision(llm)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Contribute(bb))
	}

	// After 3 consecutive stay decisions (>= PhaseExhaustThreshold) the next
	// call must hard-override without consulting the LLM.
	require.NoError(t, s.Contribute(bb))
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "soft_close")
}
