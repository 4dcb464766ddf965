package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestEscalationExplicitRequestIsCritical(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "request_human", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"escalation": {"request_human"}}
	})

	s := NewEscalation()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "escalate_to_human", actions[0].Value)
	assert.Equal(t, "escalation_explicit_request", actions[0].ReasonCode)
}

func TestEscalationFrustrationThresholdMustBeMet(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "frustrated_intent", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"frustration": {"frustrated_intent"}}
		sm.tracker.categoryTotals = map[string]int{"frustration": 2}
	})

	s := NewEscalation()
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetActionProposals(), "below threshold must not escalate")
}

func TestEscalationMisunderstandingThresholdTriggers(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "unclear", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.tracker.totalCounts = map[string]int{"unclear": 4}
	})

	s := NewEscalation()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "escalation_misunderstanding_threshold", actions[0].ReasonCode)
}

func TestEscalationHighValueComplexQuestion(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "custom_integration", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.data["company_size"] = 150
	})

	s := NewEscalation()
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "escalation_high_value_complex", actions[0].ReasonCode)
}

func TestEscalationResolvesEntryPointOverSoftClose(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}, "human_handoff": {}}
	bb, _ := testBB(states, "discovery", "request_human", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"escalation": {"request_human"}}
		fc.entryPoints = map[string]string{"escalation": "human_handoff"}
	})

	s := NewEscalation()
	require.NoError(t, s.Contribute(bb))
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "human_handoff")
}
