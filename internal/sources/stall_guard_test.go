package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestStallGuardEjectsOnceMaxTurnsExceeded(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {MaxTurnsInState: 5, MaxTurnsFallback: "close"}}
	env := &fakeEnvelope{consecutiveState: 5}
	bb, _ := testBBWithEnvelope(states, "discovery", "unclear", env, nil)

	s := NewStallGuard()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "stall_guard_eject", actions[0].Value)
	assert.Equal(t, blackboard.PriorityHigh, actions[0].Priority)
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "close")
}

func TestStallGuardExemptIntentNeverEjects(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {MaxTurnsInState: 5}}
	env := &fakeEnvelope{consecutiveState: 5}
	bb, _ := testBBWithEnvelope(states, "discovery", "contact_provided", env, nil)

	s := NewStallGuard()
	assert.False(t, s.ShouldContribute(bb))
}

func TestStallGuardSoftNudgeBelowHardLimit(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {MaxTurnsInState: 5, MaxTurnsFallback: "close"}}
	env := &fakeEnvelope{consecutiveState: 4, progressing: false, extractedData: false}
	bb, _ := testBBWithEnvelope(states, "discovery", "unclear", env, nil)

	s := NewStallGuard()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "stall_guard_nudge", actions[0].Value)
}

func TestStallGuardPrefersSavedObjectionState(t *testing.T) {
	states := map[string]ports.StateConfig{"handle_objection": {MaxTurnsInState: 5}}
	env := &fakeEnvelope{consecutiveState: 5}
	bb, _ := testBBWithEnvelope(states, "handle_objection", "objection_price", env, func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.stateBeforeObjection, sm.hasStateBeforeObjection = "discovery", true
	})

	s := NewStallGuard()
	require.NoError(t, s.Contribute(bb))
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "discovery")
}
