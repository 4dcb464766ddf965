package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestTransitionResolverProposesDeclaredTarget(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Transitions: map[string]string{"demo_request": "scheduling"}}}
	bb, _ := testBB(states, "discovery", "demo_request", nil)

	s := NewTransitionResolver(nil)
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	transitions := bb.GetTransitionProposals()
	require.Len(t, transitions, 1)
	assert.Equal(t, "scheduling", transitions[0].Value)
	assert.Equal(t, blackboard.PriorityNormal, transitions[0].Priority)
}

func TestTransitionResolverHardNoIntentGetsHighPriority(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Transitions: map[string]string{"rejection": "close"}}}
	bb, _ := testBB(states, "discovery", "rejection", nil)

	s := NewTransitionResolver(nil)
	require.NoError(t, s.Contribute(bb))

	transitions := bb.GetTransitionProposals()
	require.Len(t, transitions, 1)
	assert.Equal(t, blackboard.PriorityHigh, transitions[0].Priority)
}

func TestTransitionResolverSkipsExcludedTriggers(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Transitions: map[string]string{"data_complete": "pricing", "any": "fallback"}}}
	bb, _ := testBB(states, "discovery", "data_complete", nil)

	s := NewTransitionResolver(nil)
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetTransitionProposals())
}

func TestTransitionResolverNoOpWithoutDeclaredTransitions(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "demo_request", nil)

	s := NewTransitionResolver(nil)
	assert.False(t, s.ShouldContribute(bb))
}
