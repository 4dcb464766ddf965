package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestGoBackGuardProposesAcknowledgeWhenTargetAvailable(t *testing.T) {
	circ := &fakeCircularFlow{target: "discovery", hasTarget: true}
	states := map[string]ports.StateConfig{"pricing": {}}
	bb, _ := testBB(states, "pricing", "go_back", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.circular = circ
		fc.intentCategories = map[string][]string{"go_back": {"go_back"}}
	})

	s := NewGoBackGuard()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	assert.Contains(t, actionValues(bb.GetActionProposals()), "acknowledge_go_back")
}

func TestGoBackGuardBlocksWhenLimitReached(t *testing.T) {
	circ := &fakeCircularFlow{target: "discovery", hasTarget: true, limitReached: true}
	states := map[string]ports.StateConfig{"pricing": {}}
	bb, _ := testBB(states, "pricing", "go_back", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.circular = circ
		fc.intentCategories = map[string][]string{"go_back": {"go_back"}}
	})

	s := NewGoBackGuard()
	require.NoError(t, s.Contribute(bb))

	assert.Contains(t, actionValues(bb.GetActionProposals()), "go_back_limit_reached")
	assert.NotContains(t, actionValues(bb.GetActionProposals()), "acknowledge_go_back")
}

func TestGoBackGuardNoOpForNonGoBackIntent(t *testing.T) {
	states := map[string]ports.StateConfig{"pricing": {}}
	bb, _ := testBB(states, "pricing", "price_question", nil)

	s := NewGoBackGuard()
	assert.False(t, s.ShouldContribute(bb), "non-go_back intents must be gated out before Contribute runs")
}
