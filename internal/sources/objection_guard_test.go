package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestObjectionGuardNoOpBelowLimit(t *testing.T) {
	states := map[string]ports.StateConfig{"handle_objection": {}}
	limits := map[string]ports.PersonaLimit{"default": {Consecutive: 3, Total: 5}}
	bb, _ := testBB(states, "handle_objection", "objection_price", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"objection": {"objection_price"}}
		sm.tracker.objConsecutive = 1
		sm.tracker.objTotal = 1
	})

	s := NewObjectionGuard(limits, "")
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetProposals())
}

func TestObjectionGuardForcesSoftCloseOnceConsecutiveLimitHit(t *testing.T) {
	states := map[string]ports.StateConfig{"handle_objection": {}}
	limits := map[string]ports.PersonaLimit{"default": {Consecutive: 3, Total: 5}}
	bb, sm := testBB(states, "handle_objection", "objection_price", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"objection": {"objection_price"}}
		sm.tracker.objConsecutive = 3
	})

	s := NewObjectionGuard(limits, "soft_close")
	require.NoError(t, s.Contribute(bb))

	assert.Contains(t, actionValues(bb.GetActionProposals()), "objection_limit_reached")
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "soft_close")
	assert.Equal(t, true, bb.GetDataUpdates()["_objection_limit_final"])
	_ = sm
}

func TestObjectionGuardNoOpWithoutPersonaLimit(t *testing.T) {
	states := map[string]ports.StateConfig{"handle_objection": {}}
	bb, _ := testBB(states, "handle_objection", "objection_price", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		fc.intentCategories = map[string][]string{"objection": {"objection_price"}}
		sm.tracker.objConsecutive = 99
	})

	s := NewObjectionGuard(nil, "")
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetProposals())
}
