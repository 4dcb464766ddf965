package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

type stubConditionRegistry struct {
	known  map[string]bool
	result bool
}

func (r stubConditionRegistry) Has(name string) bool { return r.known[name] }
func (r stubConditionRegistry) Evaluate(name string, ctx ports.EvaluatorContext) bool {
	return r.result
}

func TestIntentProcessorSkipsDedicatedIntents(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Rules: map[string]any{"price_question": "should_never_fire"}}}
	bb, _ := testBB(states, "discovery", "price_question", nil)

	s := NewIntentProcessor(nil)
	assert.False(t, s.ShouldContribute(bb))
}

func TestIntentProcessorBareStringRule(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Rules: map[string]any{"greeting": "send_greeting"}}}
	bb, _ := testBB(states, "discovery", "greeting", nil)

	s := NewIntentProcessor(nil)
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "send_greeting", actions[0].Value)
	assert.True(t, actions[0].Combinable)
}

func TestIntentProcessorBlockingActionIsNotCombinable(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {Rules: map[string]any{"rejection": "handle_rejection"}}}
	bb, _ := testBB(states, "discovery", "rejection", nil)

	s := NewIntentProcessor(nil)
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Combinable)
}

func TestIntentProcessorConditionalRuleRequiresTrueCondition(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {
		Rules: map[string]any{"info_provided": map[string]any{"when": "has_budget", "then": "discuss_budget"}},
	}}
	bb, _ := testBB(states, "discovery", "info_provided", nil)

	s := NewIntentProcessor(stubConditionRegistry{known: map[string]bool{"has_budget": true}, result: false})
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetActionProposals())
}

func TestIntentProcessorConditionalRuleFiresWhenTrue(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {
		Rules: map[string]any{"info_provided": map[string]any{"when": "has_budget", "then": "discuss_budget"}},
	}}
	bb, _ := testBB(states, "discovery", "info_provided", nil)

	s := NewIntentProcessor(stubConditionRegistry{known: map[string]bool{"has_budget": true}, result: true})
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "discuss_budget", actions[0].Value)
}

func TestIntentProcessorChainFallsBackToDefaultString(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {
		Rules: map[string]any{"info_provided": []any{
			map[string]any{"when": "has_budget", "then": "discuss_budget"},
			"acknowledge_info",
		}},
	}}
	bb, _ := testBB(states, "discovery", "info_provided", nil)

	s := NewIntentProcessor(stubConditionRegistry{known: map[string]bool{"has_budget": true}, result: false})
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "acknowledge_info", actions[0].Value)
}
