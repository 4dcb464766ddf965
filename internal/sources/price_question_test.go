package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

type stubAnswerResolver struct {
	action string
	ok     bool
}

func (r stubAnswerResolver) Resolve(ctx blackboard.ContextSnapshot) (string, bool) { return r.action, r.ok }

func TestPriceQuestionClosedSetIsCombinable(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "price_question", nil)

	s := NewPriceQuestion(nil)
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "answer_with_pricing", actions[0].Value)
	assert.True(t, actions[0].Combinable, "price answers must never block data_complete")
}

func TestPriceQuestionFallbackUsedForUnknownIntent(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "semantic_price_like", nil)

	s := NewPriceQuestion(stubAnswerResolver{action: "answer_with_pricing", ok: true})
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "price_question_semantic_fallback", actions[0].ReasonCode)
}

func TestPriceQuestionNoOpWithoutMatchOrFallback(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "greeting", nil)

	s := NewPriceQuestion(nil)
	assert.False(t, s.ShouldContribute(bb))
}
