package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestDisambiguationOnlyContributesForDisambiguationNeeded(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "price_question", nil)

	s := NewDisambiguation()
	assert.False(t, s.ShouldContribute(bb))
}

func TestDisambiguationProposesAskClarification(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "disambiguation_needed", nil)

	s := NewDisambiguation()
	require.True(t, s.ShouldContribute(bb))
	require.NoError(t, s.Contribute(bb))

	actions := bb.GetActionProposals()
	require.Len(t, actions, 1)
	assert.Equal(t, "ask_clarification", actions[0].Value)
	assert.False(t, actions[0].Combinable)
}
