package sources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

func TestDataCollectorNoOpWhenNoRequiredData(t *testing.T) {
	states := map[string]ports.StateConfig{"discovery": {}}
	bb, _ := testBB(states, "discovery", "info_provided", nil)

	s := NewDataCollector()
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetProposals())
}

func TestDataCollectorProposesTransitionWhenDataComplete(t *testing.T) {
	states := map[string]ports.StateConfig{
		"discovery": {RequiredData: []string{"company_size"}, Transitions: map[string]string{"data_complete": "pricing"}},
	}
	bb, _ := testBB(states, "discovery", "info_provided", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.data["company_size"] = 50
	})

	s := NewDataCollector()
	require.NoError(t, s.Contribute(bb))
	assert.Contains(t, transitionValues(bb.GetTransitionProposals()), "pricing")
}

func TestDataCollectorNoOpWhenDataMissing(t *testing.T) {
	states := map[string]ports.StateConfig{
		"discovery": {RequiredData: []string{"company_size"}, Transitions: map[string]string{"data_complete": "pricing"}},
	}
	bb, _ := testBB(states, "discovery", "info_provided", nil)

	s := NewDataCollector()
	require.NoError(t, s.Contribute(bb))
	assert.Empty(t, bb.GetProposals())
}

func TestDataCollectorShouldContributeTrueWhenDataComplete(t *testing.T) {
	states := map[string]ports.StateConfig{
		"discovery": {RequiredData: []string{"company_size"}, Transitions: map[string]string{"data_complete": "pricing"}},
	}
	bb, _ := testBB(states, "discovery", "info_provided", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.data["company_size"] = 50
	})

	s := NewDataCollector()
	assert.True(t, s.ShouldContribute(bb))
}

func TestDataCollectorShouldContributeFalseInFinalState(t *testing.T) {
	states := map[string]ports.StateConfig{
		"closed": {RequiredData: []string{"company_size"}, Transitions: map[string]string{"data_complete": "pricing"}, IsFinal: true},
	}
	bb, _ := testBB(states, "closed", "info_provided", func(sm *fakeStateMachine, fc *fakeFlowConfig) {
		sm.data["company_size"] = 50
	})

	s := NewDataCollector()
	assert.False(t, s.ShouldContribute(bb), "a final state must not propose leaving it even with required data satisfied")
}
