package blackboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

type fakeFlowConfig struct {
	priorities      []ports.PriorityDefinition
	intentCategories map[string][]string
	constants       map[string]any
}

func (f fakeFlowConfig) States() map[string]ports.StateConfig          { return nil }
func (f fakeFlowConfig) StateConfig(state string) (ports.StateConfig, bool) { return ports.StateConfig{}, false }
func (f fakeFlowConfig) Priorities() []ports.PriorityDefinition        { return f.priorities }
func (f fakeFlowConfig) Constants() map[string]any                     { return f.constants }
func (f fakeFlowConfig) PhaseForState(state string) (string, bool)     { return "", false }
func (f fakeFlowConfig) IsPhaseState(state string) bool                { return false }
func (f fakeFlowConfig) StateOnEnterFlags(state string) map[string]any { return nil }
func (f fakeFlowConfig) IntentCategory(category string) []string       { return f.intentCategories[category] }
func (f fakeFlowConfig) EntryPoint(name string) (string, bool)         { return "", false }

func TestPriorityAssignerNoDefinitionsReturnsInputUnchanged(t *testing.T) {
	fc := fakeFlowConfig{}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "a", SourceName: "Test"}}
	out := a.Assign(proposals, ContextSnapshot{FlowConfig: fc, StateConfig: ports.StateConfig{}})

	assert.Equal(t, proposals, out)
}

func TestPriorityAssignerMatchesByIntentList(t *testing.T) {
	fc := fakeFlowConfig{priorities: []ports.PriorityDefinition{
		{Name: "rejection_priority", Priority: 1, Intents: []string{"rejection"}},
	}}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "stop", SourceName: "Test"}}
	ctx := ContextSnapshot{FlowConfig: fc, CurrentIntent: "rejection", StateConfig: ports.StateConfig{}}
	out := a.Assign(proposals, ctx)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriorityRank)
	assert.Equal(t, 1, *out[0].PriorityRank)
	assert.Equal(t, "rejection_priority", out[0].Metadata["priority_name"])
}

func TestPriorityAssignerMatchesByIntentCategory(t *testing.T) {
	fc := fakeFlowConfig{
		priorities:       []ports.PriorityDefinition{{Name: "objection_rank", Priority: 2, IntentCategory: "objection"}},
		intentCategories: map[string][]string{"objection": {"objection_price", "objection_competitor"}},
	}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "handle", SourceName: "Test"}}
	ctx := ContextSnapshot{FlowConfig: fc, CurrentIntent: "objection_price", StateConfig: ports.StateConfig{}}
	out := a.Assign(proposals, ctx)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriorityRank)
	assert.Equal(t, 2, *out[0].PriorityRank)
}

func TestPriorityAssignerPicksLowestNumericMatchingDefinition(t *testing.T) {
	fc := fakeFlowConfig{priorities: []ports.PriorityDefinition{
		{Name: "broad", Priority: 5, Intents: []string{"rejection"}},
		{Name: "narrow", Priority: 1, Intents: []string{"rejection"}},
	}}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "stop", SourceName: "Test"}}
	ctx := ContextSnapshot{FlowConfig: fc, CurrentIntent: "rejection", StateConfig: ports.StateConfig{}}
	out := a.Assign(proposals, ctx)

	require.Len(t, out, 1)
	require.NotNil(t, out[0].PriorityRank)
	assert.Equal(t, 1, *out[0].PriorityRank)
	assert.Equal(t, "narrow", out[0].Metadata["priority_name"])
}

func TestPriorityAssignerNonMatchingDefinitionLeavesRankUnranked(t *testing.T) {
	fc := fakeFlowConfig{priorities: []ports.PriorityDefinition{
		{Name: "irrelevant", Priority: 1, Intents: []string{"price_question"}},
	}}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "stop", SourceName: "Test"}}
	ctx := ContextSnapshot{FlowConfig: fc, CurrentIntent: "rejection", StateConfig: ports.StateConfig{}}
	out := a.Assign(proposals, ctx)

	require.Len(t, out, 1)
	assert.Nil(t, out[0].PriorityRank)
}

func TestPriorityAssignerFeatureFlagGateFailsClosedWithoutFlagsBackend(t *testing.T) {
	fc := fakeFlowConfig{priorities: []ports.PriorityDefinition{
		{Name: "flagged", Priority: 1, FeatureFlag: "autonomous_flow"},
	}}
	a := NewPriorityAssigner(fc, nil, nil)

	proposals := []Proposal{{Kind: ProposalAction, Value: "stop", SourceName: "Test"}}
	ctx := ContextSnapshot{FlowConfig: fc, StateConfig: ports.StateConfig{}}
	out := a.Assign(proposals, ctx)

	require.Len(t, out, 1)
	assert.Nil(t, out[0].PriorityRank, "nil flags backend must fail closed")
}
