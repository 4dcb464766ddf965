package refinement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFlags struct{ enabled map[string]bool }

func (s stubFlags) IsEnabled(flag string) bool { return s.enabled[flag] }

type stubParser struct {
	resolved string
	ok       bool
}

func (p stubParser) ParseAnswer(answer string, options []string) (string, bool) {
	return p.resolved, p.ok
}

func TestPipelinePassThroughPreservesIntentAndConfidence(t *testing.T) {
	p := New(nil, stubFlags{}, nil)
	ctx := &Context{Intent: "demo_request", Confidence: 0.42, Message: "let's set up a call"}

	_, trace := p.Refine(ctx.Message, map[string]any{}, ctx)

	assert.Empty(t, trace)
	assert.Equal(t, "demo_request", ctx.Intent)
	assert.Equal(t, 0.42, ctx.Confidence)
}

func TestStyleModifierDetectionInfersFromLastAction(t *testing.T) {
	layer := NewStyleModifierDetection(map[string]string{"ask_price": "price_question"}, nil)
	ctx := &Context{Intent: "request_brevity", Confidence: 0.3, LastAction: "ask_price"}

	require.True(t, layer.ShouldApply(ctx))
	res := layer.Refine("just the number please", map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Equal(t, "price_question", res.Intent)
	assert.Equal(t, 0.75, res.Confidence)
	assert.Equal(t, []string{"request_brevity"}, res.Metadata["style_modifiers"])
}

func TestStyleModifierDetectionNeverReturnsAStyleIntent(t *testing.T) {
	layer := NewStyleModifierDetection(nil, nil)
	ctx := &Context{Intent: "summary_request", Confidence: 0.2}

	res := layer.Refine("tl;dr", map[string]any{}, ctx)

	assert.NotContains(t, styleIntents, res.Intent)
	assert.Equal(t, "unclear", res.Intent)
}

func TestConfidenceCalibrationPenalizesShortOverconfidentMessages(t *testing.T) {
	layer := NewConfidenceCalibration(nil)
	ctx := &Context{Intent: "rejection", Confidence: 0.95, Message: "no"}

	require.True(t, layer.ShouldApply(ctx))
	res := layer.Refine(ctx.Message, map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Less(t, res.Confidence, 0.95)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
}

func TestConfidenceCalibrationNeverGoesNegative(t *testing.T) {
	layer := NewConfidenceCalibration(func(ctx *Context) []float64 { return []float64{0.34, 0.33, 0.33} })
	ctx := &Context{Intent: "unclear", Confidence: 0.95, Message: "hm"}

	res := layer.Refine(ctx.Message, map[string]any{}, ctx)

	assert.GreaterOrEqual(t, res.Confidence, 0.0)
}

func TestDisambiguationResolutionCriticalIntentExits(t *testing.T) {
	layer := NewDisambiguationResolution(nil)
	ctx := &Context{
		Intent: "rejection", InDisambiguation: true,
		DisambiguationOptions: []string{"sales", "support"},
		Metadata:              map[string]any{},
	}

	res := layer.Refine("no thanks, not interested", map[string]any{}, ctx)

	assert.Equal(t, PassThrough, res.Decision)
	assert.Equal(t, "rejection", res.Intent)
	assert.Equal(t, true, ctx.Metadata["exit_disambiguation"])
}

func TestDisambiguationResolutionResolvesOption(t *testing.T) {
	layer := NewDisambiguationResolution(stubParser{resolved: "price_question", ok: true})
	ctx := &Context{
		Intent: "unclear", InDisambiguation: true,
		DisambiguationOptions: []string{"price_question", "demo_request"},
		Metadata:              map[string]any{},
	}

	res := layer.Refine("the first one", map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Equal(t, "price_question", res.Intent)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, true, res.Metadata["exit_disambiguation"])
}

func TestDisambiguationResolutionCustomInputPassesThrough(t *testing.T) {
	layer := NewDisambiguationResolution(stubParser{resolved: customInputMarker, ok: true})
	ctx := &Context{
		Intent: "objection_price", Confidence: 0.8, InDisambiguation: true,
		DisambiguationOptions: []string{"price_question", "demo_request"},
		Metadata:              map[string]any{},
	}

	res := layer.Refine("actually, tell me about something else", map[string]any{}, ctx)

	assert.Equal(t, PassThrough, res.Decision)
	assert.Equal(t, "objection_price", res.Intent)
	assert.Equal(t, 0.8, res.Confidence)
}

func TestSecondaryIntentDetectionIsNonDestructive(t *testing.T) {
	layer := NewSecondaryIntentDetection(nil)
	ctx := &Context{Intent: "info_provided", Confidence: 0.9, Metadata: map[string]any{}}

	res := layer.Refine("we have 100 people. how much does it cost?", map[string]any{}, ctx)

	assert.Equal(t, PassThrough, res.Decision)
	assert.Equal(t, "info_provided", res.Intent)
	assert.Contains(t, res.Metadata["secondary_intents"], "price_question")
}

func TestSecondaryIntentDetectionHonorsSkipList(t *testing.T) {
	layer := NewSecondaryIntentDetection(nil)
	ctx := &Context{
		Intent: "request_brevity", Confidence: 0.9,
		Metadata: map[string]any{"skip_secondary_detection": []string{"request_brevity"}},
	}

	assert.False(t, layer.ShouldApply(ctx))
}

func TestOptionSelectionRefinementResolvesNumericAnswer(t *testing.T) {
	layer := NewOptionSelectionRefinement()
	ctx := &Context{Intent: "request_brevity", DisambiguationOptions: []string{"sales", "support", "billing"}}

	require.True(t, layer.ShouldApply(ctx))
	res := layer.Refine("2", map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Equal(t, "info_provided", res.Intent)
	assert.Equal(t, 1, res.Metadata["option_index"])
	assert.Equal(t, "support", res.Metadata["option_value"])
}

func TestComparisonRefinementDetectsCompetitorObjection(t *testing.T) {
	layer := NewComparisonRefinement()
	ctx := &Context{Intent: "comparison", Confidence: 0.6}

	require.True(t, layer.ShouldApply(ctx))
	res := layer.Refine("salesforce is cheaper than you", map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Equal(t, "objection_competitor", res.Intent)
	assert.GreaterOrEqual(t, res.Confidence, 0.75)
}

func TestComparisonRefinementPassesThroughWithoutSignal(t *testing.T) {
	layer := NewComparisonRefinement()
	ctx := &Context{Intent: "comparison", Confidence: 0.6}

	res := layer.Refine("what features do you support?", map[string]any{}, ctx)

	assert.Equal(t, PassThrough, res.Decision)
	assert.Equal(t, "comparison", res.Intent)
}

func TestDataAwarePromotesUnclearWithMeaningfulData(t *testing.T) {
	layer := NewDataAware()
	ctx := &Context{Intent: "unclear", ExtractedData: map[string]any{"company_size": 50, "option_index": 2}}

	require.True(t, layer.ShouldApply(ctx))
	res := layer.Refine("50 people, not sure what else", map[string]any{}, ctx)

	assert.Equal(t, Refined, res.Decision)
	assert.Equal(t, "info_provided", res.Intent)
	assert.Equal(t, []string{"company_size"}, res.Metadata["meaningful_fields"])
}

func TestDataAwarePassesThroughWithOnlyTrivialFields(t *testing.T) {
	layer := NewDataAware()
	ctx := &Context{Intent: "unclear", ExtractedData: map[string]any{"option_index": 2}}

	res := layer.Refine("2", map[string]any{}, ctx)

	assert.Equal(t, PassThrough, res.Decision)
}

func TestPipelineRunsLayersInPriorityOrderAndThreadsIntent(t *testing.T) {
	cfg := BuiltinConfig{ActionExpectsData: map[string]string{"ask_price": "price_question"}}
	p := NewBuiltinPipeline(cfg, stubFlags{enabled: map[string]bool{"data_aware_refinement": true}}, nil)

	ctx := &Context{Intent: "request_brevity", Confidence: 0.3, LastAction: "ask_price"}
	_, trace := p.Refine("just the number", map[string]any{}, ctx)

	require.NotEmpty(t, trace)
	assert.Equal(t, "StyleModifierDetection", trace[0].LayerName)
	assert.Equal(t, "price_question", ctx.Intent)
}

func TestPipelineRecoversFromPanickingLayer(t *testing.T) {
	p := New([]Layer{panicLayer{}}, stubFlags{}, nil)
	ctx := &Context{Intent: "greeting", Confidence: 0.5}

	_, trace := p.Refine("hello", map[string]any{}, ctx)

	require.Len(t, trace, 1)
	assert.Equal(t, PassThrough, trace[0].Decision)
	assert.Equal(t, "greeting", ctx.Intent)
}

type panicLayer struct{}

func (panicLayer) Name() string             { return "Panicky" }
func (panicLayer) LayerPriority() Priority   { return PriorityNormal }
func (panicLayer) FeatureFlag() string       { return "" }
func (panicLayer) ShouldApply(ctx *Context) bool { return true }
func (panicLayer) Refine(message string, result map[string]any, ctx *Context) Result {
	panic("boom")
}

func TestPipelineGatesStaticFeatureFlag(t *testing.T) {
	p := New([]Layer{NewComparisonRefinement()}, stubFlags{enabled: map[string]bool{}}, nil)
	ctx := &Context{Intent: "comparison", Confidence: 0.6}

	_, trace := p.Refine("salesforce is cheaper", map[string]any{}, ctx)

	require.Len(t, trace, 1)
	assert.Equal(t, PassThrough, trace[0].Decision)
	assert.Equal(t, "comparison", ctx.Intent)
}
