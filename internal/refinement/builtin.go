package refinement

import "log/slog"

// BuiltinConfig bundles the host-supplied pieces a handful of built-in
// layers need: the style cascade's lookup tables and the disambiguation
// answer parser. Any field left nil/empty degrades that layer's behavior
// gracefully rather than panicking (e.g. a nil DisambiguationParser makes
// DisambiguationResolution always fall through to passing the LLM's own
// classification through).
type BuiltinConfig struct {
	ActionExpectsData      map[string]string
	PhaseDefaults          map[string]string
	DisambiguationParser   DisambiguationParser
	AlternativeScores      func(ctx *Context) []float64
	SecondaryIntentPatterns []SecondaryIntentPattern
}

// BuiltinLayers returns every notable layer named in the pipeline design. The
// Pipeline sorts them by priority with a stable sort, so this list's order
// breaks ties between layers of equal priority. Two layers
// named in the design, ContentRepetitionGuard and IntentPatternGuard, are
// deliberately absent here: the design itself notes they "participate on
// the blackboard" rather than in this chain — they are StallGuard and
// ConversationGuard knowledge sources, not refinement layers, and are wired
// there instead.
func BuiltinLayers(cfg BuiltinConfig) []Layer {
	return []Layer{
		NewStyleModifierDetection(cfg.ActionExpectsData, cfg.PhaseDefaults),
		NewConfidenceCalibration(cfg.AlternativeScores),
		NewDisambiguationResolution(cfg.DisambiguationParser),
		NewSecondaryIntentDetection(cfg.SecondaryIntentPatterns),
		NewOptionSelectionRefinement(),
		NewComparisonRefinement(),
		NewObjectionUncertaintyRefinement(),
		NewShortAnswer(),
		NewDataAware(),
		NewComposite(),
		NewFirstContact(),
		NewGreetingContext(),
	}
}

// NewBuiltinPipeline is the convenience constructor host applications use:
// all built-in layers, wired to the given feature-flag backend.
func NewBuiltinPipeline(cfg BuiltinConfig, flags FeatureFlags, logger *slog.Logger) *Pipeline {
	return New(BuiltinLayers(cfg), flags, logger)
}
