package refinement

import "strings"

// StyleModifierDetection runs first in the chain. When the classifier
// returns a "style" intent — the user asked for brevity, an example, or a
// summary rather than expressing a new semantic intent — this layer infers
// what the user actually meant underneath the style request, so downstream
// layers and knowledge sources see the real intent instead of a dead end.
type StyleModifierDetection struct {
	styleIntents         map[string]bool
	actionExpectsData    map[string]string
	phaseDefaults        map[string]string
	defaultSemantic       string
	intentModifierRename map[string]string
}

// NewStyleModifierDetection builds the layer. actionExpectsData maps a
// lastAction value to the semantic intent it implies (e.g. an action that
// just asked for pricing implies the reply is a "price_question" follow-up);
// phaseDefaults maps a phase name to its default semantic intent when no
// stronger signal is present.
func NewStyleModifierDetection(actionExpectsData, phaseDefaults map[string]string) *StyleModifierDetection {
	s := &StyleModifierDetection{
		styleIntents:      map[string]bool{"request_brevity": true, "example_request": true, "summary_request": true},
		actionExpectsData: actionExpectsData,
		phaseDefaults:     phaseDefaults,
		defaultSemantic:   "unclear",
	}
	for action, intent := range s.actionExpectsData {
		if s.styleIntents[intent] {
			s.actionExpectsData[action] = ""
		}
	}
	return s
}

func (s *StyleModifierDetection) Name() string           { return "StyleModifierDetection" }
func (s *StyleModifierDetection) LayerPriority() Priority { return PriorityHighest }
func (s *StyleModifierDetection) FeatureFlag() string     { return "" }

func (s *StyleModifierDetection) ShouldApply(ctx *Context) bool {
	return s.styleIntents[ctx.Intent]
}

func (s *StyleModifierDetection) Refine(message string, result map[string]any, ctx *Context) Result {
	semantic := s.inferSemanticIntent(ctx)
	if s.styleIntents[semantic] {
		semantic = "unclear"
	}

	confidence := ctx.Confidence
	if confidence <= 0.5 {
		confidence = 0.75
	}

	modifier := s.mapIntentToModifier(ctx.Intent)
	return RefinedResult(s.Name(), semantic, confidence, ctx.Intent,
		"style_modifier_detected:"+ctx.Intent,
		map[string]any{
			"style_modifiers":         []string{modifier},
			"style_separation_applied": true,
			"original_intent":         ctx.Intent,
			"skip_secondary_detection": []string{ctx.Intent},
		})
}

// inferSemanticIntent runs the cascade, in priority order: last-action
// mapping, question/price signal in alternatives, extracted data, phase
// default, expected data type, then the configured fallback.
func (s *StyleModifierDetection) inferSemanticIntent(ctx *Context) string {
	if ctx.LastAction != "" {
		if mapped, ok := s.actionExpectsData[ctx.LastAction]; ok && mapped != "" {
			return mapped
		}
	}
	for _, alt := range ctx.Alternatives {
		if strings.HasPrefix(alt, "question_") || strings.HasPrefix(alt, "price_") {
			return alt
		}
	}
	if len(ctx.ExtractedData) > 0 {
		return "info_provided"
	}
	if ctx.Phase != "" {
		if def, ok := s.phaseDefaults[ctx.Phase]; ok && def != "" {
			return def
		}
	}
	if ctx.ExpectsDataType != "" {
		return "info_provided"
	}
	return s.defaultSemantic
}

func (s *StyleModifierDetection) mapIntentToModifier(intent string) string {
	if s.intentModifierRename != nil {
		if renamed, ok := s.intentModifierRename[intent]; ok {
			return renamed
		}
	}
	return intent
}
