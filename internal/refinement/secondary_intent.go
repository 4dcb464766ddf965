package refinement

import "strings"

// SecondaryIntentPattern describes one recognizable secondary intent: a set
// of substrings/keywords that, found anywhere in a composite message,
// indicate the message is also asking (or stating) something beyond its
// primary classified intent. Mirrors the shape used for the "lost question"
// problem — a message like "100 people. What's the price?" that a
// single-label classifier reduces to just "info_provided", silently
// dropping the trailing price question.
type SecondaryIntentPattern struct {
	Intent        string
	Keywords      []string
	MinConfidence float64
	Priority      int
}

// SecondaryIntentDetection is strictly additive: it never overwrites the
// primary intent, only annotates metadata that downstream knowledge sources
// (notably a fact/price question source) consult to answer a question
// riding along on a composite message.
type SecondaryIntentDetection struct {
	patterns []SecondaryIntentPattern
}

// NewSecondaryIntentDetection builds the layer from a priority-ordered
// pattern table; the default table recognizes price and factual follow-up
// questions, the most common composite-message pattern.
func NewSecondaryIntentDetection(patterns []SecondaryIntentPattern) *SecondaryIntentDetection {
	if patterns == nil {
		patterns = defaultSecondaryIntentPatterns
	}
	return &SecondaryIntentDetection{patterns: patterns}
}

var defaultSecondaryIntentPatterns = []SecondaryIntentPattern{
	{Intent: "price_question", Keywords: []string{"price", "cost", "how much", "pricing", "$"}, MinConfidence: 0.6, Priority: 10},
	{Intent: "fact_question", Keywords: []string{"how does", "what is", "can it", "does it support", "?"}, MinConfidence: 0.5, Priority: 5},
}

func (s *SecondaryIntentDetection) Name() string           { return "SecondaryIntentDetection" }
func (s *SecondaryIntentDetection) LayerPriority() Priority { return PriorityHigh }
func (s *SecondaryIntentDetection) FeatureFlag() string     { return "" }

func (s *SecondaryIntentDetection) ShouldApply(ctx *Context) bool {
	if skipList, ok := ctx.Metadata["skip_secondary_detection"].([]string); ok {
		for _, skip := range skipList {
			if skip == ctx.Intent {
				return false
			}
		}
	}
	return len(s.patterns) > 0
}

func (s *SecondaryIntentDetection) Refine(message string, result map[string]any, ctx *Context) Result {
	lower := strings.ToLower(message)

	var found []string
	confidences := map[string]float64{}
	for _, p := range s.patterns {
		if p.Intent == ctx.Intent {
			continue
		}
		for _, kw := range p.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				found = append(found, p.Intent)
				confidences[p.Intent] = p.MinConfidence
				break
			}
		}
	}

	if len(found) == 0 {
		return PassThroughResult(s.Name(), ctx)
	}

	return Result{
		LayerName: s.Name(), Decision: PassThrough, Intent: ctx.Intent, Confidence: ctx.Confidence,
		SecondarySignals: found,
		Metadata: map[string]any{
			"secondary_intents":            found,
			"secondary_intent_confidence":  confidences,
		},
	}
}
