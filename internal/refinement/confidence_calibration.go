package refinement

import "math"

// ConfidenceCalibration runs immediately after style separation, before any
// layer that branches on confidence thresholds. LLM classifiers tend to
// report high confidence even on genuinely ambiguous input; this layer
// applies three independent penalties — entropy over the alternative
// distribution, the score gap between the top two alternatives, and a small
// set of heuristic red flags — and keeps the largest applicable discount
// rather than stacking them, so a message that's merely a little ambiguous
// isn't punished as hard as one that's wide open.
//
// Order decision: this runs before DisambiguationResolution even though both
// are CRITICAL priority, because disambiguation answer resolution should see
// the calibrated confidence (a low-confidence resolved option should still
// read as low-confidence downstream), not the raw LLM score.
type ConfidenceCalibration struct {
	alternativeScores func(ctx *Context) []float64
}

// NewConfidenceCalibration builds the layer. alternativeScores, when set,
// lets a host supply the classifier's full score distribution (not just the
// winning intent) for the entropy/gap penalties; a nil func falls back to
// heuristic-only calibration.
func NewConfidenceCalibration(alternativeScores func(ctx *Context) []float64) *ConfidenceCalibration {
	return &ConfidenceCalibration{alternativeScores: alternativeScores}
}

func (c *ConfidenceCalibration) Name() string           { return "ConfidenceCalibration" }
func (c *ConfidenceCalibration) LayerPriority() Priority { return PriorityCritical }
func (c *ConfidenceCalibration) FeatureFlag() string     { return "" }

func (c *ConfidenceCalibration) ShouldApply(ctx *Context) bool {
	return ctx.Confidence > 0
}

func (c *ConfidenceCalibration) Refine(message string, result map[string]any, ctx *Context) Result {
	penalty := c.heuristicPenalty(message, ctx)

	if c.alternativeScores != nil {
		scores := c.alternativeScores(ctx)
		if ep := entropyPenalty(scores); ep > penalty {
			penalty = ep
		}
		if gp := gapPenalty(scores); gp > penalty {
			penalty = gp
		}
	}

	if penalty <= 0 {
		return PassThroughResult(c.Name(), ctx)
	}

	calibrated := ctx.Confidence - penalty
	if calibrated < 0 {
		calibrated = 0
	}
	return RefinedResult(c.Name(), ctx.Intent, calibrated, ctx.Intent,
		"confidence_calibrated", map[string]any{"calibration_penalty": penalty})
}

// heuristicPenalty flags very short messages classified with near-certain
// confidence (>= 0.9): a penalty of 0.2 for at most 3 runes, 0.1 for at most
// 8 runes, and none otherwise.
func (c *ConfidenceCalibration) heuristicPenalty(message string, ctx *Context) float64 {
	if ctx.Confidence < 0.9 {
		return 0
	}
	runes := []rune(message)
	switch {
	case len(runes) <= 3:
		return 0.2
	case len(runes) <= 8:
		return 0.1
	default:
		return 0
	}
}

// entropyPenalty scores a near-uniform alternative distribution as low
// confidence regardless of what the top score claims.
func entropyPenalty(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		if s > 0 {
			sum += s
		}
	}
	if sum <= 0 {
		return 0
	}
	var entropy float64
	for _, s := range scores {
		if s <= 0 {
			continue
		}
		p := s / sum
		entropy -= p * math.Log2(p)
	}
	maxEntropy := math.Log2(float64(len(scores)))
	if maxEntropy <= 0 {
		return 0
	}
	normalized := entropy / maxEntropy
	return 0.3 * normalized
}

// gapPenalty scores a thin margin between the top two alternatives as a
// signal the classifier is guessing between two close candidates.
func gapPenalty(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	sorted := append([]float64(nil), scores...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] > sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	gap := sorted[0] - sorted[1]
	if gap >= 0.3 {
		return 0
	}
	return 0.25 * (1 - gap/0.3)
}
