package refinement

import (
	"regexp"
	"strings"
)

var comparisonIntents = map[string]bool{
	"comparison": true, "question_product_comparison": true,
	"question_tariff_comparison": true, "question_feature_comparison": true,
}

// competitorObjectionPatterns catch a comparison question that's actually a
// competitor objection in disguise — "X is cheaper/better/faster" read as a
// request for a feature comparison when it's really a pushback the objection
// flow should own.
var competitorObjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(cheaper|better|faster|easier)\s+(than|with)\s+\w+`),
	regexp.MustCompile(`(?i)(competitor|alternative)s?\s+(is|are|has|have)\s+(better|cheaper|faster)`),
	regexp.MustCompile(`(?i)they\s+(have|offer)\s+(better|cheaper)`),
	regexp.MustCompile(`(?i)why\s+(are|is)\s+you\s+(better|different|more expensive)`),
	regexp.MustCompile(`(?i)\b(salesforce|hubspot|pipedrive|zoho|monday\.com)\b`),
	regexp.MustCompile(`(?i)(switching|moving)\s+from\s+\w+`),
}

// ComparisonRefinement reclassifies a comparison-family intent as
// objection_competitor when the message carries a clear competitor-objection
// signal, so the objection knowledge sources (not a neutral feature-diff
// answer) handle it. Off by default — the objection flow already handles
// most of these, and a false-positive match would misroute a genuinely
// neutral comparison question into objection handling.
type ComparisonRefinement struct{}

func NewComparisonRefinement() *ComparisonRefinement { return &ComparisonRefinement{} }

func (c *ComparisonRefinement) Name() string           { return "ComparisonRefinement" }
func (c *ComparisonRefinement) LayerPriority() Priority { return PriorityNormal }
func (c *ComparisonRefinement) FeatureFlag() string     { return "comparison_refinement" }

func (c *ComparisonRefinement) ShouldApply(ctx *Context) bool {
	return comparisonIntents[ctx.Intent]
}

func (c *ComparisonRefinement) Refine(message string, result map[string]any, ctx *Context) Result {
	lower := strings.ToLower(message)
	for _, pattern := range competitorObjectionPatterns {
		if pattern.MatchString(lower) {
			confidence := ctx.Confidence
			if confidence < 0.75 {
				confidence = 0.75
			}
			return RefinedResult(c.Name(), "objection_competitor", confidence, ctx.Intent,
				"comparison_is_competitor_objection",
				map[string]any{"matched_pattern": pattern.String(), "source_intent": ctx.Intent})
		}
	}
	return PassThroughResult(c.Name(), ctx)
}
