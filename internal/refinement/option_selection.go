package refinement

import (
	"regexp"
	"strconv"
	"strings"
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
}

var numericAnswerPattern = regexp.MustCompile(`^\s*(\d+)\s*[.)]?\s*$`)

// OptionSelectionRefinement catches the case where a user answers an
// option-style question ("1. Sales, 2. Support") with a bare number or
// ordinal word. A generic classifier tends to label a lone digit as
// request_brevity or greeting; this layer recognizes the pattern and
// promotes it to info_provided, carrying the resolved option index so the
// knowledge source that asked the question can look up which option won.
type OptionSelectionRefinement struct {
	triggerIntents map[string]bool
}

func NewOptionSelectionRefinement() *OptionSelectionRefinement {
	return &OptionSelectionRefinement{
		triggerIntents: map[string]bool{"request_brevity": true, "greeting": true, "unclear": true},
	}
}

func (o *OptionSelectionRefinement) Name() string           { return "OptionSelectionRefinement" }
func (o *OptionSelectionRefinement) LayerPriority() Priority { return PriorityHigh }
func (o *OptionSelectionRefinement) FeatureFlag() string     { return "" }

func (o *OptionSelectionRefinement) ShouldApply(ctx *Context) bool {
	return o.triggerIntents[ctx.Intent] && len(ctx.DisambiguationOptions) > 0
}

func (o *OptionSelectionRefinement) Refine(message string, result map[string]any, ctx *Context) Result {
	index, ok := parseOptionIndex(message)
	if !ok || index < 1 || index > len(ctx.DisambiguationOptions) {
		return PassThroughResult(o.Name(), ctx)
	}

	return RefinedResult(o.Name(), "info_provided", 0.85, ctx.Intent, "option_selection_detected",
		map[string]any{"option_index": index - 1, "option_value": ctx.DisambiguationOptions[index-1]})
}

func parseOptionIndex(message string) (int, bool) {
	trimmed := strings.TrimSpace(message)
	if m := numericAnswerPattern.FindStringSubmatch(trimmed); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return n, true
		}
	}
	lower := strings.ToLower(trimmed)
	if n, ok := ordinalWords[lower]; ok {
		return n, true
	}
	return 0, false
}
