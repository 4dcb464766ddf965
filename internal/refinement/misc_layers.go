package refinement

import "strings"

// ObjectionUncertaintyRefinement is Rule 5 of the objection taxonomy: an
// otherwise-unclear or hedging message inside an active objection streak
// reads as continued uncertainty about the offer, not a fresh topic change,
// so it's folded back into the objection intent the conversation is already
// handling.
type ObjectionUncertaintyRefinement struct {
	uncertaintyMarkers []string
}

func NewObjectionUncertaintyRefinement() *ObjectionUncertaintyRefinement {
	return &ObjectionUncertaintyRefinement{
		uncertaintyMarkers: []string{"not sure", "i don't know", "maybe", "i guess", "dunno"},
	}
}

func (o *ObjectionUncertaintyRefinement) Name() string           { return "ObjectionUncertaintyRefinement" }
func (o *ObjectionUncertaintyRefinement) LayerPriority() Priority { return PriorityLow }
func (o *ObjectionUncertaintyRefinement) FeatureFlag() string     { return "" }

func (o *ObjectionUncertaintyRefinement) ShouldApply(ctx *Context) bool {
	if ctx.Intent != "unclear" {
		return false
	}
	consecutive, _ := ctx.Metadata["objection_consecutive"].(int)
	return consecutive > 0
}

func (o *ObjectionUncertaintyRefinement) Refine(message string, result map[string]any, ctx *Context) Result {
	lower := strings.ToLower(message)
	for _, marker := range o.uncertaintyMarkers {
		if strings.Contains(lower, marker) {
			return RefinedResult(o.Name(), "objection_uncertain", 0.6, ctx.Intent,
				"objection_rule5_uncertainty", nil)
		}
	}
	return PassThroughResult(o.Name(), ctx)
}

// ShortAnswer treats a very short bare reply ("yes", "ok", "no") during an
// active data-collection turn as info_provided rather than a style/greeting
// intent, since the preceding bot turn was a direct yes/no or confirmation
// question.
type ShortAnswer struct {
	affirmatives map[string]bool
	negatives    map[string]bool
}

func NewShortAnswer() *ShortAnswer {
	return &ShortAnswer{
		affirmatives: map[string]bool{"yes": true, "yeah": true, "yep": true, "ok": true, "okay": true, "sure": true},
		negatives:    map[string]bool{"no": true, "nope": true, "nah": true},
	}
}

func (s *ShortAnswer) Name() string           { return "ShortAnswer" }
func (s *ShortAnswer) LayerPriority() Priority { return PriorityLow }
func (s *ShortAnswer) FeatureFlag() string     { return "" }

func (s *ShortAnswer) ShouldApply(ctx *Context) bool {
	return ctx.ExpectsDataType != "" && len(strings.Fields(ctx.Message)) <= 2
}

func (s *ShortAnswer) Refine(message string, result map[string]any, ctx *Context) Result {
	lower := strings.ToLower(strings.TrimSpace(message))
	switch {
	case s.affirmatives[lower]:
		return RefinedResult(s.Name(), "info_provided", 0.8, ctx.Intent, "short_answer_affirmative",
			map[string]any{"short_answer_value": true})
	case s.negatives[lower]:
		return RefinedResult(s.Name(), "info_provided", 0.8, ctx.Intent, "short_answer_negative",
			map[string]any{"short_answer_value": false})
	default:
		return PassThroughResult(s.Name(), ctx)
	}
}

// Composite recognizes a multi-sentence message containing a question ("We
// have 50 people. What's the price?") whose primary classification is neither
// fact_question nor price_question. It passes the classification through
// unchanged and annotates it with composite_message and sentence_count
// metadata; it does not write secondary_intents.
type Composite struct{}

func NewComposite() *Composite { return &Composite{} }

func (c *Composite) Name() string           { return "Composite" }
func (c *Composite) LayerPriority() Priority { return PriorityLow }
func (c *Composite) FeatureFlag() string     { return "" }

func (c *Composite) ShouldApply(ctx *Context) bool {
	return strings.Contains(ctx.Message, "?") && ctx.Intent != "fact_question" && ctx.Intent != "price_question"
}

func (c *Composite) Refine(message string, result map[string]any, ctx *Context) Result {
	sentences := strings.FieldsFunc(message, func(r rune) bool { return r == '.' || r == '!' || r == '?' })
	if len(sentences) < 2 {
		return PassThroughResult(c.Name(), ctx)
	}
	return Result{
		LayerName: c.Name(), Decision: PassThrough, Intent: ctx.Intent, Confidence: ctx.Confidence,
		Metadata: map[string]any{"composite_message": true, "sentence_count": len(sentences)},
	}
}

// FirstContact recognizes the very first turn of a conversation and nudges a
// generic "unclear" classification toward "greeting", since an opening
// message with no prior context is overwhelmingly a greeting or an opener
// rather than a genuinely ambiguous statement.
type FirstContact struct{}

func NewFirstContact() *FirstContact { return &FirstContact{} }

func (f *FirstContact) Name() string           { return "FirstContact" }
func (f *FirstContact) LayerPriority() Priority { return PriorityLow }
func (f *FirstContact) FeatureFlag() string     { return "" }

func (f *FirstContact) ShouldApply(ctx *Context) bool {
	isFirst, _ := ctx.Metadata["is_first_turn"].(bool)
	return isFirst && ctx.Intent == "unclear"
}

func (f *FirstContact) Refine(message string, result map[string]any, ctx *Context) Result {
	if len(strings.Fields(message)) > 12 {
		return PassThroughResult(f.Name(), ctx)
	}
	return RefinedResult(f.Name(), "greeting", 0.6, ctx.Intent, "first_contact_default_greeting", nil)
}

// GreetingContext suppresses a spurious repeat greeting classification mid-
// conversation: once the conversation has moved past its opening turn, a
// "greeting" message of more than two words ("hi, so about pricing") is
// reclassified as "unclear" at the same confidence; one- or two-word
// greetings pass through unchanged.
type GreetingContext struct{}

func NewGreetingContext() *GreetingContext { return &GreetingContext{} }

func (g *GreetingContext) Name() string           { return "GreetingContext" }
func (g *GreetingContext) LayerPriority() Priority { return PriorityLow }
func (g *GreetingContext) FeatureFlag() string     { return "" }

func (g *GreetingContext) ShouldApply(ctx *Context) bool {
	isFirst, _ := ctx.Metadata["is_first_turn"].(bool)
	return ctx.Intent == "greeting" && !isFirst
}

func (g *GreetingContext) Refine(message string, result map[string]any, ctx *Context) Result {
	if len(strings.Fields(message)) <= 2 {
		return PassThroughResult(g.Name(), ctx)
	}
	return RefinedResult(g.Name(), "unclear", ctx.Confidence, ctx.Intent, "greeting_mid_conversation_demoted", nil)
}
