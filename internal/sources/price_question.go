package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// AnswerResolver is an optional semantic fallback consulted when an incoming
// intent is not in a source's closed set. Backed by
// internal/search's Qdrant-based corpus lookup.
type AnswerResolver interface {
	Resolve(ctx blackboard.ContextSnapshot) (action string, ok bool)
}

// priceIntentActions is the closed set of price-related intents this source
// answers directly, in priority of specificity.
var priceIntentActions = map[string]string{
	"discount_request":        "handle_discount_request",
	"payment_terms_question":  "explain_payment_terms",
	"pricing_comparison":      "compare_pricing",
	"budget_question":         "discuss_budget",
	"price_question":          "answer_with_pricing",
}

// PriceQuestion answers price-related questions without blocking a
// completed data_complete transition: combinable is always true here.
type PriceQuestion struct {
	Base
	fallback AnswerResolver
}

// NewPriceQuestion constructs the source. fallback may be nil.
func NewPriceQuestion(fallback AnswerResolver) *PriceQuestion {
	return &PriceQuestion{Base: NewBase("PriceQuestion"), fallback: fallback}
}

func (s *PriceQuestion) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	intent, err := bb.CurrentIntent()
	if err != nil {
		return false
	}
	if _, ok := priceIntentActions[intent]; ok {
		return true
	}
	return s.fallback != nil
}

func (s *PriceQuestion) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	action, ok := priceIntentActions[ctx.CurrentIntent]
	reason := "price_question_priority"
	if !ok && s.fallback != nil {
		action, ok = s.fallback.Resolve(ctx)
		reason = "price_question_semantic_fallback"
	}
	if !ok {
		return nil
	}

	bb.ProposeAction(blackboard.Proposal{
		Value:      action,
		Priority:   blackboard.PriorityHigh,
		Combinable: true,
		ReasonCode: reason,
		SourceName: s.Name(),
	})
	return nil
}
