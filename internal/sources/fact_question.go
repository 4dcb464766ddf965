package sources

import "github.com/ashita-ai/dialogflow/internal/blackboard"

// factIntentActions is the closed set of general informational intents this
// source answers directly.
var factIntentActions = map[string]string{
	"product_question":   "answer_product_question",
	"company_question":   "answer_company_question",
	"integration_question": "answer_integration_question",
	"general_question":   "answer_general_question",
}

// FactQuestion answers general informational questions. Its contract
// mirrors PriceQuestion exactly (HIGH, combinable=true) so a fact question
// never blocks a completed data_complete transition either.
type FactQuestion struct {
	Base
	fallback AnswerResolver
}

// NewFactQuestion constructs the source. fallback may be nil.
func NewFactQuestion(fallback AnswerResolver) *FactQuestion {
	return &FactQuestion{Base: NewBase("FactQuestion"), fallback: fallback}
}

func (s *FactQuestion) ShouldContribute(bb *blackboard.Blackboard) bool {
	if !s.Enabled() {
		return false
	}
	intent, err := bb.CurrentIntent()
	if err != nil {
		return false
	}
	if _, ok := factIntentActions[intent]; ok {
		return true
	}
	return s.fallback != nil
}

func (s *FactQuestion) Contribute(bb *blackboard.Blackboard) error {
	ctx, err := bb.GetContext()
	if err != nil {
		return err
	}

	action, ok := factIntentActions[ctx.CurrentIntent]
	reason := "fact_question_priority"
	if !ok && s.fallback != nil {
		action, ok = s.fallback.Resolve(ctx)
		reason = "fact_question_semantic_fallback"
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
