// Package orchestrator implements the turn driver: it runs the
// knowledge sources over a fresh blackboard turn, assigns tie-break ranks,
// validates the resulting proposals, resolves conflicts, commits the
// decision, and applies the side effects a host application's state machine
// depends on (atomic state transition, on_enter handling, go-back bookkeeping,
// objection-return tracking), publishing an eventbus.Event at every step.
package orchestrator

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/eventbus"
	"github.com/ashita-ai/dialogflow/internal/ports"
	"github.com/ashita-ai/dialogflow/internal/sources"
)

// Orchestrator is the main entry point for processing a dialogue turn. It
// owns no durable state itself; everything it needs to resolve a turn is
// either passed in at construction (sources, resolver, validator, event bus)
// or read fresh from the blackboard each call.
type Orchestrator struct {
	bb               *blackboard.Blackboard
	stateMachine     ports.StateMachine
	flowConfig       ports.FlowConfig
	sources          []sources.KnowledgeSource
	priorityAssigner *blackboard.PriorityAssigner
	validator        *blackboard.ProposalValidator
	resolver         *blackboard.ConflictResolver
	sanitizer        *blackboard.DecisionSanitizer
	bus              *eventbus.Bus
	logger           *slog.Logger
}

// New constructs an Orchestrator. validator may be nil to skip proposal
// validation entirely. bus/logger default to eventbus.New() / slog.Default()
// when nil.
func New(
	bb *blackboard.Blackboard,
	srcs []sources.KnowledgeSource,
	priorityAssigner *blackboard.PriorityAssigner,
	validator *blackboard.ProposalValidator,
	resolver *blackboard.ConflictResolver,
	bus *eventbus.Bus,
	logger *slog.Logger,
) *Orchestrator {
	if bus == nil {
		bus = eventbus.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		bb:               bb,
		stateMachine:     bb.StateMachine(),
		flowConfig:       bb.FlowConfig(),
		sources:          srcs,
		priorityAssigner: priorityAssigner,
		validator:        validator,
		resolver:         resolver,
		sanitizer:        blackboard.NewDecisionSanitizer(),
		bus:              bus,
		logger:           logger,
	}
}

// ProcessTurn runs one full turn through the blackboard pipeline and returns
// the committed, fully-enriched decision. It never returns an error: a
// knowledge source that panics or returns an error is logged, reported as an
// ErrorOccurred event and skipped while the turn continues with the other
// sources; a validation block or an unexpected panic elsewhere in the
// pipeline degrades to a safe "stay put" fallback decision rather than
// propagating.
func (o *Orchestrator) ProcessTurn(intent string, extractedData map[string]any, envelope ports.ContextEnvelope, userMessage string, frustrationLevel int) (decision *blackboard.ResolvedDecision) {
	turnNumber := o.stateMachine.IntentTracker().TurnNumber() + 1
	currentState := o.stateMachine.State()
	turnStart := time.Now()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic processing turn", "turn_number", turnNumber, "panic", r)
			o.bus.Emit(eventbus.NewEvent(eventbus.ErrorOccurred, turnNumber,
				eventbus.ErrorOccurredData("panic", fmt.Sprint(r), "Orchestrator")))
			decision = o.createFallbackDecision(currentState, "processing_error", turnNumber)
		}
	}()

	o.bb.BeginTurn(intent, extractedData, envelope, userMessage, frustrationLevel)
	o.bus.Emit(eventbus.NewEvent(eventbus.TurnStarted, turnNumber, eventbus.TurnStartedData(intent, currentState)))

	for _, src := range o.sources {
		if !src.ShouldContribute(o.bb) {
			continue
		}

		sourceStart := time.Now()
		if err := o.contributeSafely(src); err != nil {
			o.logger.Error("knowledge source error", "source", src.Name(), "error", err)
			o.bus.Emit(eventbus.NewEvent(eventbus.ErrorOccurred, turnNumber,
				eventbus.ErrorOccurredData("source_error", err.Error(), src.Name())))
			continue
		}
		sourceMs := float64(time.Since(sourceStart)) / float64(time.Millisecond)

		summary := proposalSummaryFor(o.bb.GetProposals(), src.Name())
		o.bus.Emit(eventbus.NewEvent(eventbus.SourceContributed, turnNumber,
			eventbus.SourceContributedData(src.Name(), len(summary), summary, sourceMs)))
	}

	ctx, err := o.bb.GetContext()
	if err != nil {
		return o.createFallbackDecision(currentState, "processing_error", turnNumber)
	}

	proposals := o.priorityAssigner.Assign(o.bb.GetProposals(), ctx)

	if o.validator != nil {
		findings := o.validator.Validate(proposals)
		errorCount := len(o.validator.GetErrorsOnly(findings))
		warningCount := len(o.validator.GetWarningsOnly(findings))
		messages := make([]string, len(findings))
		for i, f := range findings {
			messages[i] = f.String()
		}
		o.bus.Emit(eventbus.NewEvent(eventbus.ProposalValidated, turnNumber,
			eventbus.ProposalValidatedData(len(proposals)-errorCount, errorCount, warningCount, messages)))

		if o.validator.HasBlockingErrors(findings) {
			o.logger.Error("blocking validation errors", "turn_number", turnNumber, "count", errorCount)
			return o.createFallbackDecision(currentState, "validation_error", turnNumber)
		}
	}

	fallbackTransition, hasFallback := ctx.GetTransition("any")

	resolveStart := time.Now()
	resolved := o.resolver.ResolveWithFallback(proposals, currentState, fallbackTransition, hasFallback,
		o.bb.GetDataUpdates(), o.bb.GetFlagsToSet())
	resolveMs := float64(time.Since(resolveStart)) / float64(time.Millisecond)

	var winningTransition *string
	if resolved.NextState != currentState {
		wt := resolved.NextState
		winningTransition = &wt
	}
	mergeDecision, _ := resolved.ResolutionTrace["merge_decision"].(string)
	o.bus.Emit(eventbus.NewEvent(eventbus.ConflictResolved, turnNumber,
		eventbus.ConflictResolvedData(resolved.Action, winningTransition, len(resolved.RejectedProposals), mergeDecision, resolveMs)))

	sanitized := o.sanitizer.SanitizeDecision(resolved, currentState, validStateSet(o.flowConfig), "orchestrator")
	if sanitized.Sanitized {
		resolved.NextState = sanitized.EffectiveState
		resolved.AddReasonCode(blackboard.InvalidNextStateReason)
		if resolved.ResolutionTrace == nil {
			resolved.ResolutionTrace = map[string]any{}
		}
		resolved.ResolutionTrace["sanitized_diagnostic"] = sanitized.Diagnostic
	}

	o.bb.CommitDecision(&resolved)
	o.bus.Emit(eventbus.NewEvent(eventbus.DecisionCommitted, turnNumber,
		eventbus.DecisionCommittedData(resolved.Action, resolved.NextState, resolved.ReasonCodes)))

	stateChanged := resolved.NextState != currentState
	if stateChanged {
		o.bus.Emit(eventbus.NewEvent(eventbus.StateTransitioned, turnNumber,
			eventbus.StateTransitionedData(currentState, resolved.NextState, strings.Join(resolved.ReasonCodes, ", "))))
	}

	o.applySideEffects(&resolved, currentState, stateChanged)
	o.fillCompatibilityFields(&resolved, currentState)

	o.logger.Info("turn completed", "turn_number", turnNumber, "action", resolved.Action,
		"next_state", resolved.NextState, "duration_ms", float64(time.Since(turnStart))/float64(time.Millisecond))

	return &resolved
}

// contributeSafely runs a single source's Contribute, converting a panic
// into an error so one misbehaving source can never take down a turn.
func (o *Orchestrator) contributeSafely(src sources.KnowledgeSource) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return src.Contribute(o.bb)
}

func proposalSummaryFor(proposals []blackboard.Proposal, sourceName string) []string {
	var out []string
	for _, p := range proposals {
		if p.SourceName == sourceName {
			out = append(out, p.String())
		}
	}
	return out
}

// applySideEffects performs the mutations a turn's decision requires beyond
// the pure proposal/resolution bookkeeping: the atomic state transition
// (with any on_enter action override), data and flag application, the
// deferred go-back counter increment, and objection-return tracking.
func (o *Orchestrator) applySideEffects(decision *blackboard.ResolvedDecision, prevState string, stateChanged bool) {
	nextConfig, _ := o.flowConfig.StateConfig(decision.NextState)

	finalAction := decision.Action
	if stateChanged && nextConfig.HasOnEnterAction && nextConfig.OnEnterAction != "" {
		finalAction = nextConfig.OnEnterAction
		decision.Action = finalAction
		o.logger.Debug("on_enter action override", "action", finalAction)
	}

	phase, hasPhase := o.flowConfig.PhaseForState(decision.NextState)
	o.stateMachine.TransitionTo(decision.NextState, ports.TransitionOptions{
		Action:   finalAction,
		Phase:    phase,
		HasPhase: hasPhase,
		Source:   "orchestrator",
		Validate: false,
	})

	if len(decision.DataUpdates) > 0 {
		o.stateMachine.UpdateData(decision.DataUpdates)
	}

	if stateChanged {
		onEnterFlags := o.flowConfig.StateOnEnterFlags(decision.NextState)
		if len(onEnterFlags) > 0 {
			o.stateMachine.UpdateData(onEnterFlags)
		}
	}

	if len(decision.FlagsToSet) > 0 {
		o.stateMachine.UpdateData(decision.FlagsToSet)
	}

	o.applyDeferredGoBackIncrement(decision, prevState, stateChanged)
	o.updateStateBeforeObjection(decision, prevState, stateChanged)
}

// applyDeferredGoBackIncrement increments the go-back counter only once the
// acknowledge_go_back action has actually won and landed on its intended
// target — never when a higher-priority proposal blocked or redirected it.
func (o *Orchestrator) applyDeferredGoBackIncrement(decision *blackboard.ResolvedDecision, prevState string, stateChanged bool) {
	if decision.Action != "acknowledge_go_back" {
		return
	}
	if !stateChanged {
		o.logger.Debug("deferred goback increment skipped: state unchanged")
		return
	}

	winningMeta, _ := decision.ResolutionTrace["winning_action_metadata"].(map[string]any)
	if winningMeta == nil || !truthy(winningMeta["pending_goback_increment"]) {
		return
	}

	expectedTo, _ := winningMeta["to_state"].(string)
	if expectedTo != "" && decision.NextState != expectedTo {
		o.logger.Warn("deferred goback increment skipped: unexpected target",
			"expected", expectedTo, "actual", decision.NextState)
		return
	}

	cf := o.stateMachine.CircularFlow()
	if cf == nil {
		o.logger.Warn("deferred goback increment skipped: no circular flow manager")
		return
	}

	from, _ := winningMeta["from_state"].(string)
	if from == "" {
		from = prevState
	}
	cf.RecordGoBack(from, decision.NextState)
}

// updateStateBeforeObjection tracks where to return once an objection series
// resolves: save the incoming state on entry, clear it once a positive
// intent breaks the streak, clear it again on exit to a non-objection state.
func (o *Orchestrator) updateStateBeforeObjection(decision *blackboard.ResolvedDecision, prevState string, stateChanged bool) {
	ctx, err := o.bb.GetContext()
	if err != nil {
		return
	}
	currentIntent := ctx.CurrentIntent
	nextState := decision.NextState
	_, hasSaved := o.stateMachine.StateBeforeObjection()

	if stateChanged && nextState == "handle_objection" && prevState != "handle_objection" && !hasSaved {
		o.stateMachine.SetStateBeforeObjection(prevState, true)
		return
	}

	if hasSaved && inCategory(o.flowConfig, "positive", currentIntent) {
		if o.stateMachine.IntentTracker().ObjectionConsecutive() == 0 {
			o.stateMachine.SetStateBeforeObjection("", false)
			return
		}
	}

	if stateChanged && prevState == "handle_objection" && nextState != "handle_objection" && hasSaved {
		if !inCategory(o.flowConfig, "objection", currentIntent) {
			o.stateMachine.SetStateBeforeObjection("", false)
		}
	}
}

// fillCompatibilityFields enriches a resolved decision with the derived view
// a host application needs to render a response: goal, data completeness,
// phase, and the circular-flow/objection-flow counters.
func (o *Orchestrator) fillCompatibilityFields(decision *blackboard.ResolvedDecision, prevState string) {
	nextConfig, _ := o.flowConfig.StateConfig(decision.NextState)
	collected := o.stateMachine.CollectedData()

	decision.PrevState = prevState
	decision.Goal = nextConfig.Goal
	decision.CollectedData = copyData(collected)
	decision.MissingData = missingFields(nextConfig.RequiredData, collected)
	decision.OptionalData = missingFields(nextConfig.OptionalData, collected)

	decision.IsFinal = nextConfig.IsFinal
	if decision.NextState == "soft_close" && truthy(collected["_objection_limit_final"]) {
		decision.IsFinal = true
	}

	decision.SpinPhase, _ = o.flowConfig.PhaseForState(decision.NextState)
	decision.PrevPhase, _ = o.flowConfig.PhaseForState(prevState)

	if cf := o.stateMachine.CircularFlow(); cf != nil {
		decision.CircularFlow = cf.Stats()
	}
	decision.ObjectionFlow = o.getObjectionStats()

	if decision.Action == "ask_clarification" {
		winningMeta, _ := decision.ResolutionTrace["winning_action_metadata"].(map[string]any)
		if opts, ok := winningMeta["disambiguation_options"].([]string); ok {
			decision.DisambiguationOptions = opts
		}
		if q, ok := winningMeta["disambiguation_question"].(string); ok {
			decision.DisambiguationQuestion = q
		}
	}
}

func (o *Orchestrator) getObjectionStats() blackboard.ObjectionFlowStats {
	tracker := o.stateMachine.IntentTracker()
	returnState, hasReturn := o.stateMachine.StateBeforeObjection()
	return blackboard.ObjectionFlowStats{
		ConsecutiveObjections: tracker.ObjectionConsecutive(),
		TotalObjections:       tracker.ObjectionTotal(),
		History:               tracker.IntentsByCategory("objection"),
		ReturnState:           returnState,
		HasReturnState:        hasReturn,
	}
}

// createFallbackDecision builds the safe "stay put" decision returned
// whenever a turn cannot complete normally.
func (o *Orchestrator) createFallbackDecision(currentState, reason string, turnNumber int) *blackboard.ResolvedDecision {
	o.logger.Warn("creating fallback decision", "reason", reason, "state", currentState, "turn_number", turnNumber)
	decision := &blackboard.ResolvedDecision{
		Action:          "continue_current_goal",
		NextState:       currentState,
		ReasonCodes:     []string{"fallback_" + reason},
		ResolutionTrace: map[string]any{"fallback": true, "reason": reason},
	}
	o.fillCompatibilityFields(decision, currentState)
	return decision
}

func validStateSet(fc ports.FlowConfig) map[string]bool {
	states := fc.States()
	out := make(map[string]bool, len(states))
	for name := range states {
		out[name] = true
	}
	return out
}

func inCategory(fc ports.FlowConfig, category, intent string) bool {
	for _, i := range fc.IntentCategory(category) {
		if i == intent {
			return true
		}
	}
	return false
}

func missingFields(fields []string, data map[string]any) []string {
	var out []string
	for _, f := range fields {
		if !truthy(data[f]) {
			out = append(out, f)
		}
	}
	return out
}

func copyData(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return v != nil
	}
}
