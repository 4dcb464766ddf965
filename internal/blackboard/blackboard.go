package blackboard

import (
	"errors"
	"log/slog"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

// ErrPreTurnAccess is returned by accessors that require BeginTurn to have
// run at least once for the current turn.
var ErrPreTurnAccess = errors.New("blackboard: accessed before begin_turn")

// objectionCategory is the intent category name used to gate objection
// recording against the persona's limit, preventing an infinite loop.
const objectionCategory = "objection"

// Blackboard is the per-dialog-session turn workspace: one context region,
// one append-only proposal region, and one decision region, reset every
// BeginTurn. A Blackboard is not safe for concurrent turns of the same
// dialog; distinct dialogs must use distinct Blackboard instances.
type Blackboard struct {
	stateMachine ports.StateMachine
	flowConfig   ports.FlowConfig
	tenantConfig ports.TenantConfig
	logger       *slog.Logger

	personaLimits map[string]ports.PersonaLimit

	snapshot    *ContextSnapshot
	actions     []Proposal
	transitions []Proposal
	dataUpdates map[string]any
	flagsToSet  map[string]any
	decision    *ResolvedDecision
	nextIndex   int
}

// New constructs a Blackboard bound to the given state machine and flow
// configuration. tenantConfig defaults to ports.DefaultTenant if zero.
func New(sm ports.StateMachine, fc ports.FlowConfig, tenantConfig ports.TenantConfig, logger *slog.Logger) *Blackboard {
	if tenantConfig.TenantID == "" {
		tenantConfig = ports.DefaultTenant
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Blackboard{
		stateMachine: sm,
		flowConfig:   fc,
		tenantConfig: tenantConfig,
		logger:       logger,
	}
}

// BeginTurn initializes the blackboard for a new turn. Order is a hard
// contract:
//  1. conditionally record the intent (skip while an objection-limit flag is
//     already set, to stop the counter overshooting once the limit fires);
//  2. advance the turn counter;
//  3. merge non-empty extracted values into collected data;
//  4. build and freeze a new ContextSnapshot;
//  5. clear the proposal and decision regions.
func (b *Blackboard) BeginTurn(intent string, extractedData map[string]any, envelope ports.ContextEnvelope, userMessage string, frustrationLevel int) {
	tracker := b.stateMachine.IntentTracker()
	state := b.stateMachine.State()

	if !b.shouldSkipObjectionRecording(intent, tracker) {
		tracker.Record(intent, state)
	}
	tracker.AdvanceTurn()

	if len(extractedData) > 0 {
		merged := make(map[string]any, len(extractedData))
		for k, v := range extractedData {
			if truthy(v) {
				merged[k] = v
			}
		}
		if len(merged) > 0 {
			b.stateMachine.UpdateData(merged)
		}
	}

	snapshot := b.buildSnapshot(intent, envelope, userMessage, frustrationLevel, tracker, state)
	b.snapshot = &snapshot

	b.actions = nil
	b.transitions = nil
	b.dataUpdates = map[string]any{}
	b.flagsToSet = map[string]any{}
	b.decision = nil
	b.nextIndex = 0
}

// shouldSkipObjectionRecording implements the "NOT a bug" infinite-loop
// prevention for objections: once ObjectionGuard has set the
// _objection_limit_final flag, further objection-category intents are not
// recorded, so the consecutive/total counters stop growing unboundedly
// while the dialog drains toward soft_close.
func (b *Blackboard) shouldSkipObjectionRecording(intent string, tracker ports.IntentTracker) bool {
	if !truthy(b.stateMachine.CollectedData()["_objection_limit_final"]) {
		return false
	}
	objectionIntents := b.flowConfig.IntentCategory(objectionCategory)
	for _, oi := range objectionIntents {
		if oi == intent {
			return true
		}
	}
	return false
}

func (b *Blackboard) buildSnapshot(intent string, envelope ports.ContextEnvelope, userMessage string, frustrationLevel int, tracker ports.IntentTracker, state string) ContextSnapshot {
	stateConfig, _ := b.flowConfig.StateConfig(state)
	stateBefore, hasStateBefore := b.stateMachine.StateBeforeObjection()
	lastIntent, hasLastIntent := tracker.PrevIntent()

	stateToPhase := map[string]string{}
	for name := range b.flowConfig.States() {
		if phase, ok := b.flowConfig.PhaseForState(name); ok {
			stateToPhase[name] = phase
		}
	}

	return ContextSnapshot{
		State:                   state,
		CurrentIntent:           intent,
		TurnNumber:              tracker.TurnNumber(),
		Persona:                 personaOf(b.stateMachine.CollectedData()),
		TenantID:                b.tenantConfig.TenantID,
		CollectedData:           b.stateMachine.CollectedData(),
		StateConfig:             stateConfig,
		FlowConfig:              b.flowConfig,
		StateToPhase:            stateToPhase,
		ContextEnvelope:         envelope,
		UserMessage:             userMessage,
		FrustrationLevel:        frustrationLevel,
		StateBeforeObjection:    stateBefore,
		HasStateBeforeObjection: hasStateBefore,
		LastIntent:              lastIntent,
		HasLastIntent:           hasLastIntent,
		IntentTracker:           tracker,
		TenantConfig:            b.tenantConfig,
	}
}

func personaOf(data map[string]any) string {
	if p, ok := data["persona"].(string); ok {
		return p
	}
	return "default"
}

// GetContext returns the frozen snapshot for the current turn.
func (b *Blackboard) GetContext() (ContextSnapshot, error) {
	if b.snapshot == nil {
		return ContextSnapshot{}, ErrPreTurnAccess
	}
	return *b.snapshot, nil
}

// CurrentIntent returns the current turn's classified intent.
func (b *Blackboard) CurrentIntent() (string, error) {
	if b.snapshot == nil {
		return "", ErrPreTurnAccess
	}
	return b.snapshot.CurrentIntent, nil
}

// ProposeAction appends an ACTION proposal to the buffer.
func (b *Blackboard) ProposeAction(p Proposal) {
	p.Kind = ProposalAction
	b.actions = append(b.actions, p.WithInsertionIndex(b.nextIndex))
	b.nextIndex++
}

// ProposeTransition appends a TRANSITION proposal to the buffer.
// Combinable is always forced true, per the TRANSITION invariant.
func (b *Blackboard) ProposeTransition(p Proposal) {
	p.Kind = ProposalTransition
	p.Combinable = true
	b.transitions = append(b.transitions, p.WithInsertionIndex(b.nextIndex))
	b.nextIndex++
}

// ProposeDataUpdate records a pending data mutation, applied at commit time.
func (b *Blackboard) ProposeDataUpdate(field string, value any) {
	if b.dataUpdates == nil {
		b.dataUpdates = map[string]any{}
	}
	b.dataUpdates[field] = value
}

// ProposeFlagSet records a pending flag, applied at commit time.
func (b *Blackboard) ProposeFlagSet(flag string, value any) {
	if b.flagsToSet == nil {
		b.flagsToSet = map[string]any{}
	}
	b.flagsToSet[flag] = value
}

// GetProposals returns all ACTION and TRANSITION proposals made so far.
func (b *Blackboard) GetProposals() []Proposal {
	out := make([]Proposal, 0, len(b.actions)+len(b.transitions))
	out = append(out, b.actions...)
	out = append(out, b.transitions...)
	return out
}

// GetActionProposals returns only ACTION proposals made so far.
func (b *Blackboard) GetActionProposals() []Proposal {
	return append([]Proposal(nil), b.actions...)
}

// GetTransitionProposals returns only TRANSITION proposals made so far.
func (b *Blackboard) GetTransitionProposals() []Proposal {
	return append([]Proposal(nil), b.transitions...)
}

// GetDataUpdates returns the pending data update map.
func (b *Blackboard) GetDataUpdates() map[string]any {
	return b.dataUpdates
}

// GetFlagsToSet returns the pending flag map.
func (b *Blackboard) GetFlagsToSet() map[string]any {
	return b.flagsToSet
}

// CommitDecision stores the resolved decision and applies its data updates
// (plus any accumulated proposal-level data updates) to the state machine's
// collected data. Flags are stored for the orchestrator to apply alongside
// on-enter flags during side-effect application.
func (b *Blackboard) CommitDecision(decision *ResolvedDecision) {
	merged := map[string]any{}
	for k, v := range b.dataUpdates {
		merged[k] = v
	}
	for k, v := range decision.DataUpdates {
		merged[k] = v
	}
	if len(merged) > 0 {
		b.stateMachine.UpdateData(merged)
	}
	b.decision = decision
}

// Decision returns the committed decision for the current turn, if any.
func (b *Blackboard) Decision() (*ResolvedDecision, bool) {
	return b.decision, b.decision != nil
}

// StateMachine exposes the bound state machine for sources/orchestrator use.
func (b *Blackboard) StateMachine() ports.StateMachine { return b.stateMachine }

// FlowConfig exposes the bound flow configuration.
func (b *Blackboard) FlowConfig() ports.FlowConfig { return b.flowConfig }

// TenantConfig exposes the bound tenant configuration.
func (b *Blackboard) TenantConfig() ports.TenantConfig { return b.tenantConfig }

// Logger exposes the blackboard's structured logger for sources that want to
// emit debug-level contribution traces.
func (b *Blackboard) Logger() *slog.Logger { return b.logger }
