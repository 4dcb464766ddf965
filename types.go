package dialogflow

import (
	"time"

	"github.com/ashita-ai/dialogflow/internal/auth"
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/eventbus"
	"github.com/ashita-ai/dialogflow/internal/ports"
	"github.com/ashita-ai/dialogflow/internal/sources"
)

// Role identifies what an authenticated caller of the admin HTTP API may do.
type Role = auth.Role

// Admin API roles, re-exported so RouteRegistrar implementations never need
// to import internal/auth directly.
const (
	RoleAdmin  = auth.RoleAdmin
	RoleReader = auth.RoleReader
)

// Event is one published turn-pipeline notification (turn started, source
// contributed, decision committed, ...), delivered to every registered
// EventHook.
type Event = eventbus.Event

// TenantConfig is multi-tenant configuration: feature flags and per-persona
// objection limit overrides. It is a plain alias of ports.TenantConfig so
// callers never need to import an internal package to build one.
type TenantConfig = ports.TenantConfig

// PersonaLimit bounds how many consecutive/total objections a persona may
// raise before ObjectionGuard forces a soft close.
type PersonaLimit = ports.PersonaLimit

// DefaultTenant is the zero-configuration tenant used when a caller does not
// supply one.
var DefaultTenant = ports.DefaultTenant

// Decision is the committed outcome of one turn: the winning action, the
// state transition (if any), and the compatibility fields a host state
// machine merges back into its own view of the dialog.
type Decision = blackboard.ResolvedDecision

// Proposal is one knowledge source's suggested contribution to a turn,
// before conflict resolution picks a winner.
type Proposal = blackboard.Proposal

// FlowConfigDocument is the versioned, persistable shape of a flow's static
// configuration: per-state dictionaries, declarative priority definitions,
// phase mapping, named entry points, and intent categories. Load it via
// App.LoadFlowConfig / store it via App.SaveFlowConfig.
type FlowConfigDocument struct {
	TenantID   string
	FlowName   string
	Version    int
	States     map[string]ports.StateConfig
	Priorities []ports.PriorityDefinition
	Constants  map[string]any
	Phases     map[string]string
	Entries    map[string]string
	Categories map[string][]string
	UpdatedAt  time.Time
}

// CorpusEntry is one FAQ/pricing entry backing the semantic fallback used by
// the PriceQuestion and FactQuestion knowledge sources when a question falls
// outside their closed intent tables.
type CorpusEntry struct {
	TenantID string
	Kind     string // "price" | "fact"
	Question string
	Action   string
}

// GuardTier is the escalation tier returned by a GuardAnalyser.
type GuardTier = sources.GuardTier

// Guard escalation tiers, re-exported so callers implementing GuardAnalyser
// never need to import internal/sources directly.
const (
	GuardTierNone = sources.GuardTierNone
	GuardTier1    = sources.GuardTier1
	GuardTier2    = sources.GuardTier2
	GuardTier3    = sources.GuardTier3
	GuardTier4    = sources.GuardTier4
)

// AutonomousDecisionRequest is the prompt context handed to an AutonomousLLM.
type AutonomousDecisionRequest = sources.AutonomousDecisionRequest

// AutonomousDecisionResult is the LLM's structured decision for the
// autonomous flow.
type AutonomousDecisionResult = sources.AutonomousDecisionResult
