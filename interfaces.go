package dialogflow

import (
	"context"
	"net/http"

	"github.com/ashita-ai/dialogflow/internal/auth"
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/ports"
)

// EmbeddingProvider generates vector embeddings from text for the semantic
// FAQ/pricing fallback. When supplied via WithEmbeddingProvider, replaces
// the auto-detected Ollama/OpenAI/noop provider.
// Uses []float32 rather than pgvector.Vector so external consumers never
// need the pgvector dependency.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Corpus performs semantic lookup over the FAQ/pricing corpus backing
// PriceQuestion and FactQuestion's fallback. When supplied via WithCorpus,
// replaces the auto-configured Qdrant index.
type Corpus interface {
	Nearest(ctx context.Context, tenantID, kind, query string) (entry CorpusEntry, ok bool, err error)
	Healthy(ctx context.Context) error
}

// AnswerResolver resolves the current turn's user message to a fallback
// action, consumed directly by PriceQuestion/FactQuestion when no corpus is
// configured or when a host wants to bypass it for one kind.
type AnswerResolver interface {
	Resolve(ctx blackboard.ContextSnapshot) (action string, ok bool)
}

// AutonomousLLM is the host-supplied structured-decision backend for the
// autonomous flow. A nil AutonomousLLM disables the AutonomousDecision
// source entirely rather than failing registration.
type AutonomousLLM interface {
	Decide(ctx context.Context, req AutonomousDecisionRequest) (AutonomousDecisionResult, error)
}

// GuardAnalyser inspects the current turn's context and returns an
// escalation tier, analogous to a safety classifier. Supplied by the host
// application; a nil GuardAnalyser disables the ConversationGuard source.
type GuardAnalyser interface {
	Analyse(ctx blackboard.ContextSnapshot) (GuardTier, error)
}

// GuardFallback resolves a skip-phase target for GuardAnalyser's tier 3.
// Returning ok=false causes ConversationGuard to degrade to tier 2 behavior.
type GuardFallback interface {
	SkipTarget(ctx blackboard.ContextSnapshot) (state string, ok bool)
}

// ConditionRegistry evaluates named boolean conditions against an evaluator
// context, analogous to a rules engine. Required by the priority assigner
// and the TransitionResolver/IntentProcessor sources whenever the flow
// configuration references named conditions; a nil registry makes every
// named condition evaluate to false.
type ConditionRegistry = ports.ConditionRegistry

// FeatureFlags gates process-wide feature flags consulted by the priority
// assigner, independent of TenantConfig's per-tenant overrides.
type FeatureFlags = ports.FeatureFlags

// StateMachine is the durable per-dialog state the blackboard core mutates
// only through this narrow interface. The host application owns the
// concrete implementation and its persistence.
type StateMachine = ports.StateMachine

// EventHook receives notifications for every published
// eventbus event (turn started, source contributed, decision committed,
// ...). Multiple hooks may be registered via multiple WithEventHook calls.
// Hooks run synchronously on the publishing goroutine in sync mode (the
// default) — a slow hook delays the turn. Failures must be handled by the
// hook itself; panics are recovered and logged by the bus, not propagated.
type EventHook func(event Event)

// RouteRegistrar registers additional routes on the admin HTTP mux. Called
// once by cmd/dialogflowd after every built-in route is registered.
type RouteRegistrar func(mux *http.ServeMux, auth AuthHelper)

// AuthHelper provides role-gated middleware for use in a RouteRegistrar, so
// extra routes share the same JWT auth chain as the built-in admin API
// without importing internal/auth directly.
type AuthHelper interface {
	RequireRole(role Role) func(http.Handler) http.Handler
}

// Middleware wraps the admin HTTP API's handler. cmd/dialogflowd applies it
// just outside the JWT auth middleware and inside the built-in recovery,
// logging, CORS, security-header, rate-limit and request-ID middlewares, so
// it observes every request including GET /health. Multiple middlewares are
// applied in registration order (last-registered = outermost of them).
type Middleware func(http.Handler) http.Handler
