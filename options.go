package dialogflow

import (
	"io/fs"
	"log/slog"

	"github.com/ashita-ai/dialogflow/internal/ports"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port              int
	databaseURL       string
	notifyURL         string
	logger            *slog.Logger
	version           string
	jwtPrivateKeyPath string
	jwtPublicKeyPath  string

	embeddingProvider EmbeddingProvider
	corpus            Corpus

	conditions      ports.ConditionRegistry
	featureFlags    ports.FeatureFlags
	objectionLimits map[string]ports.PersonaLimit
	softCloseState  string

	autonomousLLM AutonomousLLM
	guardAnalyser GuardAnalyser
	guardFallback GuardFallback
	priceFallback AnswerResolver
	factFallback  AnswerResolver

	validActions          map[string]bool
	validStates           map[string]bool
	documentedReasons     map[string]bool
	strictValidation      bool
	defaultFallbackAction string

	eventHooks      []EventHook
	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
	extraMigrations []fs.FS
}

// WithPort overrides the TCP port from config (DIALOGFLOW_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the database connection string from config (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithNotifyURL overrides the direct Postgres URL used for LISTEN/NOTIFY (NOTIFY_URL env var).
// Set this when using a connection pooler for queries — LISTEN/NOTIFY requires a
// direct (non-pooled) connection.
func WithNotifyURL(url string) Option {
	return func(o *resolvedOptions) { o.notifyURL = url }
}

// WithLogger sets the structured logger for the App. If not set, the default
// slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithJWTKeys overrides the Ed25519 key file paths used to sign/verify the
// admin API's JWTs. If not set, config's DIALOGFLOW_JWT_PRIVATE_KEY /
// DIALOGFLOW_JWT_PUBLIC_KEY apply; if those are also empty, an ephemeral key
// pair is generated (development only).
func WithJWTKeys(privateKeyPath, publicKeyPath string) Option {
	return func(o *resolvedOptions) {
		o.jwtPrivateKeyPath = privateKeyPath
		o.jwtPublicKeyPath = publicKeyPath
	}
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (Ollama/OpenAI/noop) used for the FAQ/pricing corpus.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithCorpus replaces the auto-configured Qdrant-backed FAQ/pricing corpus.
// Only the last call wins.
func WithCorpus(c Corpus) Option {
	return func(o *resolvedOptions) { o.corpus = c }
}

// WithConditionRegistry supplies the rules-engine-like evaluator the priority
// assigner and the IntentProcessor source consult for
// named conditions referenced by a flow's priority definitions. Without one,
// every named condition evaluates to false.
func WithConditionRegistry(c ports.ConditionRegistry) Option {
	return func(o *resolvedOptions) { o.conditions = c }
}

// WithFeatureFlags supplies process-wide feature flags consulted by the
// priority assigner, independent of TenantConfig's per-tenant overrides.
func WithFeatureFlags(f ports.FeatureFlags) Option {
	return func(o *resolvedOptions) { o.featureFlags = f }
}

// WithObjectionLimits sets the default per-persona consecutive/total
// objection limits ObjectionGuard enforces when a tenant supplies no
// PersonaLimitsOverride entry for the current persona.
func WithObjectionLimits(limits map[string]ports.PersonaLimit) Option {
	return func(o *resolvedOptions) { o.objectionLimits = limits }
}

// WithSoftCloseState overrides the state name ObjectionGuard and
// ConversationGuard transition to when forcing a soft close. Defaults to
// "soft_close".
func WithSoftCloseState(state string) Option {
	return func(o *resolvedOptions) { o.softCloseState = state }
}

// WithAutonomousLLM supplies the structured-decision backend for the
// autonomous flow. Without one, the AutonomousDecision source is disabled.
func WithAutonomousLLM(llm AutonomousLLM) Option {
	return func(o *resolvedOptions) { o.autonomousLLM = llm }
}

// WithGuardAnalyser supplies the external safety/escalation classifier.
// Without one, the ConversationGuard source is disabled.
func WithGuardAnalyser(g GuardAnalyser) Option {
	return func(o *resolvedOptions) { o.guardAnalyser = g }
}

// WithGuardFallback supplies the skip-target resolver ConversationGuard
// consults for its tier 3 response. Without one, tier 3 degrades to tier 2.
func WithGuardFallback(f GuardFallback) Option {
	return func(o *resolvedOptions) { o.guardFallback = f }
}

// WithPriceFallback overrides PriceQuestion's semantic fallback, bypassing
// the auto-configured corpus for price questions specifically.
func WithPriceFallback(r AnswerResolver) Option {
	return func(o *resolvedOptions) { o.priceFallback = r }
}

// WithFactFallback overrides FactQuestion's semantic fallback, bypassing the
// auto-configured corpus for fact questions specifically.
func WithFactFallback(r AnswerResolver) Option {
	return func(o *resolvedOptions) { o.factFallback = r }
}

// WithProposalValidation sets the known-action/known-state/documented-reason
// sets the proposal validator checks proposals against. Any set may be nil
// to skip that check. strictMode upgrades warnings (unknown action, unknown
// reason) to hard validation errors.
func WithProposalValidation(validActions, validStates, documentedReasons map[string]bool, strictMode bool) Option {
	return func(o *resolvedOptions) {
		o.validActions = validActions
		o.validStates = validStates
		o.documentedReasons = documentedReasons
		o.strictValidation = strictMode
	}
}

// WithDefaultFallbackAction overrides the action the conflict resolver picks
// when no proposal wins the ACTION slot. Defaults to "continue_current_goal".
func WithDefaultFallbackAction(action string) Option {
	return func(o *resolvedOptions) { o.defaultFallbackAction = action }
}

// WithEventHook registers an event hook to receive turn-pipeline
// notifications. Multiple hooks may be registered; all receive every event.
func WithEventHook(hook EventHook) Option {
	return func(o *resolvedOptions) { o.eventHooks = append(o.eventHooks, hook) }
}

// WithExtraRoutes registers additional routes on the admin HTTP mux.
// Multiple registrars may be registered; all are called in registration order.
func WithExtraRoutes(fn RouteRegistrar) Option {
	return func(o *resolvedOptions) { o.routeRegistrars = append(o.routeRegistrars, fn) }
}

// WithMiddleware registers an admin-API HTTP middleware (see Middleware for
// where it sits in the chain). Multiple middlewares may be registered,
// applied in registration order (the last-registered middleware is the
// outermost of them).
func WithMiddleware(mw Middleware) Option {
	return func(o *resolvedOptions) { o.middlewares = append(o.middlewares, mw) }
}

// WithExtraMigrations adds an additional SQL migration filesystem to run
// after the built-in migrations. Multiple filesystems may be registered; they
// are applied in registration order.
func WithExtraMigrations(dir fs.FS) Option {
	return func(o *resolvedOptions) { o.extraMigrations = append(o.extraMigrations, dir) }
}
