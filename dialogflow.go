// Package dialogflow is a blackboard-style dialogue orchestration engine: a
// per-turn pipeline of knowledge sources that propose actions and state
// transitions, arbitrated by priority and combinability into one committed
// decision. See internal/blackboard for the core data model and
// internal/orchestrator for the turn driver this package wires together.
package dialogflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/dialogflow/internal/auth"
	"github.com/ashita-ai/dialogflow/internal/blackboard"
	"github.com/ashita-ai/dialogflow/internal/config"
	"github.com/ashita-ai/dialogflow/internal/eventbus"
	"github.com/ashita-ai/dialogflow/internal/mcp"
	"github.com/ashita-ai/dialogflow/internal/orchestrator"
	"github.com/ashita-ai/dialogflow/internal/ports"
	"github.com/ashita-ai/dialogflow/internal/registry"
	"github.com/ashita-ai/dialogflow/internal/search"
	"github.com/ashita-ai/dialogflow/internal/service/embedding"
	"github.com/ashita-ai/dialogflow/internal/sources"
	"github.com/ashita-ai/dialogflow/internal/storage"
	"github.com/ashita-ai/dialogflow/internal/telemetry"
	"github.com/ashita-ai/dialogflow/migrations"
)

// App wires a running process's shared subsystems: flow config and
// turn-trace persistence (Postgres by default, or an embedded sqlite file
// when DIALOGFLOW_SQLITE_PATH is set), the knowledge-source registry, the
// event bus, the MCP introspection server, and the admin API's JWT manager.
// It owns no per-dialog state itself — call NewOrchestrator once per dialog
// session, the same way a host application owns one state machine per
// dialog.
type App struct {
	cfg    config.Config
	db     storage.Store
	bus    *eventbus.Bus
	reg    *registry.Registry
	mcpSrv *mcp.Server
	jwtMgr *auth.JWTManager

	conditions   ports.ConditionRegistry
	featureFlags ports.FeatureFlags

	validator *blackboard.ProposalValidator
	resolver  *blackboard.ConflictResolver

	corpus search.Corpus // nil when no Qdrant URL is configured and no override supplied

	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string

	routeRegistrars []RouteRegistrar
	middlewares     []Middleware
}

// New wires every subsystem: it loads configuration, initializes telemetry,
// connects to storage and runs migrations, builds the knowledge-source
// registry, and prepares the admin API's JWT manager. It does not start any
// background goroutines — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("dialogflow: load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	if o.jwtPrivateKeyPath != "" {
		cfg.JWTPrivateKeyPath = o.jwtPrivateKeyPath
	}
	if o.jwtPublicKeyPath != "" {
		cfg.JWTPublicKeyPath = o.jwtPublicKeyPath
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("dialogflow starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("dialogflow: telemetry: %w", err)
	}

	standalone := cfg.StandaloneSQLitePath != ""

	var (
		db   storage.Store
		pgDB *storage.DB // non-nil only in Postgres mode; mcp.New needs the concrete type
	)
	if standalone {
		logger.Info("storage: standalone sqlite mode", "path", cfg.StandaloneSQLitePath)
		sqliteDB, err := storage.NewSQLiteStore(context.Background(), cfg.StandaloneSQLitePath, cfg.FlowConfigRefreshInterval, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("dialogflow: sqlite storage: %w", err)
		}
		db = sqliteDB
	} else {
		var err error
		pgDB, err = storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
		if err != nil {
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("dialogflow: storage: %w", err)
		}
		db = pgDB

		if err := pgDB.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("dialogflow: migrations: %w", err)
		}
		for i, extraFS := range o.extraMigrations {
			if err := pgDB.RunMigrations(context.Background(), extraFS); err != nil {
				db.Close(context.Background())
				_ = otelShutdown(context.Background())
				return nil, fmt.Errorf("dialogflow: extra migrations[%d]: %w", i, err)
			}
		}
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("dialogflow: auth: %w", err)
	}

	corpus, err := buildCorpus(cfg, o, logger)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("dialogflow: corpus: %w", err)
	}

	reg := registry.New()
	deps := sources.Dependencies{
		Conditions:      o.conditions,
		ObjectionLimits: o.objectionLimits,
		SoftCloseState:  o.softCloseState,
		AutonomousLLM:   o.autonomousLLM,
		GuardAnalyser:   o.guardAnalyser,
		GuardFallback:   o.guardFallback,
		PriceFallback:   resolveFallback(o.priceFallback, corpus, "price", logger),
		FactFallback:    resolveFallback(o.factFallback, corpus, "fact", logger),
	}
	if err := sources.RegisterDefaults(reg, deps); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("dialogflow: %w", err)
	}
	reg.Freeze()

	bus := eventbus.New(eventbus.WithLogger(logger))
	for _, hook := range o.eventHooks {
		bus.SubscribeAll(eventbus.Handler(hook))
	}

	mcpSrv := mcp.New(bus, reg, pgDB, logger, version) // pgDB is nil in standalone sqlite mode; mcp tolerates a nil store

	validator := blackboard.NewProposalValidator(o.validActions, o.validStates, o.documentedReasons, o.strictValidation)
	resolver := blackboard.NewConflictResolver(o.defaultFallbackAction)

	return &App{
		cfg:             cfg,
		db:              db,
		bus:             bus,
		reg:             reg,
		mcpSrv:          mcpSrv,
		jwtMgr:          jwtMgr,
		conditions:      o.conditions,
		featureFlags:    o.featureFlags,
		validator:       validator,
		resolver:        resolver,
		corpus:          corpus,
		otelShutdown:    otelShutdown,
		logger:          logger,
		version:         version,
		routeRegistrars: o.routeRegistrars,
		middlewares:     o.middlewares,
	}, nil
}

// resolveFallback picks the host-supplied override if set, otherwise wraps
// corpus (if non-nil) into a sources.AnswerResolver scoped to kind.
func resolveFallback(override AnswerResolver, corpus search.Corpus, kind string, logger *slog.Logger) AnswerResolver {
	if override != nil {
		return override
	}
	if corpus == nil {
		return nil
	}
	return search.CorpusAnswerResolver{Corpus: corpus, Kind: kind, Timeout: 2 * time.Second, Logger: logger}
}

// buildCorpus constructs the FAQ/pricing semantic-fallback corpus: the
// caller's override if supplied, otherwise a Qdrant-backed corpus when
// cfg.QdrantURL is set, otherwise nil (semantic fallback disabled).
func buildCorpus(cfg config.Config, o resolvedOptions, logger *slog.Logger) (search.Corpus, error) {
	if o.corpus != nil {
		return corpusAdapter{pub: o.corpus}, nil
	}
	if cfg.QdrantURL == "" {
		logger.Info("semantic fallback: disabled (no QDRANT_URL)")
		return nil, nil
	}

	embedder, err := buildEmbedder(cfg, o, logger)
	if err != nil {
		return nil, err
	}

	qc, err := search.NewQdrantCorpus(search.QdrantConfig{
		URL:             cfg.QdrantURL,
		APIKey:          cfg.QdrantAPIKey,
		Collection:      cfg.QdrantCollection,
		Dims:            uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		SimilarityFloor: float32(cfg.QdrantSimilarityFloor),
	}, embedder, logger)
	if err != nil {
		return nil, fmt.Errorf("qdrant: %w", err)
	}
	if err := qc.EnsureCollection(context.Background()); err != nil {
		return nil, fmt.Errorf("qdrant ensure collection: %w", err)
	}
	logger.Info("semantic fallback: enabled (qdrant)", "collection", cfg.QdrantCollection)
	return qc, nil
}

// buildEmbedder picks the caller's embedding provider override if supplied,
// otherwise auto-selects Ollama/OpenAI/noop via NewEmbeddingProvider.
func buildEmbedder(cfg config.Config, o resolvedOptions, logger *slog.Logger) (search.Embedder, error) {
	if o.embeddingProvider != nil {
		return embedderAdapter{p: o.embeddingProvider}, nil
	}
	return search.ProviderEmbedder{Provider: NewEmbeddingProvider(cfg, logger)}, nil
}

// embedderAdapter adapts a public EmbeddingProvider to search.Embedder; the
// method sets already match, this type exists only to document the seam.
type embedderAdapter struct{ p EmbeddingProvider }

func (a embedderAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	return a.p.Embed(ctx, text)
}

// corpusAdapter adapts a public Corpus to the internal search.Corpus shape
// consumed by search.CorpusAnswerResolver.
type corpusAdapter struct{ pub Corpus }

func (a corpusAdapter) Nearest(ctx context.Context, tenantID, kind, query string) (search.Match, bool, error) {
	entry, ok, err := a.pub.Nearest(ctx, tenantID, kind, query)
	if err != nil || !ok {
		return search.Match{}, ok, err
	}
	return search.Match{Entry: search.Entry{TenantID: entry.TenantID, Kind: entry.Kind, Question: entry.Question, Action: entry.Action}}, true, nil
}

func (a corpusAdapter) Healthy(ctx context.Context) error { return a.pub.Healthy(ctx) }

// NewOrchestrator builds a fresh Orchestrator for one dialog session. Call
// this once per dialog and reuse the returned Orchestrator for every turn of
// that dialog — knowledge sources like AutonomousDecision carry per-dialog
// history and must not be shared across sessions.
func (a *App) NewOrchestrator(ctx context.Context, tenantConfig TenantConfig, sm StateMachine, flowName string) (*orchestrator.Orchestrator, error) {
	doc, err := a.db.LoadFlowConfig(ctx, tenantConfig.TenantID, flowName)
	if err != nil {
		return nil, fmt.Errorf("dialogflow: load flow config: %w", err)
	}
	fc := storage.FlowConfigView{Doc: doc}

	bb := blackboard.New(sm, fc, tenantConfig, a.logger)

	regSources, err := a.reg.CreateSources(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("dialogflow: create sources: %w", err)
	}
	ks, err := sources.ToKnowledgeSources(regSources)
	if err != nil {
		return nil, fmt.Errorf("dialogflow: %w", err)
	}

	priorityAssigner := blackboard.NewPriorityAssigner(fc, a.conditions, a.featureFlags)

	return orchestrator.New(bb, ks, priorityAssigner, a.validator, a.resolver, a.bus, a.logger), nil
}

// LoadFlowConfig loads the highest-version flow configuration document for
// (tenantID, flowName).
func (a *App) LoadFlowConfig(ctx context.Context, tenantID, flowName string) (FlowConfigDocument, error) {
	doc, err := a.db.LoadFlowConfig(ctx, tenantID, flowName)
	if err != nil {
		return FlowConfigDocument{}, err
	}
	return fromStorageDoc(doc), nil
}

// SaveFlowConfig stores a new version of a flow's configuration document;
// WatchFlowConfig listeners then receive the new version.
func (a *App) SaveFlowConfig(ctx context.Context, doc FlowConfigDocument) error {
	return a.db.UpsertFlowConfig(ctx, toStorageDoc(doc))
}

// WatchFlowConfig listens for flow-config updates scoped to (tenantID,
// flowName) and pushes a freshly loaded document on each change. The
// returned channel closes when ctx is cancelled.
func (a *App) WatchFlowConfig(ctx context.Context, tenantID, flowName string) (<-chan FlowConfigDocument, error) {
	src, err := a.db.WatchFlowConfig(ctx, tenantID, flowName)
	if err != nil {
		return nil, err
	}
	out := make(chan FlowConfigDocument, 1)
	go func() {
		defer close(out)
		for doc := range src {
			select {
			case out <- fromStorageDoc(doc):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ImportCorpus seeds the FAQ/pricing semantic-fallback corpus in bulk. Only
// meaningful when the app is using the default Qdrant-backed corpus (no
// WithCorpus override); returns an error otherwise.
func (a *App) ImportCorpus(ctx context.Context, entries []CorpusEntry) error {
	qc, ok := a.corpus.(*search.QdrantCorpus)
	if !ok {
		return fmt.Errorf("dialogflow: ImportCorpus requires the default qdrant-backed corpus")
	}
	converted := make([]search.Entry, len(entries))
	for i, e := range entries {
		converted[i] = search.Entry{TenantID: e.TenantID, Kind: e.Kind, Question: e.Question, Action: e.Action}
	}
	return search.ImportCorpus(ctx, qc, converted)
}

// EventBus returns the app's event bus, for subscribing to turn-pipeline
// notifications beyond what WithEventHook covers (e.g. per-kind subscriptions).
func (a *App) EventBus() *eventbus.Bus { return a.bus }

// Registry returns the app's knowledge-source registry, frozen after New().
func (a *App) Registry() *registry.Registry { return a.reg }

// MCPServer returns the underlying MCP server for transport setup (stdio,
// SSE, or HTTP) in cmd/dialogflowd.
func (a *App) MCPServer() *mcpserver.MCPServer { return a.mcpSrv.MCPServer() }

// JWTManager returns the admin API's JWT manager.
func (a *App) JWTManager() *auth.JWTManager { return a.jwtMgr }

// Storage returns the underlying turn-trace/flow-config store, for the admin
// API's introspection endpoints. Its concrete type is *storage.DB (Postgres)
// unless DIALOGFLOW_SQLITE_PATH is set, in which case it is a
// *storage.SQLiteStore.
func (a *App) Storage() storage.Store { return a.db }

// Config returns the resolved configuration the app was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the app's structured logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Version returns the version string supplied via WithVersion (default "dev").
func (a *App) Version() string { return a.version }

// RouteRegistrars returns the extra route registrars supplied via
// WithExtraRoutes, for cmd/dialogflowd to apply to its admin HTTP mux.
func (a *App) RouteRegistrars() []RouteRegistrar { return a.routeRegistrars }

// Middlewares returns the extra HTTP middlewares supplied via WithMiddleware,
// for cmd/dialogflowd to apply to its admin HTTP mux.
func (a *App) Middlewares() []Middleware { return a.middlewares }

// Run blocks until ctx is cancelled, then performs Shutdown. Host
// applications that manage their own process lifecycle may call Shutdown
// directly instead.
func (a *App) Run(ctx context.Context) error {
	<-ctx.Done()
	return a.Shutdown(context.Background())
}

// Shutdown closes the database pool and the OpenTelemetry provider. Safe to
// call once after Run returns or in place of Run.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("dialogflow shutting down")
	_ = otelShutdownWithTimeout(ctx, a.otelShutdown)
	a.db.Close(ctx)
	a.logger.Info("dialogflow stopped")
	return nil
}

func otelShutdownWithTimeout(ctx context.Context, shutdown telemetry.Shutdown) error {
	if shutdown == nil {
		return nil
	}
	return shutdown(ctx)
}

// NewEmbeddingProvider creates an embedding provider from configuration.
// Provider selection: cfg.EmbeddingProvider is "ollama", "openai", "noop", or
// "auto" (default). Auto mode tries Ollama if reachable, then OpenAI if a key
// is present, else noop. Ollama is preferred: embeddings stay on-premises
// with no external API cost.
func NewEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when DIALOGFLOW_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		return p

	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)

	case "noop":
		logger.Info("embedding provider: noop (semantic fallback disabled)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return embedding.NewNoopProvider(dims)
			}
			return p
		}
		logger.Warn("no embedding provider available, using noop (semantic fallback disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// ollamaReachable checks if an Ollama server is responding.
func ollamaReachable(baseURL string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func fromStorageDoc(doc storage.FlowConfigDoc) FlowConfigDocument {
	return FlowConfigDocument{
		TenantID:   doc.TenantID,
		FlowName:   doc.FlowName,
		Version:    doc.Version,
		States:     doc.States,
		Priorities: doc.Priority,
		Constants:  doc.Constants,
		Phases:     doc.Phases,
		Entries:    doc.Entries,
		Categories: doc.Categories,
		UpdatedAt:  doc.UpdatedAt,
	}
}

func toStorageDoc(doc FlowConfigDocument) storage.FlowConfigDoc {
	return storage.FlowConfigDoc{
		TenantID:   doc.TenantID,
		FlowName:   doc.FlowName,
		Version:    doc.Version,
		States:     doc.States,
		Priority:   doc.Priorities,
		Constants:  doc.Constants,
		Phases:     doc.Phases,
		Entries:    doc.Entries,
		Categories: doc.Categories,
		UpdatedAt:  doc.UpdatedAt,
	}
}
