// Command dialogflowd runs the dialogflow engine as a standalone service:
// an admin/introspection HTTP API (event history, turn traces, registered
// knowledge sources) backed by the dialogflow.App built in the root
// package, plus the MCP server mounted at /mcp.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/redis/go-redis/v9"

	dialogflow "github.com/ashita-ai/dialogflow"
	"github.com/ashita-ai/dialogflow/internal/auth"
	"github.com/ashita-ai/dialogflow/internal/config"
	"github.com/ashita-ai/dialogflow/internal/eventbus"
	"github.com/ashita-ai/dialogflow/internal/ratelimit"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(os.Getenv("DIALOGFLOW_LOG_LEVEL"))}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		logger.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	app, err := dialogflow.New(dialogflow.WithLogger(logger), dialogflow.WithVersion(version))
	if err != nil {
		return fmt.Errorf("dialogflow: %w", err)
	}

	cfg := app.Config()

	// Bootstrap a single admin token for local operation — there is no
	// persisted operator/credential store, unlike a multi-tenant agent API.
	adminToken, _, err := app.JWTManager().IssueToken(auth.Principal{ID: uuid.New(), AgentID: "admin", Role: auth.RoleAdmin})
	if err != nil {
		return fmt.Errorf("issue admin token: %w", err)
	}
	logger.Info("admin token issued (save this; it will not be shown again)", "token", adminToken)

	mux := http.NewServeMux()
	registerRoutes(mux, app)

	for _, reg := range app.RouteRegistrars() {
		reg(mux, authHelper{jwtMgr: app.JWTManager()})
	}

	limiter, err := newRateLimiter(cfg, logger)
	if err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	defer limiter.Close()
	rateLimitRule := ratelimit.Rule{Prefix: "admin", Limit: cfg.RateLimitPerMinute, Window: time.Minute}

	var handler http.Handler = mux
	handler = authMiddleware(app.JWTManager(), handler)
	for _, mw := range app.Middlewares() {
		handler = mw(handler)
	}
	handler = recoveryMiddleware(logger, handler)
	handler = loggingMiddleware(logger, handler)
	handler = corsMiddleware(cfg.CORSAllowedOrigins, handler)
	handler = securityHeadersMiddleware(handler)
	handler = ratelimit.Middleware(limiter, rateLimitRule, ratelimit.IPKeyFunc, writeRateLimitError)(handler)
	handler = requestIDMiddleware(handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  2 * cfg.ReadTimeout,
	}

	go flowConfigStalenessLoop(ctx, app, cfg.FlowConfigRefreshInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	return app.Shutdown(context.Background())
}

// newRateLimiter builds the admin API's rate limiter. With no
// DIALOGFLOW_REDIS_URL configured it runs in noop mode (every request
// allowed), the same posture the standalone sqlite storage backend takes
// toward Postgres: a missing optional dependency degrades the feature, not
// the process.
func newRateLimiter(cfg config.Config, logger *slog.Logger) (*ratelimit.Limiter, error) {
	if cfg.RedisURL == "" {
		return ratelimit.New(nil, logger, cfg.RateLimitFailClosed), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return ratelimit.New(redis.NewClient(opts), logger, cfg.RateLimitFailClosed), nil
}

func writeRateLimitError(w http.ResponseWriter, r *http.Request, retryAfterSeconds int) {
	writeError(w, r, http.StatusTooManyRequests, "rate_limited", fmt.Sprintf("too many requests, retry after %ds", retryAfterSeconds))
}

// registerRoutes mounts the built-in admin/introspection endpoints and the
// MCP StreamableHTTP transport.
func registerRoutes(mux *http.ServeMux, app *dialogflow.App) {
	readRole := requireRole(dialogflow.RoleReader)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "version": app.Version()})
	})

	mux.Handle("GET /v1/sources", readRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, app.Registry().ListRegistered())
	})))

	mux.Handle("GET /v1/events", readRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		var kindFilter *eventbus.Kind
		if raw := r.URL.Query().Get("kind"); raw != "" {
			k, ok := eventKindByName(raw)
			if !ok {
				writeError(w, r, http.StatusBadRequest, "bad_request", "unknown event kind")
				return
			}
			kindFilter = &k
		}
		writeJSON(w, r, http.StatusOK, app.EventBus().GetHistory(kindFilter, limit))
	})))

	mux.Handle("GET /v1/dialogs/{dialog_id}/turns", readRole(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dialogID := r.PathValue("dialog_id")
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}
		traces, err := app.Storage().LoadTurnTraces(r.Context(), dialogID, limit)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal_error", "load turn traces failed")
			return
		}
		writeJSON(w, r, http.StatusOK, traces)
	})))

	mcpHTTP := mcpserver.NewStreamableHTTPServer(app.MCPServer())
	mux.Handle("/mcp", readRole(mcpHTTP))
}

// eventKindByName maps the event kind query param to its enum value.
func eventKindByName(name string) (eventbus.Kind, bool) {
	kinds := []eventbus.Kind{
		eventbus.TurnStarted,
		eventbus.SourceContributed,
		eventbus.ProposalValidated,
		eventbus.ConflictResolved,
		eventbus.DecisionCommitted,
		eventbus.StateTransitioned,
		eventbus.ErrorOccurred,
	}
	for _, k := range kinds {
		if strings.EqualFold(k.String(), name) {
			return k, true
		}
	}
	return 0, false
}

// flowConfigStalenessLoop periodically logs a liveness heartbeat so an
// operator watching logs can distinguish a hung process from an idle one
// between LISTEN/NOTIFY-driven flow-config reloads.
func flowConfigStalenessLoop(ctx context.Context, app *dialogflow.App, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.Logger().Debug("flow config staleness check", "interval", interval)
		}
	}
}

func parseLogLevel(raw string) slog.Level {
	switch raw {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// --- HTTP plumbing: request ID, auth, roles, logging, recovery, CORS ---

type contextKey string

const contextKeyRequestID contextKey = "request_id"

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(contextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !isValidRequestID(reqID) {
			reqID = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), contextKeyRequestID, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isValidRequestID(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

type claimsContextKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return c
}

// noAuthPaths lists exact paths that skip JWT validation.
var noAuthPaths = map[string]bool{
	"/health": true,
}

// authMiddleware validates the Bearer JWT on every path except noAuthPaths
// and stores the claims in the request context for requireRole to consult.
func authMiddleware(jwtMgr *auth.JWTManager, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if noAuthPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		scheme, credential, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing or malformed authorization header")
			return
		}
		claims, err := jwtMgr.ValidateToken(credential)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole wraps a handler so it rejects callers whose role is not role
// itself or RoleAdmin — there are only two roles, so "at least" degenerates
// to "exactly this role, or admin".
func requireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "no claims in context")
				return
			}
			if claims.Role != role && claims.Role != auth.RoleAdmin {
				writeError(w, r, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authHelper adapts requireRole to dialogflow.AuthHelper for RouteRegistrars.
type authHelper struct{ jwtMgr *auth.JWTManager }

func (a authHelper) RequireRole(role dialogflow.Role) func(http.Handler) http.Handler {
	return requireRole(role)
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestIDFromContext(r.Context()),
				)
				writeError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		}
		level := slog.LevelInfo
		if wrapped.statusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.statusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "http request", attrs...)
	})
}

func corsMiddleware(allowedOrigins []string, next http.Handler) http.Handler {
	originSet := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
		originSet[o] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || originSet[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

type responseEnvelope struct {
	Data any       `json:"data,omitempty"`
	Meta metaBlock `json:"meta"`
}

type errorEnvelope struct {
	Error errorDetail `json:"error"`
	Meta  metaBlock   `json:"meta"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type metaBlock struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(responseEnvelope{
		Data: data,
		Meta: metaBlock{RequestID: requestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{Code: code, Message: message},
		Meta:  metaBlock{RequestID: requestIDFromContext(r.Context()), Timestamp: time.Now().UTC()},
	})
}
