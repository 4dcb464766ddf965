// Package search provides semantic lookup over a small FAQ/pricing corpus,
// backing the PriceQuestion and FactQuestion knowledge sources' closed
// intent tables with a similarity fallback.
//
// The static intent table in internal/sources remains the fast path; search
// only resolves intents that fall outside that closed set, and only for a
// source that has a fallback resolver configured.
package search

import (
	"context"

	"github.com/google/uuid"
)

// Entry is one FAQ/pricing corpus entry: a question and the action that
// answers it.
type Entry struct {
	ID       uuid.UUID
	TenantID string
	Kind     string // "price" | "fact"
	Question string
	Action   string
}

// Match is a corpus entry matched against a query, with its similarity score.
type Match struct {
	Entry Entry
	Score float32
}

// Corpus performs semantic lookup over the FAQ/pricing corpus. Implementations
// must be safe for concurrent use.
type Corpus interface {
	// Nearest returns the best-matching entry for (tenantID, kind, query) above
	// the configured similarity floor, or ok=false if nothing clears it.
	Nearest(ctx context.Context, tenantID, kind, query string) (Match, bool, error)
	// Healthy reports whether the backing index is reachable.
	Healthy(ctx context.Context) error
}

// Embedder generates vector embeddings from text, supplied by the host
// application's embedding provider (internal/service/embedding or an
// external implementation).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
