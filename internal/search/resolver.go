package search

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/dialogflow/internal/blackboard"
)

// CorpusAnswerResolver adapts a Corpus to the sources.AnswerResolver
// interface consumed by FactQuestion and PriceQuestion. A short per-call
// timeout keeps a slow or unreachable Qdrant from stalling a turn; on any
// error or timeout it reports ok=false so the source proceeds without a
// semantic fallback rather than blocking the dialog.
type CorpusAnswerResolver struct {
	Corpus  Corpus
	Kind    string // "price" | "fact"
	Timeout time.Duration
	Logger  *slog.Logger
}

// Resolve looks up the current turn's user message in the corpus, scoped to
// the dialog's tenant and this resolver's kind.
func (r CorpusAnswerResolver) Resolve(ctx blackboard.ContextSnapshot) (string, bool) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	cctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	match, ok, err := r.Corpus.Nearest(cctx, ctx.TenantID, r.Kind, ctx.UserMessage)
	if err != nil {
		if r.Logger != nil {
			r.Logger.Warn("search: corpus resolve failed", "kind", r.Kind, "error", err)
		}
		return "", false
	}
	if !ok {
		return "", false
	}
	return match.Entry.Action, true
}

// ImportBatchConcurrency bounds how many corpus entries are embedded and
// upserted at once during startup import, mirroring the teacher's
// errgroup.WithContext + SetLimit backfill pattern.
const ImportBatchConcurrency = 8

// ImportCorpus upserts a batch of FAQ/pricing entries concurrently, bounded
// by ImportBatchConcurrency. The first error cancels the remaining imports.
func ImportCorpus(ctx context.Context, corpus *QdrantCorpus, entries []Entry) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ImportBatchConcurrency)

	for _, e := range entries {
		e := e
		g.Go(func() error {
			return corpus.Upsert(gctx, e)
		})
	}

	return g.Wait()
}
