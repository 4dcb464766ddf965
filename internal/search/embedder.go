package search

import (
	"context"

	"github.com/ashita-ai/dialogflow/internal/service/embedding"
)

// ProviderEmbedder adapts an embedding.Provider to the Corpus's narrower
// Embedder interface ([]float32 instead of pgvector.Vector), the same
// []float32-at-the-boundary convention the root package uses for its public
// EmbeddingProvider extension point.
type ProviderEmbedder struct {
	Provider embedding.Provider
}

// Embed generates a single embedding vector from text.
func (a ProviderEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := a.Provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return v.Slice(), nil
}
