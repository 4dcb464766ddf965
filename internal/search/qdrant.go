package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL        string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey     string
	Collection string
	Dims       uint64
	// SimilarityFloor is the minimum cosine score a match must clear.
	SimilarityFloor float32
}

// QdrantCorpus implements Corpus backed by Qdrant, storing one point per
// (tenantID, kind, question) FAQ/pricing entry.
type QdrantCorpus struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	floor      float32
	embedder   Embedder
	logger     *slog.Logger
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantCorpus connects to Qdrant via gRPC and wraps it as a Corpus.
func NewQdrantCorpus(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantCorpus, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	floor := cfg.SimilarityFloor
	if floor == 0 {
		floor = 0.75
	}

	return &QdrantCorpus{
		client:     client,
		collection: cfg.Collection,
		dims:       cfg.Dims,
		floor:      floor,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist, with
// payload indexes on tenant_id and kind for filtered search.
func (q *QdrantCorpus) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}
	if exists {
		q.logger.Info("qdrant: collection already exists", "collection", q.collection)
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)
	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	}); err != nil {
		return fmt.Errorf("search: create collection %q: %w", q.collection, err)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"tenant_id", "kind"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("search: create index on %q: %w", field, err)
		}
	}

	q.logger.Info("qdrant: created collection with payload indexes", "collection", q.collection, "dims", q.dims)
	return nil
}

// Upsert indexes a corpus entry with its question embedding.
func (q *QdrantCorpus) Upsert(ctx context.Context, e Entry) error {
	embedding, err := q.embedder.Embed(ctx, e.Question)
	if err != nil {
		return fmt.Errorf("search: embed corpus entry: %w", err)
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(e.ID.String()),
		Vectors: qdrant.NewVectorsDense(embedding),
		Payload: qdrant.NewValueMap(map[string]any{
			"tenant_id": e.TenantID,
			"kind":      e.Kind,
			"question":  e.Question,
			"action":    e.Action,
		}),
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         []*qdrant.PointStruct{point},
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("search: upsert corpus entry: %w", err)
	}
	return nil
}

// Nearest embeds the query and returns the best-matching entry for
// (tenantID, kind) above the configured similarity floor.
func (q *QdrantCorpus) Nearest(ctx context.Context, tenantID, kind, query string) (Match, bool, error) {
	embedding, err := q.embedder.Embed(ctx, query)
	if err != nil {
		return Match{}, false, fmt.Errorf("search: embed query: %w", err)
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("tenant_id", tenantID),
		qdrant.NewMatch("kind", kind),
	}

	limit := uint64(1)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(embedding),
		Filter:         &qdrant.Filter{Must: must},
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return Match{}, false, fmt.Errorf("search: qdrant query: %w", err)
	}
	if len(scored) == 0 {
		return Match{}, false, nil
	}

	top := scored[0]
	if top.Score < q.floor {
		return Match{}, false, nil
	}

	idStr := top.Id.GetUuid()
	id, err := uuid.Parse(idStr)
	if err != nil {
		q.logger.Warn("qdrant: invalid UUID in point ID", "id", idStr)
		return Match{}, false, nil
	}

	payload := top.GetPayload()
	entry := Entry{
		ID:       id,
		TenantID: tenantID,
		Kind:     kind,
		Question: payload["question"].GetStringValue(),
		Action:   payload["action"].GetStringValue(),
	}

	return Match{Entry: entry, Score: top.Score}, true, nil
}

// Healthy checks connectivity to the Qdrant collection.
func (q *QdrantCorpus) Healthy(ctx context.Context) error {
	_, err := q.client.CollectionExists(ctx, q.collection)
	return err
}
