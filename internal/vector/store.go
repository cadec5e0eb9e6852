// Package vector stores embedding vectors with metadata and answers nearest-neighbour queries.
package vector

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks github.com/hyperjump/utsushi/internal/vector VectorStore

import "context"

// VectorStore persists embeddings keyed by string id and ranks them by cosine similarity.
type VectorStore interface {
	// UpsertIfAbsent stores vec under id unless id already exists. It reports whether a write happened.
	UpsertIfAbsent(ctx context.Context, id string, vec []float32, meta map[string]any) (bool, error)
	// DeleteByIDs removes the given ids. Missing ids are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error
	// Query returns up to k matches ordered by descending score.
	Query(ctx context.Context, vec []float32, k int) ([]*Match, error)
	Size() int
	Type() string
	Close() error
}

// Match is a single nearest-neighbour hit.
type Match struct {
	ID string
	// Similarity is the cosine similarity in [-1, 1], 1 meaning identical direction.
	Similarity float64
	// Score is Similarity mapped to [0, 1].
	Score float64
	Meta  map[string]any
}

func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
