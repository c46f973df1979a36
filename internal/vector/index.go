// Package vector provides nearest-neighbour indexes over fragment embeddings.
package vector

import "context"

// VectorIndex stores one vector per fragment id and answers cosine similarity queries.
// Writing an id that already exists replaces its vector.
type VectorIndex interface {
	Upsert(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	// Reset drops every vector. Used before a full rebuild.
	Reset(ctx context.Context) error
	Save(path string) error
	Load(path string) error
	Size(ctx context.Context) (int, error)
	Close() error
}

// VectorResult is a single vector search hit (ID is a fragment id).
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
}

// Distance converts the hit's similarity to cosine distance; lower is closer.
func (r *VectorResult) Distance() float64 {
	return 1 - r.Score
}
