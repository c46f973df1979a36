package vector

import (
	"context"
	"fmt"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory uses in-memory brute-force search persisted to a local file.
	IndexTypeMemory IndexType = "memory"
	// IndexTypeQdrant stores vectors in a Qdrant collection.
	IndexTypeQdrant IndexType = "qdrant"
)

// Options selects and configures a vector index.
type Options struct {
	Type       string
	Dimensions int
	// QdrantAddr is the gRPC host:port of Qdrant (qdrant only).
	QdrantAddr string
	// Collection is the Qdrant collection name (qdrant only).
	Collection string
}

// NewVectorIndex creates a vector index of the specified type.
// Supported types: "memory" (default), "qdrant".
func NewVectorIndex(ctx context.Context, opts Options) (VectorIndex, error) {
	switch IndexType(opts.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(opts.Dimensions)
	case IndexTypeQdrant:
		if opts.QdrantAddr == "" {
			return nil, fmt.Errorf("qdrant index requires an address")
		}
		collection := opts.Collection
		if collection == "" {
			collection = "cards"
		}
		return NewQdrantIndex(ctx, opts.QdrantAddr, collection, opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, qdrant)", opts.Type)
	}
}
