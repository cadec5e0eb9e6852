package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StoreType names a vector store backend.
type StoreType string

const (
	// TypeMemory keeps vectors in memory, snapshotted to a file on close when a path is set.
	TypeMemory StoreType = "memory"
	// TypeBolt persists vectors in a local bbolt file.
	TypeBolt StoreType = "bolt"
	// TypeQdrant stores vectors in a remote Qdrant collection.
	TypeQdrant StoreType = "qdrant"
)

// Options configures New.
type Options struct {
	Type       string
	Dimensions int
	// Path is the snapshot file for memory and the database file for bolt.
	Path   string
	Qdrant QdrantConfig
	Logger *zap.Logger
}

// New creates a vector store of the requested type. An empty type selects bolt.
func New(ctx context.Context, opts Options) (VectorStore, error) {
	if opts.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	switch StoreType(opts.Type) {
	case TypeMemory:
		if opts.Path == "" {
			return NewMemoryStore(opts.Dimensions)
		}
		return OpenMemoryStore(opts.Dimensions, opts.Path)
	case TypeBolt, "":
		if opts.Path == "" {
			return nil, fmt.Errorf("bolt vector store requires a path")
		}
		return NewBoltStore(opts.Path, opts.Dimensions, opts.Logger)
	case TypeQdrant:
		return NewQdrantStore(ctx, opts.Qdrant, opts.Dimensions, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown vector store type: %s (supported: memory, bolt, qdrant)", opts.Type)
	}
}
