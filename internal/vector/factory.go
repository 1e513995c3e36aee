package vector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// IndexType represents the type of vector index to use.
type IndexType string

const (
	// IndexTypeMemory is an exact in-process scan. Good for catalogs up to a few hundred
	// thousand products.
	IndexTypeMemory IndexType = "memory"
	// IndexTypePGVector stores vectors in PostgreSQL with the pgvector extension.
	IndexTypePGVector IndexType = "pgvector"
)

// Options selects and configures an index.
type Options struct {
	Type       string
	Dimensions int
	DSN        string // pgvector only
	Table      string // pgvector only
	Breaker    BreakerConfig
	Logger     *zap.Logger
}

// NewVectorIndex creates a vector index of the requested type. Remote indexes are wrapped in
// a circuit breaker.
func NewVectorIndex(ctx context.Context, opts Options) (VectorIndex, error) {
	switch IndexType(opts.Type) {
	case IndexTypeMemory, "":
		return NewMemoryIndex(opts.Dimensions)
	case IndexTypePGVector:
		if opts.DSN == "" {
			return nil, fmt.Errorf("pgvector index requires a dsn")
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		idx, err := NewPGVectorIndex(connectCtx, opts.DSN, opts.Table, opts.Dimensions)
		if err != nil {
			return nil, err
		}
		return NewBreakerIndex(idx, opts.Breaker, opts.Logger), nil
	default:
		return nil, fmt.Errorf("unknown index type: %s (supported: memory, pgvector)", opts.Type)
	}
}
