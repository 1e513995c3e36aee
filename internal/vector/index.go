// Package vector provides nearest-neighbor indexes over product vectors.
package vector

import (
	"context"
	"errors"
)

// ErrUnavailable marks an index that cannot serve requests right now. Callers move on to
// their next strategy rather than failing the request.
var ErrUnavailable = errors.New("vector index unavailable")

// VectorIndex stores product vectors and answers nearest-neighbor queries by cosine distance
// (1 - cosine similarity, range [0, 2]).
type VectorIndex interface {
	Upsert(ctx context.Context, id int64, vector []float32) error
	// QueryNearest returns up to k neighbors ordered by ascending distance, then ascending id.
	QueryNearest(ctx context.Context, query []float32, k int) ([]Neighbor, error)
	Remove(ctx context.Context, ids []int64) error
	Size() int
	Type() string
	Close() error
}

// Persister is implemented by indexes that snapshot to a local file.
type Persister interface {
	Save(path string) error
	Load(path string) error
}

// Neighbor is a single nearest-neighbor hit.
type Neighbor struct {
	ID       int64
	Distance float64
}

// Similarity converts the cosine distance back to cosine similarity.
func (n Neighbor) Similarity() float64 {
	return 1 - n.Distance
}
