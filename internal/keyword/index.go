// Package keyword indexes product tags for the lexical fallback.
package keyword

import "context"

// TagIndex finds products whose tags match query tags exactly or by substring.
type TagIndex interface {
	IndexProduct(ctx context.Context, id int64, title string, tags []string) error
	Search(ctx context.Context, tags []string, limit int) ([]*KeywordResult, error)
	Delete(ctx context.Context, id int64) error
	// DocCount returns the total number of products in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single tag search hit.
type KeywordResult struct {
	ID    int64
	Score float64
}
