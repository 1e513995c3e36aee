package recommend

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/osusume/internal/cache"
	"github.com/hyperjump/osusume/internal/models"
)

// Search ranks products against the averaged embedding of the query's tokens. Without a
// query vector it matches the query's words (or the whole query) lexically, then returns
// the first products by id.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*models.Result, error) {
	query = strings.TrimSpace(query)
	limit = e.normalizeLimit(limit)
	key := cache.Key("search", 0, query, limit)
	return e.serve(ctx, "search", key, func(ctx context.Context) (*models.Result, error) {
		return e.run(ctx, chain{
			op:        "search",
			limit:     limit,
			threshold: e.config.DefaultThreshold,
			vector: func(context.Context) ([]float32, models.Provenance, error) {
				if query == "" {
					return nil, "", nil
				}
				vec, ok, err := e.aggregator.TextVector(query)
				if err != nil || !ok {
					return nil, "", err
				}
				return vec, models.ProvenanceAggregated, nil
			},
			tags: func(context.Context) ([]string, error) {
				tags := queryTags(e.segmenter.Segment(query))
				if len(tags) == 0 {
					tags = queryTags([]string{query})
				}
				return tags, nil
			},
			generic: func(ctx context.Context, n int) ([]int64, error) {
				if n > e.config.GenericPoolSize {
					n = e.config.GenericPoolSize
				}
				products, err := e.storage.ListProducts(ctx, 0, n)
				if err != nil {
					return nil, err
				}
				return productIDs(products), nil
			},
		})
	})
}

// queryTags keeps distinct words of at least two characters.
func queryTags(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	tags := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		tags = append(tags, w)
	}
	return tags
}
