package recommend

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/osusume/internal/cache"
	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
)

// SimilarOptions are the parameters of a similar-products request.
type SimilarOptions struct {
	Limit     int
	Threshold float64
	// IncludeSelf keeps the queried product in its own result list.
	IncludeSelf bool
}

// SimilarProducts returns products similar to productID. Unknown ids return an error
// wrapping models.ErrNotFound; every other failure falls through to a later stage.
func (e *Engine) SimilarProducts(ctx context.Context, productID int64, opts SimilarOptions) (*models.Result, error) {
	limit := e.normalizeLimit(opts.Limit)
	key := cache.Key("similar", productID, limit, opts.Threshold, opts.IncludeSelf)
	return e.serve(ctx, "similar_products", key, func(ctx context.Context) (*models.Result, error) {
		product, err := e.storage.GetProduct(ctx, productID)
		if err != nil {
			return nil, err
		}
		var exclude []int64
		if !opts.IncludeSelf {
			exclude = []int64{productID}
		}
		return e.run(ctx, chain{
			op:        "similar_products",
			limit:     limit,
			threshold: opts.Threshold,
			exclude:   exclude,
			vector: func(ctx context.Context) ([]float32, models.Provenance, error) {
				return e.productVector(ctx, product)
			},
			tags: func(context.Context) ([]string, error) {
				return models.TagTexts(product.Tags), nil
			},
			generic: func(ctx context.Context, n int) ([]int64, error) {
				return e.genericProducts(ctx, product.CategoryID, n, true)
			},
		})
	})
}

// BatchSimilarProducts runs SimilarProducts for each distinct id on up to the configured
// number of workers. A failing id maps to an empty result and its error message; it never
// fails the batch.
func (e *Engine) BatchSimilarProducts(ctx context.Context, productIDs []int64, opts SimilarOptions) *models.BatchResult {
	out := &models.BatchResult{
		Results: make(map[int64]*models.Result, len(productIDs)),
		Errors:  make(map[int64]string),
	}
	var (
		mu   sync.Mutex
		g    errgroup.Group
		seen = make(map[int64]struct{}, len(productIDs))
	)
	g.SetLimit(e.workers())
	for _, id := range productIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		g.Go(func() error {
			res, err := e.SimilarProducts(ctx, id, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.Results[id] = &models.Result{
					Items:       []models.Recommendation{},
					Provenance:  models.ProvenanceGeneric,
					Confidence:  models.ProvenanceGeneric.Confidence(),
					GeneratedAt: e.now(),
				}
				out.Errors[id] = err.Error()
				return nil
			}
			out.Results[id] = res
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// CategoryRecommendations ranks the products of a category against the vector of the
// category name and keywords. The generic stage lists category members by id.
func (e *Engine) CategoryRecommendations(ctx context.Context, categoryID int64, limit int) (*models.Result, error) {
	limit = e.normalizeLimit(limit)
	key := cache.Key("category", categoryID, limit)
	return e.serve(ctx, "category_recommendations", key, func(ctx context.Context) (*models.Result, error) {
		cat, err := e.category(ctx, categoryID)
		if err != nil {
			return nil, err
		}
		scope := cat.ID
		terms := append([]string{cat.Name}, cat.Keywords...)
		return e.run(ctx, chain{
			op:    "category_recommendations",
			limit: limit,
			scope: &scope,
			vector: func(context.Context) ([]float32, models.Provenance, error) {
				vecs := make([][]float32, 0, len(terms))
				for _, t := range terms {
					v, ok, err := e.aggregator.TagVector(t)
					if err != nil {
						return nil, "", err
					}
					if ok {
						vecs = append(vecs, v)
					}
				}
				v, ok, err := e.aggregator.Mean(vecs, nil)
				if err != nil || !ok {
					return nil, "", err
				}
				return v, models.ProvenanceAggregated, nil
			},
			tags: func(context.Context) ([]string, error) {
				return terms, nil
			},
			generic: func(ctx context.Context, n int) ([]int64, error) {
				products, err := e.storage.ListProductsByCategory(ctx, scope, n)
				if err != nil {
					return nil, err
				}
				return productIDs(products), nil
			},
		})
	})
}

// category returns a category from the snapshot, falling back to storage.
func (e *Engine) category(ctx context.Context, id int64) (*models.Category, error) {
	for _, c := range e.Categories() {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return e.storage.GetCategory(ctx, id)
}

// productVector returns the stored vector of p or aggregates one from its tags and
// persists it.
func (e *Engine) productVector(ctx context.Context, p *models.Product) ([]float32, models.Provenance, error) {
	if p.HasVector() {
		return p.Vector, models.ProvenancePrecomputed, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	vec, ok, err := e.aggregator.ProductVectorContext(ctx, p.Tags)
	if err != nil {
		return nil, "", fmt.Errorf("product %d: %w", p.ID, err)
	}
	if !ok {
		return nil, "", nil
	}
	metrics.VectorsComputed.WithLabelValues("product").Inc()
	e.persistProductVector(ctx, p.ID, vec)
	return vec, models.ProvenanceAggregated, nil
}

// persistProductVector stores an aggregated vector and upserts it into the index. Failures
// are logged; the vector is still used for the current request.
func (e *Engine) persistProductVector(ctx context.Context, id int64, vec []float32) {
	if err := e.storage.UpdateProductVector(ctx, id, vec); err != nil && e.logger != nil {
		e.logger.Warn("failed to persist product vector", zap.Int64("product_id", id), zap.Error(err))
	}
	if e.vectorIndex == nil {
		return
	}
	if err := e.vectorIndex.Upsert(ctx, id, vec); err != nil && e.logger != nil {
		e.logger.Warn("failed to index product vector", zap.Int64("product_id", id), zap.Error(err))
	}
}

// genericProducts lists up to n ids: products of the category when given, then the most
// interacted products when popular is set, then the catalog in id order.
func (e *Engine) genericProducts(ctx context.Context, categoryID *int64, n int, popular bool) ([]int64, error) {
	seen := make(map[int64]struct{}, n)
	var ids []int64
	if categoryID != nil {
		products, err := e.storage.ListProductsByCategory(ctx, *categoryID, n)
		if err != nil {
			return nil, err
		}
		ids = appendIDs(ids, seen, productIDs(products)...)
	}
	if popular && len(ids) < n {
		top, err := e.storage.MostInteractedProducts(ctx, n)
		if err != nil {
			return nil, err
		}
		ids = appendIDs(ids, seen, top...)
	}
	if len(ids) < n {
		products, err := e.storage.ListProducts(ctx, 0, n)
		if err != nil {
			return nil, err
		}
		ids = appendIDs(ids, seen, productIDs(products)...)
	}
	return ids, nil
}
