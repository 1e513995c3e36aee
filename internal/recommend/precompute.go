package recommend

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
)

// precomputeBatch is the page size used when scanning products.
const precomputeBatch = 500

// PrecomputeTagVectors computes and stores a vector for every distinct tag that has none.
// Tags that already have a vector are skipped. Tags that do not resolve or cannot be stored
// count as failed; only a dimension mismatch aborts the run.
func (e *Engine) PrecomputeTagVectors(ctx context.Context) (*models.PrecomputeReport, error) {
	tags, err := e.storage.ListDistinctTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	var success, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, tag := range tags {
		g.Go(func() error {
			_, exists, err := e.storage.GetTagVector(gctx, tag)
			if err != nil {
				e.precomputeFailed("failed to read tag vector", zap.String("tag", tag), err)
				failed.Add(1)
				return nil
			}
			if exists {
				skipped.Add(1)
				return nil
			}
			vec, ok, err := e.aggregator.TagVector(tag)
			if err != nil {
				return fmt.Errorf("tag %q: %w", tag, err)
			}
			if !ok {
				failed.Add(1)
				return nil
			}
			if err := e.storage.UpsertTagVector(gctx, tag, vec); err != nil {
				e.precomputeFailed("failed to store tag vector", zap.String("tag", tag), err)
				failed.Add(1)
				return nil
			}
			metrics.VectorsComputed.WithLabelValues("tag").Inc()
			success.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	report := &models.PrecomputeReport{
		Success: int(success.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
	}
	if e.logger != nil {
		e.logger.Info("tag vectors precomputed",
			zap.Int("success", report.Success), zap.Int("failed", report.Failed), zap.Int("skipped", report.Skipped))
	}
	return report, nil
}

// PrecomputeProductVectors aggregates and stores vectors for products. Without force only
// products lacking a vector are processed; with force every product is recomputed.
// Products without tags are skipped. Products whose tags do not resolve or whose vector cannot
// be stored count as failed. A vector index failure is logged and the stored vector kept.
func (e *Engine) PrecomputeProductVectors(ctx context.Context, force bool) (*models.PrecomputeReport, error) {
	pending, err := e.pendingProducts(ctx, force)
	if err != nil {
		return nil, err
	}
	var success, failed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for _, p := range pending {
		g.Go(func() error {
			if len(p.Tags) == 0 {
				skipped.Add(1)
				return nil
			}
			vec, ok, err := e.aggregator.ProductVectorContext(gctx, p.Tags)
			if err != nil {
				return fmt.Errorf("product %d: %w", p.ID, err)
			}
			if !ok {
				failed.Add(1)
				return nil
			}
			if err := e.storage.UpdateProductVector(gctx, p.ID, vec); err != nil {
				e.precomputeFailed("failed to store product vector", zap.Int64("product_id", p.ID), err)
				failed.Add(1)
				return nil
			}
			if e.vectorIndex != nil {
				if err := e.vectorIndex.Upsert(gctx, p.ID, vec); err != nil && e.logger != nil {
					e.logger.Warn("failed to index product vector", zap.Int64("product_id", p.ID), zap.Error(err))
				}
			}
			metrics.VectorsComputed.WithLabelValues("product").Inc()
			success.Add(1)
			return nil
		})
	}
	err = g.Wait()
	if success.Load() > 0 {
		e.ClearCache()
	}
	if err != nil {
		return nil, err
	}
	report := &models.PrecomputeReport{
		Success: int(success.Load()),
		Failed:  int(failed.Load()),
		Skipped: int(skipped.Load()),
	}
	if e.logger != nil {
		e.logger.Info("product vectors precomputed", zap.Bool("force", force),
			zap.Int("success", report.Success), zap.Int("failed", report.Failed), zap.Int("skipped", report.Skipped))
	}
	return report, nil
}

// pendingProducts lists the products to precompute in id order.
func (e *Engine) pendingProducts(ctx context.Context, force bool) ([]*models.Product, error) {
	if !force {
		products, err := e.storage.ListProductsWithoutVector(ctx, -1)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		return products, nil
	}
	var all []*models.Product
	for offset := 0; ; offset += precomputeBatch {
		page, err := e.storage.ListProducts(ctx, offset, precomputeBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		all = append(all, page...)
		if len(page) < precomputeBatch {
			return all, nil
		}
	}
}

func (e *Engine) precomputeFailed(msg string, item zap.Field, err error) {
	if e.logger != nil {
		e.logger.Warn(msg, item, zap.Error(err))
	}
}

func (e *Engine) workers() int {
	if e.config.PrecomputeWorkers > 0 {
		return e.config.PrecomputeWorkers
	}
	return 1
}
