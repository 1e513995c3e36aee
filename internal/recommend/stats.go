package recommend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/storage"
	"github.com/hyperjump/osusume/pkg/utils"
)

// Stats reports corpus coverage, the vector index, and cache counters.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	counts, err := e.storage.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count corpus: %w", err)
	}
	stats := &models.Stats{
		TotalProducts:       counts.Products,
		ProductsWithVectors: counts.ProductsWithVectors,
		VectorCoverage:      utils.Round(utils.Ratio(counts.ProductsWithVectors, counts.Products), 4),
		TotalTags:           counts.Tags,
		UniqueTags:          counts.UniqueTags,
		TagVectorsCount:     counts.TagVectors,
		TagVectorCoverage:   utils.Round(utils.Ratio(counts.TagVectors, counts.UniqueTags), 4),
		TotalCategories:     len(e.Categories()),
		TotalUsers:          counts.Users,
		UsersWithVectors:    counts.UsersWithVectors,
		TotalInteractions:   counts.Interactions,
		Cache:               e.cache.Stats(),
	}
	if e.vectorIndex != nil {
		stats.VectorIndexSize = e.vectorIndex.Size()
		stats.VectorIndexType = e.vectorIndex.Type()
	}
	if len(e.diskPaths) > 0 {
		n, err := storage.DiskUsageBytes(e.diskPaths...)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("failed to measure disk usage", zap.Error(err))
			}
		} else {
			stats.DiskUsageBytes = &n
		}
	}
	return stats, nil
}
