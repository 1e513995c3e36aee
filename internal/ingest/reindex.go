package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/models"
)

// reindexPageSize is the number of products read from storage per page.
const reindexPageSize = 500

// ReindexTags writes every stored product with tags into the tag index and returns the number
// indexed. Used to fill an in-memory or freshly created index at startup.
func (i *Ingester) ReindexTags(ctx context.Context) (int, error) {
	if i.tagIndex == nil {
		return 0, nil
	}
	indexed := 0
	for offset := 0; ; offset += reindexPageSize {
		products, err := i.storage.ListProducts(ctx, offset, reindexPageSize)
		if err != nil {
			return indexed, fmt.Errorf("failed to list products: %w", err)
		}
		for _, p := range products {
			if len(p.Tags) == 0 {
				continue
			}
			if err := i.tagIndex.IndexProduct(ctx, p.ID, p.Title, models.TagTexts(p.Tags)); err != nil {
				return indexed, fmt.Errorf("failed to index tags of product %d: %w", p.ID, err)
			}
			indexed++
		}
		if len(products) < reindexPageSize {
			break
		}
	}
	if i.logger != nil {
		i.logger.Info("tag index rebuilt", zap.Int("products", indexed))
	}
	return indexed, nil
}
