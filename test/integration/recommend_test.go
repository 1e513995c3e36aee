// Package integration exercises the recommendation pipeline over on-disk storage and indices.
package integration

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/osusume/internal/aggregate"
	"github.com/hyperjump/osusume/internal/classify"
	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/embedding"
	"github.com/hyperjump/osusume/internal/ingest"
	"github.com/hyperjump/osusume/internal/keyword"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/ranking"
	"github.com/hyperjump/osusume/internal/recommend"
	"github.com/hyperjump/osusume/internal/segment"
	"github.com/hyperjump/osusume/internal/storage"
	"github.com/hyperjump/osusume/internal/vector"
)

type pipeline struct {
	store    *storage.SQLiteStorage
	tags     *keyword.BleveIndex
	vectors  *vector.MemoryIndex
	engine   *recommend.Engine
	ingester *ingest.Ingester
}

func (p *pipeline) Close() {
	_ = p.tags.Close()
	_ = p.vectors.Close()
	_ = p.store.Close()
}

func openPipeline(t *testing.T, dir string) *pipeline {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db", "products.db"))
	if err != nil {
		t.Fatal(err)
	}
	tags, err := keyword.NewBleveIndex(filepath.Join(dir, "tags.bleve"))
	if err != nil {
		t.Fatal(err)
	}
	vectors, err := vector.NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	table, err := embedding.NewWordTable(3, map[string][]float32{
		"运动鞋": {1, 0, 0},
		"跑步":  {0.8, 0.6, 0},
		"手机":  {0, 0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	seg := segment.NewSegmenter(nil, segment.WithVocabulary(table, true))
	agg := aggregate.New(table, seg)
	cfg := config.DefaultRecommendConfig()
	engine := recommend.NewEngine(store, seg, classify.New(), agg, ranking.NewRanker(nil), cfg,
		recommend.WithVectorIndex(vectors),
		recommend.WithTagIndex(tags),
		recommend.WithDiskPaths(storage.DatabaseFiles(filepath.Join(dir, "db", "products.db"))...),
	)
	return &pipeline{
		store:    store,
		tags:     tags,
		vectors:  vectors,
		engine:   engine,
		ingester: ingest.NewIngester(store, engine, agg, ingest.WithTagIndex(tags), ingest.WithVectorIndex(vectors)),
	}
}

func TestIntegration_Recommend(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	p := openPipeline(t, dir)

	cats := []models.Category{
		{ID: 3, Name: "运动鞋", Keywords: []string{"运动鞋", "跑步"}},
		{ID: 4, Name: "手机", Keywords: []string{"手机"}},
	}
	if err := p.store.ReplaceCategories(ctx, cats); err != nil {
		t.Fatal(err)
	}
	if err := p.engine.LoadCategories(ctx); err != nil {
		t.Fatal(err)
	}

	for _, in := range []models.ProductInput{
		{ID: 1, Title: "运动鞋"},
		{ID: 2, Title: "跑步"},
		{ID: 3, Title: "手机"},
		{ID: 4, Title: "羊绒围巾"},
	} {
		if _, err := p.ingester.AddProduct(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	prod, err := p.store.GetProduct(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if prod.CategoryID == nil || *prod.CategoryID != 3 {
		t.Errorf("product 1 category = %v, want 3", prod.CategoryID)
	}

	similar, err := p.engine.SimilarProducts(ctx, 1, recommend.SimilarOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if similar.Provenance != models.ProvenancePrecomputed || len(similar.Items) == 0 || similar.Items[0].ProductID != 2 {
		t.Errorf("similar to 1 = %+v, want product 2 first from precomputed vectors", similar)
	}

	if _, err := p.engine.RecordInteraction(ctx, models.InteractionInput{UserID: 7, ProductID: 1, Kind: models.InteractionPurchase}); err != nil {
		t.Fatal(err)
	}
	res, err := p.engine.UserRecommendations(ctx, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provenance != models.ProvenanceAggregated {
		t.Errorf("provenance before profile update = %s, want aggregated", res.Provenance)
	}

	update, err := p.engine.UpdateUserProfile(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if !update.Updated || update.InteractionCount != 1 {
		t.Errorf("profile update = %+v", update)
	}
	res, err = p.engine.UserRecommendations(ctx, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Provenance != models.ProvenancePrecomputed || res.Cached {
		t.Errorf("after profile update: provenance=%s cached=%v, want fresh precomputed", res.Provenance, res.Cached)
	}

	if _, err := p.engine.UserRecommendations(ctx, 8, 3); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown user err = %v, want ErrNotFound", err)
	}

	search, err := p.engine.Search(ctx, "跑步", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(search.Items) != 1 || search.Items[0].ProductID != 2 {
		t.Errorf("search 跑步 = %+v, want product 2", search.Items)
	}
}

func TestIntegration_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	p := openPipeline(t, dir)
	for _, in := range []models.ProductInput{{ID: 1, Title: "运动鞋"}, {ID: 3, Title: "手机"}} {
		if _, err := p.ingester.AddProduct(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	p.Close()

	p = openPipeline(t, dir)
	defer p.Close()
	if n, err := p.engine.RebuildIndex(ctx); err != nil || n != 2 {
		t.Fatalf("RebuildIndex = %d, %v; want 2", n, err)
	}
	hits, err := p.tags.Search(ctx, []string{"手机"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 3 {
		t.Errorf("persisted tag index hits = %+v, want product 3", hits)
	}
	stats, err := p.engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalProducts != 2 || stats.VectorIndexSize != 2 || stats.DiskUsageBytes == nil || *stats.DiskUsageBytes == 0 {
		t.Errorf("stats = %+v", stats)
	}
}
