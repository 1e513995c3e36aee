package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/aggregate"
	"github.com/hyperjump/osusume/internal/cache"
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
	"github.com/hyperjump/osusume/internal/watcher"
)

// Tagging holds the immutable text components: the embedding table, the segmenter built
// over it, and the category classifier.
type Tagging struct {
	Table      embedding.Table
	Segmenter  *segment.Segmenter
	Classifier *classify.Classifier
}

// Close releases the embedding table.
func (t *Tagging) Close() {
	if t.Table != nil {
		_ = t.Table.Close()
	}
}

// Components holds initialized services.
type Components struct {
	Tagging
	Storage     storage.Storage
	VectorIndex vector.VectorIndex
	TagIndex    keyword.TagIndex
	Engine      *recommend.Engine
	Ingester    *ingest.Ingester
	// Reloader is set when a categories file is configured.
	Reloader *watcher.CategoryReloader

	vectorIndexPath string
	logger          *zap.Logger
}

// SaveVectorIndex snapshots an in-memory vector index to the configured path.
func (c *Components) SaveVectorIndex() {
	p, ok := c.VectorIndex.(vector.Persister)
	if !ok || c.vectorIndexPath == "" {
		return
	}
	if err := p.Save(c.vectorIndexPath); err != nil {
		c.logger.Warn("vector index save failed", zap.String("path", c.vectorIndexPath), zap.Error(err))
	}
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.TagIndex != nil {
		_ = c.TagIndex.Close()
	}
	c.Tagging.Close()
}

// initializeTagging loads the dictionary, stopwords, and embedding table.
func initializeTagging(cfg *config.Config, logger *zap.Logger, debug bool) (*Tagging, error) {
	dict := segment.DefaultDictionary()
	if cfg.Segment.DictionaryPath != "" {
		d, err := segment.LoadDictionary(cfg.Segment.DictionaryPath)
		if err != nil {
			return nil, err
		}
		dict = d
	}

	table, err := embedding.NewTable(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		Path:       cfg.Embedding.Path,
		Dimensions: cfg.Embedding.Dimensions,
		Limit:      cfg.Embedding.Limit,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
		Vocabulary: dict.Words(),
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding table: %w", err)
	}

	segOpts := []segment.Option{
		segment.WithVocabulary(table, cfg.Segment.RequireVocabularyOrDefault()),
		segment.WithMaxTags(cfg.Segment.MaxTags),
	}
	if cfg.Segment.StopwordsPath != "" {
		words, err := segment.LoadStopwords(cfg.Segment.StopwordsPath)
		if err != nil {
			_ = table.Close()
			return nil, err
		}
		segOpts = append(segOpts, segment.WithStopwords(words))
	}
	if len(cfg.Segment.AllowedPOS) > 0 {
		segOpts = append(segOpts, segment.WithAllowedPOS(cfg.Segment.AllowedPOS))
	}
	clsOpts := []classify.Option{classify.WithThreshold(cfg.Classify.ThresholdOrDefault())}
	if len(cfg.Classify.BonusRules) > 0 {
		clsOpts = append(clsOpts, classify.WithBonusRules(cfg.Classify.BonusRules))
	}
	if debug {
		segOpts = append(segOpts, segment.WithLogger(logger))
		clsOpts = append(clsOpts, classify.WithLogger(logger))
	}

	return &Tagging{
		Table:      table,
		Segmenter:  segment.NewSegmenter(segment.NewDictTokenizer(dict), segOpts...),
		Classifier: classify.New(clsOpts...),
	}, nil
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	tagging, err := initializeTagging(cfg, logger, debug)
	if err != nil {
		return nil, err
	}
	c := &Components{Tagging: *tagging, vectorIndexPath: cfg.Storage.VectorIndexPath, logger: logger}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	dims := c.Table.Dimensions()
	vectorIndex, err := vector.NewVectorIndex(ctx, vector.Options{
		Type:       cfg.Vector.Type,
		Dimensions: dims,
		DSN:        cfg.Vector.DSN,
		Table:      cfg.Vector.Table,
		Breaker: vector.BreakerConfig{
			FailureThreshold: cfg.Vector.FailureThreshold,
			Timeout:          cfg.Vector.BreakerTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		// Fall back to memory index if the configured backend is unreachable
		if cfg.Vector.Type == string(vector.IndexTypeMemory) {
			c.Close()
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
		logger.Warn("failed to create vector index, falling back to memory",
			zap.String("requested_type", cfg.Vector.Type),
			zap.Error(err))
		if vectorIndex, err = vector.NewMemoryIndex(dims); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize vector index: %w", err)
		}
	}
	c.VectorIndex = vectorIndex
	if p, ok := vectorIndex.(vector.Persister); ok && cfg.Storage.VectorIndexPath != "" {
		if loadErr := p.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped (rebuilding from storage)",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	tagIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.TagIndex = tagIndex

	agg := aggregate.New(c.Table, c.Segmenter, aggregate.WithTagVectorStore(store), aggregate.WithLogger(logger))
	engineOpts := []recommend.Option{
		recommend.WithVectorIndex(vectorIndex),
		recommend.WithTagIndex(tagIndex),
		recommend.WithCache(cache.New[*models.Result](
			cache.WithMaxSize(cfg.Cache.MaxSize),
			cache.WithDefaultTTL(cfg.Cache.TTL),
		)),
		recommend.WithDiskPaths(append(storage.DatabaseFiles(cfg.Storage.DatabasePath),
			cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath)...),
		recommend.WithLogger(logger),
	}
	c.Engine = recommend.NewEngine(store, c.Segmenter, c.Classifier, agg, ranking.NewRanker(&cfg.Ranking), &cfg.Recommend, engineOpts...)

	ingestOpts := []ingest.Option{ingest.WithTagIndex(tagIndex), ingest.WithVectorIndex(vectorIndex)}
	if debug {
		ingestOpts = append(ingestOpts, ingest.WithLogger(logger))
	}
	c.Ingester = ingest.NewIngester(store, c.Engine, agg, ingestOpts...)

	if err := c.loadCategories(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.syncIndexes(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// loadCategories prefers the categories file when configured and falls back to the table
// already in storage.
func (c *Components) loadCategories(ctx context.Context, cfg *config.Config) error {
	if cfg.Watch.CategoriesFile != "" {
		c.Reloader = watcher.NewCategoryReloader(cfg.Watch.CategoriesFile, c.Engine, c.Storage, c.logger)
		_, err := c.Reloader.Reload(ctx)
		if err == nil {
			return nil
		}
		c.logger.Warn("categories file not loaded, using stored categories",
			zap.String("path", cfg.Watch.CategoriesFile), zap.Error(err))
	}
	return c.Engine.LoadCategories(ctx)
}

// syncIndexes fills the vector and tag indices from storage when they lag behind it.
func (c *Components) syncIndexes(ctx context.Context) error {
	counts, err := c.Storage.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if _, persisted := c.VectorIndex.(vector.Persister); persisted && int64(c.VectorIndex.Size()) != counts.ProductsWithVectors {
		if _, err := c.Engine.RebuildIndex(ctx); err != nil {
			return err
		}
	}
	docs, err := c.TagIndex.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count tag index: %w", err)
	}
	if docs == 0 && counts.Products > 0 {
		if _, err := c.Ingester.ReindexTags(ctx); err != nil {
			return err
		}
	}
	return nil
}
