// Package recommend orchestrates tag extraction, classification, vector aggregation, and
// ranking into product and user recommendations with a staged fallback chain.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/osusume/internal/aggregate"
	"github.com/hyperjump/osusume/internal/cache"
	"github.com/hyperjump/osusume/internal/classify"
	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/keyword"
	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/ranking"
	"github.com/hyperjump/osusume/internal/segment"
	"github.com/hyperjump/osusume/internal/storage"
	"github.com/hyperjump/osusume/internal/vector"
)

// ErrInvalidInteraction is returned for interactions with an unknown kind or negative score.
var ErrInvalidInteraction = errors.New("invalid interaction")

// Engine serves recommendation requests. The embedding table, tokenizer, and classifier are
// immutable after construction; the category snapshot is swapped atomically; the result
// cache is the only other shared mutable state.
type Engine struct {
	storage     storage.Storage
	segmenter   *segment.Segmenter
	classifier  *classify.Classifier
	aggregator  *aggregate.Aggregator
	ranker      *ranking.Ranker
	vectorIndex vector.VectorIndex
	tagIndex    keyword.TagIndex
	cache       *cache.Cache[*models.Result]
	config      *config.RecommendConfig
	categories  atomic.Pointer[[]models.Category]
	flight      singleflight.Group
	diskPaths   []string
	now         func() time.Time
	logger      *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithVectorIndex delegates nearest-neighbor queries to idx. Without an index, candidates
// are scanned from storage.
func WithVectorIndex(idx vector.VectorIndex) Option {
	return func(e *Engine) { e.vectorIndex = idx }
}

// WithTagIndex uses idx to find keyword fallback candidates instead of storage tag search.
func WithTagIndex(idx keyword.TagIndex) Option {
	return func(e *Engine) { e.tagIndex = idx }
}

// WithCache replaces the default result cache.
func WithCache(c *cache.Cache[*models.Result]) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithDiskPaths lists files and directories whose size is reported by Stats.
func WithDiskPaths(paths ...string) Option {
	return func(e *Engine) { e.diskPaths = paths }
}

// WithClock sets the time source used for result and profile timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates an engine over the given components. cfg may be nil for defaults.
func NewEngine(
	store storage.Storage,
	segmenter *segment.Segmenter,
	classifier *classify.Classifier,
	aggregator *aggregate.Aggregator,
	ranker *ranking.Ranker,
	cfg *config.RecommendConfig,
	opts ...Option,
) *Engine {
	if cfg == nil {
		cfg = config.DefaultRecommendConfig()
	}
	if ranker == nil {
		ranker = ranking.NewRanker(nil)
	}
	e := &Engine{
		storage:    store,
		segmenter:  segmenter,
		classifier: classifier,
		aggregator: aggregator,
		ranker:     ranker,
		config:     cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache = cache.New[*models.Result]()
	}
	empty := []models.Category{}
	e.categories.Store(&empty)
	return e
}

// SetCategories replaces the category snapshot used by classification and clears cached
// results. cats is copied.
func (e *Engine) SetCategories(cats []models.Category) {
	snapshot := make([]models.Category, len(cats))
	copy(snapshot, cats)
	e.categories.Store(&snapshot)
	n := e.ClearCache()
	if e.logger != nil {
		e.logger.Info("category snapshot replaced", zap.Int("categories", len(snapshot)), zap.Int("cache_cleared", n))
	}
}

// LoadCategories reads the category table from storage into the snapshot.
func (e *Engine) LoadCategories(ctx context.Context) error {
	cats, err := e.storage.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	e.SetCategories(cats)
	return nil
}

// Categories returns the current category snapshot. Callers must not modify it.
func (e *Engine) Categories() []models.Category {
	return *e.categories.Load()
}

// ExtractTags returns up to the configured number of distinct tags found in text.
func (e *Engine) ExtractTags(text string) []string {
	tags := e.segmenter.ExtractTags(text)
	if tags == nil {
		return []string{}
	}
	return tags
}

// ClassifyCategory returns the best category for tags against the current snapshot, or an
// unclassified result.
func (e *Engine) ClassifyCategory(tags []string) models.Classification {
	return e.classifier.Classify(tags, e.Categories())
}

// ClearCache drops every cached result and returns how many were removed.
func (e *Engine) ClearCache() int {
	n := e.cache.Clear()
	metrics.CacheEntries.Set(0)
	return n
}

// RebuildIndex loads every stored product vector into the vector index and returns the
// number upserted.
func (e *Engine) RebuildIndex(ctx context.Context) (int, error) {
	if e.vectorIndex == nil {
		return 0, nil
	}
	vecs, err := e.storage.ListProductVectors(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to list product vectors: %w", err)
	}
	for i, pv := range vecs {
		if err := e.vectorIndex.Upsert(ctx, pv.ID, pv.Vector); err != nil {
			return i, fmt.Errorf("failed to upsert product %d: %w", pv.ID, err)
		}
	}
	if e.logger != nil {
		e.logger.Info("vector index rebuilt", zap.Int("vectors", len(vecs)), zap.String("type", e.vectorIndex.Type()))
	}
	return len(vecs), nil
}

// normalizeLimit maps limit <= 0 to the default and caps it at the maximum.
func (e *Engine) normalizeLimit(limit int) int {
	if limit <= 0 {
		limit = e.config.DefaultLimit
	}
	if e.config.MaxLimit > 0 && limit > e.config.MaxLimit {
		limit = e.config.MaxLimit
	}
	return limit
}

// serve answers from the cache or computes once per key across concurrent callers. The
// computation is detached from the caller that started it, so one cancelled request does not
// fail the others waiting on the same key.
func (e *Engine) serve(ctx context.Context, op, key string, compute func(context.Context) (*models.Result, error)) (*models.Result, error) {
	start := time.Now()
	if r, ok := e.cache.Get(key); ok {
		metrics.RecordCacheLookup(true)
		metrics.ObserveRequest(op, string(r.Provenance), start)
		out := *r
		out.Cached = true
		return &out, nil
	}
	metrics.RecordCacheLookup(false)

	ch := e.flight.DoChan(key, func() (any, error) {
		if r, ok := e.cache.Get(key); ok {
			return r, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.flightTimeout())
		defer cancel()
		r, err := compute(fctx)
		if err != nil {
			return nil, err
		}
		e.cache.Put(key, r, 0)
		metrics.CacheEntries.Set(float64(e.cache.Len()))
		return r, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		r := res.Val.(*models.Result)
		metrics.ObserveRequest(op, string(r.Provenance), start)
		return r, nil
	}
}

// flightTimeout bounds one shared computation: the stage deadline plus as long again for
// lookups and the generic stage.
func (e *Engine) flightTimeout() time.Duration {
	if e.config.Timeout <= 0 {
		return time.Minute
	}
	return 2 * e.config.Timeout
}
