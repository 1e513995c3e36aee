package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/ranking"
	"github.com/hyperjump/osusume/internal/vector"
	"github.com/hyperjump/osusume/pkg/utils"
)

const (
	stageVector  = "vector"
	stageKeyword = "keyword"
)

// chain describes one request to the fallback chain. Each stage runs only when the one
// before it produced nothing usable: the entity vector (stored, else aggregated), tag
// overlap, then a generic candidate list.
type chain struct {
	op        string
	limit     int
	threshold float64
	exclude   []int64
	// scope restricts vector candidates to one category.
	scope *int64
	// vector returns the query vector and the stage that produced it; nil means absent.
	vector func(ctx context.Context) ([]float32, models.Provenance, error)
	// tags returns the query tags for lexical matching.
	tags func(ctx context.Context) ([]string, error)
	// generic returns up to n product ids in preference order.
	generic func(ctx context.Context, n int) ([]int64, error)
}

// run executes the chain. Vector and keyword stages share a deadline of the configured
// timeout; when it expires the chain skips ahead to the generic stage, which runs on ctx.
func (e *Engine) run(ctx context.Context, c chain) (*models.Result, error) {
	stageCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	if c.vector != nil {
		vec, prov, err := c.vector(stageCtx)
		switch {
		case err != nil:
			e.skip(stageCtx, c.op, stageVector, err)
		case vec == nil:
			metrics.RecordSkip(stageVector, "no_vector")
		default:
			res, err := e.vectorStage(ctx, stageCtx, vec, prov, c)
			if err == nil {
				return res, nil
			}
			e.skip(stageCtx, c.op, stageVector, err)
		}
	}

	if c.tags != nil && stageCtx.Err() == nil {
		scored, err := e.keywordStage(stageCtx, c)
		switch {
		case err != nil:
			e.skip(stageCtx, c.op, stageKeyword, err)
		case len(scored) == 0:
			metrics.RecordSkip(stageKeyword, "empty")
		default:
			res, err := e.build(ctx, scored, models.ProvenanceKeyword)
			if err == nil {
				return res, nil
			}
			e.skip(stageCtx, c.op, stageKeyword, err)
		}
	}

	return e.genericStage(ctx, c)
}

func (e *Engine) skip(stageCtx context.Context, op, stage string, err error) {
	reason := "error"
	switch {
	case stageCtx.Err() != nil:
		reason = "timeout"
	case errors.Is(err, vector.ErrUnavailable):
		reason = "unavailable"
	}
	metrics.RecordSkip(stage, reason)
	if e.logger != nil {
		level := e.logger.Warn
		if errors.Is(err, vector.ErrDimensionMismatch) {
			level = e.logger.Error
		}
		level("fallback stage skipped",
			zap.String("operation", op), zap.String("stage", stage),
			zap.String("reason", reason), zap.Error(err))
	}
}

func (e *Engine) vectorStage(ctx, stageCtx context.Context, vec []float32, prov models.Provenance, c chain) (*models.Result, error) {
	scored, err := e.rankVector(stageCtx, vec, c)
	if err != nil {
		return nil, err
	}
	return e.build(ctx, scored, prov)
}

// rankVector ranks stored product vectors against vec. The vector index is used when set
// and the request is not category-scoped; if it fails, the stored vectors are scanned
// instead.
func (e *Engine) rankVector(ctx context.Context, vec []float32, c chain) ([]ranking.Scored, error) {
	if e.vectorIndex != nil && c.scope == nil {
		k := c.limit + len(c.exclude)
		neighbors, err := e.vectorIndex.QueryNearest(ctx, vec, k)
		if err == nil {
			return e.ranker.FromNeighbors(neighbors, c.limit, c.threshold, c.exclude...), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		if e.logger != nil {
			e.logger.Warn("vector index query failed, scanning stored vectors",
				zap.String("operation", c.op), zap.Error(err))
		}
	}

	stored, err := e.storage.ListProductVectors(ctx, c.scope)
	if err != nil {
		return nil, fmt.Errorf("failed to list product vectors: %w", err)
	}
	skip := idSet(c.exclude)
	candidates := make([]ranking.Candidate, 0, len(stored))
	for _, pv := range stored {
		if _, ok := skip[pv.ID]; ok {
			continue
		}
		candidates = append(candidates, ranking.Candidate{ID: pv.ID, Vector: pv.Vector})
	}
	return e.ranker.Rank(vec, candidates, c.limit, c.threshold)
}

// keywordStage scores candidate products by tag overlap with the query tags.
func (e *Engine) keywordStage(ctx context.Context, c chain) ([]ranking.Scored, error) {
	tags, err := c.tags(ctx)
	if err != nil || len(tags) == 0 {
		return nil, err
	}
	var ids []int64
	if c.scope != nil {
		products, err := e.storage.ListProductsByCategory(ctx, *c.scope, e.config.KeywordPoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to list category products: %w", err)
		}
		for _, p := range products {
			ids = append(ids, p.ID)
		}
	} else {
		ids, err = e.keywordCandidates(ctx, tags)
		if err != nil {
			return nil, err
		}
	}
	skip := idSet(c.exclude)
	kept := ids[:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}
	productTags, err := e.storage.GetProductTags(ctx, kept)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate tags: %w", err)
	}
	texts := make(map[int64][]string, len(productTags))
	for id, t := range productTags {
		texts[id] = models.TagTexts(t)
	}
	return e.ranker.Lexical().Rank(tags, texts, c.limit), nil
}

// keywordCandidates returns ids of products sharing or containing any of tags, in id order.
func (e *Engine) keywordCandidates(ctx context.Context, tags []string) ([]int64, error) {
	if e.tagIndex != nil {
		hits, err := e.tagIndex.Search(ctx, tags, e.config.KeywordPoolSize)
		if err == nil {
			ids := make([]int64, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.ID)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			return ids, nil
		}
		if e.logger != nil {
			e.logger.Warn("tag index search failed, using storage tag search", zap.Error(err))
		}
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, tag := range tags {
		found, err := e.storage.SearchProductsByTag(ctx, tag, e.config.KeywordPoolSize)
		if err != nil {
			return nil, fmt.Errorf("failed to search tag %q: %w", tag, err)
		}
		for _, id := range found {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// genericStage returns the generic candidates at the fixed generic confidence, in the order
// the chain's source produced them.
func (e *Engine) genericStage(ctx context.Context, c chain) (*models.Result, error) {
	var ids []int64
	if c.generic != nil {
		var err error
		ids, err = c.generic(ctx, c.limit+len(c.exclude))
		if err != nil {
			return nil, fmt.Errorf("failed to build generic recommendations: %w", err)
		}
	}
	skip := idSet(c.exclude)
	scored := make([]ranking.Scored, 0, c.limit)
	for _, id := range ids {
		if _, ok := skip[id]; ok {
			continue
		}
		skip[id] = struct{}{}
		scored = append(scored, ranking.Scored{ID: id, Similarity: e.config.GenericConfidence})
		if len(scored) == c.limit {
			break
		}
	}
	res, err := e.build(ctx, scored, models.ProvenanceGeneric)
	if err != nil {
		return nil, fmt.Errorf("failed to build generic recommendations: %w", err)
	}
	return res, nil
}

// build hydrates scored ids into recommendations, keeping their order. Ids whose product no
// longer exists are dropped.
func (e *Engine) build(ctx context.Context, scored []ranking.Scored, prov models.Provenance) (*models.Result, error) {
	items := make([]models.Recommendation, 0, len(scored))
	if len(scored) > 0 {
		ids := make([]int64, len(scored))
		for i, s := range scored {
			ids[i] = s.ID
		}
		products, err := e.storage.GetProducts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to load products: %w", err)
		}
		byID := make(map[int64]*models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}
		for _, s := range scored {
			p, ok := byID[s.ID]
			if !ok {
				continue
			}
			items = append(items, models.Recommendation{
				ProductID:  p.ID,
				Title:      p.Title,
				CategoryID: p.CategoryID,
				ImageURL:   p.ImageURL,
				Price:      p.Price,
				Similarity: utils.Round(s.Similarity, 4),
			})
		}
	}
	return &models.Result{
		Items:       items,
		Total:       len(items),
		Provenance:  prov,
		Confidence:  prov.Confidence(),
		GeneratedAt: e.now(),
	}, nil
}

// appendIDs appends the ids not yet in seen.
func appendIDs(dst []int64, seen map[int64]struct{}, ids ...int64) []int64 {
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		dst = append(dst, id)
	}
	return dst
}

func productIDs(products []*models.Product) []int64 {
	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}

func idSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
