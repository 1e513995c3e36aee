// Package ingest adds products to the catalog: tags are extracted from the title, the
// category is classified when missing, and the product vector is aggregated and indexed.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/aggregate"
	"github.com/hyperjump/osusume/internal/keyword"
	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/storage"
	"github.com/hyperjump/osusume/internal/vector"
)

// ErrEmptyTitle is returned for products whose title is blank after normalization.
var ErrEmptyTitle = errors.New("empty product title")

// Tagger extracts tags and classifies them against the current category snapshot.
// *recommend.Engine implements it.
type Tagger interface {
	ExtractTags(text string) []string
	ClassifyCategory(tags []string) models.Classification
}

// Ingester writes new products to storage and the search indices.
type Ingester struct {
	storage     storage.Storage
	tagger      Tagger
	aggregator  *aggregate.Aggregator
	tagIndex    keyword.TagIndex
	vectorIndex vector.VectorIndex
	logger      *zap.Logger // optional; when set, logs ingest events
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithTagIndex indexes product tags for the lexical fallback.
func WithTagIndex(idx keyword.TagIndex) Option {
	return func(i *Ingester) { i.tagIndex = idx }
}

// WithVectorIndex upserts aggregated product vectors into idx.
func WithVectorIndex(idx vector.VectorIndex) Option {
	return func(i *Ingester) { i.vectorIndex = idx }
}

// WithLogger sets a logger for ingest events.
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingester) { i.logger = l }
}

// NewIngester creates an ingester. A nil aggregator stores products without vectors.
func NewIngester(store storage.Storage, tagger Tagger, aggregator *aggregate.Aggregator, opts ...Option) *Ingester {
	i := &Ingester{
		storage:    store,
		tagger:     tagger,
		aggregator: aggregator,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// AddProduct stores a product built from in. Tags come from the title followed by the
// explicit keywords; the category is classified from the tags when in has none.
func (i *Ingester) AddProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	p, err := i.buildProduct(ctx, in)
	if err != nil {
		metrics.ProductsIngested.WithLabelValues("failed").Inc()
		return nil, err
	}
	if err := i.storage.CreateProduct(ctx, p); err != nil {
		metrics.ProductsIngested.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to store product: %w", err)
	}
	if i.tagIndex != nil && len(p.Tags) > 0 {
		if err := i.tagIndex.IndexProduct(ctx, p.ID, p.Title, models.TagTexts(p.Tags)); err != nil {
			return nil, fmt.Errorf("failed to index tags of product %d: %w", p.ID, err)
		}
	}
	if i.vectorIndex != nil && p.HasVector() {
		if err := i.vectorIndex.Upsert(ctx, p.ID, p.Vector); err != nil {
			return nil, fmt.Errorf("failed to index vector of product %d: %w", p.ID, err)
		}
	}
	metrics.ProductsIngested.WithLabelValues("created").Inc()
	if i.logger != nil {
		i.logger.Debug("product ingested",
			zap.Int64("id", p.ID),
			zap.String("title", p.Title),
			zap.Int("tags", len(p.Tags)),
			zap.Bool("vector", p.HasVector()),
		)
	}
	return p, nil
}

func (i *Ingester) buildProduct(ctx context.Context, in models.ProductInput) (*models.Product, error) {
	title := NormalizeTitle(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	p := &models.Product{
		ID:          in.ID,
		ExternalID:  strings.TrimSpace(in.ExternalID),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ImageURL:    strings.TrimSpace(in.ImageURL),
		Price:       in.Price,
		CategoryID:  in.CategoryID,
		Keywords:    in.Keywords,
	}

	texts := mergeTags(i.tagger.ExtractTags(title), in.Keywords)
	p.Tags = make([]models.Tag, len(texts))
	for j, t := range texts {
		p.Tags[j] = models.NewTag(t)
	}

	if p.CategoryID == nil && len(texts) > 0 {
		if c := i.tagger.ClassifyCategory(texts); c.CategoryID != nil {
			p.CategoryID = c.CategoryID
		}
	}

	if i.aggregator != nil && len(p.Tags) > 0 {
		vec, ok, err := i.aggregator.ProductVectorContext(ctx, p.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to aggregate product vector: %w", err)
		}
		if ok {
			p.Vector = vec
			metrics.VectorsComputed.WithLabelValues("product").Inc()
		}
	}
	return p, nil
}

// mergeTags appends keywords to tags, dropping blanks and duplicates.
func mergeTags(tags, keywords []string) []string {
	out := make([]string, 0, len(tags)+len(keywords))
	seen := make(map[string]struct{}, cap(out))
	for _, list := range [][]string{tags, keywords} {
		for _, t := range list {
			t = strings.TrimSpace(t)
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// NormalizeTitle trims text and collapses runs of whitespace into a single space.
func NormalizeTitle(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
			continue
		}
		b.WriteRune(r)
		wasSpace = false
	}
	return b.String()
}
