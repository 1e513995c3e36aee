// Package aggregate builds tag, product, and user vectors as weighted means of embeddings.
package aggregate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/embedding"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/vector"
)

// Splitter breaks a tag into the tokens that are looked up in the embedding table.
type Splitter interface {
	Segment(text string) []string
}

// TagVectorStore holds precomputed tag vectors.
type TagVectorStore interface {
	GetTagVector(ctx context.Context, tag string) ([]float32, bool, error)
	UpsertTagVector(ctx context.Context, tag string, vector []float32) error
}

// Aggregator computes vectors from its embedding table. Only the *Context methods touch the
// tag vector store. Every method returns ok=false instead of a zero vector when nothing
// resolves.
type Aggregator struct {
	table    embedding.Table
	splitter Splitter
	store    TagVectorStore
	logger   *zap.Logger // optional
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTagVectorStore reads precomputed tag vectors from s and writes back the ones it
// computes.
func WithTagVectorStore(s TagVectorStore) Option {
	return func(a *Aggregator) { a.store = s }
}

// WithLogger logs tag vector store failures.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// New returns an aggregator over table. splitter may be nil, in which case tags are looked
// up whole.
func New(table embedding.Table, splitter Splitter, opts ...Option) *Aggregator {
	a := &Aggregator{table: table, splitter: splitter}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dimensions returns the embedding dimension.
func (a *Aggregator) Dimensions() int {
	return a.table.Dimensions()
}

// TagVector is the unweighted mean of the embeddings of the tag's tokens. The whole tag is
// tried first; tokens without an embedding are skipped.
func (a *Aggregator) TagVector(tag string) ([]float32, bool, error) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil, false, nil
	}
	if v, ok := a.lookup(tag); ok {
		return a.Mean([][]float32{v}, nil)
	}
	var tokens []string
	if a.splitter != nil {
		tokens = a.splitter.Segment(tag)
	}
	vecs := make([][]float32, 0, len(tokens))
	for _, tok := range tokens {
		if v, ok := a.lookup(tok); ok {
			vecs = append(vecs, v)
		}
	}
	return a.Mean(vecs, nil)
}

// TextVector averages the token embeddings of free text, as for a search query.
func (a *Aggregator) TextVector(text string) ([]float32, bool, error) {
	return a.TagVector(text)
}

// TagVectorContext returns the stored vector of tag. Without one it computes the vector
// from the table and stores it. A store read failure falls back to the table.
func (a *Aggregator) TagVectorContext(ctx context.Context, tag string) ([]float32, bool, error) {
	tag = strings.TrimSpace(tag)
	if a.store == nil || tag == "" {
		return a.TagVector(tag)
	}
	v, ok, err := a.store.GetTagVector(ctx, tag)
	switch {
	case err != nil:
		a.warn("failed to read tag vector", tag, err)
	case ok:
		return v, true, nil
	}
	v, ok, err = a.TagVector(tag)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := a.store.UpsertTagVector(ctx, tag, v); err != nil {
		a.warn("failed to store tag vector", tag, err)
	}
	return v, true, nil
}

// ProductVector is the mean of the product's tag vectors weighted by tag weight. Tags that do
// not resolve contribute neither vector nor weight.
func (a *Aggregator) ProductVector(tags []models.Tag) ([]float32, bool, error) {
	return a.productVector(tags, a.TagVector)
}

// ProductVectorContext is ProductVector with tag vectors resolved through TagVectorContext.
func (a *Aggregator) ProductVectorContext(ctx context.Context, tags []models.Tag) ([]float32, bool, error) {
	return a.productVector(tags, func(tag string) ([]float32, bool, error) {
		return a.TagVectorContext(ctx, tag)
	})
}

func (a *Aggregator) productVector(tags []models.Tag, resolve func(string) ([]float32, bool, error)) ([]float32, bool, error) {
	vecs := make([][]float32, 0, len(tags))
	weights := make([]float64, 0, len(tags))
	for _, t := range tags {
		v, ok, err := resolve(t.Text)
		if err != nil {
			return nil, false, fmt.Errorf("tag %q: %w", t.Text, err)
		}
		if !ok {
			continue
		}
		vecs = append(vecs, v)
		weights = append(weights, t.EffectiveWeight())
	}
	return a.Mean(vecs, weights)
}

// UserVector is the mean of product vectors weighted by max(0, score). Interactions are
// summed in ascending id order; those whose product has no vector are skipped.
func (a *Aggregator) UserVector(interactions []models.Interaction, productVectors map[int64][]float32) ([]float32, bool, error) {
	ordered := make([]models.Interaction, len(interactions))
	copy(ordered, interactions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	vecs := make([][]float32, 0, len(ordered))
	weights := make([]float64, 0, len(ordered))
	for _, in := range ordered {
		v, ok := productVectors[in.ProductID]
		if !ok || len(v) == 0 {
			continue
		}
		w := in.Score
		if w < 0 {
			w = 0
		}
		vecs = append(vecs, v)
		weights = append(weights, w)
	}
	return a.Mean(vecs, weights)
}

// Mean returns the weighted mean of vecs. A nil weights slice weights every vector 1.
// Negative weights are clamped to 0; a total weight of 0 yields ok=false. Every vector must
// have the table's dimension.
func (a *Aggregator) Mean(vecs [][]float32, weights []float64) ([]float32, bool, error) {
	if weights != nil && len(weights) != len(vecs) {
		return nil, false, fmt.Errorf("weights length %d != vectors length %d", len(weights), len(vecs))
	}
	dims := a.table.Dimensions()
	sum := make([]float64, dims)
	total := 0.0
	for i, v := range vecs {
		if len(v) != dims {
			return nil, false, fmt.Errorf("%w: got %d, expected %d", vector.ErrDimensionMismatch, len(v), dims)
		}
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		for j, x := range v {
			sum[j] += w * float64(x)
		}
		total += w
	}
	if total == 0 {
		return nil, false, nil
	}
	out := make([]float32, dims)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out, true, nil
}

func (a *Aggregator) lookup(token string) ([]float32, bool) {
	if v, ok := a.table.Lookup(token); ok {
		return v, true
	}
	if lower := strings.ToLower(token); lower != token {
		return a.table.Lookup(lower)
	}
	return nil, false
}

func (a *Aggregator) warn(msg, tag string, err error) {
	if a.logger != nil {
		a.logger.Warn(msg, zap.String("tag", tag), zap.Error(err))
	}
}
