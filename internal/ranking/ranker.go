package ranking

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyperjump/osusume/internal/vector"
)

// Ranker orders candidates deterministically. It holds only configuration and is safe for
// concurrent use.
type Ranker struct {
	config  *RankingConfig
	lexical *LexicalScorer
}

// NewRanker creates a new Ranker with the given configuration.
func NewRanker(config *RankingConfig) *Ranker {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &Ranker{config: config, lexical: NewLexicalScorer(config)}
}

// Lexical returns the tag-overlap scorer used for keyword fallback.
func (r *Ranker) Lexical() *LexicalScorer {
	return r.lexical
}

// Rank scores every candidate by cosine similarity to query, drops those below threshold,
// and returns at most limit entries ordered by similarity descending then id ascending.
// A limit <= 0 means no limit. A candidate of the wrong dimension fails the whole call.
func (r *Ranker) Rank(query []float32, candidates []Candidate, limit int, threshold float64) ([]Scored, error) {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		sim, err := vector.Cosine(query, c.Vector)
		if err != nil {
			return nil, fmt.Errorf("candidate %d: %w", c.ID, err)
		}
		if sim < threshold {
			continue
		}
		scored = append(scored, Scored{ID: c.ID, Similarity: sim})
	}
	return Finalize(scored, limit), nil
}

// RankBatch ranks each query independently against candidates, skipping the query's own id.
// A query that fails maps to an empty list and its error is reported in errs.
func (r *Ranker) RankBatch(queries []Query, candidates []Candidate, limit int, threshold float64) (results map[int64][]Scored, errs map[int64]error) {
	results = make(map[int64][]Scored, len(queries))
	errs = make(map[int64]error)
	for _, q := range queries {
		pool := make([]Candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.ID != q.ID {
				pool = append(pool, c)
			}
		}
		ranked, err := r.Rank(q.Vector, pool, limit, threshold)
		if err != nil {
			results[q.ID] = []Scored{}
			errs[q.ID] = err
			continue
		}
		results[q.ID] = ranked
	}
	return results, errs
}

// FromNeighbors converts index hits (cosine distance) to similarities, drops excluded ids and
// those below threshold, and re-sorts so equal similarities are ordered by id.
func (r *Ranker) FromNeighbors(neighbors []vector.Neighbor, limit int, threshold float64, exclude ...int64) []Scored {
	skip := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	scored := make([]Scored, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := skip[n.ID]; ok {
			continue
		}
		sim := n.Similarity()
		if sim < threshold {
			continue
		}
		scored = append(scored, Scored{ID: n.ID, Similarity: sim})
	}
	return Finalize(scored, limit)
}

// Finalize sorts scored in place, removes repeated ids keeping the first after sorting, and
// truncates to limit (no limit when limit <= 0). Entries with a NaN similarity are dropped.
func Finalize(scored []Scored, limit int) []Scored {
	finite := scored[:0]
	for _, s := range scored {
		if !math.IsNaN(s.Similarity) {
			finite = append(finite, s)
		}
	}
	scored = finite
	sort.SliceStable(scored, func(i, j int) bool { return less(scored[i], scored[j]) })
	out := scored[:0]
	seen := make(map[int64]struct{}, len(scored))
	for _, s := range scored {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
