package ranking

import (
	"strings"
	"unicode/utf8"
)

// LexicalScorer scores tag overlap when no vectors are available. Each query tag counts its
// best match among the product tags: exact matches weigh the most, substring matches less.
type LexicalScorer struct {
	config *RankingConfig
}

// NewLexicalScorer returns a scorer using config weights.
func NewLexicalScorer(config *RankingConfig) *LexicalScorer {
	if config == nil {
		config = DefaultRankingConfig()
	}
	config.ApplyDefaults()
	return &LexicalScorer{config: config}
}

// Score returns the mean best-match weight of queryTags against productTags, normalized to
// [0,1], and the strongest match type seen. Substring matches need both tags to be at least
// two characters.
func (s *LexicalScorer) Score(queryTags, productTags []string) (float64, MatchType) {
	if len(queryTags) == 0 || len(productTags) == 0 {
		return 0, MatchTypeNone
	}
	best := MatchTypeNone
	total := 0.0
	for _, q := range queryTags {
		m := matchTag(q, productTags)
		switch m {
		case MatchTypeExact:
			total += s.config.ExactWeight
		case MatchTypeSubstring:
			total += s.config.SubstringWeight
		}
		if m > best {
			best = m
		}
	}
	return total / (s.config.ExactWeight * float64(len(queryTags))), best
}

// Similarity maps a lexical score to the similarity reported for keyword results.
func (s *LexicalScorer) Similarity(score float64) float64 {
	sim := s.config.KeywordBase + s.config.KeywordSpan*score
	if sim > s.config.KeywordCap {
		sim = s.config.KeywordCap
	}
	return sim
}

// Rank scores each product's tags against queryTags, keeps products with any match, and
// orders them like every other result list.
func (s *LexicalScorer) Rank(queryTags []string, products map[int64][]string, limit int) []Scored {
	scored := make([]Scored, 0, len(products))
	for id, tags := range products {
		score, match := s.Score(queryTags, tags)
		if match == MatchTypeNone {
			continue
		}
		scored = append(scored, Scored{ID: id, Similarity: s.Similarity(score), Match: match})
	}
	return Finalize(scored, limit)
}

func matchTag(q string, tags []string) MatchType {
	best := MatchTypeNone
	for _, t := range tags {
		if t == q {
			return MatchTypeExact
		}
		if utf8.RuneCountInString(q) >= 2 && utf8.RuneCountInString(t) >= 2 &&
			(strings.Contains(t, q) || strings.Contains(q, t)) {
			best = MatchTypeSubstring
		}
	}
	return best
}
