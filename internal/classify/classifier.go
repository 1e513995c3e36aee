// Package classify assigns products to categories from their tags.
package classify

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/osusume/internal/models"
	"go.uber.org/zap"
)

// DefaultThreshold is the minimum total score for a category to be returned.
const DefaultThreshold = 0.5

const (
	exactWeight     = 3.0
	substringWeight = 2.0
	jaccardWeight   = 3.0
	partialWeight   = 0.5
)

// BonusRule adds Bonus to CategoryID when any tag equals one of AnyOf.
type BonusRule struct {
	CategoryID int64    `yaml:"category_id" json:"category_id"`
	AnyOf      []string `yaml:"any_of" json:"any_of"`
	Bonus      float64  `yaml:"bonus" json:"bonus"`
}

// DefaultBonusRules are the built-in tag/category co-occurrence rules.
var DefaultBonusRules = []BonusRule{
	{CategoryID: 3, AnyOf: []string{"运动鞋"}, Bonus: 2},
	{CategoryID: 5, AnyOf: []string{"童装", "儿童", "宝宝", "婴儿", "女童", "男童"}, Bonus: 2},
	{CategoryID: 4, AnyOf: []string{"iPhone", "iPad", "MacBook", "电脑", "笔记本"}, Bonus: 2},
	{CategoryID: 13, AnyOf: []string{"运动鞋", "皮鞋", "高跟鞋", "鞋子"}, Bonus: 2},
}

// Score is the per-signal breakdown for one category.
type Score struct {
	CategoryID int64   `json:"category_id"`
	Direct     float64 `json:"direct"`
	Jaccard    float64 `json:"jaccard"`
	Partial    int     `json:"partial"`
	Bonus      float64 `json:"bonus"`
	Total      float64 `json:"total"`
}

// Classifier scores tag sets against category keyword tables. It holds no mutable state.
type Classifier struct {
	threshold float64
	rules     []BonusRule
	logger    *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

// WithBonusRules replaces DefaultBonusRules. A nil slice keeps the defaults; an empty
// non-nil slice disables bonuses.
func WithBonusRules(rules []BonusRule) Option {
	return func(c *Classifier) {
		if rules != nil {
			c.rules = rules
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New returns a classifier with the default threshold and bonus rules.
func New(opts ...Option) *Classifier {
	c := &Classifier{threshold: DefaultThreshold, rules: DefaultBonusRules}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the configured minimum score.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Classify returns the highest scoring category, or an unclassified result when tags is
// empty or no category reaches the threshold. Equal top scores go to the lowest id.
func (c *Classifier) Classify(tags []string, categories []models.Category) models.Classification {
	tagSet := distinct(tags)
	if len(tagSet) == 0 {
		return models.Classification{}
	}

	sorted := make([]models.Category, len(categories))
	copy(sorted, categories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var best *models.Category
	bestScore := 0.0
	for i := range sorted {
		cat := &sorted[i]
		if len(cat.Keywords) == 0 {
			continue
		}
		s := c.score(tagSet, cat)
		if best == nil || s.Total > bestScore {
			best = cat
			bestScore = s.Total
		}
	}

	if best == nil || bestScore < c.threshold {
		if c.logger != nil {
			c.logger.Debug("unclassified", zap.Strings("tags", tagSet), zap.Float64("best_score", bestScore))
		}
		return models.Classification{Score: bestScore}
	}
	id := best.ID
	if c.logger != nil {
		c.logger.Debug("classified", zap.Strings("tags", tagSet), zap.Int64("category_id", id), zap.Float64("score", bestScore))
	}
	return models.Classification{CategoryID: &id, Name: best.Name, Score: bestScore}
}

// Score returns the signal breakdown of tags against every category with keywords, in id order.
func (c *Classifier) Score(tags []string, categories []models.Category) []Score {
	tagSet := distinct(tags)
	scores := make([]Score, 0, len(categories))
	for i := range categories {
		if len(categories[i].Keywords) == 0 {
			continue
		}
		scores = append(scores, c.score(tagSet, &categories[i]))
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].CategoryID < scores[j].CategoryID })
	return scores
}

func (c *Classifier) score(tags []string, cat *models.Category) Score {
	keywords := distinct(cat.Keywords)
	s := Score{CategoryID: cat.ID}
	if len(tags) == 0 {
		return s
	}

	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	intersection := 0
	for _, k := range keywords {
		if _, ok := tagSet[k]; ok {
			s.Direct += exactWeight
			intersection++
			continue
		}
		for _, t := range tags {
			if strings.Contains(t, k) || strings.Contains(k, t) {
				s.Direct += substringWeight
				break
			}
		}
	}

	if union := len(tags) + len(keywords) - intersection; union > 0 {
		s.Jaccard = float64(intersection) / float64(union)
	}

	for _, k := range keywords {
		if utf8.RuneCountInString(k) < 2 {
			continue
		}
		for _, t := range tags {
			if utf8.RuneCountInString(t) < 2 {
				continue
			}
			if strings.Contains(t, k) || strings.Contains(k, t) {
				s.Partial++
			}
		}
	}

	for _, r := range c.rules {
		if r.CategoryID != cat.ID {
			continue
		}
		for _, w := range r.AnyOf {
			if _, ok := tagSet[w]; ok {
				s.Bonus += r.Bonus
				break
			}
		}
	}

	s.Total = s.Direct + jaccardWeight*s.Jaccard + partialWeight*float64(s.Partial) + s.Bonus
	return s
}

// distinct trims, drops empties, and removes duplicates preserving order.
func distinct(words []string) []string {
	out := make([]string, 0, len(words))
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
