package ranking

// RankingConfig holds the lexical fallback weights and request defaults.
type RankingConfig struct {
	ExactWeight     float64 `yaml:"exact_weight"`     // default: 1.0
	SubstringWeight float64 `yaml:"substring_weight"` // default: 0.5

	// Lexical scores in [0,1] map to similarity as Base + Span*score, capped at Cap.
	KeywordBase float64 `yaml:"keyword_base"` // default: 0.5
	KeywordSpan float64 `yaml:"keyword_span"` // default: 0.4
	KeywordCap  float64 `yaml:"keyword_cap"`  // default: 0.95
}

// DefaultRankingConfig returns the default ranking configuration.
func DefaultRankingConfig() *RankingConfig {
	return &RankingConfig{
		ExactWeight:     1.0,
		SubstringWeight: 0.5,
		KeywordBase:     0.5,
		KeywordSpan:     0.4,
		KeywordCap:      0.95,
	}
}

// ApplyDefaults fills zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	d := DefaultRankingConfig()
	if c.ExactWeight == 0 {
		c.ExactWeight = d.ExactWeight
	}
	if c.SubstringWeight == 0 {
		c.SubstringWeight = d.SubstringWeight
	}
	if c.KeywordBase == 0 {
		c.KeywordBase = d.KeywordBase
	}
	if c.KeywordSpan == 0 {
		c.KeywordSpan = d.KeywordSpan
	}
	if c.KeywordCap == 0 {
		c.KeywordCap = d.KeywordCap
	}
}
