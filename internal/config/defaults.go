package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/osusume/data/db/products.db"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 200
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 32
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Vector.Type == "" {
		cfg.Vector.Type = "memory"
	}
	if cfg.Vector.Table == "" {
		cfg.Vector.Table = "product_vectors"
	}
	if cfg.Vector.FailureThreshold == 0 {
		cfg.Vector.FailureThreshold = 5
	}
	if cfg.Vector.BreakerTimeout == 0 {
		cfg.Vector.BreakerTimeout = 30 * time.Second
	}
	if cfg.Segment.MaxTags == 0 {
		cfg.Segment.MaxTags = 10
	}
	cfg.Ranking.ApplyDefaults()
	if cfg.Recommend.DefaultLimit == 0 {
		cfg.Recommend.DefaultLimit = 10
	}
	if cfg.Recommend.MaxLimit == 0 {
		cfg.Recommend.MaxLimit = 50
	}
	if cfg.Recommend.Timeout == 0 {
		cfg.Recommend.Timeout = 5 * time.Second
	}
	if cfg.Recommend.GenericConfidence == 0 {
		cfg.Recommend.GenericConfidence = 0.5
	}
	if cfg.Recommend.GenericPoolSize == 0 {
		cfg.Recommend.GenericPoolSize = 20
	}
	if cfg.Recommend.KeywordPoolSize == 0 {
		cfg.Recommend.KeywordPoolSize = 100
	}
	if cfg.Recommend.PrecomputeWorkers == 0 {
		cfg.Recommend.PrecomputeWorkers = 4
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = 100
	}
}

// DefaultRecommendConfig returns a RecommendConfig with defaults applied.
func DefaultRecommendConfig() *RecommendConfig {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg.Recommend
}
