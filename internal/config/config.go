// Package config provides configuration loading and structs for the Osusume server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/osusume/internal/classify"
	"github.com/hyperjump/osusume/internal/ranking"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                  `yaml:"debug"`
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Vector    VectorConfig          `yaml:"vector"`
	Segment   SegmentConfig         `yaml:"segment"`
	Classify  ClassifyConfig        `yaml:"classify"`
	Ranking   ranking.RankingConfig `yaml:"ranking"`
	Recommend RecommendConfig       `yaml:"recommend"`
	Cache     CacheConfig           `yaml:"cache"`
	Watch     WatchConfig           `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the database and indices. An empty BleveIndexPath keeps the
// tag index in memory; VectorIndexPath is the snapshot file of the in-memory vector index.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	BleveIndexPath  string `yaml:"bleve_index_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig selects the token embedding table.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "file", "hash", "onnx"
	Path       string `yaml:"path"`     // word2vec text file or ONNX model
	Dimensions int    `yaml:"dimensions"`
	Limit      int    `yaml:"limit"` // max words read from the file, 0 = all
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// VectorConfig selects the nearest-neighbor index.
type VectorConfig struct {
	Type             string        `yaml:"type"` // "memory", "pgvector"
	DSN              string        `yaml:"dsn"`
	Table            string        `yaml:"table"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
}

// SegmentConfig holds tag extraction settings.
type SegmentConfig struct {
	DictionaryPath    string   `yaml:"dictionary_path"`
	StopwordsPath     string   `yaml:"stopwords_path"`
	AllowedPOS        []string `yaml:"allowed_pos"`
	MaxTags           int      `yaml:"max_tags"`
	RequireVocabulary *bool    `yaml:"require_vocabulary"`
}

// RequireVocabularyOrDefault returns whether tags must be known to the embedding table;
// defaults to true when unset.
func (s *SegmentConfig) RequireVocabularyOrDefault() bool {
	if s.RequireVocabulary != nil {
		return *s.RequireVocabulary
	}
	return true
}

// ClassifyConfig holds the category classifier constants.
type ClassifyConfig struct {
	Threshold  *float64             `yaml:"threshold"`
	BonusRules []classify.BonusRule `yaml:"bonus_rules"`
}

// ThresholdOrDefault returns the minimum winning score; 0 is a valid explicit value.
func (c *ClassifyConfig) ThresholdOrDefault() float64 {
	if c.Threshold != nil {
		return *c.Threshold
	}
	return classify.DefaultThreshold
}

// RecommendConfig holds recommendation engine settings.
type RecommendConfig struct {
	DefaultLimit      int           `yaml:"default_limit"`
	MaxLimit          int           `yaml:"max_limit"`
	DefaultThreshold  float64       `yaml:"default_threshold"`
	Timeout           time.Duration `yaml:"timeout"`
	GenericConfidence float64       `yaml:"generic_confidence"`
	GenericPoolSize   int           `yaml:"generic_pool_size"`
	KeywordPoolSize   int           `yaml:"keyword_pool_size"`
	PrecomputeWorkers int           `yaml:"precompute_workers"`
}

// CacheConfig holds recommendation cache settings.
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	MaxSize int           `yaml:"max_size"`
}

// WatchConfig holds reference-data reload settings.
type WatchConfig struct {
	CategoriesFile string `yaml:"categories_file"`
	Enabled        bool   `yaml:"enabled"`
}

// Load reads and parses the config file at path, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandOptional(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.VectorIndexPath = expandOptional(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.Path = expandOptional(cfg.Embedding.Path, configDir)
	cfg.Segment.DictionaryPath = expandOptional(cfg.Segment.DictionaryPath, configDir)
	cfg.Segment.StopwordsPath = expandOptional(cfg.Segment.StopwordsPath, configDir)
	cfg.Watch.CategoriesFile = expandOptional(cfg.Watch.CategoriesFile, configDir)

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none) into the process
// environment without overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from OSUSUME_* environment variables.
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("OSUSUME_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := os.Getenv("OSUSUME_PGVECTOR_DSN"); v != "" {
		cfg.Vector.DSN = v
		cfg.Vector.Type = "pgvector"
	}
	if v := os.Getenv("OSUSUME_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid OSUSUME_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("OSUSUME_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid OSUSUME_DEBUG %q: %w", v, err)
		}
		cfg.Debug = debug
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

func expandOptional(path, configDir string) string {
	if path == "" {
		return ""
	}
	return expandPath(path, configDir)
}
