package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/osusume/internal/classify"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "test.db"
recommend:
  timeout: 2s
  default_threshold: 0.3
cache:
  ttl: 1m
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatabasePath == "" {
		t.Error("database_path should be set")
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
	if cfg.Recommend.Timeout != 2*time.Second {
		t.Errorf("timeout: got %v, want 2s", cfg.Recommend.Timeout)
	}
	if cfg.Recommend.DefaultThreshold != 0.3 {
		t.Errorf("default_threshold: got %v", cfg.Recommend.DefaultThreshold)
	}
	if cfg.Cache.TTL != time.Minute {
		t.Errorf("cache ttl: got %v, want 1m", cfg.Cache.TTL)
	}
	if cfg.Storage.BleveIndexPath != "" {
		t.Errorf("unset bleve_index_path should stay empty, got %s", cfg.Storage.BleveIndexPath)
	}
}

func TestLoad_debugTrue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
debug: true
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_invalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
storage:
  database_path: "./data/db/products.db"
embedding:
  path: "./data/vectors.txt"
watch:
  categories_file: "./categories.yaml"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"database", cfg.Storage.DatabasePath, filepath.Join(dir, "data", "db", "products.db")},
		{"embedding", cfg.Embedding.Path, filepath.Join(dir, "data", "vectors.txt")},
		{"categories", cfg.Watch.CategoriesFile, filepath.Join(dir, "categories.yaml")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_classifySection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
classify:
  threshold: 0
  bonus_rules:
    - category_id: 7
      any_of: ["帐篷", "睡袋"]
      bonus: 1.5
segment:
  require_vocabulary: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Classify.ThresholdOrDefault(); got != 0 {
		t.Errorf("explicit zero threshold: got %v", got)
	}
	if len(cfg.Classify.BonusRules) != 1 || cfg.Classify.BonusRules[0].CategoryID != 7 ||
		cfg.Classify.BonusRules[0].Bonus != 1.5 || len(cfg.Classify.BonusRules[0].AnyOf) != 2 {
		t.Errorf("bonus rules: got %+v", cfg.Classify.BonusRules)
	}
	if cfg.Segment.RequireVocabularyOrDefault() {
		t.Error("require_vocabulary should be false when set to false")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Recommend.DefaultLimit != 10 || cfg.Recommend.MaxLimit != 50 {
		t.Errorf("default limits: got %d/%d", cfg.Recommend.DefaultLimit, cfg.Recommend.MaxLimit)
	}
	if cfg.Recommend.GenericConfidence != 0.5 {
		t.Errorf("generic confidence: got %v", cfg.Recommend.GenericConfidence)
	}
	if cfg.Cache.TTL != 5*time.Minute || cfg.Cache.MaxSize != 100 {
		t.Errorf("cache defaults: got %v/%d", cfg.Cache.TTL, cfg.Cache.MaxSize)
	}
	if cfg.Vector.Type != "memory" {
		t.Errorf("vector type: got %s", cfg.Vector.Type)
	}
	if cfg.Embedding.Dimensions != 200 {
		t.Errorf("dimensions: got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Ranking.KeywordCap != 0.95 {
		t.Errorf("ranking defaults not applied: %+v", cfg.Ranking)
	}
	if got := cfg.Classify.ThresholdOrDefault(); got != classify.DefaultThreshold {
		t.Errorf("classify threshold: got %v", got)
	}
	if !cfg.Segment.RequireVocabularyOrDefault() {
		t.Error("require_vocabulary should default to true")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("OSUSUME_DATABASE_PATH", "/tmp/env.db")
	t.Setenv("OSUSUME_PGVECTOR_DSN", "postgres://localhost/osusume")
	t.Setenv("OSUSUME_PORT", "9191")
	t.Setenv("OSUSUME_DEBUG", "true")

	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DatabasePath != "/tmp/env.db" {
		t.Errorf("database path: got %s", cfg.Storage.DatabasePath)
	}
	if cfg.Vector.Type != "pgvector" || cfg.Vector.DSN != "postgres://localhost/osusume" {
		t.Errorf("vector: got %+v", cfg.Vector)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("port: got %d", cfg.Server.Port)
	}
	if !cfg.Debug {
		t.Error("debug should be true")
	}
}

func TestApplyEnv_invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"port", "OSUSUME_PORT", "eighty"},
		{"debug", "OSUSUME_DEBUG", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if err := ApplyEnv(&Config{}); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("OSUSUME_TEST_DOTENV=loaded\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OSUSUME_TEST_DOTENV", "")
	os.Unsetenv("OSUSUME_TEST_DOTENV")

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("OSUSUME_TEST_DOTENV"); got != "loaded" {
		t.Errorf("OSUSUME_TEST_DOTENV = %q, want loaded", got)
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db"},
		Cache:   CacheConfig{TTL: 90 * time.Second},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Cache.TTL != 90*time.Second {
		t.Errorf("loaded ttl: got %v", loaded.Cache.TTL)
	}
}

func TestLoadCategories(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		wantIDs []int64
		wantErr bool
	}{
		{"yaml", "c.yaml", "categories:\n  - id: 3\n    name: 运动鞋\n    keywords: [运动鞋]\n  - id: 4\n    name: 手机\n", []int64{3, 4}, false},
		{"json", "c.json", `{"categories":[{"id":13,"name":"鞋靴","keywords":["鞋子"],"description":"鞋"}]}`, []int64{13}, false},
		{"empty", "e.yaml", "categories: []\n", []int64{}, false},
		{"zero id", "z.yaml", "categories:\n  - name: x\n", nil, true},
		{"not json", "bad.json", "categories: []", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			cats, err := LoadCategories(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(cats) != len(tt.wantIDs) {
				t.Fatalf("got %d categories, want %d", len(cats), len(tt.wantIDs))
			}
			for i, c := range cats {
				if c.ID != tt.wantIDs[i] {
					t.Errorf("cats[%d].ID = %d, want %d", i, c.ID, tt.wantIDs[i])
				}
				if c.Keywords == nil {
					t.Errorf("cats[%d].Keywords is nil", i)
				}
			}
		})
	}
	if _, err := LoadCategories(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
