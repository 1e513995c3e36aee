package main

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/recommend"
	"github.com/hyperjump/osusume/internal/server"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"跑步鞋", "-limit", "5"},
			expected: []string{"-limit", "5", "跑步鞋"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-limit", "5", "跑步鞋"},
			expected: []string{"-limit", "5", "跑步鞋"},
		},
		{
			name:     "ids then flags",
			args:     []string{"1001", "1002", "--format", "json"},
			expected: []string{"--format", "json", "1001", "1002"},
		},
		{
			name:     "positionals only",
			args:     []string{"1001"},
			expected: []string{"1001"},
		},
		{
			name:     "empty",
			args:     []string{},
			expected: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reorderArgs(tt.args); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestJoinArgs(t *testing.T) {
	tests := []struct {
		args     []string
		expected string
	}{
		{[]string{"透气运动鞋"}, "透气运动鞋"},
		{[]string{"华为", "手机"}, "华为 手机"},
		{[]string{"  ", " "}, ""},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := joinArgs(tt.args); got != tt.expected {
			t.Errorf("joinArgs(%v) = %q, want %q", tt.args, got, tt.expected)
		}
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1001", "7"})
	if err != nil || !reflect.DeepEqual(ids, []int64{1001, 7}) {
		t.Errorf("parseIDs = %v, %v", ids, err)
	}
	if _, err := parseIDs([]string{"1001", "abc"}); err == nil {
		t.Error("expected error for a non-numeric id")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  port: 9000\n")

	t.Run("explicit path", func(t *testing.T) {
		cfg, resolved, err := loadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if resolved != path || cfg.Server.Port != 9000 {
			t.Errorf("resolved=%s port=%d", resolved, cfg.Server.Port)
		}
	})
	t.Run("env override", func(t *testing.T) {
		t.Setenv("OSUSUME_PORT", "9100")
		cfg, _, err := loadConfig(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Server.Port != 9100 {
			t.Errorf("port = %d, want 9100", cfg.Server.Port)
		}
	})
	t.Run("invalid env", func(t *testing.T) {
		t.Setenv("OSUSUME_DEBUG", "maybe")
		if _, _, err := loadConfig(path); err == nil {
			t.Error("expected error for invalid OSUSUME_DEBUG")
		}
	})
	t.Run("missing explicit path", func(t *testing.T) {
		if _, _, err := loadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("expected error for a missing explicit config")
		}
	})
}

// testConfig writes a config using the hash embedding table, an in-memory tag index, and
// a categories file, all under a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	categories := filepath.Join(dir, "categories.yaml")
	writeFile(t, categories, `categories:
  - id: 3
    name: 运动鞋
    keywords: [运动鞋, 跑步, 跑步鞋]
  - id: 4
    name: 手机
    keywords: [手机, 华为]
`)
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "storage:\n"+
		"  database_path: "+filepath.Join(dir, "db", "products.db")+"\n"+
		"  vector_index_path: "+filepath.Join(dir, "vectors.bin")+"\n"+
		"embedding:\n  provider: hash\n  dimensions: 16\n"+
		"watch:\n  categories_file: "+categories+"\n")
	cfg, _, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

const testProducts = "1001透气运动鞋跑步http://img.example.com/1.jpg 3-1\n" +
	"1002华为手机http://img.example.com/2.jpg 4-1\n" +
	"1003男款跑步鞋http://img.example.com/3.jpg 3-2\n"

func TestComponents_ImportRecommendAndReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Reloader == nil || len(c.Engine.Categories()) != 2 {
		t.Fatalf("categories file not loaded: reloader=%v categories=%d", c.Reloader != nil, len(c.Engine.Categories()))
	}

	products := filepath.Join(t.TempDir(), "products.txt")
	writeFile(t, products, testProducts)
	report, err := c.Ingester.ImportFile(ctx, products)
	if err != nil {
		t.Fatal(err)
	}
	if report.Imported != 3 {
		t.Fatalf("report = %+v, want 3 imported", *report)
	}
	if c.VectorIndex.Size() != 3 {
		t.Errorf("vector index size = %d, want 3", c.VectorIndex.Size())
	}

	res, err := c.Engine.SimilarProducts(ctx, 1001, recommend.SimilarOptions{})
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range res.Items {
		if it.ProductID == 1001 {
			t.Errorf("similar products include the queried product: %+v", res.Items)
		}
	}

	c.SaveVectorIndex()
	c.Close()
	if _, err := os.Stat(cfg.Storage.VectorIndexPath); err != nil {
		t.Fatalf("vector snapshot not written: %v", err)
	}

	reopened, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if reopened.VectorIndex.Size() != 3 {
		t.Errorf("reopened vector index size = %d, want 3", reopened.VectorIndex.Size())
	}
	if n, _ := reopened.TagIndex.DocCount(); n != 3 {
		t.Errorf("reopened tag index docs = %d, want 3", n)
	}
	stats, err := reopened.Engine.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalProducts != 3 || stats.TotalCategories != 2 || stats.DiskUsageBytes == nil {
		t.Errorf("stats = %+v", stats)
	}
}

func TestComponents_BadCategoriesFileFallsBackToStorage(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	c.Close()

	writeFile(t, cfg.Watch.CategoriesFile, "categories: [")
	c, err = initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if got := len(c.Engine.Categories()); got != 2 {
		t.Errorf("categories = %d, want the 2 stored on the first run", got)
	}
}

func TestInitializeTagging(t *testing.T) {
	cfg := testConfig(t)
	tagging, err := initializeTagging(cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer tagging.Close()

	tags := tagging.Segmenter.ExtractTags("透气运动鞋跑步")
	for _, want := range []string{"运动鞋", "跑步"} {
		if !strings.Contains(strings.Join(tags, " "), want) {
			t.Errorf("tags = %v, missing %q", tags, want)
		}
	}
	cats, err := classifyCategories(cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	c := tagging.Classifier.Classify(tags, cats)
	if c.CategoryID == nil || *c.CategoryID != 3 {
		t.Errorf("classification = %+v, want category 3", c)
	}

	cfg.Embedding.Provider = "word2vec"
	if _, err := initializeTagging(cfg, zap.NewNop(), false); err == nil {
		t.Error("expected error for an unknown embedding provider")
	}
}

func TestAPIClient(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if _, err := c.Ingester.AddProduct(ctx, models.ProductInput{ID: 1, Title: "透气运动鞋跑步"}); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(server.NewServer(c.Engine, &cfg.Server, nil, server.WithIngester(c.Ingester)).Handler())
	defer ts.Close()
	api := newAPIClient(ts.URL + "/")

	var stats models.Stats
	if err := api.get("/stats", &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TotalProducts != 1 {
		t.Errorf("total_products = %d, want 1", stats.TotalProducts)
	}

	var rec models.Interaction
	in := models.InteractionInput{UserID: 7, ProductID: 1, Kind: models.InteractionPurchase}
	if err := api.post("/interactions", in, &rec); err != nil {
		t.Fatal(err)
	}
	if rec.UserID != 7 || rec.Score != 1.0 || rec.SessionID == "" {
		t.Errorf("interaction = %+v", rec)
	}

	err = api.get("/products/999/similar", &models.Result{})
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("err = %v, want a 404", err)
	}
}
