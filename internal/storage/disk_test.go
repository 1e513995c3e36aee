package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/osusume/internal/models"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	vectors := filepath.Join(dir, "vectors.bin")
	if err := os.WriteFile(vectors, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	bleveDir := filepath.Join(dir, "tags.bleve")
	if err := os.Mkdir(bleveDir, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"index_meta.json": "ab", "store": "c"} {
		if err := os.WriteFile(filepath.Join(bleveDir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"file", []string{vectors}, 5},
		{"directory", []string{bleveDir}, 3},
		{"file and directory", []string{vectors, bleveDir}, 8},
		{"missing path skipped", []string{vectors, filepath.Join(dir, "missing"), bleveDir}, 8},
		{"empty path skipped", []string{"", vectors}, 5},
		{"nothing", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DiskUsageBytes = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDatabaseFiles(t *testing.T) {
	if got := DatabaseFiles(":memory:"); got != nil {
		t.Errorf("in-memory database files = %v, want none", got)
	}
	want := []string{"/data/products.db", "/data/products.db-wal", "/data/products.db-shm"}
	if got := DatabaseFiles("/data/products.db"); !reflect.DeepEqual(got, want) {
		t.Errorf("DatabaseFiles = %v, want %v", got, want)
	}

	dbPath := filepath.Join(t.TempDir(), "db", "products.db")
	s, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.CreateProduct(context.Background(), &models.Product{ID: 1, Title: "运动鞋"}); err != nil {
		t.Fatal(err)
	}
	n, err := DiskUsageBytes(DatabaseFiles(dbPath)...)
	if err != nil {
		t.Fatal(err)
	}
	if n == 0 {
		t.Error("database usage = 0, want the database file size")
	}
}
