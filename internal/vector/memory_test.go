package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_UpsertQuery(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := map[int64][]float32{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 1, 0},
	}
	for id, v := range vecs {
		if err := idx.Upsert(ctx, id, v); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.QueryNearest(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != 1 || results[1].ID != 2 {
		t.Errorf("unexpected order: %+v", results)
	}
	if math.Abs(results[0].Distance) > 1e-9 {
		t.Errorf("identical vector should have distance 0, got %v", results[0].Distance)
	}
}

func TestMemoryIndex_TiesOrderedByID(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	for _, id := range []int64{9, 4, 7} {
		_ = idx.Upsert(ctx, id, []float32{1, 1})
	}
	results, err := idx.QueryNearest(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{4, 7, 9}
	for i, n := range results {
		if n.ID != want[i] {
			t.Fatalf("position %d: got %d, want %d", i, n.ID, want[i])
		}
	}
}

func TestMemoryIndex_UpsertReplaces(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 1, []float32{1, 0})
	_ = idx.Upsert(ctx, 1, []float32{0, 1})
	if idx.Size() != 1 {
		t.Fatalf("expected size 1, got %d", idx.Size())
	}
	res, _ := idx.QueryNearest(ctx, []float32{0, 1}, 1)
	if res[0].Distance > 1e-9 {
		t.Errorf("vector was not replaced: %+v", res)
	}
}

func TestMemoryIndex_DimensionMismatch(t *testing.T) {
	idx, _ := NewMemoryIndex(3)
	ctx := context.Background()
	if err := idx.Upsert(ctx, 1, []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Upsert: expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := idx.QueryNearest(ctx, []float32{1}, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("QueryNearest: expected ErrDimensionMismatch, got %v", err)
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Upsert(ctx, 1, []float32{1, 0})
	_ = idx.Upsert(ctx, 2, []float32{0, 1})
	if err := idx.Remove(ctx, []int64{1, 42}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	res, _ := idx.QueryNearest(ctx, []float32{1, 0}, 5)
	if len(res) != 1 || res[0].ID != 2 {
		t.Errorf("unexpected results after remove: %+v", res)
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "vectors.bin")
	ctx := context.Background()

	idx, _ := NewMemoryIndex(2)
	_ = idx.Upsert(ctx, 5, []float32{0.5, 0.25})
	_ = idx.Upsert(ctx, 2, []float32{-1, 3})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("expected 2 vectors, got %d", loaded.Size())
	}
	res, _ := loaded.QueryNearest(ctx, []float32{0.5, 0.25}, 1)
	if res[0].ID != 5 {
		t.Errorf("expected id 5 nearest, got %+v", res)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected dimension mismatch, got %v", err)
	}
	if err := loaded.Load(filepath.Join(t.TempDir(), "missing.bin")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
