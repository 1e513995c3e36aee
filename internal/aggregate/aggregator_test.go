package aggregate

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/osusume/internal/embedding"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/vector"
)

type splitFunc func(string) []string

func (f splitFunc) Segment(text string) []string { return f(text) }

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	table, err := embedding.NewWordTable(2, map[string][]float32{
		"运动": {1, 0},
		"鞋":  {0, 1},
		"跑步": {1, 1},
		"nike": {2, 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	split := splitFunc(func(s string) []string {
		switch s {
		case "运动鞋":
			return []string{"运动", "鞋"}
		case "红色运动鞋":
			return []string{"红色", "运动", "鞋"}
		}
		return nil
	})
	return New(table, split)
}

func assertVec(t *testing.T, got []float32, want ...float32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("vector = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("vector = %v, want %v", got, want)
		}
	}
}

func TestTagVector(t *testing.T) {
	a := newTestAggregator(t)
	tests := []struct {
		name   string
		tag    string
		wantOK bool
		want   []float32
	}{
		{"whole tag", "跑步", true, []float32{1, 1}},
		{"mean of tokens", "运动鞋", true, []float32{0.5, 0.5}},
		{"unresolved tokens skipped", "红色运动鞋", true, []float32{0.5, 0.5}},
		{"lowercase fallback", "Nike", true, []float32{2, 2}},
		{"nothing resolves", "帽子", false, nil},
		{"empty", "  ", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := a.TagVector(tt.tag)
			if err != nil {
				t.Fatal(err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Errorf("absent vector should be nil, got %v", got)
				}
				return
			}
			assertVec(t, got, tt.want...)
		})
	}
}

func TestProductVector(t *testing.T) {
	a := newTestAggregator(t)

	got, ok, err := a.ProductVector([]models.Tag{
		{Text: "运动", Weight: 3},
		{Text: "鞋", Weight: 1},
		{Text: "帽子", Weight: 100},
	})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	// unresolved 帽子 does not count toward the denominator
	assertVec(t, got, 0.75, 0.25)

	_, ok, err = a.ProductVector([]models.Tag{models.NewTag("帽子"), models.NewTag("围巾")})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("product with only unresolvable tags should have no vector")
	}

	_, ok, _ = a.ProductVector([]models.Tag{{Text: "运动", Weight: -1}})
	if ok {
		t.Error("negative weights clamp to zero and produce no vector")
	}
}

type mapStore struct {
	vectors map[string][]float32
	readErr error
	writes  int
}

func (m *mapStore) GetTagVector(_ context.Context, tag string) ([]float32, bool, error) {
	if m.readErr != nil {
		return nil, false, m.readErr
	}
	v, ok := m.vectors[tag]
	return v, ok, nil
}

func (m *mapStore) UpsertTagVector(_ context.Context, tag string, v []float32) error {
	m.vectors[tag] = v
	m.writes++
	return nil
}

func TestProductVectorContext_StoredTagVectors(t *testing.T) {
	ctx := context.Background()
	tags := []models.Tag{models.NewTag("运动"), models.NewTag("鞋")}

	t.Run("stored vector wins over the table", func(t *testing.T) {
		store := &mapStore{vectors: map[string][]float32{"运动": {0, 3}}}
		a := New(newTestAggregator(t).table, nil, WithTagVectorStore(store))
		got, ok, err := a.ProductVectorContext(ctx, tags)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		assertVec(t, got, 0, 2)
		if store.writes != 1 {
			t.Errorf("writes = %d, want 1 for the computed 鞋", store.writes)
		}
		assertVec(t, store.vectors["鞋"], 0, 1)
	})
	t.Run("read failure falls back to the table", func(t *testing.T) {
		store := &mapStore{vectors: map[string][]float32{"运动": {0, 3}}, readErr: errors.New("database is locked")}
		a := New(newTestAggregator(t).table, nil, WithTagVectorStore(store))
		got, ok, err := a.ProductVectorContext(ctx, tags)
		if err != nil || !ok {
			t.Fatalf("ok=%v err=%v", ok, err)
		}
		assertVec(t, got, 0.5, 0.5)
	})
	t.Run("unresolvable tags are not stored", func(t *testing.T) {
		store := &mapStore{vectors: map[string][]float32{}}
		a := New(newTestAggregator(t).table, nil, WithTagVectorStore(store))
		if _, ok, _ := a.ProductVectorContext(ctx, []models.Tag{models.NewTag("帽子")}); ok {
			t.Error("expected no vector")
		}
		if len(store.vectors) != 0 {
			t.Errorf("stored %v", store.vectors)
		}
	})
	t.Run("without a store matches ProductVector", func(t *testing.T) {
		a := newTestAggregator(t)
		want, _, _ := a.ProductVector(tags)
		got, _, err := a.ProductVectorContext(ctx, tags)
		if err != nil {
			t.Fatal(err)
		}
		assertVec(t, got, want...)
	})
}

func TestUserVector(t *testing.T) {
	a := newTestAggregator(t)
	products := map[int64][]float32{
		10: {1, 0},
		11: {0, 1},
		12: {0.3, 0.7},
	}
	interactions := []models.Interaction{
		{ID: 3, ProductID: 12, Score: 0.5},
		{ID: 1, ProductID: 10, Score: 1},
		{ID: 2, ProductID: 11, Score: 2},
		{ID: 4, ProductID: 99, Score: 5},  // no vector
		{ID: 5, ProductID: 10, Score: -3}, // clamped to zero
	}

	first, ok, err := a.UserVector(interactions, products)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}

	reversed := make([]models.Interaction, len(interactions))
	for i := range interactions {
		reversed[len(interactions)-1-i] = interactions[i]
	}
	for i := 0; i < 5; i++ {
		again, _, _ := a.UserVector(reversed, products)
		assertVec(t, again, first...)
	}

	_, ok, _ = a.UserVector([]models.Interaction{{ID: 1, ProductID: 99, Score: 1}}, products)
	if ok {
		t.Error("no resolvable products should give no vector")
	}
}

func TestMean_DimensionMismatch(t *testing.T) {
	a := newTestAggregator(t)
	_, _, err := a.Mean([][]float32{{1, 0}, {1, 0, 0}}, nil)
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
	_, _, err = a.UserVector([]models.Interaction{{ID: 1, ProductID: 1, Score: 1}}, map[int64][]float32{1: {1, 2, 3}})
	if !errors.Is(err, vector.ErrDimensionMismatch) {
		t.Errorf("UserVector: expected ErrDimensionMismatch, got %v", err)
	}
}
