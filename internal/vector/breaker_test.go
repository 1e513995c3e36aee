package vector

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingIndex struct {
	*MemoryIndex
	calls int
}

func (f *failingIndex) QueryNearest(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func TestBreakerIndex_OpensAfterFailures(t *testing.T) {
	mem, _ := NewMemoryIndex(2)
	inner := &failingIndex{MemoryIndex: mem}
	b := NewBreakerIndex(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := b.QueryNearest(ctx, []float32{1, 0}, 1); err == nil || errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}
	if _, err := b.QueryNearest(ctx, []float32{1, 0}, 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable once open, got %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("backend called %d times, want 2", inner.calls)
	}
	if b.State() != "open" {
		t.Errorf("State = %q, want open", b.State())
	}
}

func TestBreakerIndex_PassesThrough(t *testing.T) {
	mem, _ := NewMemoryIndex(2)
	b := NewBreakerIndex(mem, BreakerConfig{}, nil)
	ctx := context.Background()
	if err := b.Upsert(ctx, 3, []float32{0, 1}); err != nil {
		t.Fatal(err)
	}
	res, err := b.QueryNearest(ctx, []float32{0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].ID != 3 {
		t.Errorf("unexpected results: %+v", res)
	}
	if b.Size() != 1 || b.Type() != "memory" {
		t.Errorf("embedded methods not delegated: size=%d type=%s", b.Size(), b.Type())
	}
}
