package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestCache_TTLBoundary(t *testing.T) {
	clock := newClock()
	c := New[string](WithClock(clock.Now))
	c.Put("k", "v", 60*time.Second)

	clock.Advance(59 * time.Second)
	if v, ok := c.Get("k"); !ok || v != "v" {
		t.Fatalf("expected hit at 59s, got %q %v", v, ok)
	}

	clock.Advance(2 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss at 61s")
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted on read, Len = %d", c.Len())
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestCache_EvictsOldestCreated(t *testing.T) {
	clock := newClock()
	c := New[int](WithClock(clock.Now), WithMaxSize(2))
	c.Put("a", 1, time.Hour)
	clock.Advance(time.Second)
	c.Put("b", 2, time.Hour)
	clock.Advance(time.Second)

	// reading a does not protect it
	c.Get("a")
	c.Put("c", 3, time.Hour)

	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should remain", k)
		}
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("evictions = %d, want 1", c.Stats().Evictions)
	}

	// replacing b makes it the newest, so c goes next
	c.Put("b", 20, time.Hour)
	c.Put("d", 4, time.Hour)
	if _, ok := c.Get("c"); ok {
		t.Error("c should have been evicted")
	}
	if v, _ := c.Get("b"); v != 20 {
		t.Errorf("b = %d, want 20", v)
	}
}

func TestCache_DefaultTTL(t *testing.T) {
	clock := newClock()
	c := New[int](WithClock(clock.Now), WithDefaultTTL(10*time.Second))
	c.Put("k", 1, 0)
	clock.Advance(9 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Error("expected hit before default ttl")
	}
	clock.Advance(time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss at exactly the default ttl")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c := New[int]()
	c.Put(Key("user", 1, 10), 1, 0)
	c.Put(Key("user", 1, 20), 2, 0)
	c.Put(Key("user", 12, 10), 3, 0)
	c.Put(Key("similar", 1, 10), 4, 0)

	if n := c.InvalidatePrefix(Prefix("user", 1)); n != 2 {
		t.Errorf("InvalidatePrefix removed %d, want 2", n)
	}
	if _, ok := c.Get(Key("user", 12, 10)); !ok {
		t.Error("user 12 must not match the user 1 prefix")
	}
	if !c.Invalidate(Key("similar", 1, 10)) {
		t.Error("Invalidate should report a present key")
	}
	if c.Invalidate("missing") {
		t.Error("Invalidate should report a missing key")
	}
	if n := c.Clear(); n != 1 || c.Len() != 0 {
		t.Errorf("Clear removed %d, Len = %d", n, c.Len())
	}
}

func TestFingerprint(t *testing.T) {
	a := Key("similar", 7, 10, 0.5, true)
	b := Key("similar", 7, 10, 0.5, true)
	if a != b {
		t.Errorf("keys differ for identical params: %s vs %s", a, b)
	}
	if a == Key("similar", 7, 10, 0.6, true) {
		t.Error("keys should differ when a parameter differs")
	}
	if !strings.HasPrefix(a, "similar/7/") || len(a) != len("similar/7/")+32 {
		t.Errorf("unexpected key layout: %s", a)
	}
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int](WithMaxSize(50))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (w*31+i)%80)
				if v, ok := c.Get(key); ok && v < 0 {
					t.Errorf("corrupt value %d", v)
				}
				c.Put(key, i, time.Minute)
				if i%97 == 0 {
					c.InvalidatePrefix("k1")
				}
			}
		}(w)
	}
	wg.Wait()
	if c.Len() > 50 {
		t.Errorf("Len = %d exceeds max size", c.Len())
	}
}
