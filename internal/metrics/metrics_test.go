package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(RecommendationRequests.WithLabelValues("similar_products", "aggregated"))
	ObserveRequest("similar_products", "aggregated", time.Now())
	after := testutil.ToFloat64(RecommendationRequests.WithLabelValues("similar_products", "aggregated"))
	if after-before != 1 {
		t.Errorf("counter delta = %v, want 1", after-before)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheHits)
	misses := testutil.ToFloat64(CacheMisses)
	RecordCacheLookup(true)
	RecordCacheLookup(false)
	RecordCacheLookup(false)
	if d := testutil.ToFloat64(CacheHits) - hits; d != 1 {
		t.Errorf("hits delta = %v", d)
	}
	if d := testutil.ToFloat64(CacheMisses) - misses; d != 2 {
		t.Errorf("misses delta = %v", d)
	}
}

func TestRecordSkip(t *testing.T) {
	c := FallbackStages.WithLabelValues("aggregated", "timeout")
	before := testutil.ToFloat64(c)
	RecordSkip("aggregated", "timeout")
	if testutil.ToFloat64(c)-before != 1 {
		t.Error("skip not recorded")
	}
}
