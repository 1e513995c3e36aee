package benchmark

import (
	"context"
	"math/rand"
	"testing"

	"github.com/hyperjump/osusume/internal/aggregate"
	"github.com/hyperjump/osusume/internal/cache"
	"github.com/hyperjump/osusume/internal/embedding"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/ranking"
	"github.com/hyperjump/osusume/internal/segment"
	"github.com/hyperjump/osusume/internal/vector"
)

const (
	benchDims       = 200
	benchCandidates = 1000
)

func randomVectors(n int) [][]float32 {
	r := rand.New(rand.NewSource(1))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, benchDims)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func BenchmarkRankerRank(b *testing.B) {
	vecs := randomVectors(benchCandidates + 1)
	candidates := make([]ranking.Candidate, benchCandidates)
	for i := range candidates {
		candidates[i] = ranking.Candidate{ID: int64(i + 1), Vector: vecs[i+1]}
	}
	r := ranking.NewRanker(nil)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = r.Rank(vecs[0], candidates, 10, 0)
	}
}

func BenchmarkMemoryIndexQueryNearest(b *testing.B) {
	idx, _ := vector.NewMemoryIndex(benchDims)
	ctx := context.Background()
	vecs := randomVectors(benchCandidates + 1)
	for i := 1; i <= benchCandidates; i++ {
		_ = idx.Upsert(ctx, int64(i), vecs[i])
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = idx.QueryNearest(ctx, vecs[0], 10)
	}
}

func BenchmarkSegmenterExtractTags(b *testing.B) {
	seg := segment.NewSegmenter(nil)
	title := "2024新款夏季透气运动鞋男款轻便跑步鞋网面休闲鞋"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = seg.ExtractTags(title)
	}
}

func BenchmarkAggregatorProductVector(b *testing.B) {
	dict := segment.DefaultDictionary()
	table := embedding.NewHashTable(benchDims, dict.Words())
	seg := segment.NewSegmenter(segment.NewDictTokenizer(dict), segment.WithVocabulary(table, true))
	agg := aggregate.New(table, seg)
	tags := []models.Tag{models.NewTag("运动鞋"), models.NewTag("跑步鞋"), models.NewTag("透气")}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = agg.ProductVector(tags)
	}
}

func BenchmarkCacheGetPut(b *testing.B) {
	c := cache.New[*models.Result](cache.WithMaxSize(100))
	res := &models.Result{Items: []models.Recommendation{}}
	keys := make([]string, 200)
	for i := range keys {
		keys[i] = cache.Key("similar", int64(i), 10, 0.0)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if _, ok := c.Get(k); !ok {
			c.Put(k, res, 0)
		}
	}
}
