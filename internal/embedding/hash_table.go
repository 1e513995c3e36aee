package embedding

import "math"

// HashTable is a deterministic table for tests and for running without a vector file.
// Every vocabulary word gets a fixed-dimension vector derived from the word hash, so the
// same word always gets the same vector.
type HashTable struct {
	dimensions int
	vocab      map[string]struct{}
}

// NewHashTable returns a table over vocab with vectors of the given dimension.
func NewHashTable(dimensions int, vocab []string) *HashTable {
	if dimensions <= 0 {
		dimensions = 200
	}
	set := make(map[string]struct{}, len(vocab))
	for _, w := range vocab {
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return &HashTable{dimensions: dimensions, vocab: set}
}

// Lookup returns a deterministic vector for vocabulary words.
func (h *HashTable) Lookup(token string) ([]float32, bool) {
	if _, ok := h.vocab[token]; !ok {
		return nil, false
	}
	return HashVector(token, h.dimensions), true
}

// Contains reports whether token is in the vocabulary.
func (h *HashTable) Contains(token string) bool {
	_, ok := h.vocab[token]
	return ok
}

// Dimensions returns the vector dimension.
func (h *HashTable) Dimensions() int {
	return h.dimensions
}

// Close is a no-op for HashTable.
func (h *HashTable) Close() error {
	return nil
}

// HashVector derives a unit-length vector of the given dimension from the hash of s.
func HashVector(s string, dimensions int) []float32 {
	hv := HashString(s)
	emb := make([]float32, dimensions)
	for i := 0; i < dimensions; i++ {
		emb[i] = float32(math.Sin(float64(hv*(i+1)))*0.1 + 0.01)
	}
	var sum float64
	for _, v := range emb {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := 1.0 / math.Sqrt(sum)
		for i := range emb {
			emb[i] *= float32(norm)
		}
	}
	return emb
}
