package embedding

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// WordTable is an in-memory table loaded from a word2vec text file.
type WordTable struct {
	dimensions int
	vectors    map[string][]float32
}

// NewWordTable builds a table from an existing map. Every vector must have the given dimension.
func NewWordTable(dimensions int, vectors map[string][]float32) (*WordTable, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	t := &WordTable{dimensions: dimensions, vectors: make(map[string][]float32, len(vectors))}
	for word, vec := range vectors {
		if len(vec) != dimensions {
			return nil, fmt.Errorf("vector dimension mismatch for %q: got %d, expected %d", word, len(vec), dimensions)
		}
		for i, x := range vec {
			if !finite(float64(x)) {
				return nil, fmt.Errorf("vector for %q: value %d is not finite", word, i)
			}
		}
		cp := make([]float32, dimensions)
		copy(cp, vec)
		t.vectors[word] = cp
	}
	return t, nil
}

// LoadWordTable reads a word2vec text file at path. See ReadWordTable.
func LoadWordTable(path string, dimensions, limit int) (*WordTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open word vectors: %w", err)
	}
	defer f.Close()
	return ReadWordTable(f, dimensions, limit)
}

// ReadWordTable parses word2vec text format: an optional "<count> <dims>" header, then one
// "<word> <v1> ... <vD>" line per word. A header or line with a different dimension is an error.
// limit > 0 stops after that many words.
func ReadWordTable(r io.Reader, dimensions, limit int) (*WordTable, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	t := &WordTable{dimensions: dimensions, vectors: make(map[string][]float32)}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if lineNo == 1 && len(fields) == 2 {
			_, countErr := strconv.Atoi(fields[0])
			dim, err := strconv.Atoi(fields[1])
			if countErr == nil && err == nil {
				if dim != dimensions {
					return nil, fmt.Errorf("vector dimension mismatch: file has %d, expected %d", dim, dimensions)
				}
				continue
			}
		}
		if len(fields) != dimensions+1 {
			return nil, fmt.Errorf("line %d: vector dimension mismatch: got %d, expected %d", lineNo, len(fields)-1, dimensions)
		}
		vec := make([]float32, dimensions)
		for i, s := range fields[1:] {
			v, err := strconv.ParseFloat(s, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse value %d: %w", lineNo, i, err)
			}
			if !finite(v) {
				return nil, fmt.Errorf("line %d: value %d is not finite", lineNo, i)
			}
			vec[i] = float32(v)
		}
		t.vectors[fields[0]] = vec
		if limit > 0 && len(t.vectors) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word vectors: %w", err)
	}
	return t, nil
}

// Lookup returns the vector for token.
func (t *WordTable) Lookup(token string) ([]float32, bool) {
	v, ok := t.vectors[token]
	return v, ok
}

// Contains reports whether token has a vector.
func (t *WordTable) Contains(token string) bool {
	_, ok := t.vectors[token]
	return ok
}

// Dimensions returns the vector dimension.
func (t *WordTable) Dimensions() int {
	return t.dimensions
}

// Size returns the number of words.
func (t *WordTable) Size() int {
	return len(t.vectors)
}

// Close is a no-op for WordTable.
func (t *WordTable) Close() error {
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
