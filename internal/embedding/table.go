// Package embedding provides token embedding lookup tables.
package embedding

// Table maps tokens to fixed-dimension vectors. Implementations are immutable after
// construction and safe for concurrent reads.
type Table interface {
	// Lookup returns the vector for token, or false when the token has no embedding.
	Lookup(token string) ([]float32, bool)
	// Contains reports whether token is in the vocabulary.
	Contains(token string) bool
	Dimensions() int
	Close() error
}
