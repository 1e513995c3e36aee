package embedding

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names the source of token vectors.
type Provider string

const (
	// ProviderFile loads a word2vec text file into memory.
	ProviderFile Provider = "file"
	// ProviderHash derives deterministic vectors for a fixed vocabulary.
	ProviderHash Provider = "hash"
	// ProviderONNX runs an ONNX model per token (requires CGO).
	ProviderONNX Provider = "onnx"
)

// Options configures NewTable.
type Options struct {
	Provider   string
	Path       string
	Dimensions int
	Limit      int
	MaxTokens  int
	CacheSize  int
	// Vocabulary seeds the hash provider.
	Vocabulary []string
	Logger     *zap.Logger
}

// NewTable opens the table for opts.Provider. An empty provider means "file" when a path is
// set and "hash" otherwise.
func NewTable(opts Options) (Table, error) {
	provider := Provider(opts.Provider)
	if provider == "" {
		provider = ProviderHash
		if opts.Path != "" {
			provider = ProviderFile
		}
	}
	switch provider {
	case ProviderFile:
		return LoadWordTable(opts.Path, opts.Dimensions, opts.Limit)
	case ProviderHash:
		return NewHashTable(opts.Dimensions, opts.Vocabulary), nil
	case ProviderONNX:
		return NewModelTable(opts.Path, opts.Dimensions, opts.MaxTokens, opts.CacheSize, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: file, hash, onnx)", provider)
	}
}
