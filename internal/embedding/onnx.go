//go:build cgo
// +build cgo

package embedding

import (
	"fmt"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/cache"
)

// tokenTTL keeps inferred token vectors; the model never changes while the table is open.
const tokenTTL = 24 * time.Hour

// ModelTable computes token vectors with an ONNX sentence model. Every non-empty token is
// considered in-vocabulary; results are memoized in a bounded cache.
type ModelTable struct {
	session    *ort.AdvancedSession
	dimensions int
	maxTokens  int
	cache      *cache.Cache[[]float32]
	tokenizer  Tokenizer
	logger     *zap.Logger

	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	mu            sync.Mutex
}

// NewModelTable loads the model at modelPath. The runtime environment is initialized on first use.
func NewModelTable(modelPath string, dimensions, maxTokens, cacheSize int, logger *zap.Logger) (*ModelTable, error) {
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	tokenizer := &RuneTokenizer{}
	ids, mask, types := tokenizer.Tokenize("", maxTokens)
	shape := ort.NewShape(1, int64(maxTokens))

	m := &ModelTable{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      cache.New[[]float32](cache.WithMaxSize(cacheSize), cache.WithDefaultTTL(tokenTTL)),
		tokenizer:  tokenizer,
		logger:     logger,
	}
	var err error
	if m.inputIDs, err = ort.NewTensor(shape, ids); err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	if m.attentionMask, err = ort.NewTensor(shape, mask); err != nil {
		m.destroy()
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	if m.tokenTypeIDs, err = ort.NewTensor(shape, types); err != nil {
		m.destroy()
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	if m.output, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		m.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	m.session, err = ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{m.inputIDs, m.attentionMask, m.tokenTypeIDs},
		[]ort.ArbitraryTensor{m.output},
		nil,
	)
	if err != nil {
		m.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return m, nil
}

// Lookup runs the model on token. Inference failures are logged and reported as absent.
func (m *ModelTable) Lookup(token string) ([]float32, bool) {
	if token == "" {
		return nil, false
	}
	if cached, ok := m.cache.Get(token); ok {
		return cached, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids, mask, types := m.tokenizer.Tokenize(token, m.maxTokens)
	copy(m.inputIDs.GetData(), ids)
	copy(m.attentionMask.GetData(), mask)
	copy(m.tokenTypeIDs.GetData(), types)

	if err := m.session.Run(); err != nil {
		if m.logger != nil {
			m.logger.Warn("token inference failed", zap.String("token", token), zap.Error(err))
		}
		return nil, false
	}
	vec := make([]float32, m.dimensions)
	copy(vec, m.output.GetData()[:m.dimensions])
	m.cache.Put(token, vec, 0)
	return vec, true
}

// Contains reports true for any non-empty token.
func (m *ModelTable) Contains(token string) bool {
	return token != ""
}

// Dimensions returns the vector dimension.
func (m *ModelTable) Dimensions() int {
	return m.dimensions
}

// Close destroys the session and tensors.
func (m *ModelTable) Close() error {
	var err error
	if m.session != nil {
		err = m.session.Destroy()
		m.session = nil
	}
	m.destroy()
	return err
}

func (m *ModelTable) destroy() {
	if m.inputIDs != nil {
		_ = m.inputIDs.Destroy()
	}
	if m.attentionMask != nil {
		_ = m.attentionMask.Destroy()
	}
	if m.tokenTypeIDs != nil {
		_ = m.tokenTypeIDs.Destroy()
	}
	if m.output != nil {
		_ = m.output.Destroy()
	}
	m.inputIDs, m.attentionMask, m.tokenTypeIDs, m.output = nil, nil, nil, nil
}
