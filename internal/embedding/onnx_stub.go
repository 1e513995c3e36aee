//go:build !cgo
// +build !cgo

package embedding

import (
	"errors"

	"go.uber.org/zap"
)

// ModelTable stub type when built without CGO (see onnx.go for the real implementation).
type ModelTable struct{}

// NewModelTable returns an error when built without CGO (ONNX not available).
func NewModelTable(_ string, _, _, _ int, _ *zap.Logger) (*ModelTable, error) {
	return nil, errors.New("ONNX model table requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

// Lookup always reports absent.
func (m *ModelTable) Lookup(string) ([]float32, bool) { return nil, false }

// Contains always reports false.
func (m *ModelTable) Contains(string) bool { return false }

// Dimensions returns 0.
func (m *ModelTable) Dimensions() int { return 0 }

// Close is a no-op.
func (m *ModelTable) Close() error { return nil }
