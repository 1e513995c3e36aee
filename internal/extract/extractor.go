// Package extract reads the text of product sheets and brochures so tags can be extracted
// from it.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxBytes is the largest file Extract reads unless overridden.
const DefaultMaxBytes = 32 << 20

// ErrTooLarge is returned for files above the configured size limit.
var ErrTooLarge = errors.New("file too large")

// Extractor turns .pdf, .docx, .xlsx and text files into plain text. Other extensions are
// read as text.
type Extractor struct {
	maxBytes int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxBytes sets the file size limit. n <= 0 keeps the default.
func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether ext (with leading dot) has a dedicated decoder.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".pdf", ".docx", ".xlsx", ".txt", ".md", ".csv":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > e.maxBytes {
		return "", fmt.Errorf("%s: %w (%d > %d bytes)", path, ErrTooLarge, info.Size(), e.maxBytes)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content according to ext, which includes the leading dot.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	if int64(len(content)) > e.maxBytes {
		return "", fmt.Errorf("%w (%d > %d bytes)", ErrTooLarge, len(content), e.maxBytes)
	}
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractSheets(content)
	default:
		return extractPlain(content), nil
	}
}
