package watcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
)

// CategorySink receives a new category snapshot. *recommend.Engine implements it.
type CategorySink interface {
	SetCategories(cats []models.Category)
}

// CategoryStore persists the category table. storage.Storage implements it.
type CategoryStore interface {
	ReplaceCategories(ctx context.Context, cats []models.Category) error
}

// CategoryReloader loads a categories file into storage and the engine snapshot.
type CategoryReloader struct {
	path   string
	sink   CategorySink
	store  CategoryStore
	logger *zap.Logger
}

// NewCategoryReloader creates a reloader for path. store may be nil, in which case only
// the snapshot is replaced.
func NewCategoryReloader(path string, sink CategorySink, store CategoryStore, logger *zap.Logger) *CategoryReloader {
	return &CategoryReloader{path: path, sink: sink, store: store, logger: logger}
}

// Reload reads the file and swaps the snapshot. On any error the previous snapshot and
// table stay in place.
func (r *CategoryReloader) Reload(ctx context.Context) (int, error) {
	cats, err := config.LoadCategories(r.path)
	if err != nil {
		metrics.CategoryReloads.WithLabelValues("failed").Inc()
		return 0, err
	}
	if r.store != nil {
		if err := r.store.ReplaceCategories(ctx, cats); err != nil {
			metrics.CategoryReloads.WithLabelValues("failed").Inc()
			return 0, fmt.Errorf("failed to store categories: %w", err)
		}
	}
	r.sink.SetCategories(cats)
	metrics.CategoryReloads.WithLabelValues("ok").Inc()
	if r.logger != nil {
		r.logger.Info("categories reloaded", zap.String("path", r.path), zap.Int("categories", len(cats)))
	}
	return len(cats), nil
}

// Watch starts a file watcher that calls Reload on every change until ctx is done. Reload
// errors are logged.
func (r *CategoryReloader) Watch(ctx context.Context, opts ...WatcherOption) (*Watcher, error) {
	if r.logger != nil {
		opts = append([]WatcherOption{WithLogger(r.logger)}, opts...)
	}
	w, err := NewWatcher(r.path, func(string) {
		if _, err := r.Reload(ctx); err != nil && r.logger != nil {
			r.logger.Warn("failed to reload categories", zap.String("path", r.path), zap.Error(err))
		}
	}, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
