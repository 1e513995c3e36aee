// Package server provides the HTTP API for Osusume.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/config"
	"github.com/hyperjump/osusume/internal/ingest"
	"github.com/hyperjump/osusume/internal/recommend"
	"github.com/hyperjump/osusume/internal/watcher"
)

// Server is the HTTP server for the Osusume API.
type Server struct {
	engine   *recommend.Engine
	ingester *ingest.Ingester
	reloader *watcher.CategoryReloader
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithIngester enables POST /api/v1/products.
func WithIngester(i *ingest.Ingester) Option {
	return func(s *Server) { s.ingester = i }
}

// WithCategoryReloader enables POST /api/v1/categories/reload.
func WithCategoryReloader(r *watcher.CategoryReloader) Option {
	return func(s *Server) { s.reloader = r }
}

// NewServer creates a server with the given dependencies. A nil logger is replaced by a
// no-op logger.
func NewServer(engine *recommend.Engine, cfg *config.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine: engine,
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router with every route and middleware installed.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(observeDuration)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tags/extract", s.handleExtractTags)

		r.Get("/categories", s.handleListCategories)
		r.Post("/categories/classify", s.handleClassify)
		r.Post("/categories/reload", s.handleReloadCategories)
		r.Get("/categories/{id}/recommendations", s.handleCategoryRecommendations)

		r.Post("/products", s.handleAddProduct)
		r.Get("/products/{id}/similar", s.handleSimilarProducts)
		r.Post("/products/similar/batch", s.handleBatchSimilar)

		r.Get("/users/{id}/recommendations", s.handleUserRecommendations)
		r.Post("/users/{id}/profile", s.handleUpdateProfile)
		r.Post("/interactions", s.handleRecordInteraction)

		r.Get("/search", s.handleSearch)

		r.Post("/precompute", s.handlePrecompute)
		r.Delete("/cache", s.handleClearCache)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
