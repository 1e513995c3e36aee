package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/ingest"
	"github.com/hyperjump/osusume/internal/models"
	"github.com/hyperjump/osusume/internal/recommend"
)

// maxBatchIDs caps the ids accepted by the batch endpoint.
const maxBatchIDs = 100

type textRequest struct {
	Text string `json:"text"`
}

type classifyRequest struct {
	Text string   `json:"text"`
	Tags []string `json:"tags"`
}

type batchRequest struct {
	ProductIDs  []int64 `json:"product_ids"`
	Limit       int     `json:"limit"`
	Threshold   float64 `json:"threshold"`
	ExcludeSelf *bool   `json:"exclude_self"`
}

type precomputeRequest struct {
	Target string `json:"target"` // "tags", "products", or "all"
	Force  bool   `json:"force"`
}

type precomputeResponse struct {
	Tags     *models.PrecomputeReport `json:"tags,omitempty"`
	Products *models.PrecomputeReport `json:"products,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleExtractTags(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !s.decode(w, r, &req) {
		return
	}
	tags := s.engine.ExtractTags(req.Text)
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"text": req.Text, "tags": tags, "count": len(tags)})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"categories": s.engine.Categories()})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	tags := req.Tags
	if len(tags) == 0 && req.Text != "" {
		tags = s.engine.ExtractTags(req.Text)
	}
	s.respondJSON(w, http.StatusOK, s.engine.ClassifyCategory(tags))
}

func (s *Server) handleReloadCategories(w http.ResponseWriter, r *http.Request) {
	if s.reloader == nil {
		s.respondError(w, http.StatusNotImplemented, "categories file not configured")
		return
	}
	n, err := s.reloader.Reload(r.Context())
	if err != nil {
		s.logger.Error("category reload failed", zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"categories": n})
}

func (s *Server) handleCategoryRecommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := s.queryInt(w, r, "limit")
	if !ok {
		return
	}
	res, err := s.engine.CategoryRecommendations(r.Context(), id, limit)
	if err != nil {
		s.respondEngineError(w, "category recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var in models.ProductInput
	if !s.decode(w, r, &in) {
		return
	}
	s.logger.Debug("add product request", zap.Int64("id", in.ID), zap.String("title", in.Title))
	p, err := s.ingester.AddProduct(r.Context(), in)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyTitle) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("add product failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleSimilarProducts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	opts, ok := s.similarOptions(w, r)
	if !ok {
		return
	}
	res, err := s.engine.SimilarProducts(r.Context(), id, opts)
	if err != nil {
		s.respondEngineError(w, "similar products", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchSimilar(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.ProductIDs) == 0 {
		s.respondError(w, http.StatusBadRequest, "product_ids is required")
		return
	}
	if len(req.ProductIDs) > maxBatchIDs {
		s.respondError(w, http.StatusBadRequest, "too many product_ids")
		return
	}
	opts := recommend.SimilarOptions{Limit: req.Limit, Threshold: req.Threshold}
	if req.ExcludeSelf != nil {
		opts.IncludeSelf = !*req.ExcludeSelf
	}
	s.respondJSON(w, http.StatusOK, s.engine.BatchSimilarProducts(r.Context(), req.ProductIDs, opts))
}

func (s *Server) handleUserRecommendations(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	limit, ok := s.queryInt(w, r, "limit")
	if !ok {
		return
	}
	res, err := s.engine.UserRecommendations(r.Context(), id, limit)
	if err != nil {
		s.respondEngineError(w, "user recommendations", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	res, err := s.engine.UpdateUserProfile(r.Context(), id)
	if err != nil {
		s.respondEngineError(w, "update profile", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var in models.InteractionInput
	if !s.decode(w, r, &in) {
		return
	}
	rec, err := s.engine.RecordInteraction(r.Context(), in)
	if err != nil {
		s.respondEngineError(w, "record interaction", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, ok := s.queryInt(w, r, "limit")
	if !ok {
		return
	}
	s.logger.Debug("search request", zap.String("query", query), zap.Int("limit", limit))
	res, err := s.engine.Search(r.Context(), query, limit)
	if err != nil {
		s.respondEngineError(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handlePrecompute(w http.ResponseWriter, r *http.Request) {
	req := precomputeRequest{Target: "all"}
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	var (
		resp precomputeResponse
		err  error
	)
	switch req.Target {
	case "tags", "products", "all":
	default:
		s.respondError(w, http.StatusBadRequest, "target must be tags, products, or all")
		return
	}
	if req.Target != "products" {
		if resp.Tags, err = s.engine.PrecomputeTagVectors(r.Context()); err != nil {
			s.respondEngineError(w, "precompute tags", err)
			return
		}
	}
	if req.Target != "tags" {
		if resp.Products, err = s.engine.PrecomputeProductVectors(r.Context(), req.Force); err != nil {
			s.respondEngineError(w, "precompute products", err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	n := s.engine.ClearCache()
	s.logger.Info("cache cleared", zap.Int("entries", n))
	s.respondJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.respondEngineError(w, "stats", err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) similarOptions(w http.ResponseWriter, r *http.Request) (recommend.SimilarOptions, bool) {
	var opts recommend.SimilarOptions
	q := r.URL.Query()
	limit, ok := s.queryInt(w, r, "limit")
	if !ok {
		return opts, false
	}
	opts.Limit = limit
	if v := q.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid threshold")
			return opts, false
		}
		opts.Threshold = t
	}
	if v := q.Get("exclude_self"); v != "" {
		exclude, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid exclude_self")
			return opts, false
		}
		opts.IncludeSelf = !exclude
	}
	return opts, true
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter; absent means 0.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) respondEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, recommend.ErrInvalidInteraction):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
