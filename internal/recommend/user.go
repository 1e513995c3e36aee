package recommend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/osusume/internal/cache"
	"github.com/hyperjump/osusume/internal/metrics"
	"github.com/hyperjump/osusume/internal/models"
)

// maxProfileTags caps the tags gathered from a user's history for keyword matching.
const maxProfileTags = 10

// UserRecommendations returns products for a user from the stored profile vector, else one
// aggregated from the user's interactions, else the tags of the products the user liked,
// else the most interacted products.
func (e *Engine) UserRecommendations(ctx context.Context, userID int64, limit int) (*models.Result, error) {
	limit = e.normalizeLimit(limit)
	key := cache.Key("user", userID, limit)
	return e.serve(ctx, "user_recommendations", key, func(ctx context.Context) (*models.Result, error) {
		user, err := e.storage.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		var interactions []models.Interaction
		loadInteractions := func(ctx context.Context) ([]models.Interaction, error) {
			if interactions != nil {
				return interactions, nil
			}
			list, err := e.storage.ListInteractionsByUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("failed to list interactions: %w", err)
			}
			interactions = list
			return list, nil
		}
		return e.run(ctx, chain{
			op:    "user_recommendations",
			limit: limit,
			vector: func(ctx context.Context) ([]float32, models.Provenance, error) {
				if user.HasVector() {
					return user.Vector, models.ProvenancePrecomputed, nil
				}
				list, err := loadInteractions(ctx)
				if err != nil {
					return nil, "", err
				}
				vec, ok, err := e.userVector(ctx, list)
				if err != nil || !ok {
					return nil, "", err
				}
				return vec, models.ProvenanceAggregated, nil
			},
			tags: func(ctx context.Context) ([]string, error) {
				list, err := loadInteractions(ctx)
				if err != nil {
					return nil, err
				}
				return e.profileTags(ctx, list)
			},
			generic: func(ctx context.Context, n int) ([]int64, error) {
				return e.genericProducts(ctx, nil, n, true)
			},
		})
	})
}

// UpdateUserProfile recomputes and stores the user's profile vector from all interactions.
// Updated is false when no interaction resolves to a vector; the stored vector is then
// left unchanged.
func (e *Engine) UpdateUserProfile(ctx context.Context, userID int64) (*models.ProfileUpdate, error) {
	if _, err := e.storage.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	interactions, err := e.storage.ListInteractionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	update := &models.ProfileUpdate{UserID: userID, InteractionCount: int64(len(interactions))}
	vec, ok, err := e.userVector(ctx, interactions)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate user %d: %w", userID, err)
	}
	if !ok {
		return update, nil
	}
	at := e.now().UTC()
	if err := e.storage.UpdateUserVector(ctx, userID, vec, at); err != nil {
		return nil, fmt.Errorf("failed to store user vector: %w", err)
	}
	metrics.VectorsComputed.WithLabelValues("user").Inc()
	e.cache.InvalidatePrefix(cache.Prefix("user", userID))
	update.Updated = true
	update.VectorUpdatedAt = &at
	if e.logger != nil {
		e.logger.Debug("user profile updated", zap.Int64("user_id", userID), zap.Int("interactions", len(interactions)))
	}
	return update, nil
}

// RecordInteraction validates and appends an interaction. The user row is created on first
// use. Score defaults to 1.0 and the session id to a new uuid.
func (e *Engine) RecordInteraction(ctx context.Context, in models.InteractionInput) (*models.Interaction, error) {
	if !in.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidInteraction, in.Kind)
	}
	score := 1.0
	if in.Score != nil {
		score = *in.Score
	}
	if score < 0 {
		return nil, fmt.Errorf("%w: negative score %v", ErrInvalidInteraction, score)
	}
	if _, err := e.storage.GetProduct(ctx, in.ProductID); err != nil {
		return nil, err
	}
	if err := e.storage.EnsureUser(ctx, in.UserID); err != nil {
		return nil, fmt.Errorf("failed to ensure user %d: %w", in.UserID, err)
	}
	session := in.SessionID
	if session == "" {
		session = uuid.NewString()
	}
	rec := &models.Interaction{
		UserID:    in.UserID,
		ProductID: in.ProductID,
		Kind:      in.Kind,
		Score:     score,
		SessionID: session,
		CreatedAt: e.now().UTC(),
	}
	if err := e.storage.CreateInteraction(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}
	metrics.InteractionsRecorded.WithLabelValues(string(in.Kind)).Inc()
	e.cache.InvalidatePrefix(cache.Prefix("user", in.UserID))
	return rec, nil
}

// userVector aggregates the product vectors of the interacted products.
func (e *Engine) userVector(ctx context.Context, interactions []models.Interaction) ([]float32, bool, error) {
	if len(interactions) == 0 {
		return nil, false, nil
	}
	ids := make([]int64, 0, len(interactions))
	seen := make(map[int64]struct{}, len(interactions))
	for _, in := range interactions {
		ids = appendIDs(ids, seen, in.ProductID)
	}
	products, err := e.storage.GetProducts(ctx, ids)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load interacted products: %w", err)
	}
	vecs := make(map[int64][]float32, len(products))
	for _, p := range products {
		v, _, err := e.productVector(ctx, p)
		if err != nil {
			return nil, false, err
		}
		if v != nil {
			vecs[p.ID] = v
		}
	}
	return e.aggregator.UserVector(interactions, vecs)
}

// profileTags gathers distinct tags of products the user interacted with positively, in
// interaction order.
func (e *Engine) profileTags(ctx context.Context, interactions []models.Interaction) ([]string, error) {
	var ids []int64
	seenID := make(map[int64]struct{})
	for _, in := range interactions {
		if in.Score > 0 {
			ids = appendIDs(ids, seenID, in.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	byProduct, err := e.storage.GetProductTags(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile tags: %w", err)
	}
	var tags []string
	seen := make(map[string]struct{})
	for _, id := range ids {
		for _, t := range byProduct[id] {
			if _, ok := seen[t.Text]; ok {
				continue
			}
			seen[t.Text] = struct{}{}
			tags = append(tags, t.Text)
			if len(tags) == maxProfileTags {
				return tags, nil
			}
		}
	}
	return tags, nil
}
