package models

import "time"

// InteractionKind is the kind of user action on a product.
type InteractionKind string

const (
	InteractionView     InteractionKind = "view"
	InteractionClick    InteractionKind = "click"
	InteractionFavorite InteractionKind = "favorite"
	InteractionPurchase InteractionKind = "purchase"
	InteractionDislike  InteractionKind = "dislike"
)

// Valid reports whether k is a known interaction kind.
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionView, InteractionClick, InteractionFavorite, InteractionPurchase, InteractionDislike:
		return true
	}
	return false
}

// Interaction is an append-only record of a user acting on a product.
// ID is assigned by storage and is the stable ordering key for aggregation.
type Interaction struct {
	ID        int64           `json:"id" db:"id"`
	UserID    int64           `json:"user_id" db:"user_id"`
	ProductID int64           `json:"product_id" db:"product_id"`
	Kind      InteractionKind `json:"interaction_type" db:"interaction_type"`
	Score     float64         `json:"interaction_score" db:"interaction_score"`
	SessionID string          `json:"session_id,omitempty" db:"session_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// InteractionInput is the input for recording an interaction. Score defaults to 1.0 when nil.
type InteractionInput struct {
	UserID    int64           `json:"user_id"`
	ProductID int64           `json:"product_id"`
	Kind      InteractionKind `json:"interaction_type"`
	Score     *float64        `json:"interaction_score,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}
