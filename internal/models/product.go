// Package models defines core data structures for products, users, and recommendations.
package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped with the id) for unknown products, users, or categories.
var ErrNotFound = errors.New("not found")

// Tag is a short keyword extracted from product text.
type Tag struct {
	Text   string  `json:"text" db:"tag"`
	Weight float64 `json:"weight" db:"weight"`
}

// EffectiveWeight returns the tag weight clamped to >= 0.
func (t Tag) EffectiveWeight() float64 {
	if t.Weight < 0 {
		return 0
	}
	return t.Weight
}

// NewTag returns a tag with the default weight of 1.0.
func NewTag(text string) Tag {
	return Tag{Text: text, Weight: 1.0}
}

// TagTexts returns the text of each tag in order.
func TagTexts(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.Text
	}
	return out
}

// Category is read-mostly reference data used for classification.
type Category struct {
	ID          int64    `json:"id" yaml:"id" db:"id"`
	Name        string   `json:"name" yaml:"name" db:"name"`
	Keywords    []string `json:"keywords" yaml:"keywords" db:"keywords"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty" db:"description"`
}

// Product is a catalog item. Vector is nil until precomputed or aggregated.
type Product struct {
	ID          int64     `json:"id" db:"id"`
	ExternalID  string    `json:"product_id,omitempty" db:"external_id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description,omitempty" db:"description"`
	ImageURL    string    `json:"image_url,omitempty" db:"image_url"`
	Price       float64   `json:"price,omitempty" db:"price"`
	CategoryID  *int64    `json:"category_id,omitempty" db:"category_id"`
	Keywords    []string  `json:"keywords,omitempty" db:"keywords"`
	Tags        []Tag     `json:"tags,omitempty" db:"-"`
	Vector      []float32 `json:"-" db:"product_vector"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// HasVector reports whether a precomputed vector is attached.
func (p *Product) HasVector() bool {
	return len(p.Vector) > 0
}

// ProductInput is the input for ingesting a product.
type ProductInput struct {
	ID          int64    `json:"id,omitempty"`
	ExternalID  string   `json:"product_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Price       float64  `json:"price,omitempty"`
	CategoryID  *int64   `json:"category_id,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// User owns a profile vector derived from its interactions.
type User struct {
	ID              int64      `json:"id" db:"id"`
	Name            string     `json:"name,omitempty" db:"name"`
	Vector          []float32  `json:"-" db:"feature_vector"`
	VectorUpdatedAt *time.Time `json:"vector_updated_at,omitempty" db:"vector_updated_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// HasVector reports whether a stored profile vector exists.
func (u *User) HasVector() bool {
	return len(u.Vector) > 0
}
