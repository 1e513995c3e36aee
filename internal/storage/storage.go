// Package storage defines the persistence interface for products, reference data, users,
// and interactions.
package storage

import (
	"context"
	"time"

	"github.com/hyperjump/osusume/internal/models"
)

// Storage is the typed CRUD boundary of the recommendation engine. Lookups of unknown ids
// return an error wrapping models.ErrNotFound. Every list is ordered by id unless noted.
type Storage interface {
	// Product operations
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProducts(ctx context.Context, ids []int64) ([]*models.Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error)
	ListProductsByCategory(ctx context.Context, categoryID int64, limit int) ([]*models.Product, error)
	ListProductsWithoutVector(ctx context.Context, limit int) ([]*models.Product, error)
	ListProductVectors(ctx context.Context, categoryID *int64) ([]ProductVector, error)
	UpdateProductVector(ctx context.Context, id int64, vector []float32) error
	DeleteProduct(ctx context.Context, id int64) error

	// Tag operations
	GetProductTags(ctx context.Context, ids []int64) (map[int64][]models.Tag, error)
	SearchProductsByTag(ctx context.Context, word string, limit int) ([]int64, error)
	ListDistinctTags(ctx context.Context) ([]string, error)
	ListTagsWithoutVector(ctx context.Context, limit int) ([]string, error)
	GetTagVector(ctx context.Context, tag string) ([]float32, bool, error)
	UpsertTagVector(ctx context.Context, tag string, vector []float32) error

	// Category operations
	UpsertCategory(ctx context.Context, c *models.Category) error
	ReplaceCategories(ctx context.Context, cats []models.Category) error
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	ListCategories(ctx context.Context) ([]models.Category, error)

	// User operations
	CreateUser(ctx context.Context, u *models.User) error
	EnsureUser(ctx context.Context, id int64) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUserVector(ctx context.Context, id int64, vector []float32, at time.Time) error

	// Interaction operations
	CreateInteraction(ctx context.Context, in *models.Interaction) error
	ListInteractionsByUser(ctx context.Context, userID int64) ([]models.Interaction, error)
	MostInteractedProducts(ctx context.Context, limit int) ([]int64, error)

	// Stats
	Counts(ctx context.Context) (*Counts, error)

	Close() error
}

// ProductVector is a product id with its stored vector.
type ProductVector struct {
	ID     int64
	Vector []float32
}

// Counts are corpus totals for the stats report.
type Counts struct {
	Products            int64
	ProductsWithVectors int64
	Tags                int64
	UniqueTags          int64
	TagVectors          int64
	Categories          int64
	Users               int64
	UsersWithVectors    int64
	Interactions        int64
}
