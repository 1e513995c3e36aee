package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/osusume/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. ":memory:" opens a private in-memory
// database.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		keywords TEXT,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT,
		title TEXT NOT NULL,
		description TEXT,
		image_url TEXT,
		price REAL,
		category_id INTEGER,
		keywords TEXT,
		product_vector TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id);

	CREATE TABLE IF NOT EXISTS product_tags (
		product_id INTEGER NOT NULL,
		tag TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		position INTEGER NOT NULL,
		PRIMARY KEY (product_id, tag),
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_product_tags_tag ON product_tags(tag);

	CREATE TABLE IF NOT EXISTS tag_vectors (
		tag TEXT PRIMARY KEY,
		vector TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		feature_vector TEXT,
		vector_updated_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		product_id INTEGER NOT NULL,
		interaction_type TEXT NOT NULL,
		interaction_score REAL NOT NULL DEFAULT 1.0,
		session_id TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (product_id) REFERENCES products(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id, id);
	CREATE INDEX IF NOT EXISTS idx_interactions_product ON interactions(product_id);
	`
	_, err := db.Exec(schema)
	return err
}

const productColumns = `id, external_id, title, description, image_url, price, category_id, keywords, product_vector, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	var (
		p           models.Product
		externalID  sql.NullString
		description sql.NullString
		imageURL    sql.NullString
		price       sql.NullFloat64
		categoryID  sql.NullInt64
		keywords    sql.NullString
		vec         sql.NullString
	)
	if err := row.Scan(&p.ID, &externalID, &p.Title, &description, &imageURL, &price, &categoryID, &keywords, &vec, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ExternalID = externalID.String
	p.Description = description.String
	p.ImageURL = imageURL.String
	p.Price = price.Float64
	if categoryID.Valid {
		id := categoryID.Int64
		p.CategoryID = &id
	}
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &p.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords of product %d: %w", p.ID, err)
		}
	}
	v, err := decodeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("product %d: %w", p.ID, err)
	}
	p.Vector = v
	return &p, nil
}

// CreateProduct inserts a product and its tags. A zero ID is assigned by the database.
func (s *SQLiteStorage) CreateProduct(ctx context.Context, p *models.Product) error {
	keywordsJSON, err := json.Marshal(p.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	vec, err := encodeVector(p.Vector)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id any
	if p.ID != 0 {
		id = p.ID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO products (id, external_id, title, description, image_url, price, category_id, keywords, product_vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.ExternalID, p.Title, p.Description, p.ImageURL, p.Price, nullableID(p.CategoryID), string(keywordsJSON), vec, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	if p.ID == 0 {
		if p.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	if len(p.Tags) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT OR REPLACE INTO product_tags (product_id, tag, weight, position) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for i, t := range p.Tags {
			if _, err := stmt.ExecContext(ctx, p.ID, t.Text, t.EffectiveWeight(), i); err != nil {
				return fmt.Errorf("failed to insert tag %q: %w", t.Text, err)
			}
		}
	}
	return tx.Commit()
}

// GetProduct returns a product with its tags.
func (s *SQLiteStorage) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	tags, err := s.GetProductTags(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	p.Tags = tags[id]
	return p, nil
}

// GetProducts returns the products that exist among ids, with tags, ordered by id.
func (s *SQLiteStorage) GetProducts(ctx context.Context, ids []int64) ([]*models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
}

// ListProducts returns products ordered by id.
func (s *SQLiteStorage) ListProducts(ctx context.Context, offset, limit int) ([]*models.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
}

// ListProductsByCategory returns up to limit products of a category ordered by id.
func (s *SQLiteStorage) ListProductsByCategory(ctx context.Context, categoryID int64, limit int) ([]*models.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE category_id = ? ORDER BY id LIMIT ?`, categoryID, limit)
}

// ListProductsWithoutVector returns up to limit products lacking a stored vector.
func (s *SQLiteStorage) ListProductsWithoutVector(ctx context.Context, limit int) ([]*models.Product, error) {
	return s.queryProducts(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_vector IS NULL ORDER BY id LIMIT ?`, limit)
}

func (s *SQLiteStorage) queryProducts(ctx context.Context, query string, args ...any) ([]*models.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*models.Product
	var ids []int64
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// release the connection before loading tags; in-memory databases have only one
	_ = rows.Close()
	if len(ids) == 0 {
		return products, nil
	}
	tags, err := s.GetProductTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		p.Tags = tags[p.ID]
	}
	return products, nil
}

// ListProductVectors returns every stored product vector, optionally within one category.
func (s *SQLiteStorage) ListProductVectors(ctx context.Context, categoryID *int64) ([]ProductVector, error) {
	query := `SELECT id, product_vector FROM products WHERE product_vector IS NOT NULL`
	var args []any
	if categoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductVector
	for rows.Next() {
		var pv ProductVector
		var raw sql.NullString
		if err := rows.Scan(&pv.ID, &raw); err != nil {
			return nil, err
		}
		if pv.Vector, err = decodeVector(raw); err != nil {
			return nil, fmt.Errorf("product %d: %w", pv.ID, err)
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

// UpdateProductVector stores the product vector. A nil vector clears it.
func (s *SQLiteStorage) UpdateProductVector(ctx context.Context, id int64, vector []float32) error {
	vec, err := encodeVector(vector)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET product_vector = ? WHERE id = ?`, vec, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteProduct removes a product; tags and interactions cascade.
func (s *SQLiteStorage) DeleteProduct(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return err
}

// Counts returns corpus totals.
func (s *SQLiteStorage) Counts(ctx context.Context) (*Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE product_vector IS NOT NULL),
			(SELECT COUNT(*) FROM product_tags),
			(SELECT COUNT(DISTINCT tag) FROM product_tags),
			(SELECT COUNT(*) FROM tag_vectors),
			(SELECT COUNT(*) FROM categories),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE feature_vector IS NOT NULL),
			(SELECT COUNT(*) FROM interactions)`,
	).Scan(&c.Products, &c.ProductsWithVectors, &c.Tags, &c.UniqueTags, &c.TagVectors,
		&c.Categories, &c.Users, &c.UsersWithVectors, &c.Interactions)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func encodeVector(v []float32) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vector: %w", err)
	}
	return string(b), nil
}

func decodeVector(raw sql.NullString) ([]float32, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(raw.String), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal vector: %w", err)
	}
	if len(v) == 0 {
		return nil, nil
	}
	return v, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func inClause[T any](values []T) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}
