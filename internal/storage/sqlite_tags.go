package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/hyperjump/osusume/internal/models"
)

// GetProductTags returns the tags of each product in insertion order.
func (s *SQLiteStorage) GetProductTags(ctx context.Context, ids []int64) (map[int64][]models.Tag, error) {
	out := make(map[int64][]models.Tag, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, tag, weight FROM product_tags
		 WHERE product_id IN (`+placeholders+`) ORDER BY product_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var t models.Tag
		if err := rows.Scan(&id, &t.Text, &t.Weight); err != nil {
			return nil, err
		}
		out[id] = append(out[id], t)
	}
	return out, rows.Err()
}

// SearchProductsByTag returns ids of products having a tag that contains word.
func (s *SQLiteStorage) SearchProductsByTag(ctx context.Context, word string, limit int) ([]int64, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(word)
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT product_id FROM product_tags
		 WHERE tag LIKE ? ESCAPE '\' ORDER BY product_id LIMIT ?`,
		"%"+escaped+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListDistinctTags returns every distinct tag in lexical order.
func (s *SQLiteStorage) ListDistinctTags(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT DISTINCT tag FROM product_tags ORDER BY tag`)
}

// ListTagsWithoutVector returns up to limit distinct tags with no stored vector.
func (s *SQLiteStorage) ListTagsWithoutVector(ctx context.Context, limit int) ([]string, error) {
	return s.queryStrings(ctx, `
		SELECT DISTINCT pt.tag FROM product_tags pt
		LEFT JOIN tag_vectors tv ON tv.tag = pt.tag
		WHERE tv.tag IS NULL
		ORDER BY pt.tag LIMIT ?`, limit)
}

func (s *SQLiteStorage) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetTagVector returns the stored vector for tag.
func (s *SQLiteStorage) GetTagVector(ctx context.Context, tag string) ([]float32, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT vector FROM tag_vectors WHERE tag = ?`, tag).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := decodeVector(raw)
	if err != nil {
		return nil, false, fmt.Errorf("tag %q: %w", tag, err)
	}
	return v, v != nil, nil
}

// UpsertTagVector stores the vector for tag.
func (s *SQLiteStorage) UpsertTagVector(ctx context.Context, tag string, vector []float32) error {
	vec, err := encodeVector(vector)
	if err != nil {
		return err
	}
	if vec == nil {
		return fmt.Errorf("empty vector for tag %q", tag)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tag_vectors (tag, vector, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(tag) DO UPDATE SET vector = excluded.vector, updated_at = CURRENT_TIMESTAMP`,
		tag, vec)
	return err
}

// UpsertCategory inserts or replaces a category.
func (s *SQLiteStorage) UpsertCategory(ctx context.Context, c *models.Category) error {
	return upsertCategory(ctx, s.db, c)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertCategory(ctx context.Context, db execer, c *models.Category) error {
	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO categories (id, name, keywords, description) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, keywords = excluded.keywords, description = excluded.description`,
		c.ID, c.Name, string(keywordsJSON), c.Description)
	return err
}

// ReplaceCategories atomically replaces the whole category table.
func (s *SQLiteStorage) ReplaceCategories(ctx context.Context, cats []models.Category) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM categories`); err != nil {
		return err
	}
	for i := range cats {
		if err := upsertCategory(ctx, tx, &cats[i]); err != nil {
			return fmt.Errorf("category %d: %w", cats[i].ID, err)
		}
	}
	return tx.Commit()
}

// GetCategory returns a category by id.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx,
		`SELECT id, name, keywords, description FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, models.ErrNotFound)
	}
	return c, err
}

// ListCategories returns all categories ordered by id.
func (s *SQLiteStorage) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, keywords, description FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cats []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

func scanCategory(row rowScanner) (*models.Category, error) {
	var c models.Category
	var keywords, description sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &keywords, &description); err != nil {
		return nil, err
	}
	c.Description = description.String
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &c.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords of category %d: %w", c.ID, err)
		}
	}
	return &c, nil
}
