package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperjump/osusume/internal/models"
)

// CreateUser inserts a user. A zero ID is assigned by the database.
func (s *SQLiteStorage) CreateUser(ctx context.Context, u *models.User) error {
	vec, err := encodeVector(u.Vector)
	if err != nil {
		return err
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	var id any
	if u.ID != 0 {
		id = u.ID
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, feature_vector, vector_updated_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, u.Name, vec, u.VectorUpdatedAt, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if u.ID == 0 {
		u.ID, err = res.LastInsertId()
	}
	return err
}

// EnsureUser creates an empty user row for id if none exists.
func (s *SQLiteStorage) EnsureUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id, name, created_at) VALUES (?, ?, ?)`,
		id, fmt.Sprintf("user_%d", id), time.Now())
	return err
}

// GetUser returns a user by id.
func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var (
		u         models.User
		name      sql.NullString
		vec       sql.NullString
		updatedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, feature_vector, vector_updated_at, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &name, &vec, &updatedAt, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	u.Name = name.String
	if u.Vector, err = decodeVector(vec); err != nil {
		return nil, fmt.Errorf("user %d: %w", id, err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		u.VectorUpdatedAt = &t
	}
	return &u, nil
}

// UpdateUserVector stores the profile vector and its version timestamp.
func (s *SQLiteStorage) UpdateUserVector(ctx context.Context, id int64, vector []float32, at time.Time) error {
	vec, err := encodeVector(vector)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET feature_vector = ?, vector_updated_at = ? WHERE id = ?`, vec, at, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// CreateInteraction appends an interaction and sets its ID.
func (s *SQLiteStorage) CreateInteraction(ctx context.Context, in *models.Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (user_id, product_id, interaction_type, interaction_score, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		in.UserID, in.ProductID, string(in.Kind), in.Score, in.SessionID, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	in.ID, err = res.LastInsertId()
	return err
}

// ListInteractionsByUser returns a user's interactions in id order.
func (s *SQLiteStorage) ListInteractionsByUser(ctx context.Context, userID int64) ([]models.Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, product_id, interaction_type, interaction_score, session_id, created_at
		 FROM interactions WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Interaction
	for rows.Next() {
		var in models.Interaction
		var kind string
		var session sql.NullString
		if err := rows.Scan(&in.ID, &in.UserID, &in.ProductID, &kind, &in.Score, &session, &in.CreatedAt); err != nil {
			return nil, err
		}
		in.Kind = models.InteractionKind(kind)
		in.SessionID = session.String
		out = append(out, in)
	}
	return out, rows.Err()
}

// MostInteractedProducts returns product ids by interaction count descending, then id.
func (s *SQLiteStorage) MostInteractedProducts(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id FROM interactions GROUP BY product_id
		 ORDER BY COUNT(*) DESC, product_id LIMIT ?`, limit)
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
