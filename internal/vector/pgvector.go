package vector

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PGVectorIndex keeps product vectors in a PostgreSQL table with a pgvector column and lets
// the server compute cosine distance (the <=> operator).
type PGVectorIndex struct {
	pool       *pgxpool.Pool
	table      string
	dimensions int
	size       atomic.Int64
}

// NewPGVectorIndex connects to dsn, creates the vector extension and table when missing, and
// loads the current row count.
func NewPGVectorIndex(ctx context.Context, dsn, table string, dimensions int) (*PGVectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	if table == "" {
		table = "product_vectors"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	idx := &PGVectorIndex{pool: pool, table: table, dimensions: dimensions}
	if err := idx.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize vector table: %w", err)
	}
	var n int64
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM "+table).Scan(&n); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to count vectors: %w", err)
	}
	idx.size.Store(n)
	return idx, nil
}

func (p *PGVectorIndex) initSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return err
	}
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGINT PRIMARY KEY,
		embedding vector(%d) NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, p.table, p.dimensions)
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// Type returns the index type identifier.
func (p *PGVectorIndex) Type() string {
	return string(IndexTypePGVector)
}

// Upsert inserts or replaces the vector for id.
func (p *PGVectorIndex) Upsert(ctx context.Context, id int64, vector []float32) error {
	if len(vector) != p.dimensions {
		return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vector), p.dimensions)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding) VALUES ($1, $2::vector)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = NOW()
		RETURNING (xmax = 0)`, p.table)
	var inserted bool
	if err := p.pool.QueryRow(ctx, query, id, pgVector(vector)).Scan(&inserted); err != nil {
		return fmt.Errorf("upsert vector %d: %w", id, err)
	}
	if inserted {
		p.size.Add(1)
	}
	return nil
}

// QueryNearest orders by distance and then id, so ties come back deterministically.
func (p *PGVectorIndex) QueryNearest(ctx context.Context, query []float32, k int) ([]Neighbor, error) {
	if len(query) != p.dimensions {
		return nil, fmt.Errorf("%w: query has %d, expected %d", ErrDimensionMismatch, len(query), p.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`
		SELECT id, embedding <=> $1::vector AS distance
		FROM %s
		ORDER BY distance, id
		LIMIT $2`, p.table)
	rows, err := p.pool.Query(ctx, sql, pgVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("query nearest: %w", err)
	}
	defer rows.Close()

	var neighbors []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.ID, &n.Distance); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// Remove deletes vectors by id.
func (p *PGVectorIndex) Remove(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tag, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ANY($1)", p.table), ids)
	if err != nil {
		return fmt.Errorf("remove vectors: %w", err)
	}
	p.size.Add(-tag.RowsAffected())
	return nil
}

// Size returns the row count tracked since connecting.
func (p *PGVectorIndex) Size() int {
	return int(p.size.Load())
}

// Close releases the connection pool.
func (p *PGVectorIndex) Close() error {
	p.pool.Close()
	return nil
}

// pgVector formats v as a pgvector text literal.
func pgVector(v []float32) string {
	buf := make([]byte, 0, len(v)*13+2)
	buf = append(buf, '[')
	for i, f := range v {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendFloat(buf, float64(f), 'f', -1, 32)
	}
	buf = append(buf, ']')
	return string(buf)
}
