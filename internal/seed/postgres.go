package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTopicNotFound is returned by [PostgresStore.Get] for an unknown topic id.
var ErrTopicNotFound = errors.New("seed: topic not found")

// Schema is the SQL DDL for the matrix_topics table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS matrix_topics (
    id         TEXT PRIMARY KEY,
    topic      TEXT NOT NULL,
    columns    JSONB NOT NULL DEFAULT '[]',
    rows       JSONB NOT NULL DEFAULT '[]',
    summary    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_matrix_topics_updated ON matrix_topics(updated_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TopicSummary is one entry of [PostgresStore.List].
type TopicSummary struct {
	ID        string
	Topic     string
	UpdatedAt time.Time
}

// PostgresStore keeps matrix documents in PostgreSQL. As a [Source] it
// loads the document named by TopicID.
type PostgresStore struct {
	db DB

	// TopicID selects the document returned by Load.
	TopicID string
}

// NewPostgresStore returns a store using db. The caller is responsible for
// calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB, topicID string) *PostgresStore {
	return &PostgresStore{db: db, TopicID: topicID}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("seed: migrate: %w", err)
	}
	return nil
}

// Load implements [Source].
func (s *PostgresStore) Load(ctx context.Context) (Seed, error) {
	m, err := s.Get(ctx, s.TopicID)
	if err != nil {
		return Seed{}, err
	}
	return m.Seed(), nil
}

// Get returns the matrix document stored under id. Unknown ids return an
// error wrapping [ErrTopicNotFound].
func (s *PostgresStore) Get(ctx context.Context, id string) (Matrix, error) {
	const query = `SELECT topic, columns, rows, summary FROM matrix_topics WHERE id = $1`

	var (
		m                  Matrix
		colsJSON, rowsJSON []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&m.Topic, &colsJSON, &rowsJSON, &m.Summary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Matrix{}, fmt.Errorf("%w: %q", ErrTopicNotFound, id)
		}
		return Matrix{}, fmt.Errorf("seed: get %q: %w", id, err)
	}
	if err := json.Unmarshal(colsJSON, &m.Columns); err != nil {
		return Matrix{}, fmt.Errorf("seed: unmarshal columns: %w", err)
	}
	if err := json.Unmarshal(rowsJSON, &m.Rows); err != nil {
		return Matrix{}, fmt.Errorf("seed: unmarshal rows: %w", err)
	}
	return m, nil
}

// Put inserts or replaces the document stored under id.
func (s *PostgresStore) Put(ctx context.Context, id string, m Matrix) error {
	if id == "" {
		return errors.New("seed: put: id is required")
	}
	if m.Topic == "" {
		return errors.New("seed: put: topic is required")
	}
	colsJSON, err := json.Marshal(emptySlice(m.Columns))
	if err != nil {
		return fmt.Errorf("seed: marshal columns: %w", err)
	}
	rowsJSON, err := json.Marshal(emptySlice(m.Rows))
	if err != nil {
		return fmt.Errorf("seed: marshal rows: %w", err)
	}

	const query = `
		INSERT INTO matrix_topics (id, topic, columns, rows, summary)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			topic = EXCLUDED.topic, columns = EXCLUDED.columns,
			rows = EXCLUDED.rows, summary = EXCLUDED.summary,
			updated_at = now()`

	if _, err := s.db.Exec(ctx, query, id, m.Topic, colsJSON, rowsJSON, m.Summary); err != nil {
		return fmt.Errorf("seed: put %q: %w", id, err)
	}
	return nil
}

// List returns every stored topic, most recently updated first.
func (s *PostgresStore) List(ctx context.Context) ([]TopicSummary, error) {
	const query = `SELECT id, topic, updated_at FROM matrix_topics ORDER BY updated_at DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("seed: list: %w", err)
	}
	defer rows.Close()

	var out []TopicSummary
	for rows.Next() {
		var t TopicSummary
		if err := rows.Scan(&t.ID, &t.Topic, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("seed: list scan: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("seed: list: %w", err)
	}
	return out, nil
}

func emptySlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
