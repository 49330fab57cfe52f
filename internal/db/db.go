// Package db provides PostgreSQL persistence for jobs and their validation
// attempts. The database is optional; callers that run without one persist
// to the filesystem only.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Pool exposes the underlying pool for components that manage their own
// tables, such as the knowledge store.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// EnsureSchema creates the job tables when they do not exist yet.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id          BIGSERIAL PRIMARY KEY,
			run_id      TEXT NOT NULL UNIQUE,
			status      TEXT NOT NULL,
			work_dir    TEXT NOT NULL DEFAULT '',
			idea        TEXT NOT NULL DEFAULT '',
			artifact    TEXT NOT NULL DEFAULT '',
			detail      TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS attempts (
			id          BIGSERIAL PRIMARY KEY,
			job_id      BIGINT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			ordinal     INT NOT NULL,
			artifact    TEXT NOT NULL,
			success     BOOLEAN NOT NULL,
			diagnostic  TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (job_id, ordinal)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure job schema: %w", err)
	}
	return nil
}
