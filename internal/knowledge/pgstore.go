package knowledge

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/diagram-weaver/internal/types"
)

// PGStore is the PostgreSQL-backed knowledge store. The solutions table is
// keyed by pattern with ON CONFLICT upsert; solution_audit is append-only.
type PGStore struct {
	pool    *pgxpool.Pool
	logPath string
	logMu   sync.Mutex
}

// NewPGStore creates a knowledge store over an existing connection pool.
// logPath may be empty to disable the human-readable log file.
func NewPGStore(pool *pgxpool.Pool, logPath string) *PGStore {
	return &PGStore{pool: pool, logPath: logPath}
}

// EnsureSchema creates the knowledge tables if they do not exist.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS solutions (
			pattern TEXT PRIMARY KEY,
			summary TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create solutions table: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS solution_audit (
			id BIGSERIAL PRIMARY KEY,
			pattern TEXT NOT NULL,
			summary TEXT NOT NULL,
			written_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create solution_audit table: %w", err)
	}
	return nil
}

// Upsert writes a solution with last-write-wins semantics and appends the
// write to the audit trail and the log file. Concurrent upserts for the same
// pattern resolve to one keyed entry; both audit rows are retained.
func (s *PGStore) Upsert(ctx context.Context, pattern, summary string) error {
	if pattern == "" || summary == "" {
		return fmt.Errorf("pattern and summary are required")
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO solutions (pattern, summary, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (pattern) DO UPDATE SET summary = $2, updated_at = NOW()`,
		pattern, summary,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert solution: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO solution_audit (pattern, summary) VALUES ($1, $2)`,
		pattern, summary,
	)
	if err != nil {
		return fmt.Errorf("failed to append solution audit: %w", err)
	}

	s.appendLog(pattern, summary)
	return nil
}

// RecentSolutions returns up to k solutions ordered by most recent write.
func (s *PGStore) RecentSolutions(ctx context.Context, k int) ([]types.Solution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pattern, summary, updated_at FROM solutions ORDER BY updated_at DESC LIMIT $1`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent solutions: %w", err)
	}
	defer rows.Close()

	var out []types.Solution
	for rows.Next() {
		var sol types.Solution
		if err := rows.Scan(&sol.Pattern, &sol.Summary, &sol.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan solution: %w", err)
		}
		out = append(out, sol)
	}
	return out, rows.Err()
}

// MatchSolutions returns an exact pattern match when one exists, otherwise
// the most recent k entries as weaker context.
func (s *PGStore) MatchSolutions(ctx context.Context, diagnostic string, k int) ([]types.Solution, error) {
	key := PatternKey(diagnostic)
	if key != "" {
		rows, err := s.pool.Query(ctx,
			`SELECT pattern, summary, updated_at FROM solutions WHERE pattern = $1`, key)
		if err != nil {
			return nil, fmt.Errorf("failed to match solution: %w", err)
		}
		var out []types.Solution
		for rows.Next() {
			var sol types.Solution
			if err := rows.Scan(&sol.Pattern, &sol.Summary, &sol.UpdatedAt); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan solution: %w", err)
			}
			out = append(out, sol)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return s.RecentSolutions(ctx, k)
}

// appendLog writes the human-readable log entry. Best effort: log failures
// never fail the upsert.
func (s *PGStore) appendLog(pattern, summary string) {
	if s.logPath == "" {
		return
	}

	s.logMu.Lock()
	defer s.logMu.Unlock()

	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer func() { _ = f.Close() }()

	entry := fmt.Sprintf("\n---\n\n**Timestamp:** %s\n\n**Error Pattern:**\n```\n%s\n```\n\n**Solution:**\n```\n%s\n```\n",
		time.Now().Format("2006-01-02 15:04:05"), pattern, summary)
	_, _ = f.WriteString(entry)
}
