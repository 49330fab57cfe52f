package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/diagram-weaver/internal/types"
)

// JobRecord is one persisted job row.
type JobRecord struct {
	ID         int64      `json:"id"`
	RunID      string     `json:"run_id"`
	Status     string     `json:"status"`
	WorkDir    string     `json:"work_dir"`
	Idea       string     `json:"idea"`
	Artifact   string     `json:"artifact"`
	Detail     string     `json:"detail"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// CreateJob inserts a new pending job and returns its ID.
func (db *DB) CreateJob(ctx context.Context, runID, workDir string) (int64, error) {
	var id int64
	err := db.pool.QueryRow(ctx,
		`INSERT INTO jobs (run_id, status, work_dir)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		runID, string(types.JobPending), workDir,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", err)
	}
	return id, nil
}

// SetJobIdea stores the idea description once the job has one.
func (db *DB) SetJobIdea(ctx context.Context, jobID int64, idea string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs SET idea = $1 WHERE id = $2`,
		idea, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to set job idea: %w", err)
	}
	return nil
}

// CompleteJob records the terminal status together with the final artifact
// on success or the last diagnostic on failure.
func (db *DB) CompleteJob(ctx context.Context, jobID int64, status types.JobStatus, artifact, detail string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, artifact = $2, detail = $3, finished_at = NOW() WHERE id = $4`,
		string(status), artifact, detail, jobID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// RecordAttempt appends one validation attempt. Attempts are insert-only;
// re-recording an ordinal for the same job is a caller bug surfaced as a
// unique violation.
func (db *DB) RecordAttempt(ctx context.Context, jobID int64, attempt types.Attempt) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO attempts (job_id, ordinal, artifact, success, diagnostic, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		jobID, attempt.Ordinal, attempt.Artifact, attempt.Success, attempt.Diagnostic, attempt.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt %d: %w", attempt.Ordinal, err)
	}
	return nil
}

// GetJob retrieves one job by ID, or nil when it does not exist.
func (db *DB) GetJob(ctx context.Context, jobID int64) (*JobRecord, error) {
	var rec JobRecord
	err := db.pool.QueryRow(ctx,
		`SELECT id, run_id, status, work_dir, idea, artifact, detail, created_at, finished_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&rec.ID, &rec.RunID, &rec.Status, &rec.WorkDir, &rec.Idea, &rec.Artifact, &rec.Detail, &rec.CreatedAt, &rec.FinishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &rec, nil
}

// ListJobs retrieves recent jobs, newest first.
func (db *DB) ListJobs(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, status, work_dir, idea, artifact, detail, created_at, finished_at
		 FROM jobs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.Status, &rec.WorkDir, &rec.Idea, &rec.Artifact, &rec.Detail, &rec.CreatedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, rec)
	}
	return jobs, nil
}

// ListAttempts retrieves a job's attempts in ordinal order.
func (db *DB) ListAttempts(ctx context.Context, jobID int64) ([]types.Attempt, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT ordinal, artifact, success, diagnostic, recorded_at
		 FROM attempts WHERE job_id = $1 ORDER BY ordinal ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []types.Attempt
	for rows.Next() {
		var a types.Attempt
		if err := rows.Scan(&a.Ordinal, &a.Artifact, &a.Success, &a.Diagnostic, &a.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, nil
}
