// Package types provides type definitions for structured data used throughout the diagram-weaver system.
package types

import (
	"time"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

// Job status values. A job is Pending from creation until the pipeline exits.
const (
	JobPending   JobStatus = "pending"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one end-to-end diagram generation task. Jobs are mutated only by the
// orchestrator's stage transitions; attempts are append-only.
type Job struct {
	ID        int       `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	WorkDir   string    `json:"work_dir"`
	Status    JobStatus `json:"status"`
	Attempts  []Attempt `json:"attempts,omitempty"`
}

// Attempt records one validation of an artifact within a job. Attempts are
// immutable once recorded; ordinals strictly increase within a job.
type Attempt struct {
	Ordinal    int       `json:"ordinal"`
	Artifact   string    `json:"artifact"`
	Success    bool      `json:"success"`
	Diagnostic string    `json:"diagnostic,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// FailureEntry pairs a failing artifact with the diagnostic it produced.
type FailureEntry struct {
	Artifact   string `json:"artifact"`
	Diagnostic string `json:"diagnostic"`
}

// FailureChain is the ordered sequence of failing attempts accumulated within
// one debugging phase. It is reset when the phase succeeds and is consumed
// exactly once by the solution miner. Entries preserve temporal order.
type FailureChain []FailureEntry

// Append returns the chain extended with a new failure. The receiver is not
// modified so recorded chains can be handed off safely.
func (c FailureChain) Append(artifact, diagnostic string) FailureChain {
	out := make(FailureChain, len(c), len(c)+1)
	copy(out, c)
	return append(out, FailureEntry{Artifact: artifact, Diagnostic: diagnostic})
}
