// Package factory runs many jobs concurrently on a fixed worker pool,
// handing out job numbers until the target count is reached or the context
// is canceled.
package factory

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonathan/diagram-weaver/internal/job"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// RunJobFunc executes one numbered job. The default wires in the
// orchestrator; tests substitute their own.
type RunJobFunc func(ctx context.Context, number int) (*types.Job, error)

// Summary aggregates a batch run.
type Summary struct {
	Started   int64
	Succeeded int64
	Failed    int64
}

// Factory submits replacement jobs as workers free up.
type Factory struct {
	RunJob  RunJobFunc
	Workers int
	// MaxJobs is the total number of jobs to run; 0 means run until the
	// context is canceled.
	MaxJobs int
}

// New creates a factory that runs orchestrator jobs over the shared deps.
func New(deps job.Deps, workers, maxJobs int) *Factory {
	return &Factory{
		Workers: workers,
		MaxJobs: maxJobs,
		RunJob: func(ctx context.Context, number int) (*types.Job, error) {
			return job.NewOrchestrator(deps).Run(ctx, job.Options{Number: number})
		},
	}
}

// Run drives the pool until the job target is met or ctx is canceled. Job
// failures are counted, not propagated; a failed job never stops the batch.
func (f *Factory) Run(ctx context.Context) (*Summary, error) {
	workers := f.Workers
	if workers <= 0 {
		workers = 1
	}

	var summary Summary
	var counter atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					return nil
				}
				number := int(counter.Add(1))
				if f.MaxJobs != 0 && number > f.MaxJobs {
					return nil
				}
				atomic.AddInt64(&summary.Started, 1)

				fmt.Printf("\n--- Starting Job #%d ---\n", number)
				start := time.Now()
				if _, err := f.RunJob(gctx, number); err != nil {
					atomic.AddInt64(&summary.Failed, 1)
					fmt.Printf("Job #%d failed: %v\n", number, err)
				} else {
					atomic.AddInt64(&summary.Succeeded, 1)
				}
				fmt.Printf("--- Job #%d finished in %.2fs ---\n", number, time.Since(start).Seconds())
			}
		})
	}

	err := g.Wait()
	return &summary, err
}
