package factory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diagram-weaver/internal/types"
)

func TestRunExecutesExactlyMaxJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[int]bool{}

	f := &Factory{
		Workers: 3,
		MaxJobs: 7,
		RunJob: func(_ context.Context, number int) (*types.Job, error) {
			mu.Lock()
			defer mu.Unlock()
			seen[number] = true
			return &types.Job{Status: types.JobSucceeded}, nil
		},
	}

	summary, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.Started)
	assert.Equal(t, int64(7), summary.Succeeded)
	assert.Len(t, seen, 7)
	for n := 1; n <= 7; n++ {
		assert.True(t, seen[n], "job number %d was never run", n)
	}
}

func TestRunCountsFailuresWithoutStopping(t *testing.T) {
	f := &Factory{
		Workers: 2,
		MaxJobs: 4,
		RunJob: func(_ context.Context, number int) (*types.Job, error) {
			if number%2 == 0 {
				return nil, errors.New("boom")
			}
			return &types.Job{Status: types.JobSucceeded}, nil
		},
	}

	summary, err := f.Run(context.Background())
	require.NoError(t, err, "job failures must not fail the batch")
	assert.Equal(t, int64(4), summary.Started)
	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Equal(t, int64(2), summary.Failed)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 16)
	f := &Factory{
		Workers: 2,
		MaxJobs: 0, // unbounded
		RunJob: func(jctx context.Context, _ int) (*types.Job, error) {
			started <- struct{}{}
			select {
			case <-jctx.Done():
			case <-time.After(50 * time.Millisecond):
			}
			return &types.Job{}, nil
		},
	}

	done := make(chan struct{})
	go func() {
		_, _ = f.Run(ctx)
		close(done)
	}()

	<-started
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("factory did not stop after cancellation")
	}
}
