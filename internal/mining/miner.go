// Package mining distills generalized (error pattern, solution) pairs from
// completed failure chains and writes them to the knowledge store. Mining
// runs on a background worker pool shared across jobs; submitting work never
// blocks job progress and job outcomes never depend on mining completion.
package mining

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jonathan/diagram-weaver/internal/knowledge"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/prompts"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// Submitter accepts fire-and-forget mining work.
type Submitter interface {
	Submit(chain types.FailureChain, successfulArtifact string)
}

type task struct {
	chain    types.FailureChain
	artifact string
}

// Miner mines failure chains on a fixed pool of background workers.
type Miner struct {
	handle llm.Client
	store  knowledge.Store
	tasks  chan task
	wg     sync.WaitGroup
	once   sync.Once
}

// New creates a miner with the given queue capacity. Workers are launched
// by Start.
func New(handle llm.Client, store knowledge.Store, queueSize int) *Miner {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Miner{
		handle: handle,
		store:  store,
		tasks:  make(chan task, queueSize),
	}
}

// Start launches the worker pool. Workers exit when Close is called or the
// context is canceled.
func (m *Miner) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for {
				select {
				case t, ok := <-m.tasks:
					if !ok {
						return
					}
					if err := m.MineOnce(ctx, t.chain, t.artifact); err != nil {
						fmt.Printf("Warning: solution mining failed: %v\n", err)
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
}

// Submit enqueues a mining task without blocking. When the queue is
// saturated the task is skipped; losing a mining opportunity is preferable
// to stalling a job.
func (m *Miner) Submit(chain types.FailureChain, successfulArtifact string) {
	if len(chain) == 0 || successfulArtifact == "" {
		return
	}
	select {
	case m.tasks <- task{chain: chain, artifact: successfulArtifact}:
	default:
		fmt.Printf("Warning: mining queue full, skipping chain of %d failures\n", len(chain))
	}
}

// Close stops accepting work and waits for in-flight mining to drain.
func (m *Miner) Close() {
	m.once.Do(func() { close(m.tasks) })
	m.wg.Wait()
}

// MineOnce derives solutions from one failure chain and upserts them.
// Duplicate calls for the same chain only re-upsert the same entries, so
// mining is idempotent-safe by construction.
func (m *Miner) MineOnce(ctx context.Context, chain types.FailureChain, successfulArtifact string) error {
	prompt := prompts.Format(prompts.MustGet("mining.json", "mine"), map[string]string{
		"Chain":    formatChain(chain),
		"Artifact": successfulArtifact,
	})

	response, err := m.handle.Generate(ctx, []llm.Message{llm.UserMessage(prompt)})
	if err != nil {
		return fmt.Errorf("miner generation failed: %w", err)
	}

	solutions := ParseSolutions(response)
	for _, sol := range solutions {
		if err := m.store.Upsert(ctx, sol.Pattern, sol.Summary); err != nil {
			return fmt.Errorf("failed to store mined solution: %w", err)
		}
	}
	return nil
}

// ParseSolutions extracts (pattern, summary) pairs from a miner response.
// Pairs with a missing half are dropped; an empty result is valid, as the
// miner must not fabricate a solution for an unresolved pattern.
func ParseSolutions(response string) []types.Solution {
	var out []types.Solution
	var pattern string

	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Error Pattern:"):
			pattern = strings.TrimSpace(strings.TrimPrefix(line, "Error Pattern:"))
		case strings.HasPrefix(line, "Solution Summary:"):
			summary := strings.TrimSpace(strings.TrimPrefix(line, "Solution Summary:"))
			if pattern != "" && summary != "" {
				out = append(out, types.Solution{Pattern: pattern, Summary: summary})
			}
			pattern = ""
		}
	}
	return out
}

// formatChain renders the ordered failure chain for the mining prompt.
func formatChain(chain types.FailureChain) string {
	var sb strings.Builder
	for i, entry := range chain {
		fmt.Fprintf(&sb, "FAILED ATTEMPT #%d:\n```python\n%s\n```\nERROR:\n```\n%s\n```\n\n", i+1, entry.Artifact, entry.Diagnostic)
	}
	return strings.TrimRight(sb.String(), "\n")
}
