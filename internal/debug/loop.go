// Package debug drives the runtime repair loop: validate the working
// artifact in the sandbox, and on failure race the fixer handles over a
// transcript enriched with retrieved context until the artifact runs or the
// attempt budget is spent.
package debug

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/diagram-weaver/internal/knowledge"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/mining"
	"github.com/jonathan/diagram-weaver/internal/observability"
	"github.com/jonathan/diagram-weaver/internal/prompts"
	"github.com/jonathan/diagram-weaver/internal/race"
	"github.com/jonathan/diagram-weaver/internal/retrieval"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// ErrExhausted is returned when the attempt budget is spent without
// producing a runnable artifact.
var ErrExhausted = errors.New("runtime debug attempts exhausted")

// DefaultMaxAttempts bounds runtime repair rounds per invocation.
const DefaultMaxAttempts = 20

// AttemptRecorder receives every failed validation for persistence. It must
// not block for long; recording errors are the recorder's problem.
type AttemptRecorder func(attempt types.Attempt)

// Loop holds the collaborators for runtime debugging. Searcher, Knowledge,
// Miner, Record, and Printer are optional; a nil field disables that
// concern.
type Loop struct {
	Runner      sandbox.Runner
	Fixers      []llm.Client
	Searcher    retrieval.Searcher
	Knowledge   knowledge.Store
	Miner       mining.Submitter
	Record      AttemptRecorder
	Printer     *observability.Printer
	MaxAttempts int
	RetrievalK  int
}

// Run validates and repairs the artifact until it executes cleanly. On
// success it returns the runnable artifact and, when failures were overcome
// along the way, hands the failure chain to the miner without waiting on it.
// On budget exhaustion it returns ErrExhausted with the last diagnostic
// attached; the failure chain is discarded since there is no successful
// endpoint to learn from.
//
// Progress is never lost between rounds: the working artifact only ever
// advances to a candidate produced in the current round, or stays unchanged
// when the round produced no artifact at all.
func (l *Loop) Run(ctx context.Context, initialArtifact string, workDir string) (string, error) {
	return l.run(ctx, initialArtifact, workDir, "")
}

// Repair debugs an artifact whose defect was observed outside the sandbox,
// such as a failed or empty render. The artifact itself may well execute
// cleanly, so the first round is seeded with the caller's diagnostic
// instead of a sandbox validation; subsequent rounds proceed as in Run.
func (l *Loop) Repair(ctx context.Context, artifact string, workDir string, diagnostic string) (string, error) {
	return l.run(ctx, artifact, workDir, diagnostic)
}

func (l *Loop) run(ctx context.Context, initialArtifact string, workDir string, seedDiagnostic string) (string, error) {
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	artifact := initialArtifact
	var chain types.FailureChain
	var transcript []llm.Message
	lastDiagnostic := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var ok bool
		var diagnostic string
		promptKey := "runtime_repair"
		if attempt == 1 && seedDiagnostic != "" {
			// The caller already knows this artifact is defective; racing
			// fixers on its diagnostic beats re-running a script that
			// executes without error.
			diagnostic = seedDiagnostic
			promptKey = "render_repair"
		} else {
			ok, diagnostic = l.validate(ctx, artifact, workDir)
		}
		if ok {
			l.recordAttempt(attempt, artifact, true, "")
			return l.succeed(artifact, chain), nil
		}
		lastDiagnostic = diagnostic

		chain = chain.Append(artifact, diagnostic)
		l.recordAttempt(attempt, artifact, false, diagnostic)
		fmt.Printf("  Attempt %d/%d failed: %s\n", attempt, maxAttempts, knowledge.PatternKey(diagnostic))

		data := map[string]string{
			"Artifact":   artifact,
			"Diagnostic": diagnostic,
		}
		if promptKey == "runtime_repair" {
			data["Context"] = l.gatherContext(ctx, diagnostic)
		}
		transcript = append(transcript, llm.UserMessage(prompts.Format(prompts.MustGet("repair.json", promptKey), data)))

		outcome := race.Run(ctx, transcript, l.Fixers, func(vctx context.Context, candidate string) (bool, string) {
			return l.validate(vctx, candidate, workDir)
		})
		if l.Printer != nil {
			l.Printer.PrintRaceOutcome(outcome.Winner, outcome.All)
		}

		if outcome.Winner != nil {
			// Loop back to validation with the winner so the successful
			// attempt is recorded like any other round.
			fmt.Printf("  Repair by %s passed validation.\n", outcome.Winner.HandleID)
			artifact = outcome.Winner.Artifact
			transcript = append(transcript, llm.AssistantMessage(outcome.Winner.Response))
			continue
		}

		// No winner. Adopt the first candidate that produced an artifact so
		// the next round does not just repeat the same request, and fold
		// every handle's failed approach into the shared transcript.
		if first := race.FirstWithArtifact(outcome.All); first != nil {
			artifact = first.Artifact
			lastDiagnostic = first.Diagnostic
			transcript = append(transcript, llm.AssistantMessage(first.Response))
		}
		summary := race.BuildFailureSummary(attempt, outcome.All, knowledge.PatternKey(diagnostic))
		transcript = append(transcript, llm.UserMessage(summary))
	}

	return "", fmt.Errorf("%w after %d attempts, last diagnostic: %s",
		ErrExhausted, maxAttempts, knowledge.PatternKey(lastDiagnostic))
}

// validate runs the artifact in its own isolation root. Infrastructure
// failures count as invalid with the failure text as diagnostic.
func (l *Loop) validate(ctx context.Context, artifact string, workDir string) (bool, string) {
	result, err := l.Runner.Run(ctx, artifact, workDir)
	if err != nil {
		return false, fmt.Sprintf("sandbox infrastructure failure: %v", err)
	}
	if !result.OK {
		return false, result.Output
	}
	return true, ""
}

// gatherContext pulls documentation and prior-solution context keyed by the
// diagnostic's pattern. Retrieval problems degrade to less context, never to
// a failed round.
func (l *Loop) gatherContext(ctx context.Context, diagnostic string) string {
	key := knowledge.PatternKey(diagnostic)
	k := l.RetrievalK
	if k <= 0 {
		k = 3
	}

	var parts []string
	if l.Searcher != nil {
		docs, err := l.Searcher.Search(ctx, key, k)
		if err != nil {
			fmt.Printf("Warning: documentation retrieval failed: %v\n", err)
		} else if fragment := retrieval.FormatDocuments(docs); fragment != "" {
			parts = append(parts, fragment)
		}
	}
	if l.Knowledge != nil {
		solutions, err := l.Knowledge.MatchSolutions(ctx, diagnostic, k)
		if err != nil {
			fmt.Printf("Warning: knowledge store lookup failed: %v\n", err)
		} else if fragment := knowledge.FormatContext(solutions); fragment != "" {
			parts = append(parts, fragment)
		}
	}

	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return parts[0] + "\n\n" + parts[1]
	}
}

// succeed submits the failure chain for background mining when there is
// something to learn from. It never waits on mining.
func (l *Loop) succeed(artifact string, chain types.FailureChain) string {
	if l.Miner != nil && len(chain) > 0 {
		l.Miner.Submit(chain, artifact)
	}
	return artifact
}

func (l *Loop) recordAttempt(ordinal int, artifact string, success bool, diagnostic string) {
	if l.Record == nil {
		return
	}
	l.Record(types.Attempt{
		Ordinal:    ordinal,
		Artifact:   artifact,
		Success:    success,
		Diagnostic: diagnostic,
		RecordedAt: time.Now(),
	})
}
