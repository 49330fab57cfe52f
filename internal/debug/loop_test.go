package debug

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/observability"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// scriptedRunner validates artifacts by looking them up in a table of
// known-good artifacts.
type scriptedRunner struct {
	mu       sync.Mutex
	valid    map[string]bool
	diag     map[string]string
	runCount int
}

func (r *scriptedRunner) Run(_ context.Context, artifact string, _ string) (*sandbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runCount++
	if r.valid[artifact] {
		return &sandbox.Result{OK: true}, nil
	}
	diag := r.diag[artifact]
	if diag == "" {
		diag = "Traceback (most recent call last):\nNameError: name 'x' is not defined"
	}
	return &sandbox.Result{Output: diag}, nil
}

// scriptedFixer returns queued replies in order, recycling the last one.
type scriptedFixer struct {
	mu         sync.Mutex
	id         string
	replies    []string
	calls      int
	lastPrompt string
}

func (f *scriptedFixer) ID() string { return f.id }

func (f *scriptedFixer) Generate(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(messages) > 0 {
		f.lastPrompt = messages[len(messages)-1].Content
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *scriptedFixer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingMiner struct {
	mu       sync.Mutex
	chains   []types.FailureChain
	artifact string
}

func (m *recordingMiner) Submit(chain types.FailureChain, artifact string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains = append(m.chains, chain)
	m.artifact = artifact
}

func codeBlock(code string) string {
	return "```python\n" + code + "\n```"
}

func TestRunReturnsImmediatelyWhenArtifactIsValid(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"good": true}}
	miner := &recordingMiner{}
	loop := &Loop{Runner: runner, Miner: miner, MaxAttempts: 5}

	artifact, err := loop.Run(context.Background(), "good", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "good", artifact)
	assert.Empty(t, miner.chains, "no failures means nothing to mine")
}

func TestRunRepairsAndSubmitsChainToMiner(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"fixed": true}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("fixed")}}
	miner := &recordingMiner{}
	loop := &Loop{Runner: runner, Fixers: []llm.Client{fixer}, Miner: miner, MaxAttempts: 5}

	artifact, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "fixed", artifact)

	require.Len(t, miner.chains, 1)
	require.Len(t, miner.chains[0], 1)
	assert.Equal(t, "broken", miner.chains[0][0].Artifact)
	assert.Contains(t, miner.chains[0][0].Diagnostic, "NameError")
	assert.Equal(t, "fixed", miner.artifact)
}

func TestRunExhaustsBudgetAndDiscardsChain(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("still broken")}}
	miner := &recordingMiner{}
	loop := &Loop{Runner: runner, Fixers: []llm.Client{fixer}, Miner: miner, MaxAttempts: 3}

	artifact, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, artifact)
	assert.Contains(t, err.Error(), "3 attempts")
	assert.Empty(t, miner.chains, "chain must be discarded without a successful endpoint")
}

func TestRunAdoptsFirstCandidateWhenNoWinner(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"second try": true}}
	// Round 1 produces an invalid candidate, round 2 a valid one. The
	// invalid candidate must still be adopted as the working artifact.
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("first try"), codeBlock("second try")}}
	var attempts []types.Attempt
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		MaxAttempts: 5,
		Record:      func(a types.Attempt) { attempts = append(attempts, a) },
	}

	artifact, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "second try", artifact)

	// Round 2 validated the adopted candidate, not the original artifact.
	require.GreaterOrEqual(t, len(attempts), 2)
	assert.Equal(t, "broken", attempts[0].Artifact)
	assert.Equal(t, "first try", attempts[1].Artifact)
}

func TestRunKeepsArtifactWhenRoundYieldsNoCandidates(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{}}
	// The fixer never emits a code block, so no candidate has an artifact.
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{"I cannot help with that"}}
	var attempts []types.Attempt
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		MaxAttempts: 2,
		Record:      func(a types.Attempt) { attempts = append(attempts, a) },
	}

	_, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.ErrorIs(t, err, ErrExhausted)
	for _, a := range attempts {
		assert.Equal(t, "broken", a.Artifact, "artifact must never be arbitrarily reset")
	}
}

func TestRunRecordsAttemptsWithIncreasingOrdinals(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("try again")}}
	var attempts []types.Attempt
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		MaxAttempts: 3,
		Record:      func(a types.Attempt) { attempts = append(attempts, a) },
	}

	_, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.ErrorIs(t, err, ErrExhausted)
	require.Len(t, attempts, 3)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Ordinal)
		assert.False(t, a.Success)
		assert.NotEmpty(t, a.Diagnostic)
	}
}

func TestRunWinnerAmongMultipleFixers(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"winning fix": true}}
	bad := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("losing fix")}}
	good := &scriptedFixer{id: "fixer-1", replies: []string{codeBlock("winning fix")}}
	loop := &Loop{Runner: runner, Fixers: []llm.Client{bad, good}, MaxAttempts: 2}

	artifact, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "winning fix", artifact)
}

func TestRunRecordsWinningRepairAsSuccess(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"fixed": true}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("fixed")}}
	var attempts []types.Attempt
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		MaxAttempts: 5,
		Record:      func(a types.Attempt) { attempts = append(attempts, a) },
	}

	artifact, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "fixed", artifact)

	// The winning repair re-enters validation, so it shows up in the
	// attempt record like any other round.
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, "fixed", attempts[1].Artifact)
}

func TestRepairSeedsExternalDiagnostic(t *testing.T) {
	// The artifact runs cleanly; only the seeded diagnostic marks it as
	// defective, so the fixers must be raced instead of trusting the
	// sandbox.
	runner := &scriptedRunner{valid: map[string]bool{"looks fine": true, "fixed": true}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("fixed")}}
	miner := &recordingMiner{}
	var attempts []types.Attempt
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		Miner:       miner,
		MaxAttempts: 3,
		Record:      func(a types.Attempt) { attempts = append(attempts, a) },
	}

	artifact, err := loop.Repair(context.Background(), "looks fine", t.TempDir(), "render produced an empty scene")
	require.NoError(t, err)
	assert.Equal(t, "fixed", artifact)
	assert.Greater(t, fixer.callCount(), 0)
	assert.Contains(t, fixer.lastPrompt, "RENDER DIAGNOSTIC")
	assert.Contains(t, fixer.lastPrompt, "render produced an empty scene")

	require.GreaterOrEqual(t, len(attempts), 2)
	assert.False(t, attempts[0].Success)
	assert.Equal(t, "render produced an empty scene", attempts[0].Diagnostic)
	assert.True(t, attempts[len(attempts)-1].Success)

	require.Len(t, miner.chains, 1, "repaired render defects are mined like runtime defects")
	assert.Equal(t, "render produced an empty scene", miner.chains[0][0].Diagnostic)
}

func TestRunPrintsRaceOutcomeThroughPrinter(t *testing.T) {
	runner := &scriptedRunner{valid: map[string]bool{"fixed": true}}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{codeBlock("fixed")}}
	var buf bytes.Buffer
	loop := &Loop{
		Runner:      runner,
		Fixers:      []llm.Client{fixer},
		Printer:     observability.NewPrinter(&buf),
		MaxAttempts: 3,
	}

	_, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "CANDIDATE RACE")
	assert.Contains(t, out, "fixer-0")
}

func TestRunExhaustionMentionsLastDiagnosticLine(t *testing.T) {
	runner := &scriptedRunner{
		valid: map[string]bool{},
		diag:  map[string]string{"broken": "line one\nValueError: bad anchor\n"},
	}
	fixer := &scriptedFixer{id: "fixer-0", replies: []string{"no code here"}}
	loop := &Loop{Runner: runner, Fixers: []llm.Client{fixer}, MaxAttempts: 1}

	_, err := loop.Run(context.Background(), "broken", t.TempDir())
	require.ErrorIs(t, err, ErrExhausted)
	assert.True(t, strings.Contains(err.Error(), "ValueError: bad anchor"))
}
