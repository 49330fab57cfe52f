package race

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// fakeHandle is a scripted generator handle for race tests.
type fakeHandle struct {
	id    string
	reply string
	err   error
	delay time.Duration
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Generate(ctx context.Context, _ []llm.Message) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func codeReply(code string) string {
	return fmt.Sprintf("Here you go:\n```python\n%s\n```", code)
}

func validateContaining(marker string) ValidateFunc {
	return func(_ context.Context, artifact string) (bool, string) {
		if strings.Contains(artifact, marker) {
			return true, ""
		}
		return false, "SyntaxError: invalid syntax"
	}
}

func TestRun_SecondGeneratorWins(t *testing.T) {
	handles := []llm.Client{
		&fakeHandle{id: "gen-1", reply: codeReply("broken = (")},
		&fakeHandle{id: "gen-2", reply: codeReply("good = 1")},
		&fakeHandle{id: "gen-3", reply: codeReply("also_broken = (")},
	}

	out := Run(context.Background(), nil, handles, validateContaining("good"))

	require.NotNil(t, out.Winner)
	assert.Equal(t, "gen-2", out.Winner.HandleID)
	assert.Equal(t, "good = 1", out.Winner.Artifact)
	assert.Len(t, out.All, 3, "every handle must be reported")
}

func TestRun_AtMostOneWinner(t *testing.T) {
	handles := []llm.Client{
		&fakeHandle{id: "gen-1", reply: codeReply("good_a = 1")},
		&fakeHandle{id: "gen-2", reply: codeReply("good_b = 2")},
	}

	out := Run(context.Background(), nil, handles, validateContaining("good"))

	require.NotNil(t, out.Winner)
	winners := 0
	for _, c := range out.All {
		if c.Valid {
			winners++
		}
	}
	assert.GreaterOrEqual(t, winners, 1)
	assert.Contains(t, []string{"gen-1", "gen-2"}, out.Winner.HandleID)
	assert.Len(t, out.All, 2)
}

func TestRun_NoWinnerReturnsAllDiagnostics(t *testing.T) {
	handles := []llm.Client{
		&fakeHandle{id: "gen-1", reply: codeReply("broken = (")},
		&fakeHandle{id: "gen-2", reply: "I cannot produce code."},
		&fakeHandle{id: "gen-3", err: errors.New("connection reset")},
	}

	out := Run(context.Background(), nil, handles, validateContaining("good"))

	assert.Nil(t, out.Winner)
	require.Len(t, out.All, 3)

	byID := map[string]types.CandidateResult{}
	for _, c := range out.All {
		byID[c.HandleID] = c
	}
	assert.Equal(t, "SyntaxError: invalid syntax", byID["gen-1"].Diagnostic)
	assert.Contains(t, byID["gen-2"].Diagnostic, "no python code block")
	assert.Contains(t, byID["gen-3"].Diagnostic, "generator invocation failed")
	assert.Empty(t, byID["gen-3"].Artifact)
}

func TestRun_WinnerCancelsSlowGenerators(t *testing.T) {
	handles := []llm.Client{
		&fakeHandle{id: "fast", reply: codeReply("good = 1")},
		&fakeHandle{id: "slow", reply: codeReply("good = 2"), delay: 10 * time.Second},
	}

	start := time.Now()
	out := Run(context.Background(), nil, handles, validateContaining("good"))

	require.NotNil(t, out.Winner)
	assert.Equal(t, "fast", out.Winner.HandleID)
	assert.Less(t, time.Since(start), 5*time.Second, "race must not wait out slow generators after a winner")
	assert.Len(t, out.All, 2)
}

func TestRun_EachArtifactValidatedExactlyOnce(t *testing.T) {
	var calls atomic.Int32
	validate := func(_ context.Context, _ string) (bool, string) {
		calls.Add(1)
		return false, "ValueError: nope"
	}

	handles := []llm.Client{
		&fakeHandle{id: "gen-1", reply: codeReply("a = 1")},
		&fakeHandle{id: "gen-2", reply: "no code here"},
	}

	out := Run(context.Background(), nil, handles, validate)
	assert.Nil(t, out.Winner)
	assert.Equal(t, int32(1), calls.Load(), "only candidates with artifacts are validated, once each")
}

func TestFirstWithArtifact(t *testing.T) {
	all := []types.CandidateResult{
		{HandleID: "gen-1", Diagnostic: "generator invocation failed"},
		{HandleID: "gen-2", Artifact: "x = 1"},
		{HandleID: "gen-3", Artifact: "y = 2"},
	}
	first := FirstWithArtifact(all)
	require.NotNil(t, first)
	assert.Equal(t, "gen-2", first.HandleID)

	assert.Nil(t, FirstWithArtifact([]types.CandidateResult{{HandleID: "gen-1"}}))
}

func TestBuildFailureSummary(t *testing.T) {
	all := []types.CandidateResult{
		{HandleID: "gen-1", Diagnostic: "Traceback ...\nNameError: name 'x' is not defined"},
		{HandleID: "gen-2", Diagnostic: "no python code block found in response"},
	}

	summary := BuildFailureSummary(2, all, "NameError: name 'x' is not defined")
	assert.Contains(t, summary, "ATTEMPT 2 FAILED")
	assert.Contains(t, summary, "gen-1, gen-2")
	assert.Contains(t, summary, "NameError: name 'x' is not defined")
	assert.Contains(t, summary, "different approach")
}
