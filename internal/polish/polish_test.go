package polish

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/diagram-weaver/internal/debug"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/scene"
	"github.com/jonathan/diagram-weaver/internal/types"
)

func overlappingScene() *types.Scene {
	return &types.Scene{Elements: []types.SceneElement{
		{ID: "R1", Kind: types.KindComponent, Box: &types.BoundingBox{XMin: 0, YMin: 0, XMax: 2, YMax: 2}},
		{ID: "C1", Kind: types.KindComponent, Box: &types.BoundingBox{XMin: 1, YMin: 1, XMax: 3, YMax: 3}},
	}}
}

func cleanScene() *types.Scene {
	return &types.Scene{Elements: []types.SceneElement{
		{ID: "R1", Kind: types.KindComponent, Box: &types.BoundingBox{XMin: 0, YMin: 0, XMax: 2, YMax: 2}},
		{ID: "C1", Kind: types.KindComponent, Box: &types.BoundingBox{XMin: 5, YMin: 0, XMax: 7, YMax: 2}},
	}}
}

// tableRenderer maps artifacts to canned scenes or render errors.
type tableRenderer struct {
	scenes map[string]*types.Scene
	errs   map[string]error
}

func (r *tableRenderer) Render(_ context.Context, artifact string, _ string) (*types.Scene, error) {
	if err, ok := r.errs[artifact]; ok {
		return nil, err
	}
	if s, ok := r.scenes[artifact]; ok {
		return s, nil
	}
	return cleanScene(), nil
}

// tableRunner marks listed artifacts as runnable.
type tableRunner struct {
	mu      sync.Mutex
	invalid map[string]bool
}

func (r *tableRunner) Run(_ context.Context, artifact string, _ string) (*sandbox.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.invalid[artifact] {
		return &sandbox.Result{Output: "Traceback: broken fix"}, nil
	}
	return &sandbox.Result{OK: true}, nil
}

type tableFixer struct {
	mu      sync.Mutex
	id      string
	replies []string
	calls   int
}

func (f *tableFixer) ID() string { return f.id }

func (f *tableFixer) Generate(_ context.Context, _ []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *tableFixer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedDebugger struct {
	artifact    string
	err         error
	calls       int
	diagnostics []string
}

func (d *fixedDebugger) Repair(_ context.Context, _ string, _ string, diagnostic string) (string, error) {
	d.calls++
	d.diagnostics = append(d.diagnostics, diagnostic)
	return d.artifact, d.err
}

func codeBlock(code string) string {
	return "```python\n" + code + "\n```"
}

func TestRunReturnsCleanArtifactUntouched(t *testing.T) {
	renderer := &tableRenderer{scenes: map[string]*types.Scene{"art": cleanScene()}}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, MaxAttempts: 3}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Clean)
	assert.Equal(t, "art", result.Artifact)
	assert.Empty(t, result.RemainingIssues)
}

func TestRunFixesOverlapThroughRace(t *testing.T) {
	renderer := &tableRenderer{scenes: map[string]*types.Scene{
		"art":   overlappingScene(),
		"fixed": cleanScene(),
	}}
	fixer := &tableFixer{id: "layout-0", replies: []string{codeBlock("fixed")}}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, Fixers: []llm.Client{fixer}, MaxAttempts: 3}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Clean)
	assert.Equal(t, "fixed", result.Artifact)
}

func TestRunRejectsFixThatBreaksRunnability(t *testing.T) {
	renderer := &tableRenderer{scenes: map[string]*types.Scene{"art": overlappingScene()}}
	runner := &tableRunner{invalid: map[string]bool{"broken fix": true}}
	fixer := &tableFixer{id: "layout-0", replies: []string{codeBlock("broken fix")}}
	loop := &Loop{Renderer: renderer, Runner: runner, Fixers: []llm.Client{fixer}, MaxAttempts: 2}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.False(t, result.Clean)
	assert.Equal(t, "art", result.Artifact, "a fix failing re-validation is never adopted")
	require.NotEmpty(t, result.RemainingIssues)
	assert.Equal(t, types.IssueOverlap, result.RemainingIssues[0].Kind)
}

func TestRunExhaustionReturnsBestEffortArtifact(t *testing.T) {
	renderer := &tableRenderer{scenes: map[string]*types.Scene{
		"art":       overlappingScene(),
		"still bad": overlappingScene(),
	}}
	fixer := &tableFixer{id: "layout-0", replies: []string{codeBlock("still bad")}}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, Fixers: []llm.Client{fixer}, MaxAttempts: 2}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err, "layout exhaustion is not a failure")
	assert.False(t, result.Clean)
	assert.Equal(t, "still bad", result.Artifact)
	assert.NotEmpty(t, result.RemainingIssues)
}

func TestRunRoutesRenderFailureToRuntimeDebugger(t *testing.T) {
	renderer := &tableRenderer{
		scenes: map[string]*types.Scene{"repaired": cleanScene()},
		errs:   map[string]error{"art": &scene.RenderError{Diagnostic: "Traceback: boom"}},
	}
	debugger := &fixedDebugger{artifact: "repaired"}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, Debugger: debugger, MaxAttempts: 3}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, debugger.calls)
	require.Len(t, debugger.diagnostics, 1)
	assert.Equal(t, "Traceback: boom", debugger.diagnostics[0], "the render diagnostic must reach the debugger")
	assert.True(t, result.Clean)
	assert.Equal(t, "repaired", result.Artifact)
}

func TestRunRoutesEmptySceneToRuntimeDebugger(t *testing.T) {
	renderer := &tableRenderer{scenes: map[string]*types.Scene{
		"art":      {Elements: nil},
		"repaired": cleanScene(),
	}}
	debugger := &fixedDebugger{artifact: "repaired"}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, Debugger: debugger, MaxAttempts: 3}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, debugger.calls)
	require.Len(t, debugger.diagnostics, 1)
	assert.Contains(t, debugger.diagnostics[0], "empty scene")
	assert.Equal(t, "repaired", result.Artifact)
}

// A render defect must reach a repair generator even though the artifact
// executes cleanly in the plain sandbox; otherwise the debugger would
// return it unchanged and every polish round would re-render the same
// broken script.
func TestRunRenderDefectReachesFixersThroughDebugLoop(t *testing.T) {
	renderer := &tableRenderer{
		scenes: map[string]*types.Scene{"repaired": cleanScene()},
		errs:   map[string]error{"art": &scene.RenderError{Diagnostic: "ValueError: cannot place element"}},
	}
	fixer := &tableFixer{id: "fixer-0", replies: []string{codeBlock("repaired")}}
	debugger := &debug.Loop{Runner: &tableRunner{}, Fixers: []llm.Client{fixer}, MaxAttempts: 3}
	loop := &Loop{
		Renderer:    renderer,
		Runner:      &tableRunner{},
		Fixers:      []llm.Client{fixer},
		Debugger:    debugger,
		MaxAttempts: 3,
	}

	result, err := loop.Run(context.Background(), "art", t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, fixer.callCount(), 0, "the render defect must be raced past the fixers")
	assert.True(t, result.Clean)
	assert.Equal(t, "repaired", result.Artifact)
}

func TestRunPropagatesRuntimeDebugFailure(t *testing.T) {
	renderer := &tableRenderer{errs: map[string]error{"art": &scene.RenderError{Diagnostic: "boom"}}}
	debugger := &fixedDebugger{err: context.DeadlineExceeded}
	loop := &Loop{Renderer: renderer, Runner: &tableRunner{}, Debugger: debugger, MaxAttempts: 3}

	_, err := loop.Run(context.Background(), "art", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime repair of render defect failed")
}
