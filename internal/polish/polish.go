// Package polish drives the layout refinement loop: render the working
// artifact into a scene graph, analyze it for geometric defects, and race
// the layout fixers until the scene is clean or the budget runs out. Polish
// is a best-effort stage; exhaustion returns the last runnable artifact
// instead of failing the job.
package polish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/diagram-weaver/internal/layout"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/observability"
	"github.com/jonathan/diagram-weaver/internal/prompts"
	"github.com/jonathan/diagram-weaver/internal/race"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/scene"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// DefaultMaxAttempts bounds layout repair rounds per invocation.
const DefaultMaxAttempts = 20

// SceneRenderer turns an artifact into a scene graph. Render failures are
// reported as *scene.RenderError.
type SceneRenderer interface {
	Render(ctx context.Context, artifact string, baseDir string) (*types.Scene, error)
}

// RuntimeDebugger repairs artifacts whose defect was observed outside the
// sandbox. Render failures discovered during polish are routed here, with
// their diagnostic, rather than to the layout fixers; the artifact usually
// still executes cleanly, so the debugger must repair against the
// diagnostic instead of re-running the script.
type RuntimeDebugger interface {
	Repair(ctx context.Context, artifact string, workDir string, diagnostic string) (string, error)
}

// Result reports how a polish run ended.
type Result struct {
	Artifact string
	// Clean is true when the final render had no layout issues.
	Clean bool
	// RemainingIssues holds the last analysis when the budget ran out.
	RemainingIssues []types.LayoutIssue
	// Scene is the last successfully rendered scene graph.
	Scene *types.Scene
}

// Loop holds the collaborators for layout polish. Printer is optional.
type Loop struct {
	Renderer    SceneRenderer
	Runner      sandbox.Runner
	Fixers      []llm.Client
	Debugger    RuntimeDebugger
	Printer     *observability.Printer
	Layout      layout.Config
	MaxAttempts int
}

// Run refines the artifact's layout. The input must already be runnable. A
// render failure or an empty render re-enters the runtime debug path on the
// offending artifact; only a runtime exhaustion there propagates as an
// error. Layout exhaustion is not an error: the most recently runnable
// artifact is returned with its outstanding issues.
func (l *Loop) Run(ctx context.Context, artifact string, workDir string) (*Result, error) {
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	best := artifact
	var lastIssues []types.LayoutIssue
	var lastScene *types.Scene

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sceneGraph, err := l.Renderer.Render(ctx, best, workDir)
		if err != nil {
			var renderErr *scene.RenderError
			if !errors.As(err, &renderErr) {
				return nil, fmt.Errorf("rendering infrastructure failed: %w", err)
			}
			repaired, derr := l.reenterRuntimeDebug(ctx, best, workDir, renderErr.Diagnostic)
			if derr != nil {
				return nil, derr
			}
			best = repaired
			continue
		}
		if len(sceneGraph.Elements) == 0 {
			repaired, derr := l.reenterRuntimeDebug(ctx, best, workDir, "render produced an empty scene")
			if derr != nil {
				return nil, derr
			}
			best = repaired
			continue
		}
		lastScene = sceneGraph

		issues := layout.Analyze(sceneGraph.Elements, l.Layout)
		if len(issues) == 0 {
			return &Result{Artifact: best, Clean: true, Scene: sceneGraph}, nil
		}
		lastIssues = issues
		fmt.Printf("  Layout round %d/%d: %d issue(s) remain.\n", attempt, maxAttempts, len(issues))

		prompt := prompts.Format(prompts.MustGet("layout.json", "layout_fix"), map[string]string{
			"Artifact": best,
			"Report":   layout.GenerateReport(issues),
		})

		// Each fix candidate must re-pass sandbox validation before
		// adoption; a fix that breaks runnability is rejected here.
		outcome := race.Run(ctx, []llm.Message{llm.UserMessage(prompt)}, l.Fixers, func(vctx context.Context, candidate string) (bool, string) {
			result, rerr := l.Runner.Run(vctx, candidate, workDir)
			if rerr != nil {
				return false, fmt.Sprintf("sandbox infrastructure failure: %v", rerr)
			}
			return result.OK, result.Output
		})

		if l.Printer != nil {
			l.Printer.PrintRaceOutcome(outcome.Winner, outcome.All)
		}

		if outcome.Winner != nil {
			best = outcome.Winner.Artifact
		}
		// No winner leaves the previous runnable artifact unchanged and
		// retries on the next round.
	}

	return &Result{Artifact: best, RemainingIssues: lastIssues, Scene: lastScene}, nil
}

// reenterRuntimeDebug routes a render defect, diagnostic included, back
// through the runtime repair loop.
func (l *Loop) reenterRuntimeDebug(ctx context.Context, artifact string, workDir string, diagnostic string) (string, error) {
	fmt.Printf("  Render defect (%s); re-entering runtime repair.\n", firstLine(diagnostic))
	if l.Debugger == nil {
		return "", fmt.Errorf("render failed and no runtime debugger is configured: %s", diagnostic)
	}
	repaired, err := l.Debugger.Repair(ctx, artifact, workDir, diagnostic)
	if err != nil {
		return "", fmt.Errorf("runtime repair of render defect failed: %w", err)
	}
	return repaired, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
