// Package job provides the per-job state machine: idea, structural plan,
// initial generation, runtime debugging, layout polish, and finalization.
// Each job owns an isolated working directory where every intermediate
// artifact is persisted for audit, success or not.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/diagram-weaver/internal/config"
	"github.com/jonathan/diagram-weaver/internal/db"
	"github.com/jonathan/diagram-weaver/internal/debug"
	"github.com/jonathan/diagram-weaver/internal/knowledge"
	"github.com/jonathan/diagram-weaver/internal/layout"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/mining"
	"github.com/jonathan/diagram-weaver/internal/observability"
	"github.com/jonathan/diagram-weaver/internal/polish"
	"github.com/jonathan/diagram-weaver/internal/prompts"
	"github.com/jonathan/diagram-weaver/internal/retrieval"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// Artifact filenames inside a job's working directory.
const (
	fileIdea       = "1_idea.txt"
	filePlan       = "1b_plan.txt"
	fileFinalCode  = "4_final_successful_code.py"
	fileFinalScene = "5_final_scene.json"

	// dirLayoutDebug holds sandbox roots and scene dumps produced while
	// polishing the layout, separate from the runtime debugging artifacts.
	dirLayoutDebug = "stage_two_layout"
)

// Deps is the dependency context constructed once at process start and
// passed into every orchestrator. Database, Searcher, Corpus, Knowledge,
// and Miner are optional; a nil field disables that concern.
type Deps struct {
	Config    config.Config
	Printer   *observability.Printer
	Database  *db.DB
	Runner    sandbox.Runner
	Renderer  polish.SceneRenderer
	Generator llm.Client
	Fixers    []llm.Client
	Searcher  retrieval.Searcher
	Corpus    retrieval.Corpus
	Knowledge knowledge.Store
	Miner     mining.Submitter
}

// Options selects what a single job run produces.
type Options struct {
	// Idea is the diagram concept to draw. Empty means the generator
	// proposes one.
	Idea string
	// Number distinguishes sibling jobs in batch runs.
	Number int
}

// Orchestrator runs one job end to end. Instances are cheap; create one per
// job.
type Orchestrator struct {
	deps Deps
}

// NewOrchestrator creates an orchestrator over the shared dependencies.
func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

type structuralPlan struct {
	Stages []string `json:"stages"`
}

// Run executes the full stage sequence. The returned Job carries the final
// status and all recorded attempts; the error is non-nil exactly when the
// job failed. Partial artifacts remain in the job's working directory either
// way.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*types.Job, error) {
	runID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	workDir := filepath.Join(o.deps.Config.WorkRoot, fmt.Sprintf("job_%d_run_%s", opts.Number, runID))
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job workdir: %w", err)
	}

	job := &types.Job{RunID: runID, WorkDir: workDir, Status: types.JobPending}

	var jobID int64
	if o.deps.Database != nil {
		var err error
		jobID, err = o.deps.Database.CreateJob(ctx, runID, workDir)
		if err != nil {
			fmt.Printf("Warning: failed to create job record: %v\n", err)
			fmt.Printf("Continuing without database persistence...\n")
		}
		job.ID = int(jobID)
	}

	artifact, scene, runErr := o.runStages(ctx, opts, job, jobID)
	if runErr != nil {
		job.Status = types.JobFailed
		o.completeJob(ctx, jobID, types.JobFailed, "", runErr.Error())
		if o.deps.Printer != nil {
			o.deps.Printer.PrintJobResult(job, runErr.Error())
		}
		return job, runErr
	}

	o.finalize(ctx, job, jobID, artifact, scene)
	return job, nil
}

// runStages drives Idea through LayoutPolish and returns the final artifact
// plus the last rendered scene.
func (o *Orchestrator) runStages(ctx context.Context, opts Options, job *types.Job, jobID int64) (string, *types.Scene, error) {
	// Stage 1: idea.
	idea := opts.Idea
	if idea == "" {
		fmt.Printf("Step 1/5: Proposing a diagram concept...\n")
		reply, err := o.deps.Generator.Generate(ctx, []llm.Message{
			llm.UserMessage(prompts.MustGet("generation.json", "idea")),
		})
		if err != nil {
			return "", nil, fmt.Errorf("idea generation failed: %w", err)
		}
		idea = strings.TrimSpace(reply)
	} else {
		fmt.Printf("Step 1/5: Using provided concept.\n")
	}
	o.writeArtifact(job.WorkDir, fileIdea, idea)
	if o.deps.Database != nil && jobID != 0 {
		if err := o.deps.Database.SetJobIdea(ctx, jobID, idea); err != nil {
			fmt.Printf("Warning: failed to persist idea: %v\n", err)
		}
	}
	if o.deps.Printer != nil {
		o.deps.Printer.PrintJobBanner(fmt.Sprintf("job_%d_run_%s", opts.Number, job.RunID), idea)
	}

	// Stage 2: structural plan. A plan that is not valid JSON is an
	// internal defect, not a repairable artifact problem.
	fmt.Printf("Step 2/5: Building the structural plan...\n")
	planReply, err := o.deps.Generator.Generate(ctx, []llm.Message{
		llm.UserMessage(prompts.Format(prompts.MustGet("generation.json", "plan"), map[string]string{"Idea": idea})),
	})
	if err != nil {
		return "", nil, fmt.Errorf("plan generation failed: %w", err)
	}
	planJSON := llm.CleanJSONBlock(planReply)
	var plan structuralPlan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return "", nil, fmt.Errorf("structural plan is malformed: %w", err)
	}
	o.writeArtifact(job.WorkDir, filePlan, planJSON)

	// Stage 3: initial generation with few-shot context from prior
	// successes.
	fmt.Printf("Step 3/5: Generating the initial script...\n")
	examples := "No successful examples found in the repository."
	if o.deps.Corpus != nil {
		docs, err := o.deps.Corpus.SearchSuccesses(ctx, idea, o.retrievalK())
		if err != nil {
			fmt.Printf("Warning: success corpus lookup failed: %v\n", err)
		} else {
			examples = retrieval.FormatExamples(docs)
		}
	}
	codeReply, err := o.deps.Generator.Generate(ctx, []llm.Message{
		llm.UserMessage(prompts.Format(prompts.MustGet("generation.json", "codegen"), map[string]string{
			"Idea":     idea,
			"Plan":     planJSON,
			"Examples": examples,
		})),
	})
	if err != nil {
		return "", nil, fmt.Errorf("initial generation failed: %w", err)
	}
	artifact := llm.ExtractPythonCode(codeReply)
	if artifact == "" {
		return "", nil, fmt.Errorf("initial generation produced no code")
	}

	// Stage 4: runtime debugging. Attempts from every debug entry share
	// one strictly increasing ordinal sequence.
	fmt.Printf("Step 4/5: Validating and repairing at runtime...\n")
	recorder := o.attemptRecorder(ctx, job, jobID)
	debugLoop := &debug.Loop{
		Runner:      o.deps.Runner,
		Fixers:      o.deps.Fixers,
		Searcher:    o.deps.Searcher,
		Knowledge:   o.deps.Knowledge,
		Miner:       o.deps.Miner,
		Record:      recorder,
		Printer:     o.racePrinter(),
		MaxAttempts: o.deps.Config.MaxDebugAttempts,
		RetrievalK:  o.retrievalK(),
	}
	artifact, err = debugLoop.Run(ctx, artifact, job.WorkDir)
	if err != nil {
		return "", nil, fmt.Errorf("runtime debugging failed: %w", err)
	}

	// Stage 5: layout polish, best effort.
	fmt.Printf("Step 5/5: Polishing the layout...\n")
	polishLoop := &polish.Loop{
		Renderer: o.deps.Renderer,
		Runner:   o.deps.Runner,
		Fixers:   o.deps.Fixers,
		Debugger: debugLoop,
		Printer:  o.racePrinter(),
		Layout: layout.Config{
			AllowDiagonalLines: o.deps.Config.AllowDiagonalLines,
			AlignTolerance:     o.deps.Config.AlignTolerance,
		},
		MaxAttempts: o.deps.Config.MaxLayoutAttempts,
	}
	polishDir := filepath.Join(job.WorkDir, dirLayoutDebug)
	if err := os.MkdirAll(polishDir, 0755); err != nil {
		polishDir = job.WorkDir
	}
	result, err := polishLoop.Run(ctx, artifact, polishDir)
	if err != nil {
		return "", nil, fmt.Errorf("layout polish failed: %w", err)
	}
	if !result.Clean && o.deps.Printer != nil {
		o.deps.Printer.PrintLayoutIssues(result.RemainingIssues)
	}
	return result.Artifact, result.Scene, nil
}

// finalize commits the successful artifact: filesystem, success corpus, and
// job record. Persistence problems downgrade to warnings; the artifact is
// already safe on disk.
func (o *Orchestrator) finalize(ctx context.Context, job *types.Job, jobID int64, artifact string, scene *types.Scene) {
	o.writeArtifact(job.WorkDir, fileFinalCode, artifact)
	if scene != nil {
		if data, err := json.MarshalIndent(scene, "", "  "); err == nil {
			o.writeArtifact(job.WorkDir, fileFinalScene, string(data))
		}
	}

	if o.deps.Corpus != nil {
		idea, _ := os.ReadFile(filepath.Join(job.WorkDir, fileIdea))
		if err := o.deps.Corpus.AddSuccess(ctx, string(idea), artifact); err != nil {
			fmt.Printf("Warning: failed to store success example: %v\n", err)
		}
	}

	job.Status = types.JobSucceeded
	o.completeJob(ctx, jobID, types.JobSucceeded, artifact, "")
	if o.deps.Printer != nil {
		o.deps.Printer.PrintJobResult(job, "")
	}
}

// attemptRecorder persists every validation attempt to the working
// directory and the database, renumbering ordinals so repeated debug-loop
// entries within one job never collide.
func (o *Orchestrator) attemptRecorder(ctx context.Context, job *types.Job, jobID int64) debug.AttemptRecorder {
	return func(a types.Attempt) {
		a.Ordinal = len(job.Attempts) + 1
		job.Attempts = append(job.Attempts, a)

		o.writeArtifact(job.WorkDir, fmt.Sprintf("2_attempt_%02d_code.py", a.Ordinal), a.Artifact)
		if !a.Success {
			o.writeArtifact(job.WorkDir, fmt.Sprintf("2_attempt_%02d_error.txt", a.Ordinal), a.Diagnostic)
		}

		if o.deps.Database != nil && jobID != 0 {
			if err := o.deps.Database.RecordAttempt(ctx, jobID, a); err != nil {
				fmt.Printf("Warning: failed to record attempt %d: %v\n", a.Ordinal, err)
			}
		}
	}
}

func (o *Orchestrator) completeJob(ctx context.Context, jobID int64, status types.JobStatus, artifact, detail string) {
	if o.deps.Database == nil || jobID == 0 {
		return
	}
	if err := o.deps.Database.CompleteJob(ctx, jobID, status, artifact, detail); err != nil {
		fmt.Printf("Warning: failed to complete job record: %v\n", err)
	}
}

func (o *Orchestrator) writeArtifact(workDir, name, content string) {
	if err := os.WriteFile(filepath.Join(workDir, name), []byte(content), 0644); err != nil {
		fmt.Printf("Warning: failed to persist %s: %v\n", name, err)
	}
}

func (o *Orchestrator) retrievalK() int {
	if o.deps.Config.RetrievalK > 0 {
		return o.deps.Config.RetrievalK
	}
	return config.DefaultRetrievalK
}

// racePrinter returns the shared printer for per-round race summaries, but
// only in verbose mode; the step log already covers the quiet path.
func (o *Orchestrator) racePrinter() *observability.Printer {
	if o.deps.Config.Verbose {
		return o.deps.Printer
	}
	return nil
}
