// Package sandbox executes generated artifacts in isolated working
// directories with a hard timeout.
package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single artifact execution.
	DefaultTimeout = 120 * time.Second
	// artifactFilename is the name the artifact is written under inside
	// each isolation root.
	artifactFilename = "artifact.py"
)

// Result is the discriminated outcome of one sandbox execution. Callers
// branch on OK; Output carries the combined stdout/stderr diagnostic on
// failure.
type Result struct {
	OK         bool
	Output     string
	TimedOut   bool
	Dir        string
	DurationMS int64
}

// Runner executes an artifact in isolation and reports the outcome. Every
// call gets a fresh isolation root; no state leaks between calls.
type Runner interface {
	Run(ctx context.Context, artifact string, baseDir string) (*Result, error)
}

// Local runs artifacts as child interpreter processes on the local machine.
type Local struct {
	// Interpreter is the executable used to run artifacts (e.g. "python3").
	Interpreter string
	// Timeout bounds each execution independently of the caller's context.
	Timeout time.Duration
}

// NewLocal creates a local sandbox runner.
func NewLocal(interpreter string, timeout time.Duration) *Local {
	if interpreter == "" {
		interpreter = "python3"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Local{Interpreter: interpreter, Timeout: timeout}
}

// Run writes the artifact into a fresh isolation root under baseDir and
// executes it as an independent process. The returned error covers only
// infrastructure failures (directory or file creation); execution failures
// are reported through the Result.
func (s *Local) Run(ctx context.Context, artifact string, baseDir string) (*Result, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create sandbox base directory: %w", err)
		}
	}

	dir, err := os.MkdirTemp(baseDir, "exec-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create isolation root: %w", err)
	}

	scriptPath := filepath.Join(dir, artifactFilename)
	if err := os.WriteFile(scriptPath, []byte(artifact), 0644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.Interpreter, scriptPath)
	cmd.Dir = dir

	var combined strings.Builder
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	result := &Result{Dir: dir, DurationMS: elapsed}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.Output = fmt.Sprintf("execution exceeded time budget (%s)", s.Timeout)
		return result, nil
	}

	if runErr != nil {
		result.Output = combined.String()
		if result.Output == "" {
			result.Output = fmt.Sprintf("process exited abnormally: %v", runErr)
		}
		return result, nil
	}

	result.OK = true
	result.Output = combined.String()
	return result, nil
}
