// Package race runs a pool of generator handles concurrently against a
// shared transcript and validates every extracted artifact, returning the
// first validated candidate with at-most-one-winner semantics.
package race

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/types"
)

// ValidateFunc validates one candidate artifact in a private, isolated
// working location. It reports success plus the failure diagnostic.
type ValidateFunc func(ctx context.Context, artifact string) (ok bool, diagnostic string)

// Outcome is the result of one race round. Winner is nil when no candidate
// validated; All always contains exactly one result per handle, in arrival
// order.
type Outcome struct {
	Winner *types.CandidateResult
	All    []types.CandidateResult
}

// Run invokes every handle concurrently against the same transcript. Each
// reply with an extractable artifact is validated exactly once through
// validate. The first candidate, in arrival order, whose validation succeeds
// is the winner; once a winner is found the remaining generator invocations
// are canceled, but validations already in flight finish to populate All.
// Generator failures (timeout, transport error) become candidates with an
// empty artifact and a synthetic diagnostic; they never abort the round.
func Run(ctx context.Context, transcript []llm.Message, handles []llm.Client, validate ValidateFunc) Outcome {
	if len(handles) == 0 {
		return Outcome{}
	}

	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	results := make(chan types.CandidateResult, len(handles))
	for _, handle := range handles {
		go func(h llm.Client) {
			results <- runCandidate(genCtx, ctx, h, transcript, validate)
		}(handle)
	}

	var out Outcome
	for i := 0; i < len(handles); i++ {
		candidate := <-results
		out.All = append(out.All, candidate)
		if candidate.Valid && out.Winner == nil {
			winner := candidate
			out.Winner = &winner
			cancelGen()
		}
	}
	return out
}

// runCandidate produces exactly one CandidateResult for a handle. Generation
// uses the cancelable race context; validation uses the parent context so a
// validation already started is allowed to finish after a winner appears.
func runCandidate(genCtx, validateCtx context.Context, h llm.Client, transcript []llm.Message, validate ValidateFunc) types.CandidateResult {
	reply, err := h.Generate(genCtx, transcript)
	if err != nil {
		return types.CandidateResult{
			HandleID:   h.ID(),
			Diagnostic: fmt.Sprintf("generator invocation failed: %v", err),
		}
	}

	candidate := types.CandidateResult{
		HandleID: h.ID(),
		Response: reply,
		Artifact: llm.ExtractPythonCode(reply),
	}
	if candidate.Artifact == "" {
		candidate.Diagnostic = "no python code block found in response"
		return candidate
	}

	ok, diagnostic := validate(validateCtx, candidate.Artifact)
	candidate.Valid = ok
	if !ok {
		candidate.Diagnostic = diagnostic
	}
	return candidate
}

// FirstWithArtifact returns the earliest-arriving candidate that produced a
// non-empty artifact, or nil.
func FirstWithArtifact(all []types.CandidateResult) *types.CandidateResult {
	for i := range all {
		if all[i].Artifact != "" {
			return &all[i]
		}
	}
	return nil
}

// BuildFailureSummary synthesizes a summary of a winnerless round so the
// next round's repair request is informed by every handle's failed approach.
func BuildFailureSummary(attempt int, all []types.CandidateResult, coreError string) string {
	var ids []string
	for _, c := range all {
		ids = append(ids, c.HandleID)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "ATTEMPT %d FAILED. No candidate from (%s) passed validation.", attempt, strings.Join(ids, ", "))
	if coreError != "" {
		fmt.Fprintf(&sb, " The error was still: %s.", coreError)
	}
	sb.WriteString(" I must try a completely different approach.\n")
	for _, c := range all {
		if c.Diagnostic != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", c.HandleID, lastLine(c.Diagnostic))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// lastLine returns the final non-empty line of a diagnostic.
func lastLine(diagnostic string) string {
	lines := strings.Split(diagnostic, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
