// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/diagram-weaver/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintJobBanner outputs the job header with its idea description.
func (p *Printer) PrintJobBanner(runID, idea string) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", runID))
	for _, line := range strings.Split(strings.TrimSpace(idea), "\n") {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	p.printBox("DIAGRAM JOB", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRaceOutcome outputs one race round's per-handle results.
func (p *Printer) PrintRaceOutcome(winner *types.CandidateResult, all []types.CandidateResult) {
	var sb strings.Builder
	if winner != nil {
		sb.WriteString(fmt.Sprintf("Winner: %s\n\n", winner.HandleID))
	} else {
		sb.WriteString("Winner: none\n\n")
	}

	count := min(len(all), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := all[i]
		status := "invalid"
		if c.Valid {
			status = "valid"
		} else if c.Artifact == "" {
			status = "no artifact"
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", c.HandleID, status))
		if !c.Valid && c.Diagnostic != "" {
			diag := firstLine(c.Diagnostic)
			if len(diag) > 44 {
				diag = diag[:41] + "..."
			}
			sb.WriteString(fmt.Sprintf("    %s\n", diag))
		}
	}
	if len(all) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more candidates\n", len(all)-maxItemsToShow))
	}

	p.printBox("CANDIDATE RACE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintLayoutIssues outputs the current layout analysis.
func (p *Printer) PrintLayoutIssues(issues []types.LayoutIssue) {
	if len(issues) == 0 {
		p.printBox("LAYOUT ANALYSIS", "No issues found.")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Issues found: %d\n\n", len(issues)))

	count := min(len(issues), maxItemsToShow)
	for i := 0; i < count; i++ {
		issue := issues[i]
		sb.WriteString(fmt.Sprintf("#%d  %s\n", i+1, issue.Kind))
		sb.WriteString(fmt.Sprintf("    Elements: %s\n", strings.Join(issue.Elements, ", ")))
	}
	if len(issues) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more issues", len(issues)-maxItemsToShow))
	}

	p.printBox("LAYOUT ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintJobResult outputs the terminal job summary.
func (p *Printer) PrintJobResult(job *types.Job, detail string) {
	if job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Attempts: %d\n", len(job.Attempts)))
	sb.WriteString(fmt.Sprintf("Workdir:  %s", job.WorkDir))
	if detail != "" {
		sb.WriteString(fmt.Sprintf("\n\n%s", detail))
	}
	p.printBox("JOB RESULT", sb.String())
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
