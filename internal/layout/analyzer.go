// Package layout inspects rendered scene graphs for geometric defects.
// Analysis is a pure function of the element set and the analyzer
// configuration; it reports issues but never attempts repair.
package layout

import (
	"fmt"
	"strings"

	"github.com/jonathan/diagram-weaver/internal/types"
)

const (
	// overlapEpsilon is the margin below which a box intersection is
	// treated as touching rather than overlapping.
	overlapEpsilon = 1e-6

	// alignTolerance bounds how far a line's endpoints may differ on an
	// axis and still count as aligned.
	alignTolerance = 1e-9
)

// Config controls which checks the analyzer applies.
type Config struct {
	// AllowDiagonalLines disables the orthogonality check when true.
	AllowDiagonalLines bool
	// AlignTolerance overrides the default endpoint alignment tolerance
	// when positive.
	AlignTolerance float64
}

// Analyze runs every enabled check over the scene and returns all
// violations. The result is recomputed in full on each call and is
// deterministic for a given element order and config.
func Analyze(elements []types.SceneElement, cfg Config) []types.LayoutIssue {
	var issues []types.LayoutIssue
	issues = append(issues, findOverlaps(elements)...)
	if !cfg.AllowDiagonalLines {
		issues = append(issues, findNonOrthogonalWires(elements, cfg.tolerance())...)
	}
	return issues
}

func (c Config) tolerance() float64 {
	if c.AlignTolerance > 0 {
		return c.AlignTolerance
	}
	return alignTolerance
}

// findOverlaps performs the pairwise bounding box check. Elements without
// a resolvable box are skipped. A label is not reported against the single
// element it is attached to, but is still checked against everything else.
func findOverlaps(elements []types.SceneElement) []types.LayoutIssue {
	var issues []types.LayoutIssue
	for i := 0; i < len(elements); i++ {
		for j := i + 1; j < len(elements); j++ {
			a, b := elements[i], elements[j]
			if a.Box == nil || b.Box == nil {
				continue
			}
			if isAttachedPair(a, b) {
				continue
			}
			if !boxesOverlap(*a.Box, *b.Box) {
				continue
			}
			issues = append(issues, types.LayoutIssue{
				Kind:     types.IssueOverlap,
				Elements: []string{a.ID, b.ID},
				Details: fmt.Sprintf("elements %q (%s) and %q (%s) overlap: [%.2f,%.2f,%.2f,%.2f] intersects [%.2f,%.2f,%.2f,%.2f]",
					a.ID, a.Type, b.ID, b.Type,
					a.Box.XMin, a.Box.YMin, a.Box.XMax, a.Box.YMax,
					b.Box.XMin, b.Box.YMin, b.Box.XMax, b.Box.YMax),
				Suggestion: "reposition one element via anchor-relative placement so the bounding boxes no longer intersect",
			})
		}
	}
	return issues
}

// isAttachedPair reports whether one element is a label explicitly
// attached to the other.
func isAttachedPair(a, b types.SceneElement) bool {
	if a.Kind == types.KindLabel && a.AttachedTo != "" && a.AttachedTo == b.ID {
		return true
	}
	if b.Kind == types.KindLabel && b.AttachedTo != "" && b.AttachedTo == a.ID {
		return true
	}
	return false
}

// boxesOverlap reports whether two boxes intersect on both axes beyond the
// epsilon margin. Shared edges do not count.
func boxesOverlap(a, b types.BoundingBox) bool {
	xOverlap := minFloat(a.XMax, b.XMax) - maxFloat(a.XMin, b.XMin)
	yOverlap := minFloat(a.YMax, b.YMax) - maxFloat(a.YMin, b.YMin)
	return xOverlap > overlapEpsilon && yOverlap > overlapEpsilon
}

// findNonOrthogonalWires flags every line whose endpoints differ on both
// axes beyond the tolerance. Each line is reported independently.
func findNonOrthogonalWires(elements []types.SceneElement, tolerance float64) []types.LayoutIssue {
	var issues []types.LayoutIssue
	for _, el := range elements {
		if el.Kind != types.KindLine || el.Start == nil || el.End == nil {
			continue
		}
		dx := absFloat(el.End.X - el.Start.X)
		dy := absFloat(el.End.Y - el.Start.Y)
		if dx <= tolerance || dy <= tolerance {
			continue
		}
		issues = append(issues, types.LayoutIssue{
			Kind:     types.IssueNonOrthogonalWire,
			Elements: []string{el.ID},
			Details: fmt.Sprintf("line %q runs diagonally from (%.2f,%.2f) to (%.2f,%.2f)",
				el.ID, el.Start.X, el.Start.Y, el.End.X, el.End.Y),
			Suggestion: "split the connection into two orthogonal segments (horizontal then vertical, or vice versa)",
		})
	}
	return issues
}

// GenerateReport renders the issue list as text for the repair prompt.
// This is the only channel by which layout findings reach a fixer.
func GenerateReport(issues []types.LayoutIssue) string {
	if len(issues) == 0 {
		return "No layout issues found."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "LAYOUT ANALYSIS: %d issue(s) found.\n\n", len(issues))
	for i, issue := range issues {
		fmt.Fprintf(&sb, "%d. [%s] affecting %s\n", i+1, issue.Kind, strings.Join(issue.Elements, ", "))
		fmt.Fprintf(&sb, "   Problem: %s\n", issue.Details)
		fmt.Fprintf(&sb, "   Fix: %s\n", issue.Suggestion)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
