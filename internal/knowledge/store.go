// Package knowledge provides the persistent error-pattern → solution store
// shared across jobs. The keyed store holds at most one entry per normalized
// pattern (last write wins); every write is additionally recorded in an
// append-only audit trail and a human-readable log file.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/diagram-weaver/internal/types"
)

// Store is the knowledge-store contract used by the debug loop and the
// solution miner.
type Store interface {
	// Upsert writes a (pattern, summary) pair. A new derivation for an
	// existing pattern replaces the old one.
	Upsert(ctx context.Context, pattern, summary string) error
	// RecentSolutions returns up to k entries, most recently written first.
	RecentSolutions(ctx context.Context, k int) ([]types.Solution, error)
	// MatchSolutions returns up to k entries relevant to a diagnostic,
	// preferring an exact match on the diagnostic's normalized pattern.
	MatchSolutions(ctx context.Context, diagnostic string, k int) ([]types.Solution, error)
}

// PatternKey derives the normalized store key from a diagnostic: the last
// non-empty line, trimmed. Later repair rounds and the miner must agree on
// this normalization so lookups hit prior writes.
func PatternKey(diagnostic string) string {
	lines := strings.Split(diagnostic, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// FormatContext renders solutions as a prompt fragment for repair requests.
// Returns an empty string when there is nothing relevant.
func FormatContext(solutions []types.Solution) string {
	if len(solutions) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Here are some potentially related solutions from past fixes:\n")
	for _, s := range solutions {
		sb.WriteString(fmt.Sprintf("- %s\n", s.Summary))
	}
	return strings.TrimRight(sb.String(), "\n")
}
