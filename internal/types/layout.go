package types

// IssueKind identifies the class of a layout violation.
type IssueKind string

// Layout issue kinds.
const (
	IssueOverlap           IssueKind = "Overlap"
	IssueNonOrthogonalWire IssueKind = "NonOrthogonalWire"
)

// LayoutIssue is one violation found by the layout analyzer. Issue lists are
// recomputed in full on every analysis pass and are a deterministic function
// of the scene and the analyzer configuration.
type LayoutIssue struct {
	Kind       IssueKind `json:"kind"`
	Elements   []string  `json:"elements"`
	Details    string    `json:"details"`
	Suggestion string    `json:"suggestion"`
}
