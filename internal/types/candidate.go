package types

// CandidateResult records the outcome of a single generator handle within one
// race round. Exactly one result exists per handle per round; a handle is
// never retried within the same round.
type CandidateResult struct {
	HandleID string `json:"handle_id"`
	// Response is the raw generator output. Empty when the invocation
	// itself failed (timeout, transport error).
	Response string `json:"response,omitempty"`
	// Artifact is the code block extracted from Response. Empty when no
	// artifact could be extracted; such candidates are never validated.
	Artifact string `json:"artifact,omitempty"`
	// Valid reports whether the artifact passed sandbox validation. A
	// candidate with a non-empty artifact is validated exactly once.
	Valid bool `json:"valid"`
	// Diagnostic carries the validation failure output, or a synthetic
	// message for invocation failures.
	Diagnostic string `json:"diagnostic,omitempty"`
}
