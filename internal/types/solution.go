package types

import "time"

// Solution is one knowledge-store entry: a normalized error pattern mapped to
// a natural-language remediation summary. The store holds at most one entry
// per pattern; upserts follow last-write-wins.
type Solution struct {
	Pattern   string    `json:"pattern"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}
