// Package retrieval provides semantic search over reference documentation
// and the corpus of prior successful artifacts, backed by Weaviate.
package retrieval

import (
	"context"
	"fmt"
	"strings"
)

// Document is one retrieved context snippet.
type Document struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// Searcher retrieves reference documentation relevant to a query. An empty
// result is valid and means "no relevant context".
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// Corpus is the append-only store of prior successful artifacts, keyed by
// their originating idea description. Safe for concurrent appenders.
type Corpus interface {
	AddSuccess(ctx context.Context, idea, artifact string) error
	SearchSuccesses(ctx context.Context, idea string, k int) ([]Document, error)
}

// FormatDocuments renders retrieved documents as a prompt fragment.
// Returns an empty string when nothing was retrieved.
func FormatDocuments(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Found relevant documentation snippets:\n")
	for i, doc := range docs {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(fmt.Sprintf("Source: %s\n%s\n", doc.Source, doc.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatExamples renders prior successes as few-shot prompt examples.
func FormatExamples(docs []Document) string {
	if len(docs) == 0 {
		return "No successful examples found in the repository."
	}

	var sb strings.Builder
	for i, doc := range docs {
		sb.WriteString(fmt.Sprintf("\n--- Relevant Example #%d (from previous success) ---\n", i+1))
		sb.WriteString(fmt.Sprintf("# This was generated for the concept: %q\n", doc.Source))
		sb.WriteString("```python\n")
		sb.WriteString(doc.Content)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}
