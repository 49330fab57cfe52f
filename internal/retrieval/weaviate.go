package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Class names in the Weaviate schema.
const (
	docClassName     = "LibraryDoc"
	successClassName = "SuccessExample"
)

// Weaviate implements Searcher and Corpus over a Weaviate instance.
type Weaviate struct {
	client *weaviate.Client
}

// NewWeaviate connects to a Weaviate server at the given URL
// (e.g. "http://localhost:8080").
func NewWeaviate(url string) (*Weaviate, error) {
	cfg := weaviate.Config{Host: url, Scheme: "http"}
	if strings.HasPrefix(url, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(url, "https://")
	} else if strings.HasPrefix(url, "http://") {
		cfg.Host = strings.TrimPrefix(url, "http://")
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	return &Weaviate{client: client}, nil
}

// EnsureSchema creates the retrieval classes if they do not exist.
func (w *Weaviate) EnsureSchema(ctx context.Context) error {
	classes := []*models.Class{
		{
			Class:      docClassName,
			Vectorizer: "text2vec-transformers",
			Properties: []*models.Property{
				{Name: "source", DataType: []string{"text"}},
				{Name: "content", DataType: []string{"text"}},
			},
		},
		{
			Class:      successClassName,
			Vectorizer: "text2vec-transformers",
			Properties: []*models.Property{
				{Name: "idea", DataType: []string{"text"}},
				{Name: "code", DataType: []string{"text"}},
			},
		},
	}

	for _, class := range classes {
		_, err := w.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			continue
		}
		if err := w.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("failed to create class %s: %w", class.Class, err)
		}
	}
	return nil
}

// Search runs a nearText query over the documentation class and returns at
// most k ranked documents. An empty result is valid.
func (w *Weaviate) Search(ctx context.Context, query string, k int) ([]Document, error) {
	if query == "" || k <= 0 {
		return nil, nil
	}

	nearText := w.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})

	result, err := w.client.GraphQL().Get().
		WithClassName(docClassName).
		WithFields(graphql.Field{Name: "source"}, graphql.Field{Name: "content"}).
		WithNearText(nearText).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("documentation search failed: %w", err)
	}

	return parseDocuments(result, docClassName, "source", "content")
}

// AddSuccess appends a successful artifact to the corpus, keyed by the idea
// description it was generated for.
func (w *Weaviate) AddSuccess(ctx context.Context, idea, artifact string) error {
	_, err := w.client.Data().Creator().
		WithClassName(successClassName).
		WithProperties(map[string]any{"idea": idea, "code": artifact}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to add success example: %w", err)
	}
	return nil
}

// SearchSuccesses retrieves prior successful artifacts whose originating
// ideas are semantically close to the query idea.
func (w *Weaviate) SearchSuccesses(ctx context.Context, idea string, k int) ([]Document, error) {
	if idea == "" || k <= 0 {
		return nil, nil
	}

	nearText := w.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{idea})

	result, err := w.client.GraphQL().Get().
		WithClassName(successClassName).
		WithFields(graphql.Field{Name: "idea"}, graphql.Field{Name: "code"}).
		WithNearText(nearText).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("success example search failed: %w", err)
	}

	return parseDocuments(result, successClassName, "idea", "code")
}

// parseDocuments converts Weaviate's dynamic GraphQL response into Documents
// via a JSON round-trip, mapping sourceField/contentField onto the Document
// fields.
func parseDocuments(resp *models.GraphQLResponse, className, sourceField, contentField string) ([]Document, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", resp.Errors[0].Message)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response data: %w", err)
	}

	var parsed struct {
		Get map[string][]map[string]any `json:"Get"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response data: %w", err)
	}

	var docs []Document
	for _, obj := range parsed.Get[className] {
		doc := Document{}
		if v, ok := obj[sourceField].(string); ok {
			doc.Source = v
		}
		if v, ok := obj[contentField].(string); ok {
			doc.Content = v
		}
		if doc.Content != "" {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}
