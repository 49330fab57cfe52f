// Package llm provides generator handle abstractions over LLM providers.
// A handle wraps one model at one temperature; the racing and debugging
// layers treat handles as interchangeable text producers.
package llm

import (
	"context"
	"fmt"
)

// Message roles for transcript entries.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in an ordered conversation transcript.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UserMessage builds a user-role transcript entry.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant-role transcript entry.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Client is an abstraction over LLM generator handles. Multiple handles may
// represent different underlying models or temperatures.
type Client interface {
	// ID returns the stable identifier of this handle, used in
	// CandidateResult records and logs.
	ID() string
	// Generate produces raw text from an ordered transcript. The call is
	// bounded by the handle's configured timeout.
	Generate(ctx context.Context, transcript []Message) (string, error)
}

// NewHandle creates a generator handle for the configured provider.
func NewHandle(ctx context.Context, cfg HandleConfig, apiKey string) (Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case ProviderGemini:
		return NewGeminiHandle(ctx, cfg, apiKey)
	case ProviderOpenAI:
		return NewOpenAIHandle(cfg, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
