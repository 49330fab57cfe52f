package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIHandle implements Client for OpenAI and OpenAI-compatible endpoints.
// Setting BaseURL in the handle config points it at a self-hosted server.
type OpenAIHandle struct {
	client *openai.Client
	cfg    HandleConfig
}

// NewOpenAIHandle creates an OpenAI-backed generator handle.
func NewOpenAIHandle(cfg HandleConfig, apiKey string) (*OpenAIHandle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIHandle{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// ID returns the handle identifier.
func (h *OpenAIHandle) ID() string {
	return h.cfg.Name
}

// Generate sends the transcript as a chat completion and returns the reply text.
func (h *OpenAIHandle) Generate(ctx context.Context, transcript []Message) (string, error) {
	if len(transcript) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(transcript))
	for _, m := range transcript {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       h.cfg.Model,
		Messages:    messages,
		Temperature: h.cfg.Temperature,
	}

	var resp openai.ChatCompletionResponse
	var err error
	for retry := 0; retry <= h.cfg.MaxRetries; retry++ {
		resp, err = h.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("openai generation timed out: %w", ctx.Err())
		}
	}
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
