package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiHandle implements Client for Google Gemini.
type GeminiHandle struct {
	client *genai.Client
	cfg    HandleConfig
}

// NewGeminiHandle creates a Gemini-backed generator handle.
func NewGeminiHandle(ctx context.Context, cfg HandleConfig, apiKey string) (*GeminiHandle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiHandle{client: client, cfg: cfg}, nil
}

// ID returns the handle identifier.
func (h *GeminiHandle) ID() string {
	return h.cfg.Name
}

// Generate sends the transcript as a chat session and returns the reply text.
func (h *GeminiHandle) Generate(ctx context.Context, transcript []Message) (string, error) {
	if len(transcript) == 0 {
		return "", fmt.Errorf("transcript is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	model := h.client.GenerativeModel(h.cfg.Model)
	model.SetTemperature(h.cfg.Temperature)

	history, last, system := splitTranscript(transcript)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	session := model.StartChat()
	session.History = history

	var resp *genai.GenerateContentResponse
	var err error
	for retry := 0; retry <= h.cfg.MaxRetries; retry++ {
		resp, err = session.SendMessage(ctx, genai.Text(last))
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("gemini generation timed out: %w", ctx.Err())
		}
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(resp)
}

// Close releases resources held by the handle.
func (h *GeminiHandle) Close() error {
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}

// splitTranscript converts a transcript into Gemini chat history plus the
// final user message. System entries are collected into a single instruction.
func splitTranscript(transcript []Message) (history []*genai.Content, last string, system string) {
	var systemParts []string
	var turns []Message
	for _, m := range transcript {
		if m.Role == RoleSystem {
			systemParts = append(systemParts, m.Content)
			continue
		}
		turns = append(turns, m)
	}

	if len(turns) == 0 {
		return nil, "", strings.Join(systemParts, "\n\n")
	}

	last = turns[len(turns)-1].Content
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return history, last, strings.Join(systemParts, "\n\n")
}

// extractTextFromResponse extracts text from a Gemini API response.
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
