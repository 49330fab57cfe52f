package llm

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Provider represents an LLM provider.
type Provider string

// Provider constants define supported LLM providers.
const (
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI covers OpenAI and OpenAI-compatible endpoints.
	ProviderOpenAI Provider = "openai"
)

// HandleConfig enumerates the recognized options for one generator handle.
// It is validated at construction time; unrecognized combinations are
// rejected rather than silently ignored.
type HandleConfig struct {
	Name        string        `json:"name" validate:"required"`
	Provider    Provider      `json:"provider" validate:"required,oneof=gemini openai"`
	Model       string        `json:"model" validate:"required"`
	Temperature float32       `json:"temperature" validate:"gte=0,lte=2"`
	Timeout     time.Duration `json:"timeout" validate:"gt=0"`
	MaxRetries  int           `json:"max_retries" validate:"gte=0,lte=5"`
	// BaseURL overrides the provider endpoint, for OpenAI-compatible
	// servers. Ignored by the Gemini provider.
	BaseURL string `json:"base_url,omitempty"`
}

// Validate checks the handle configuration using the validator.
func (c HandleConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid handle config %q: %w", c.Name, err)
	}
	return nil
}

// FixerConfigs builds one handle config per fixer model, staggering
// temperatures so the race explores different sampling behavior per handle.
func FixerConfigs(provider Provider, models []string, timeout time.Duration, baseURL string) []HandleConfig {
	configs := make([]HandleConfig, 0, len(models))
	for i, model := range models {
		configs = append(configs, HandleConfig{
			Name:        fmt.Sprintf("fixer-%d", i),
			Provider:    provider,
			Model:       model,
			Temperature: 0.2 + 0.1*float32(i),
			Timeout:     timeout,
			MaxRetries:  2,
			BaseURL:     baseURL,
		})
	}
	return configs
}
