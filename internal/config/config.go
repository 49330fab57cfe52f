// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults applied when a field is absent from the config file and flags.
const (
	DefaultMaxDebugAttempts  = 20
	DefaultMaxLayoutAttempts = 20
	DefaultSandboxTimeout    = 120 * time.Second
	DefaultRetrievalK        = 3
	DefaultWorkers           = 4
	DefaultInterpreter       = "python3"
	DefaultProvider          = "gemini"
	DefaultModel             = "gemini-2.0-flash"
)

// Config represents the CLI configuration that can be loaded from a JSON
// file. All fields are optional; missing values use defaults or must be
// provided via CLI flags.
type Config struct {
	// Generation
	Provider    string   `json:"provider,omitempty"`     // LLM provider: "gemini" or "openai"
	Model       string   `json:"model,omitempty"`        // Model for idea/plan/codegen/mining
	FixerModels []string `json:"fixer_models,omitempty"` // Models raced during repair rounds
	APIKey      string   `json:"api_key,omitempty"`      // Provider API key
	BaseURL     string   `json:"base_url,omitempty"`     // Override endpoint (openai-compatible servers)

	// Budgets
	MaxDebugAttempts  int `json:"max_debug_attempts,omitempty"`  // Runtime repair rounds per phase
	MaxLayoutAttempts int `json:"max_layout_attempts,omitempty"` // Layout polish rounds
	SandboxTimeoutSec int `json:"sandbox_timeout_sec,omitempty"` // Per-execution time budget
	RetrievalK        int `json:"retrieval_k,omitempty"`         // Context snippets per lookup

	// Layout
	AllowDiagonalLines bool    `json:"allow_diagonal_lines,omitempty"` // Skip the orthogonality check
	AlignTolerance     float64 `json:"align_tolerance,omitempty"`      // Endpoint alignment tolerance, 0 keeps the built-in default

	// Execution
	Interpreter string `json:"interpreter,omitempty"` // Sandbox interpreter executable
	WorkRoot    string `json:"work_root,omitempty"`   // Root directory for per-job storage
	Workers     int    `json:"workers,omitempty"`     // Concurrent jobs in batch mode
	Verbose     bool   `json:"verbose,omitempty"`     // Print detailed debug information

	// Services
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	WeaviateURL string `json:"weaviate_url,omitempty"` // Retrieval service endpoint
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values. Required fields
// are checked by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Provider != "" && c.Provider != "gemini" && c.Provider != "openai" {
		return fmt.Errorf("config error: 'provider' must be \"gemini\" or \"openai\", got %q", c.Provider)
	}
	if c.MaxDebugAttempts < 0 {
		return fmt.Errorf("config error: 'max_debug_attempts' must be non-negative")
	}
	if c.MaxLayoutAttempts < 0 {
		return fmt.Errorf("config error: 'max_layout_attempts' must be non-negative")
	}
	if c.SandboxTimeoutSec < 0 {
		return fmt.Errorf("config error: 'sandbox_timeout_sec' must be non-negative")
	}
	if c.RetrievalK < 0 {
		return fmt.Errorf("config error: 'retrieval_k' must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config error: 'workers' must be non-negative")
	}
	if c.AlignTolerance < 0 {
		return fmt.Errorf("config error: 'align_tolerance' must be non-negative")
	}
	return nil
}

// ApplyDefaults returns a copy with unset fields replaced by defaults.
func (c *Config) ApplyDefaults() Config {
	result := *c

	if result.Provider == "" {
		result.Provider = DefaultProvider
	}
	if result.Model == "" {
		result.Model = DefaultModel
	}
	if len(result.FixerModels) == 0 {
		result.FixerModels = []string{result.Model, result.Model}
	}
	if result.MaxDebugAttempts == 0 {
		result.MaxDebugAttempts = DefaultMaxDebugAttempts
	}
	if result.MaxLayoutAttempts == 0 {
		result.MaxLayoutAttempts = DefaultMaxLayoutAttempts
	}
	if result.SandboxTimeoutSec == 0 {
		result.SandboxTimeoutSec = int(DefaultSandboxTimeout / time.Second)
	}
	if result.RetrievalK == 0 {
		result.RetrievalK = DefaultRetrievalK
	}
	if result.Workers == 0 {
		result.Workers = DefaultWorkers
	}
	if result.Interpreter == "" {
		result.Interpreter = DefaultInterpreter
	}
	if result.WorkRoot == "" {
		result.WorkRoot = "results"
	}
	return result
}

// SandboxTimeout returns the per-execution budget as a duration.
func (c *Config) SandboxTimeout() time.Duration {
	if c.SandboxTimeoutSec <= 0 {
		return DefaultSandboxTimeout
	}
	return time.Duration(c.SandboxTimeoutSec) * time.Second
}
