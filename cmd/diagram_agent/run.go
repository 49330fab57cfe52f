package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/diagram-weaver/internal/config"
	"github.com/jonathan/diagram-weaver/internal/db"
	"github.com/jonathan/diagram-weaver/internal/factory"
	"github.com/jonathan/diagram-weaver/internal/job"
	"github.com/jonathan/diagram-weaver/internal/knowledge"
	"github.com/jonathan/diagram-weaver/internal/llm"
	"github.com/jonathan/diagram-weaver/internal/mining"
	"github.com/jonathan/diagram-weaver/internal/observability"
	"github.com/jonathan/diagram-weaver/internal/retrieval"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
	"github.com/jonathan/diagram-weaver/internal/scene"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run diagram generation jobs end-to-end",
	Long: `Orchestrates the full generation process per job: concept -> structural plan -> code generation -> runtime repair -> layout polish -> finalize.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runJobsCmd,
}

var (
	runConfigPath  string
	runIdea        string
	runJobs        int
	runWorkers     int
	runProvider    string
	runModel       string
	runAPIKey      string
	runWorkRoot    string
	runVerbose     bool
	runDatabaseURL string
	runWeaviateURL string
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runIdea, "idea", "i", "", "Diagram concept to draw (optional, proposed by the model if omitted)")
	runCommand.Flags().IntVarP(&runJobs, "jobs", "n", 1, "Total jobs to run (0 = run until interrupted)")
	runCommand.Flags().IntVarP(&runWorkers, "workers", "w", 0, "Concurrent jobs")
	runCommand.Flags().StringVar(&runProvider, "provider", "", "LLM provider: gemini or openai")
	runCommand.Flags().StringVarP(&runModel, "model", "m", "", "Model for idea/plan/codegen/mining")
	runCommand.Flags().StringVar(&runWorkRoot, "work-root", "", "Root directory for per-job artifacts")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY / OPENAI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Provider API key (optional, defaults to GEMINI_API_KEY or OPENAI_API_KEY)")

	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	runCommand.Flags().StringVar(&runWeaviateURL, "weaviate-url", "", "Weaviate endpoint for retrieval (optional, defaults to WEAVIATE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runJobsCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		if cfg.Provider == "openai" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		} else {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}
	if apiKey == "" {
		return fmt.Errorf("an API key is required: pass --api-key or set GEMINI_API_KEY / OPENAI_API_KEY")
	}

	deps, cleanup, err := buildDeps(ctx, cfg, apiKey)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := factory.New(deps, cfg.Workers, runJobs).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nBatch complete: %d started, %d succeeded, %d failed.\n",
		summary.Started, summary.Succeeded, summary.Failed)
	return nil
}

// loadRunConfig merges the config file, CLI overrides, environment, and
// defaults, in that order of increasing priority for flags.
func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if runConfigPath != "" {
		loaded, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return cfg, err
		}
		cfg = *loaded
		if runVerbose {
			fmt.Printf("Loaded config from: %s\n", runConfigPath)
		}
	}

	// Only override if the flag was explicitly set
	if cmd.Flags().Changed("provider") {
		cfg.Provider = runProvider
	}
	if cmd.Flags().Changed("model") {
		cfg.Model = runModel
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = runWorkers
	}
	if cmd.Flags().Changed("work-root") {
		cfg.WorkRoot = runWorkRoot
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = runAPIKey
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = runDatabaseURL
	}
	if cmd.Flags().Changed("weaviate-url") {
		cfg.WeaviateURL = runWeaviateURL
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.WeaviateURL == "" {
		cfg.WeaviateURL = os.Getenv("WEAVIATE_URL")
	}

	cfg = cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// buildDeps constructs the dependency context shared by every job. Optional
// services that fail to come up are disabled with a warning rather than
// aborting the run.
func buildDeps(ctx context.Context, cfg config.Config, apiKey string) (job.Deps, func(), error) {
	provider := llm.Provider(cfg.Provider)
	timeout := cfg.SandboxTimeout()

	generator, err := llm.NewHandle(ctx, llm.HandleConfig{
		Name:        "generator",
		Provider:    provider,
		Model:       cfg.Model,
		Temperature: 0.7,
		Timeout:     timeout,
		MaxRetries:  2,
		BaseURL:     cfg.BaseURL,
	}, apiKey)
	if err != nil {
		return job.Deps{}, nil, fmt.Errorf("failed to create generator handle: %w", err)
	}

	minerHandle, err := llm.NewHandle(ctx, llm.HandleConfig{
		Name:        "miner",
		Provider:    provider,
		Model:       cfg.Model,
		Temperature: 0,
		Timeout:     timeout,
		MaxRetries:  2,
		BaseURL:     cfg.BaseURL,
	}, apiKey)
	if err != nil {
		return job.Deps{}, nil, fmt.Errorf("failed to create miner handle: %w", err)
	}

	var fixers []llm.Client
	for _, fc := range llm.FixerConfigs(provider, cfg.FixerModels, timeout, cfg.BaseURL) {
		fixer, err := llm.NewHandle(ctx, fc, apiKey)
		if err != nil {
			return job.Deps{}, nil, fmt.Errorf("failed to create fixer handle %s: %w", fc.Name, err)
		}
		fixers = append(fixers, fixer)
	}

	deps := job.Deps{
		Config:    cfg,
		Printer:   observability.NewPrinter(os.Stdout),
		Runner:    sandbox.NewLocal(cfg.Interpreter, timeout),
		Generator: generator,
		Fixers:    fixers,
	}
	deps.Renderer = scene.NewRenderer(deps.Runner)

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			fmt.Printf("Warning: failed to connect to database: %v\n", err)
			fmt.Printf("Continuing without database persistence...\n")
		} else {
			if err := database.EnsureSchema(ctx); err != nil {
				fmt.Printf("Warning: failed to ensure job schema: %v\n", err)
			}
			deps.Database = database
			cleanups = append(cleanups, database.Close)

			store := knowledge.NewPGStore(database.Pool(), filepath.Join(cfg.WorkRoot, "solutions.md"))
			if err := store.EnsureSchema(ctx); err != nil {
				fmt.Printf("Warning: failed to ensure knowledge schema: %v\n", err)
			} else {
				deps.Knowledge = store
			}
		}
	}
	if deps.Knowledge == nil {
		deps.Knowledge = knowledge.NewMemStore()
	}

	if cfg.WeaviateURL != "" {
		weav, err := retrieval.NewWeaviate(cfg.WeaviateURL)
		if err != nil {
			fmt.Printf("Warning: retrieval service unavailable: %v\n", err)
		} else if err := weav.EnsureSchema(ctx); err != nil {
			fmt.Printf("Warning: failed to ensure retrieval schema: %v\n", err)
		} else {
			deps.Searcher = weav
			deps.Corpus = weav
		}
	}

	miner := mining.New(minerHandle, deps.Knowledge, cfg.Workers*4)
	miner.Start(ctx, cfg.Workers)
	cleanups = append(cleanups, miner.Close)
	deps.Miner = miner

	return deps, cleanup, nil
}
