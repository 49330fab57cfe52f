package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/diagram-weaver/internal/config"
	"github.com/jonathan/diagram-weaver/internal/sandbox"
)

var validateCommand = &cobra.Command{
	Use:   "validate <script.py>",
	Short: "Run one artifact in the sandbox and report the outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  validateCmd,
}

var (
	validateInterpreter string
	validateTimeoutSec  int
)

func init() {
	validateCommand.Flags().StringVar(&validateInterpreter, "interpreter", config.DefaultInterpreter, "Interpreter used to run the artifact")
	validateCommand.Flags().IntVar(&validateTimeoutSec, "timeout", 0, "Time budget in seconds (default 120)")

	rootCmd.AddCommand(validateCommand)
}

func validateCmd(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	cfg := config.Config{SandboxTimeoutSec: validateTimeoutSec}
	runner := sandbox.NewLocal(validateInterpreter, cfg.SandboxTimeout())

	result, err := runner.Run(context.Background(), string(data), "")
	if err != nil {
		return fmt.Errorf("sandbox execution failed: %w", err)
	}

	if result.OK {
		fmt.Printf("OK (%dms)\n", result.DurationMS)
		return nil
	}
	if result.TimedOut {
		fmt.Printf("TIMEOUT: %s\n", result.Output)
	} else {
		fmt.Printf("FAILED:\n%s\n", result.Output)
	}
	os.Exit(1)
	return nil
}
