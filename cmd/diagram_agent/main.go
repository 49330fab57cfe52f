// Package main provides the entry point for the diagram weaver CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "diagram_agent",
	Short: "Automated schematic diagram generation",
	Long:  "Diagram weaver generates schemdraw circuit scripts end-to-end: concept, structural plan, code generation, sandboxed runtime repair, and geometric layout polish.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
