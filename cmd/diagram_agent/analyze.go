package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/diagram-weaver/internal/layout"
	"github.com/jonathan/diagram-weaver/internal/types"
)

var analyzeCommand = &cobra.Command{
	Use:   "analyze <scene.json>",
	Short: "Analyze a rendered scene file for layout issues",
	Args:  cobra.ExactArgs(1),
	RunE:  analyzeCmd,
}

var (
	analyzeAllowDiagonals bool
	analyzeTolerance      float64
)

func init() {
	analyzeCommand.Flags().BoolVar(&analyzeAllowDiagonals, "allow-diagonals", false, "Skip the wire orthogonality check")
	analyzeCommand.Flags().Float64Var(&analyzeTolerance, "tolerance", 0, "Endpoint alignment tolerance (0 uses the default)")

	rootCmd.AddCommand(analyzeCommand)
}

func analyzeCmd(_ *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read scene file: %w", err)
	}

	var sceneGraph types.Scene
	if err := json.Unmarshal(data, &sceneGraph); err != nil {
		return fmt.Errorf("failed to parse scene JSON: %w", err)
	}

	issues := layout.Analyze(sceneGraph.Elements, layout.Config{
		AllowDiagonalLines: analyzeAllowDiagonals,
		AlignTolerance:     analyzeTolerance,
	})
	fmt.Println(layout.GenerateReport(issues))
	if len(issues) > 0 {
		os.Exit(1)
	}
	return nil
}
