package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/diagram-weaver/internal/db"
	"github.com/jonathan/diagram-weaver/internal/knowledge"
)

var solutionsCommand = &cobra.Command{
	Use:   "solutions",
	Short: "List recently mined error-pattern solutions",
	RunE:  solutionsCmd,
}

var (
	solutionsDatabaseURL string
	solutionsLimit       int
)

func init() {
	solutionsCommand.Flags().StringVar(&solutionsDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	solutionsCommand.Flags().IntVarP(&solutionsLimit, "limit", "k", 10, "Number of solutions to show")

	rootCmd.AddCommand(solutionsCommand)
}

func solutionsCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	databaseURL := solutionsDatabaseURL
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	store := knowledge.NewPGStore(database.Pool(), "")
	solutions, err := store.RecentSolutions(ctx, solutionsLimit)
	if err != nil {
		return fmt.Errorf("failed to list solutions: %w", err)
	}

	if len(solutions) == 0 {
		fmt.Println("No solutions mined yet.")
		return nil
	}
	for _, s := range solutions {
		fmt.Printf("Pattern:  %s\nSolution: %s\nUpdated:  %s\n\n",
			s.Pattern, s.Summary, s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
