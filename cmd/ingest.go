package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsolve/chatbot/internal/app"
	"github.com/finsolve/chatbot/internal/config"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Index a department-structured document tree",
	Long: `Ingest walks a directory whose first-level subdirectories name
departments (finance, marketing, hr, engineering, general), splits each
document into fragments and writes them to the index. Reingesting the
same tree updates fragments in place.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := newLogger(cfg)

	a, err := app.Setup(ctx, cfg, logger, app.Options{})
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Ingester.Run(ctx, dir)
	if err != nil {
		return fmt.Errorf("ingesting %s: %w", dir, err)
	}

	fmt.Printf("Indexed %d files (%d fragments) in %s\n",
		result.FilesAdded, result.FragmentsAdded, result.Duration.Round(time.Millisecond))
	if result.FilesSkipped > 0 {
		fmt.Printf("Skipped %d files\n", result.FilesSkipped)
	}
	if result.FilesFailed > 0 {
		fmt.Printf("Failed %d files\n", result.FilesFailed)
	}
	return nil
}
