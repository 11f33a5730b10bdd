package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/app"
	"github.com/finsolve/chatbot/internal/config"
)

var (
	askRole string
	askUser string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a one-shot question from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAsk(cmd.Context(), args)
	},
}

func init() {
	askCmd.Flags().StringVar(&askRole, "role", "employee", "role to query as (finance, marketing, hr, engineering, c-level, employee)")
	askCmd.Flags().StringVar(&askUser, "user", "cli", "user ID for conversation memory")
	rootCmd.AddCommand(askCmd)
}

func runAsk(ctx context.Context, args []string) error {
	role, err := access.ParseRole(askRole)
	if err != nil {
		return err
	}

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

	resp, err := a.Chat.Chat(ctx, askUser, role, strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("answering query: %w", err)
	}

	fmt.Println(resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, src := range resp.Sources {
			fmt.Printf("  %s (%s, relevance %.2f)\n", src.File, src.Department, src.Relevance)
		}
	}
	return nil
}
