package cmd

import (
	"context"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/finsolve/chatbot/internal/access"
	"github.com/finsolve/chatbot/internal/auth"
	"github.com/finsolve/chatbot/internal/config"
	"github.com/finsolve/chatbot/internal/database"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage chatbot users",
}

var userAddCmd = &cobra.Command{
	Use:   "add [username] [role]",
	Short: "Add a user, prompting for a password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUserAdd(cmd.Context(), args[0], args[1])
	},
}

func init() {
	userCmd.AddCommand(userAddCmd)
	rootCmd.AddCommand(userCmd)
}

func runUserAdd(ctx context.Context, username, roleStr string) error {
	role, err := access.ParseRole(roleStr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateAuth(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	fmt.Printf("Password for %s: ", username)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if len(password) == 0 {
		return fmt.Errorf("password must not be empty")
	}

	path, err := cfg.ResolveAuthDBPath()
	if err != nil {
		return fmt.Errorf("resolving auth database path: %w", err)
	}
	db, err := database.Open(path)
	if err != nil {
		return fmt.Errorf("opening auth database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrating auth database: %w", err)
	}

	svc := auth.New(db, cfg.JWTSecret, cfg.TokenTTL, newLogger(cfg))
	if err := svc.AddUser(ctx, username, string(password), role); err != nil {
		return fmt.Errorf("adding user: %w", err)
	}

	fmt.Printf("Added user %s with role %s\n", username, role)
	return nil
}
