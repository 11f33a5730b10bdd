// Package cmd contains the finsolve CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "finsolve",
	Short: "FinSolve internal document assistant",
	Long: `FinSolve answers questions over internal company documents with
role-based department visibility. Run "finsolve serve" to start the
HTTP API, "finsolve ingest" to index a document tree, or
"finsolve ask" for a one-shot query from the terminal.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
