package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPaths []string
	verbose     bool
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tabulark",
		Short: "Tabulark - Validated Sandboxed Tabular Query Engine",
		Long: `Tabulark validates generated query code against a policy surface and
runs accepted snippets in a step-bounded sandbox against tabular data.

Features:
  - Static validation of candidate code (closed call surface, OPA/rego rules)
  - Step- and time-bounded Starlark sandbox
  - Result normalization into a closed shape set with row-cap truncation
  - Batch orchestration with chaining and stop-on-error
  - SQLite-backed attempt history
  - Typed configs via CUE`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "config file or directory (repeatable)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newBatchCommand(version))
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
