package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bindforge/bindforge/pkg/engine"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2
	exitInput    = 3
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case engine.IsRejected(err):
		return exitRejected
	case engine.IsInput(err):
		return exitInput
	default:
		return exitFailure
	}
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bindforge",
		Short: "bindforge - native binding model generator",
		Long: `bindforge resolves a strategy plan against the symbol table of a native library
and produces a binding model: resources with constructors, disposers and a disposal
order, methods with error rules applied, views over native memory and callback adapters.

Features:
  - Strategy plans in CUE, YAML, JSON or Starlark
  - Ownership graph with cycle detection and disposal ordering
  - Error rules, output parameter promotion and copy-or-borrow views
  - Naming hooks in Starlark
  - Rego lint policies over the resolved model
  - Generation history in SQLite`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bindforge.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newGenerateCommand(version))
	rootCmd.AddCommand(newGraphCommand(version))
	rootCmd.AddCommand(newWatchCommand(version))
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

// stdout returns the command's output stream.
func stdout(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// stderr returns the command's diagnostic stream.
func stderr(cmd *cobra.Command) io.Writer {
	return cmd.ErrOrStderr()
}
