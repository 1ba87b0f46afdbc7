// Package commands provides the CLI commands for Loupe.
package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loupe-ai/loupe/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Exit codes: misuse covers bad flags and arguments, runtime covers
// everything that went wrong while doing the work.
const (
	exitOK      = 0
	exitMisuse  = 2
	exitRuntime = 3
)

// errUsage marks an error as caller misuse.
var errUsage = errors.New("usage error")

// usage wraps err so Execute maps it to the misuse exit code.
func usage(err error) error {
	return fmt.Errorf("%w: %w", errUsage, err)
}

// Global flags
var (
	serverURL  string
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "loupe",
	Short: "Loupe - LLM-driven research sessions",
	Long: `Loupe runs multi-turn, tool-augmented research sessions against an
LLM and streams the agent's reasoning, tool activity, and final answer.

Run 'loupe serve' to start the API server, or 'loupe research' to ask
a question against a running server.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logging.ParseLevel(logLevel)
		cfg.Pretty = prettyLogs
		logging.Init(cfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:7865", "Base URL of the loupe server")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty-logs", false, "Human-readable log output")

	rootCmd.SetVersionTemplate(fmt.Sprintf("loupe %s (%s)\n", Version, BuildTime))

	// Bad flags are misuse, not runtime failures
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usage(err)
	})

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(researchCmd)
	rootCmd.AddCommand(messageCmd)
	rootCmd.AddCommand(interruptCmd)
	rootCmd.AddCommand(terminateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(subscribeCmd)
}

// exactArgs is cobra.ExactArgs with the misuse exit code attached.
func exactArgs(n int) cobra.PositionalArgs {
	inner := cobra.ExactArgs(n)
	return func(cmd *cobra.Command, args []string) error {
		if err := inner(cmd, args); err != nil {
			return usage(err)
		}
		return nil
	}
}

// Execute runs the root command and maps errors to exit codes.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if errors.Is(err, errUsage) {
		return exitMisuse
	}
	return exitRuntime
}
