// Package cmd defines the reqlens command line interface.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reqlens/reqlens/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "reqlens",
	Short: "RAG-based requirement document compliance analyzer",
	Long: `reqlens checks Confluence requirement pages against template
schemas: a deterministic structural pass, then an LLM-backed semantic
review grounded on retrieved context from approved requirements.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger honoring the verbose flag.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
