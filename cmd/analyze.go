package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reqlens/reqlens/internal/analyze"
	"github.com/reqlens/reqlens/internal/app"
	"github.com/reqlens/reqlens/internal/config"
)

var analyzeType string

var analyzeCmd = &cobra.Command{
	Use:   "analyze [page-id...]",
	Short: "Analyze requirement pages against their template schemas",
	Long: `Runs the structural check and, unless structure is critically
broken, the semantic review for each page. Reports are printed as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalyze(cmd.Context(), cmd, args)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeType, "type", "", "requirement type (default: page labels or rule detection)")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(parent context.Context, cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if err := a.RequirePages(); err != nil {
		return err
	}

	reqs := make([]analyze.Request, 0, len(args))
	for _, id := range args {
		reqs = append(reqs, analyze.Request{PageID: id, RequirementType: analyzeType})
	}

	reports := a.Orchestrator.AnalyzeBatch(ctx, reqs)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}

	failed := 0
	for _, r := range reports {
		if r.Err != "" && r.Semantic == nil && r.Status == "failed" {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(reports))
	}
	return nil
}
