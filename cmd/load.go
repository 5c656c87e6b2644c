package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reqlens/reqlens/internal/app"
	"github.com/reqlens/reqlens/internal/config"
)

var (
	loadChildren bool
	loadJiraKey  string
)

var loadCmd = &cobra.Command{
	Use:   "load [page-id...]",
	Short: "Ingest Confluence pages into the knowledge store",
	Long: `Fetches the given pages, extracts their approved fragments and
indexes them for retrieval. Reloading a page replaces its previous
fragments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoad(cmd.Context(), cmd, args)
	},
}

func init() {
	loadCmd.Flags().BoolVar(&loadChildren, "children", false, "also load all descendant pages")
	loadCmd.Flags().StringVar(&loadJiraKey, "jira", "", "load pages linked from a Jira issue")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(parent context.Context, cmd *cobra.Command, args []string) error {
	if len(args) == 0 && loadJiraKey == "" {
		return fmt.Errorf("nothing to load: pass page ids or --jira")
	}

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

	pageIDs := append([]string(nil), args...)

	if loadJiraKey != "" {
		if a.Jira == nil {
			return fmt.Errorf("--jira requires a configured Jira base URL")
		}
		linked, err := a.Jira.LinkedPageIDs(ctx, loadJiraKey)
		if err != nil {
			return fmt.Errorf("resolving pages from issue %s: %w", loadJiraKey, err)
		}
		pageIDs = append(pageIDs, linked...)
	}

	if loadChildren {
		expanded := make([]string, 0, len(pageIDs))
		for _, id := range pageIDs {
			expanded = append(expanded, id)
			children, err := a.Confluence.ChildPageIDs(ctx, id)
			if err != nil {
				return fmt.Errorf("listing children of page %s: %w", id, err)
			}
			expanded = append(expanded, children...)
		}
		pageIDs = expanded
	}

	pageIDs = dedupe(pageIDs)
	if len(pageIDs) == 0 {
		return fmt.Errorf("no pages resolved")
	}

	results := a.Loader.LoadPages(ctx, pageIDs)

	failed := 0
	total := 0
	for _, res := range results {
		if res.Err != "" {
			failed++
			cmd.Printf("page %s: FAILED: %s\n", res.PageID, res.Err)
			continue
		}
		total += res.Fragments
		cmd.Printf("page %s: %d fragments\n", res.PageID, res.Fragments)
	}
	cmd.Printf("loaded %d pages, %d fragments, %d failed\n", len(results)-failed, total, failed)

	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed to load", failed, len(results))
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
