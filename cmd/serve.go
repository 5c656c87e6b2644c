package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reqlens/reqlens/internal/api"
	"github.com/reqlens/reqlens/internal/app"
	"github.com/reqlens/reqlens/internal/config"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger()
	logger.Info("starting reqlens", "version", Version, "config", cfg)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	if err := a.RequirePages(); err != nil {
		return err
	}

	server := api.NewServer(
		api.NewHealthHandler(a.DBPool, logger),
		api.NewAnalyzeHandler(a.Orchestrator, logger),
		api.NewLoadHandler(a.Loader, logger),
		logger,
	)

	addr := serveAddr
	if addr == "" {
		addr = cfg.ServerAddr
	}

	return server.Run(ctx, addr)
}
