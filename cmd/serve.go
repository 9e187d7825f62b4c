package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/strivehq/strive/internal/api"
	"github.com/strivehq/strive/internal/app"
	"github.com/strivehq/strive/internal/config"
	"github.com/strivehq/strive/internal/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the conversation API server.

The server exposes chat, document upload, conversation management and
diagnostics endpoints. When a PostgreSQL host is configured, migrations
run on startup and the pgvector conversation memory store is enabled.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes and starts the HTTP API server. It blocks until
// SIGINT or SIGTERM, then shuts down gracefully.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{
		Level: cfg.LogLevelValue(),
		JSON:  cfg.LogJSON,
	})
	logger.Info("starting strive", "version", Version, "addr", cfg.ListenAddr,
		"memory", cfg.MemoryEnabled())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	srv, err := api.NewServer(api.ServerConfig{
		Logger:    logger,
		Core:      a.Orchestrator,
		Pool:      a.Pool,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		return fmt.Errorf("HTTP server: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
