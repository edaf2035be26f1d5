// Package cmd implements the answerdeck command line interface.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/answerdeck/answerdeck/internal/app"
	"github.com/answerdeck/answerdeck/internal/config"
	"github.com/answerdeck/answerdeck/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "answerdeck",
	Short: "Answerdeck - answer questions from your own documents",
	Long: `Answerdeck keeps a vector index over your documents (Google Drive,
Dropbox, crawled websites) and answers questions grounded in that
content, including whole questionnaires at a time.

Run "answerdeck serve" to start the HTTP API, "answerdeck sync" to
refresh the index, or "answerdeck ask" for a one-off question.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setupApp loads and validates configuration, then wires the full
// application. Shared by every command that needs live services.
func setupApp(ctx context.Context) (*app.App, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(logLevel), JSON: logJSON})

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing application: %w", err)
	}
	return a, logger, nil
}

var (
	logLevel string
	logJSON  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}
