package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one incremental sync across all configured sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(parent context.Context) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, logger, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	summary, err := a.Sync.Run(ctx)
	if err != nil {
		return fmt.Errorf("sync run: %w", err)
	}

	fmt.Printf("Sync complete: %d added, %d skipped, %d removed, %d failed\n",
		summary.Added, summary.Skipped, summary.Removed, len(summary.Failed))
	for _, f := range summary.Failed {
		fmt.Printf("  failed %s: %v\n", f.SourceID, f.Err)
	}
	for name, srcErr := range summary.SourceErrors {
		fmt.Printf("  source %s unavailable: %v\n", name, srcErr)
	}
	return nil
}
