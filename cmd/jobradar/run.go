package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once and print a summary",
	Long: "Fetches every enabled source, merges new postings into the store, scores " +
		"the unscored backlog and sends alerts. Exits non-zero only if the run failed.",
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, buildOptions{}, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		return err
	}
	defer a.Close()

	summary, runErr := a.pipeline.Run(ctx)
	if err := report.Render(cmd.OutOrStdout(), summary); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", summary.RunID, runErr)
	}
	return nil
}
