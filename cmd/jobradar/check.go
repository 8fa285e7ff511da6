package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/report"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry run: fetch and dedupe, print matches, exit",
	Long: "One-shot run against an in-memory store with scoring off and alerts going to " +
		"the log. Nothing is persisted and no model or webhook is called.",
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	logger.Info("check mode: nothing will be stored, scored or sent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, buildOptions{dryRun: true}, logger)
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
		return runErr
	}

	jobs, err := a.store.ListCanonical(ctx)
	if err != nil {
		return err
	}
	return report.Jobs(cmd.OutOrStdout(), jobs, report.JobsOptions{Limit: 50})
}
