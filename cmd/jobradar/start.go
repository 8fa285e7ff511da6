package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/report"
	"github.com/amishk599/jobradar/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the scheduled daemon",
	Long: "Runs the pipeline on the configured cron schedule (default twice a day, " +
		"07:00 and 19:00); blocks until SIGINT/SIGTERM.",
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stdout)

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

	sched, err := scheduler.New(cfg.Schedule.Cron, cfg.Schedule.RunOnStart, func(ctx context.Context) error {
		summary, err := a.pipeline.Run(ctx)
		if !jsonLog {
			report.Render(cmd.OutOrStdout(), summary)
		}
		return err
	}, logger)
	if err != nil {
		logger.Error("invalid schedule", "error", err)
		return err
	}

	if err := sched.Run(ctx); err != nil {
		logger.Error("scheduler error", "error", err)
		return err
	}

	logger.Info("goodbye")
	return nil
}
