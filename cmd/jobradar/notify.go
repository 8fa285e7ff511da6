package main

import (
	"context"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Notification subcommands",
}

var notifyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Send a test notification",
	Long:  "Sends a test notification using the configured notifier.",
	RunE:  runNotifyTest,
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyTestCmd)
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stdout)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	client := &http.Client{Timeout: cfg.Timeouts.HTTP}
	n, err := notifier.New(cfg.Notification, client, logger)
	if err != nil {
		logger.Error("failed to set up notifier", "error", err)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Notify)
	defer cancel()
	if err := notifier.SendTestMessage(ctx, n); err != nil {
		logger.Error("test notification failed", "error", err)
		return err
	}
	logger.Info("test notification sent successfully", "type", cfg.Notification.Type)
	return nil
}
