package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/report"
	"github.com/amishk599/jobradar/internal/store"
)

var (
	jobsMinScore int
	jobsLimit    int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List stored jobs, best fit first",
	RunE:  runJobs,
}

func init() {
	jobsCmd.Flags().IntVar(&jobsMinScore, "min-score", 0, "only jobs scored at least this high")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 25, "max rows, 0 for all")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	logger := setupLogger(os.Stderr)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return err
	}

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return err
	}
	defer s.Close()

	jobs, err := s.ListCanonical(ctx)
	if err != nil {
		return err
	}
	return report.Jobs(cmd.OutOrStdout(), jobs, report.JobsOptions{MinScore: jobsMinScore, Limit: jobsLimit})
}
