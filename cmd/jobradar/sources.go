package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobradar/internal/config"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and prints a table of all configured sources.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-30s %-12s %-25s %s\n", "Source", "Type", "Company", "Status")
	fmt.Fprintln(out, strings.Repeat("─", 78))

	enabled := 0
	for _, s := range cfg.Sources {
		status := "disabled"
		if s.Enabled {
			status = "enabled"
			enabled++
		}
		fmt.Fprintf(out, "%-30s %-12s %-25s %s\n", s.Name, s.Type, companyOf(s), status)
	}

	fmt.Fprintf(out, "\nTotal: %d sources (%d enabled, %d disabled)\n", len(cfg.Sources), enabled, len(cfg.Sources)-enabled)
	return nil
}

// companyOf is the company column; aggregators post for many companies.
func companyOf(s config.SourceConfig) string {
	if s.Company != "" {
		return s.Company
	}
	return "(many)"
}
