package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/dates"
	"github.com/vporoshin/flowtime/internal/report"
	"github.com/vporoshin/flowtime/internal/store"
	"github.com/vporoshin/flowtime/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate CSV reports from synced data",
	Long: `Reports read only the local database; run ft sync first. Date flags
accept YYYY-MM-DD or natural phrases like "today" and "2 weeks ago".`,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

// newReportEngine opens the store and loads the classification files. The
// quarter calendar is only loaded (and required) when withQuarters is set.
func newReportEngine(ctx context.Context, withQuarters bool) (*report.Engine, *store.Store, error) {
	if err := cfg.ValidateForReport(); err != nil {
		return nil, nil, err
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	statuses, err := loadStatuses()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	var quarters []config.Quarter
	if withQuarters {
		quarters, err = config.LoadQuarters(cfg.QuartersFile)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
	}

	return report.New(st, cfg, statuses, quarters), st, nil
}

// loadStatuses reads the status mapping, falling back to the production
// defaults when the file does not exist. A present but unreadable file is
// fatal: silently wrong classification makes every metric wrong.
func loadStatuses() (*config.StatusMapping, error) {
	if _, err := os.Stat(cfg.StatusFile); os.IsNotExist(err) {
		return config.DefaultStatusMapping(), nil
	}
	return config.LoadStatusMapping(cfg.StatusFile)
}

// dateFlag parses an optional date flag value, nil when unset.
func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	s, err := cmd.Flags().GetString(name)
	if err != nil || s == "" {
		return nil, err
	}
	t, err := dates.Parse(s, time.Now())
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

func printReportDone(path string) {
	fmt.Printf("%s report written to %s\n", ui.RenderPassIcon(), ui.RenderAccent(path))
}
