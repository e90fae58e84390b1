package main

import (
	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/report"
)

var (
	ttmOutput      string
	ttmStatsOutput string
	ttmGroupBy     string
)

var ttmDetailsCmd = &cobra.Command{
	Use:   "ttm-details",
	Short: "Per-task delivery metrics (TTD, TTM, DevLT, Tail)",
	Long: `Writes one CSV row per upstream task with its pause-aware delivery
metrics and downstream return counts, bucketed into quarters by the
calendar file. --as-of freezes the clock at a historical date: open
intervals are cut there and later history is ignored.`,
	Example: `  ft report ttm-details
  ft report ttm-details --as-of 2025-06-30 --group-by team
  ft report ttm-details --output q2.csv --stats-output q2_stats.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		asOf, err := dateFlag(cmd, "as-of")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, st, err := newReportEngine(ctx, true)
		if err != nil {
			return err
		}
		defer st.Close()

		path, err := eng.TTMDetails(ctx, report.TTMDetailsOptions{
			Output:      ttmOutput,
			StatsOutput: ttmStatsOutput,
			AsOf:        asOf,
			GroupBy:     ttmGroupBy,
		})
		if err != nil {
			return err
		}
		printReportDone(path)
		return nil
	},
}

func init() {
	ttmDetailsCmd.Flags().StringVar(&ttmOutput, "output", "", "Details CSV path (default: timestamped under reports dir)")
	ttmDetailsCmd.Flags().StringVar(&ttmStatsOutput, "stats-output", "", "Also write quarter statistics (count/mean/P85) to this CSV")
	ttmDetailsCmd.Flags().String("as-of", "", "Compute metrics as of this date")
	ttmDetailsCmd.Flags().StringVar(&ttmGroupBy, "group-by", report.GroupByAuthor, "Stats grouping: author or team")
	reportCmd.AddCommand(ttmDetailsCmd)
}
