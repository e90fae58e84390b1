package main

import (
	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/report"
)

var subepicOutput string

var subepicReturnsCmd = &cobra.Command{
	Use:   "subepic-returns",
	Short: "Per-subepic status return counts",
	Long: `Counts repeat visits to the downstream workflow statuses for every
subepic (downstream task linked to an epic). A return is any entry into a
status beyond the first.`,
	Example: `  ft report subepic-returns
  ft report subepic-returns --start-date "3 months ago"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		startDate, err := dateFlag(cmd, "start-date")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, st, err := newReportEngine(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close()

		path, err := eng.SubepicReturns(ctx, report.SubepicReturnsOptions{
			Output:    subepicOutput,
			StartDate: startDate,
		})
		if err != nil {
			return err
		}
		printReportDone(path)
		return nil
	},
}

func init() {
	subepicReturnsCmd.Flags().StringVar(&subepicOutput, "output", "", "CSV path (default: timestamped under reports dir)")
	subepicReturnsCmd.Flags().String("start-date", "", "Only include subepics created on or after this date")
	reportCmd.AddCommand(subepicReturnsCmd)
}
