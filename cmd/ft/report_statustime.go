package main

import (
	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/report"
)

var (
	statusTimeQueue  string
	statusTimeOutput string
)

var statusTimeCmd = &cobra.Command{
	Use:   "status-time",
	Short: "Whole days spent in each status, per task",
	Long: `Writes one CSV row per task of the given queue with a column for
every status its tasks ever held. Cells are whole days; open intervals are
skipped.`,
	Example: `  ft report status-time --queue CPO
  ft report status-time --queue FULLSTACK --created-since 2025-01-01`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		createdSince, err := dateFlag(cmd, "created-since")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, st, err := newReportEngine(ctx, false)
		if err != nil {
			return err
		}
		defer st.Close()

		path, err := eng.StatusTime(ctx, report.StatusTimeOptions{
			Queue:        statusTimeQueue,
			CreatedSince: createdSince,
			Output:       statusTimeOutput,
		})
		if err != nil {
			return err
		}
		printReportDone(path)
		return nil
	},
}

func init() {
	statusTimeCmd.Flags().StringVar(&statusTimeQueue, "queue", "", "Queue whose tasks to break down (required)")
	statusTimeCmd.Flags().StringVar(&statusTimeOutput, "output", "", "CSV path (default: timestamped under reports dir)")
	_ = statusTimeCmd.MarkFlagRequired("queue")
	reportCmd.AddCommand(statusTimeCmd)
}
