package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/syncer"
	"github.com/vporoshin/flowtime/internal/trackerapi"
	"github.com/vporoshin/flowtime/internal/ui"
)

var (
	syncFilter      string
	syncKeysFile    string
	syncLimit       int
	syncSkipHistory bool
	syncForceFull   bool
	syncDebug       bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync tasks and status history from the tracker",
	Long: `Runs one synchronization pass: searches the tracker with the given
filter (or fetches an explicit key list), then upserts every task and
replaces its status history in per-task transactions.

Only one sync can run at a time; a second instance exits with code 2.
Incremental syncs are plain filter conventions, e.g.:

  ft sync --filter "Queue: CPO AND Updated: >= today() - 7d"`,
	Example: `  ft sync --filter "Queue: CPO"
  ft sync --filter "Queue: CPO" --limit 100 --debug
  ft sync --keys-file backfill.txt --force-full-history`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if syncFilter == "" && syncKeysFile == "" {
			return fmt.Errorf("either --filter or --keys-file is required")
		}
		if err := cfg.ValidateForSync(); err != nil {
			return err
		}

		opts := syncer.Options{
			Filter:           syncFilter,
			Limit:            syncLimit,
			SkipHistory:      syncSkipHistory,
			ForceFullHistory: syncForceFull,
			Debug:            syncDebug,
		}
		if syncKeysFile != "" {
			keys, err := syncer.ReadKeysFile(syncKeysFile)
			if err != nil {
				return err
			}
			opts.Keys = keys
		}

		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		eng := syncer.New(trackerapi.NewClient(cfg.Tracker), st, cfg)
		eng.OnProgress = func(msg string) { fmt.Println(msg) }
		eng.OnWarning = func(msg string) {
			fmt.Fprintln(os.Stderr, ui.RenderWarn(ui.IconWarn+" "+msg))
		}

		res, err := eng.Run(ctx, opts)
		if res != nil {
			printSyncSummary(res)
		}
		return err
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncFilter, "filter", "", "Tracker query selecting the tasks to sync")
	syncCmd.Flags().StringVar(&syncKeysFile, "keys-file", "", "File with one issue key per line to sync instead of a search")
	syncCmd.Flags().IntVar(&syncLimit, "limit", 0, "Stop after N tasks (0 = no limit)")
	syncCmd.Flags().BoolVar(&syncSkipHistory, "skip-history", false, "Sync task records only, leave history untouched")
	syncCmd.Flags().BoolVar(&syncForceFull, "force-full-history", false, "Re-fetch the full changelog for every task")
	syncCmd.Flags().BoolVar(&syncDebug, "debug", false, "Print a progress line per completed task")
	rootCmd.AddCommand(syncCmd)
}

func printSyncSummary(res *syncer.Result) {
	c := res.Counters

	fmt.Println()
	fmt.Println(ui.RenderCategory("sync summary"))
	fmt.Println(ui.RenderSeparator())
	fmt.Printf("%s processed        %d\n", ui.RenderPassIcon(), c.Processed)
	fmt.Printf("%s created          %d\n", ui.RenderPassIcon(), c.Created)
	fmt.Printf("%s updated          %d\n", ui.RenderPassIcon(), c.Updated)
	fmt.Printf("%s history entries  %d\n", ui.RenderPassIcon(), c.HistoryEntries)
	if c.Errors > 0 {
		fmt.Printf("%s errors           %d\n", ui.RenderWarnIcon(), c.Errors)
	}
	if res.SkippedEvents > 0 {
		fmt.Printf("%s skipped events   %d\n", ui.RenderWarnIcon(), res.SkippedEvents)
	}
	if res.DupesRemoved > 0 {
		fmt.Printf("%s dupes removed    %d\n", ui.RenderSkipIcon(), res.DupesRemoved)
	}
	fmt.Println(ui.RenderMuted(fmt.Sprintf("  %d requests in %s", res.Requests, res.Elapsed.Round(time.Millisecond))))

	switch {
	case res.Cancelled:
		fmt.Println(ui.RenderFail(fmt.Sprintf("%s run #%d cancelled", ui.IconFail, res.RunID)))
	default:
		fmt.Println(ui.RenderPass(fmt.Sprintf("%s run #%d completed", ui.IconPass, res.RunID)))
	}
}
