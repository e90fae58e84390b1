// Command ft syncs Yandex Tracker tasks into PostgreSQL and renders delivery
// metric reports from the synced history.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/lockfile"
	"github.com/vporoshin/flowtime/internal/logging"
	"github.com/vporoshin/flowtime/internal/store"
	"github.com/vporoshin/flowtime/internal/telemetry"
	"github.com/vporoshin/flowtime/internal/ui"
)

var (
	cfg *config.Config

	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ft",
	Short: "ft - delivery lifecycle metrics for Yandex Tracker",
	Long: `Syncs tasks and their full status history from Yandex Tracker into
PostgreSQL, then computes pause-aware delivery metrics (TTD, TTM, DevLT,
Tail) and renders them as CSV reports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logging.Init(logging.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})
		if noColor {
			ui.Disable()
		}
		if err := telemetry.Init(cmd.Context(), "ft", Version); err != nil {
			// Telemetry is best-effort; a dead collector must not block a sync.
			fmt.Fprintln(os.Stderr, ui.RenderWarn(ui.IconWarn+" telemetry init: "+err.Error()))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
}

// openStore connects to PostgreSQL. The caller owns the returned store and
// must Close it.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return store.New(pool), nil
}

// exitCode maps command errors onto the documented process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, lockfile.ErrLocked):
		return 2
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 130
	default:
		return 1
	}
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	telemetry.Shutdown(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderFail(ui.IconFail+" "+err.Error()))
		return exitCode(err)
	}
	return 0
}

func main() {
	os.Exit(run())
}
