// Package report renders the offline CSV reports from synced data: per-task
// delivery metrics, downstream subepic return counts and time-in-status
// breakdowns. Reports only read the database; they never talk to the
// tracker.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/logging"
	"github.com/vporoshin/flowtime/internal/store"
)

// Engine wires the store and the classification inputs the reports share.
// Quarters may be nil for reports that do not bucket by quarter.
type Engine struct {
	store    *store.Store
	cfg      *config.Config
	statuses *config.StatusMapping
	quarters []config.Quarter
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a report engine over an open store.
func New(st *store.Store, cfg *config.Config, statuses *config.StatusMapping, quarters []config.Quarter) *Engine {
	return &Engine{
		store:    st,
		cfg:      cfg,
		statuses: statuses,
		quarters: quarters,
		log:      logging.WithComponent("report"),
		now:      time.Now,
	}
}

// outputPath returns the explicit path when one was given, else a
// timestamp-suffixed file under the configured reports directory.
func (e *Engine) outputPath(explicit, prefix string) string {
	if explicit != "" {
		return explicit
	}
	name := fmt.Sprintf("%s_%s.csv", prefix, e.now().Format("20060102_150405"))
	return filepath.Join(e.cfg.ReportsDir, name)
}

func createOutput(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create reports directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create report file: %w", err)
	}
	return f, nil
}

// toEntries converts stored history rows to metric intervals. Display falls
// back to the raw status for rows synced before display names were kept.
func toEntries(rows []store.HistoryEntry) []history.Entry {
	out := make([]history.Entry, 0, len(rows))
	for _, r := range rows {
		display := r.StatusDisplay
		if display == "" {
			display = r.Status
		}
		out = append(out, history.Entry{
			Status:  r.Status,
			Display: display,
			Start:   r.StartDate,
			End:     r.EndDate,
		})
	}
	return out
}

// cellInt renders an optional whole-day metric, empty when undefined.
func cellInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
