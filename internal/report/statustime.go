package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/vporoshin/flowtime/internal/history"
)

// StatusTimeOptions controls the time-in-status report.
type StatusTimeOptions struct {
	Queue        string
	CreatedSince *time.Time
	Output       string
}

// StatusTime writes a per-task breakdown of whole days spent in each status
// the queue's tasks ever held, one dynamically discovered column per status.
// Cells are empty for statuses a task never visited, "0" for visits shorter
// than a day.
func (e *Engine) StatusTime(ctx context.Context, opts StatusTimeOptions) (string, error) {
	if opts.Queue == "" {
		return "", fmt.Errorf("status-time needs a queue")
	}

	tasks, err := e.store.TasksByQueue(ctx, opts.Queue, opts.CreatedSince)
	if err != nil {
		return "", err
	}

	path := e.outputPath(opts.Output, "status_time_report")
	f, err := createOutput(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)

	if len(tasks) == 0 {
		e.log.Warn().Str("queue", opts.Queue).Msg("no tasks found for status time report")
		if err := w.Write([]string{"Ключ задачи"}); err != nil {
			return "", err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", err
		}
		return path, f.Close()
	}

	keys := make([]string, len(tasks))
	for i, t := range tasks {
		keys[i] = t.Key
	}
	raw, err := e.store.HistoriesForKeys(ctx, keys)
	if err != nil {
		return "", err
	}
	entries := make(map[string][]history.Entry, len(raw))
	for k, rows := range raw {
		entries[k] = toEntries(rows)
	}

	statuses := collectStatuses(entries)
	if err := w.Write(append([]string{"Ключ задачи"}, statuses...)); err != nil {
		return "", err
	}

	for _, t := range tasks {
		h := entries[t.Key]
		if len(h) == 0 {
			e.log.Warn().Str("key", t.Key).Msg("no history entries for task")
		}
		days := statusDays(h)
		rec := make([]string, 0, len(statuses)+1)
		rec = append(rec, t.Key)
		for _, status := range statuses {
			if d, ok := days[status]; ok {
				rec = append(rec, strconv.Itoa(d))
			} else {
				rec = append(rec, "")
			}
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	e.log.Info().Str("path", path).Int("rows", len(tasks)).Msg("status time report written")
	return path, nil
}

func collectStatuses(entries map[string][]history.Entry) []string {
	set := map[string]bool{}
	for _, h := range entries {
		for _, e := range h {
			if e.Display != "" {
				set[e.Display] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// statusDays sums whole days per status, flooring each interval. Open
// intervals are skipped; closed ones measure to the next interval's start so
// recorded gaps count toward the status the task was leaving. Intervals with
// a negative span are skipped rather than clamped, leaving the cell empty
// for statuses with no usable data.
func statusDays(entries []history.Entry) map[string]int {
	out := map[string]int{}
	for i, e := range entries {
		if e.End == nil {
			continue
		}
		next := *e.End
		if i+1 < len(entries) {
			next = entries[i+1].Start
		}
		if next.Before(e.Start) {
			continue
		}
		out[e.Display] += history.DaysBetween(e.Start, next)
	}
	return out
}
