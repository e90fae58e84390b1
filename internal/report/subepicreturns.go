package report

import (
	"context"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/store"
)

// Subepics reference their epic with an outward epic link.
const epicLinkType = "epic"

// Downstream workflow statuses whose repeat visits the subepic report
// counts, in column order.
var subepicReturnStatuses = []string{
	"InProgress", "Ревью", "Testing", "Внешний тест", "Апрув", "Регресс-тест", "Done",
}

var subepicHeader = []string{
	"Ключ задачи", "Название", "Автор", "Команда", "Ключ эпика", "Название эпика",
	"Возвраты InProgress", "Возвраты Ревью", "Возвраты Testing", "Возвраты Внешний тест",
	"Возвраты Апрув", "Возвраты Регресс-тест", "Возвраты Done",
}

// defaultSubepicStart bounds the report when no start date is given; older
// downstream tasks predate the workflow the columns describe.
var defaultSubepicStart = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// SubepicReturnsOptions controls the downstream subepic returns report.
type SubepicReturnsOptions struct {
	Output    string
	StartDate *time.Time
}

// SubepicReturns writes the per-subepic return counts CSV and returns its
// path. A subepic is a downstream-queue task carrying an outward epic link;
// a return is every visit to a status beyond the first.
func (e *Engine) SubepicReturns(ctx context.Context, opts SubepicReturnsOptions) (string, error) {
	since := defaultSubepicStart
	if opts.StartDate != nil {
		since = *opts.StartDate
	}

	tasks, err := e.store.TasksByQueue(ctx, e.cfg.Hierarchy.DownstreamQueue, &since)
	if err != nil {
		return "", err
	}

	type subepic struct {
		task    *store.Task
		epicKey string
	}
	var (
		subepics []subepic
		epicSet  = map[string]bool{}
		epicKeys []string
		keys     []string
	)
	for _, t := range tasks {
		epicKey := epicOf(t.Links)
		if epicKey == "" {
			continue
		}
		subepics = append(subepics, subepic{task: t, epicKey: epicKey})
		keys = append(keys, t.Key)
		if !epicSet[epicKey] {
			epicSet[epicKey] = true
			epicKeys = append(epicKeys, epicKey)
		}
	}

	epics := map[string]*store.Task{}
	if len(epicKeys) > 0 {
		rows, err := e.store.TasksByKeys(ctx, epicKeys)
		if err != nil {
			return "", err
		}
		for _, t := range rows {
			epics[t.Key] = t
		}
	}

	histories, err := e.store.HistoriesForKeys(ctx, keys)
	if err != nil {
		return "", err
	}

	path := e.outputPath(opts.Output, "fullstack_subepic_returns")
	f, err := createOutput(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(subepicHeader); err != nil {
		return "", err
	}
	for _, s := range subepics {
		epic := epics[s.epicKey]
		epicSummary := ""
		// The team column is the product team, taken from the subepic and
		// inherited from its epic when the subepic has none.
		team := s.task.Prodteam
		if epic != nil {
			epicSummary = epic.Summary
			if team == "" {
				team = epic.Prodteam
			}
		}

		h := toEntries(histories[s.task.Key])
		rec := []string{
			s.task.Key,
			s.task.Summary,
			s.task.Author,
			team,
			s.epicKey,
			epicSummary,
		}
		for _, status := range subepicReturnStatuses {
			rec = append(rec, strconv.Itoa(statusReturns(h, status)))
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

	e.log.Info().Str("path", path).Int("rows", len(subepics)).Msg("subepic returns report written")
	return path, nil
}

// epicOf returns the key of the epic the task points at, "" when the task
// is not a subepic.
func epicOf(links []store.TaskLink) string {
	for _, l := range links {
		if l.TypeID == epicLinkType && l.Direction == "outward" {
			return l.Key
		}
	}
	return ""
}

// statusReturns counts visits to the status beyond the first.
func statusReturns(h []history.Entry, status string) int {
	n := history.CountEntrances(h, func(e history.Entry) bool { return e.Display == status }) - 1
	if n < 0 {
		return 0
	}
	return n
}
