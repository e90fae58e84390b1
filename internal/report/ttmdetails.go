package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/metrics"
	"github.com/vporoshin/flowtime/internal/store"
)

// Grouping modes for the details and stats outputs.
const (
	GroupByAuthor = "author"
	GroupByTeam   = "team"
)

// Upstream tasks reference their downstream epics with plain relates links;
// only the walk below those epics uses the configured subtask link type.
const relatesLinkType = "relates"

// TTMDetailsOptions controls the per-task delivery metrics report.
type TTMDetailsOptions struct {
	Output      string // details CSV path; timestamped default when empty
	StatsOutput string // quarter statistics CSV; skipped when empty
	AsOf        *time.Time
	GroupBy     string // GroupByAuthor (default) or GroupByTeam
}

var detailsHeader = []string{
	"key", "summary", "author", "team", "group_key",
	"quarter_ttd", "quarter_ttm",
	"ttd", "ttm", "devlt", "tail", "pause", "ttd_pause",
	"discovery_backlog_days", "ready_for_dev_days",
	"testing_returns", "external_test_returns",
}

type detailsRow struct {
	task  *store.Task
	vals  metrics.Values
	ret   metrics.Returns
	epics []string
}

// TTMDetails writes the per-task metric CSV, optionally the aggregated
// quarter statistics, and returns the details path.
//
// The data flow is strictly batched: one query selects candidate tasks, one
// loads all their histories, one recursive walk resolves every downstream
// hierarchy and one more query loads the downstream histories.
func (e *Engine) TTMDetails(ctx context.Context, opts TTMDetailsOptions) (string, error) {
	if len(e.quarters) == 0 {
		return "", fmt.Errorf("ttm-details needs a quarter calendar")
	}
	groupBy := opts.GroupBy
	if groupBy == "" {
		groupBy = GroupByAuthor
	}
	if groupBy != GroupByAuthor && groupBy != GroupByTeam {
		return "", fmt.Errorf("unknown group-by %q", groupBy)
	}

	from, to := e.quarters[0].Start, e.quarters[0].End
	for _, q := range e.quarters[1:] {
		if q.Start.Before(from) {
			from = q.Start
		}
		if q.End.After(to) {
			to = q.End
		}
	}

	targets := append([]string{e.statuses.ReadyForDev}, setToSorted(e.statuses.Done)...)
	tasks, err := e.store.TasksForMetricWindow(ctx, e.cfg.Hierarchy.UpstreamQueue, targets, from, to)
	if err != nil {
		return "", err
	}

	keys := make([]string, len(tasks))
	for i, t := range tasks {
		keys[i] = t.Key
	}
	histories, err := e.store.HistoriesForKeys(ctx, keys)
	if err != nil {
		return "", err
	}

	calc := &metrics.Calculator{
		Statuses: e.statuses,
		Quarters: e.quarters,
		Now:      e.now(),
		AsOf:     opts.AsOf,
	}

	var (
		rows    []detailsRow
		rootSet = map[string]bool{}
		roots   []string
	)
	for _, t := range tasks {
		h := history.FilterShort(toEntries(histories[t.Key]), e.cfg.MinStatusDuration)
		v := calc.Evaluate(h)
		// The preselect over-matches; keep only tasks whose TTD or TTM
		// anchor lands inside the quarter calendar.
		if v.QuarterTTD == "" && v.QuarterTTM == "" {
			continue
		}
		epics := downstreamEpics(t.Links, e.cfg.Hierarchy.DownstreamQueue)
		for _, root := range epics {
			if !rootSet[root] {
				rootSet[root] = true
				roots = append(roots, root)
			}
		}
		rows = append(rows, detailsRow{task: t, vals: v, epics: epics})
	}

	if err := e.fillReturns(ctx, rows, roots); err != nil {
		return "", err
	}

	path := e.outputPath(opts.Output, "ttm_details")
	if err := e.writeDetails(path, rows, groupBy); err != nil {
		return "", err
	}
	e.log.Info().Str("path", path).Int("rows", len(rows)).Msg("ttm details report written")

	if opts.StatsOutput != "" {
		if err := e.writeStats(opts.StatsOutput, rows, groupBy); err != nil {
			return "", err
		}
		e.log.Info().Str("path", opts.StatsOutput).Msg("quarter statistics written")
	}
	return path, nil
}

// fillReturns resolves all downstream hierarchies in one recursive walk,
// loads every downstream history in one query and counts returns per task.
// Returns are counted on raw downstream history; the bounce filter guards
// "first entry" anchors, not entrance counts.
func (e *Engine) fillReturns(ctx context.Context, rows []detailsRow, roots []string) error {
	if len(roots) == 0 {
		return nil
	}

	walk, err := e.store.DownstreamBatch(ctx, roots, store.HierarchyQuery{
		Queue:     e.cfg.Hierarchy.DownstreamQueue,
		LinkType:  e.cfg.Hierarchy.LinkType,
		Direction: e.cfg.Hierarchy.LinkDirection,
		MaxDepth:  e.cfg.Hierarchy.MaxDepth,
	})
	if err != nil {
		return err
	}

	var (
		downSet  = map[string]bool{}
		downKeys []string
	)
	for _, ks := range walk {
		for _, k := range ks {
			if !downSet[k] {
				downSet[k] = true
				downKeys = append(downKeys, k)
			}
		}
	}

	raw, err := e.store.HistoriesForKeys(ctx, downKeys)
	if err != nil {
		return err
	}
	downEntries := make(map[string][]history.Entry, len(raw))
	for k, rs := range raw {
		downEntries[k] = toEntries(rs)
	}

	returnStatuses := metrics.DefaultReturnStatuses()
	for i := range rows {
		seen := map[string]bool{}
		var hierarchy []string
		for _, epic := range rows[i].epics {
			for _, k := range walk[epic] {
				if !seen[k] {
					seen[k] = true
					hierarchy = append(hierarchy, k)
				}
			}
		}
		rows[i].ret = metrics.CountReturns(downEntries, hierarchy, returnStatuses)
	}
	return nil
}

func (e *Engine) writeDetails(path string, rows []detailsRow, groupBy string) error {
	f, err := createOutput(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(detailsHeader); err != nil {
		return err
	}
	for _, r := range rows {
		team := teamOf(r.task)
		group := r.task.Author
		if groupBy == GroupByTeam {
			group = team
		}
		rec := []string{
			r.task.Key,
			r.task.Summary,
			r.task.Author,
			team,
			group,
			r.vals.QuarterTTD,
			r.vals.QuarterTTM,
			cellInt(r.vals.TTD),
			cellInt(r.vals.TTM),
			cellInt(r.vals.DevLT),
			cellInt(r.vals.Tail),
			strconv.Itoa(r.vals.Pause),
			strconv.Itoa(r.vals.TTDPause),
			strconv.Itoa(r.vals.DiscoveryBacklogDays),
			strconv.Itoa(r.vals.ReadyForDevDays),
			strconv.Itoa(r.ret.Testing),
			strconv.Itoa(r.ret.ExternalTest),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

var statsHeader = []string{"quarter", "group_key", "metric", "count", "mean", "p85", "pause_mean", "pause_p85"}

type statsCell struct {
	ttd, ttdPause []int
	ttm, ttmPause []int
}

// writeStats aggregates per (quarter, group) and reports count, mean and
// nearest-rank P85 for TTD and TTM. The pause series are exactly the pause
// values deducted from the corresponding metric, never a wider total.
func (e *Engine) writeStats(path string, rows []detailsRow, groupBy string) error {
	cells := map[[2]string]*statsCell{}
	cell := func(quarter, group string) *statsCell {
		k := [2]string{quarter, group}
		c := cells[k]
		if c == nil {
			c = &statsCell{}
			cells[k] = c
		}
		return c
	}

	for _, r := range rows {
		group := r.task.Author
		if groupBy == GroupByTeam {
			group = teamOf(r.task)
		}
		if r.vals.TTD != nil && r.vals.QuarterTTD != "" {
			c := cell(r.vals.QuarterTTD, group)
			c.ttd = append(c.ttd, *r.vals.TTD)
			c.ttdPause = append(c.ttdPause, r.vals.TTDPause)
		}
		if r.vals.TTM != nil && r.vals.QuarterTTM != "" {
			c := cell(r.vals.QuarterTTM, group)
			c.ttm = append(c.ttm, *r.vals.TTM)
			c.ttmPause = append(c.ttmPause, r.vals.Pause)
		}
	}

	qpos := make(map[string]int, len(e.quarters))
	for i, q := range e.quarters {
		qpos[q.Name] = i
	}
	order := make([][2]string, 0, len(cells))
	for k := range cells {
		order = append(order, k)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i][0] != order[j][0] {
			return qpos[order[i][0]] < qpos[order[j][0]]
		}
		return order[i][1] < order[j][1]
	})

	f, err := createOutput(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(statsHeader); err != nil {
		return err
	}
	for _, k := range order {
		c := cells[k]
		for _, rec := range [][]string{
			statsRecord(k[0], k[1], "ttd", c.ttd, c.ttdPause),
			statsRecord(k[0], k[1], "ttm", c.ttm, c.ttmPause),
		} {
			if rec == nil {
				continue
			}
			if err := w.Write(rec); err != nil {
				return err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func statsRecord(quarter, group, metric string, values, pauses []int) []string {
	s := metrics.Summarize(values)
	if s == nil {
		return nil
	}
	rec := []string{
		quarter, group, metric,
		strconv.Itoa(s.Count),
		strconv.FormatFloat(s.Mean, 'f', 1, 64),
		strconv.Itoa(s.P85),
		"", "",
	}
	if p := metrics.Summarize(pauses); p != nil {
		rec[6] = strconv.FormatFloat(p.Mean, 'f', 1, 64)
		rec[7] = strconv.Itoa(p.P85)
	}
	return rec
}

// teamOf prefers the task's own team field and falls back to the product
// team custom field.
func teamOf(t *store.Task) string {
	if t.Team != "" {
		return t.Team
	}
	return t.Prodteam
}

// downstreamEpics extracts the downstream roots the task references through
// relates links, either direction.
func downstreamEpics(links []store.TaskLink, queue string) []string {
	prefix := queue + "-"
	var out []string
	for _, l := range links {
		if l.TypeID == relatesLinkType && strings.HasPrefix(l.Key, prefix) {
			out = append(out, l.Key)
		}
	}
	return out
}

func setToSorted(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
