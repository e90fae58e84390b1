package syncer

import (
	"sort"

	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/store"
	"github.com/vporoshin/flowtime/internal/trackerapi"
)

// maxSummaryLen mirrors the tasks.summary column width.
const maxSummaryLen = 500

// taskFromIssue maps an API issue onto a task row.
func taskFromIssue(issue *trackerapi.Issue) *store.Task {
	t := &store.Task{
		TrackerID:      issue.ID,
		Key:            issue.Key,
		Summary:        clip(issue.Summary, maxSummaryLen),
		Description:    issue.Description,
		Status:         issue.StatusDisplay(),
		Team:           issue.Team(),
		Prodteam:       issue.Prodteam(),
		ProfitForecast: issue.ProfitForecast(),
		BusinessClient: issue.BusinessClientNames(),
		Links:          taskLinks(issue.Links),
		CreatedAt:      issue.CreatedAt.Time,
		UpdatedAt:      issue.UpdatedAt.Time,
	}
	if issue.CreatedBy != nil {
		t.Author = issue.CreatedBy.Display
	}
	if issue.Assignee != nil {
		t.Assignee = issue.Assignee.Display
	}
	if issue.ResolvedAt != nil && !issue.ResolvedAt.IsZero() {
		resolved := issue.ResolvedAt.Time
		t.ResolvedAt = &resolved
	}
	return t
}

// taskLinks normalizes API links to the flat shape the hierarchy walk
// filters on. Links without a far-end key are dropped.
func taskLinks(links []trackerapi.Link) []store.TaskLink {
	if len(links) == 0 {
		return nil
	}
	out := make([]store.TaskLink, 0, len(links))
	for _, l := range links {
		if l.Object.Key == "" {
			continue
		}
		out = append(out, store.TaskLink{
			TypeID:    l.Type.ID,
			Direction: l.Direction,
			Key:       l.Object.Key,
		})
	}
	return out
}

// statusChanges flattens workflow events into time-ordered status
// transitions. Events arrive paged from the oldest, but a stable sort keeps
// the replay correct even when pages interleave.
func statusChanges(events []trackerapi.ChangeEvent) []history.StatusChange {
	var out []history.StatusChange
	for _, ev := range events {
		for _, fc := range ev.Fields {
			if !fc.IsStatus() {
				continue
			}
			ch := history.StatusChange{At: ev.UpdatedAt.Time}
			if from := fc.StatusFrom(); from != nil {
				ch.FromKey, ch.FromDisplay = from.Key, from.Display
			}
			if to := fc.StatusTo(); to != nil {
				ch.ToKey, ch.ToDisplay = to.Key, to.Display
			}
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// historyRows converts reconstructed intervals into rows for one task. Either
// name side fills in for a missing other, matching the reader's fallback.
func historyRows(entries []history.Entry, trackerID string) []store.HistoryEntry {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]store.HistoryEntry, 0, len(entries))
	for _, en := range entries {
		status, display := en.Status, en.Display
		if status == "" {
			status = display
		}
		if display == "" {
			display = status
		}
		rows = append(rows, store.HistoryEntry{
			TrackerID:     trackerID,
			Status:        status,
			StatusDisplay: display,
			StartDate:     en.Start,
			EndDate:       en.End,
		})
	}
	return rows
}

func statusKey(issue *trackerapi.Issue) string {
	if issue.Status == nil {
		return ""
	}
	return issue.Status.Key
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
