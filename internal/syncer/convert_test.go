package syncer

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/trackerapi"
)

func parseIssue(t *testing.T, body string) *trackerapi.Issue {
	t.Helper()
	var issue trackerapi.Issue
	require.NoError(t, json.Unmarshal([]byte(body), &issue))
	return &issue
}

func TestTaskFromIssue(t *testing.T) {
	longSummary := strings.Repeat("д", 620)
	issue := parseIssue(t, `{
		"id": "abc123",
		"key": "CPO-42",
		"summary": "`+longSummary+`",
		"description": "details",
		"status": {"id": "1", "key": "inProgress", "display": "In Progress"},
		"createdBy": {"id": "u1", "display": "alice"},
		"assignee": {"id": "u2", "display": "bob"},
		"businessClient": [{"id": "u3", "display": "carol"}, {"id": "u4", "display": "dave"}],
		"createdAt": "2025-03-01T09:00:00.000+0000",
		"updatedAt": "2025-03-10T09:00:00.000+0000",
		"resolvedAt": "2025-03-09T18:30:00.000+0000",
		"63515d47fe387b7ce7b9fc55--team": "payments",
		"links": [
			{"type": {"id": "subtask"}, "direction": "inward", "object": {"key": "FULLSTACK-7", "display": "child"}},
			{"type": {"id": "relates"}, "direction": "outward", "object": {"display": "dangling"}}
		]
	}`)

	task := taskFromIssue(issue)

	assert.Equal(t, "abc123", task.TrackerID)
	assert.Equal(t, "CPO-42", task.Key)
	assert.Equal(t, 500, utf8.RuneCountInString(task.Summary), "summary clips at 500 runes")
	assert.True(t, strings.HasPrefix(longSummary, task.Summary))
	assert.Equal(t, "In Progress", task.Status)
	assert.Equal(t, "alice", task.Author)
	assert.Equal(t, "bob", task.Assignee)
	assert.Equal(t, "carol, dave", task.BusinessClient)
	assert.Equal(t, "payments", task.Team)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), task.CreatedAt)
	require.NotNil(t, task.ResolvedAt)
	assert.Equal(t, time.Date(2025, 3, 9, 18, 30, 0, 0, time.UTC), *task.ResolvedAt)

	require.Len(t, task.Links, 1, "links without a far-end key are dropped")
	assert.Equal(t, "subtask", task.Links[0].TypeID)
	assert.Equal(t, "inward", task.Links[0].Direction)
	assert.Equal(t, "FULLSTACK-7", task.Links[0].Key)
}

func TestTaskFromIssueSparse(t *testing.T) {
	issue := parseIssue(t, `{
		"id": "x1",
		"key": "CPO-1",
		"summary": "bare",
		"createdAt": "2025-03-01T09:00:00.000+0000",
		"updatedAt": "2025-03-01T09:00:00.000+0000"
	}`)

	task := taskFromIssue(issue)

	assert.Empty(t, task.Status)
	assert.Empty(t, task.Author)
	assert.Empty(t, task.Assignee)
	assert.Empty(t, task.Team)
	assert.Nil(t, task.ResolvedAt)
	assert.Empty(t, task.Links)
}

func TestStatusChanges(t *testing.T) {
	var events []trackerapi.ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(`[
		{
			"id": "e2",
			"updatedAt": "2025-03-05T12:00:00.000+0000",
			"fields": [
				{"field": {"id": "resolution"}, "from": null, "to": {"key": "fixed"}},
				{"field": {"id": "status"}, "from": {"key": "inProgress", "display": "In Progress"}, "to": {"key": "done", "display": "Done"}}
			]
		},
		{
			"id": "e1",
			"updatedAt": "2025-03-02T12:00:00.000+0000",
			"fields": [
				{"field": {"id": "status"}, "from": null, "to": {"key": "inProgress", "display": "In Progress"}}
			]
		}
	]`), &events))

	changes := statusChanges(events)

	require.Len(t, changes, 2, "non-status diffs are ignored")
	assert.True(t, changes[0].At.Before(changes[1].At), "changes come out time-ordered")
	assert.Empty(t, changes[0].FromKey, "null from side stays empty")
	assert.Equal(t, "inProgress", changes[0].ToKey)
	assert.Equal(t, "In Progress", changes[0].ToDisplay)
	assert.Equal(t, "inProgress", changes[1].FromKey)
	assert.Equal(t, "done", changes[1].ToKey)
}

func TestHistoryRows(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mid := start.Add(24 * time.Hour)

	rows := historyRows([]history.Entry{
		{Status: "open", Start: start, End: &mid},
		{Display: "В работе", Start: mid},
	}, "trk-1")

	require.Len(t, rows, 2)
	assert.Equal(t, "trk-1", rows[0].TrackerID)
	assert.Equal(t, "open", rows[0].Status)
	assert.Equal(t, "open", rows[0].StatusDisplay, "missing display falls back to the system name")
	assert.Equal(t, "В работе", rows[1].Status, "missing system name falls back to the display")
	assert.Equal(t, "В работе", rows[1].StatusDisplay)
	assert.Nil(t, rows[1].EndDate)

	assert.Nil(t, historyRows(nil, "trk-1"))
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcde", clip("abcdefgh", 5))

	// 300 two-byte runes: over the limit in bytes, under it in runes.
	wide := strings.Repeat("я", 300)
	assert.Equal(t, wide, clip(wide, 500))
	assert.Equal(t, 500, utf8.RuneCountInString(clip(strings.Repeat("я", 501), 500)))
}
