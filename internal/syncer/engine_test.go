package syncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/lockfile"
	"github.com/vporoshin/flowtime/internal/store"
	"github.com/vporoshin/flowtime/internal/syncer"
	"github.com/vporoshin/flowtime/internal/testutil/teststore"
	"github.com/vporoshin/flowtime/internal/trackerapi"
)

// fakeTracker serves the three API surfaces the engine touches: scroll
// search, batch fetch by keys and per-issue changelogs. Pages are two issues
// wide; the scroll id encodes the next offset.
type fakeTracker struct {
	mu             sync.Mutex
	issues         []map[string]any
	changelogs     map[string][]map[string]any
	changelogFail  map[string]int // key -> HTTP status
	searchCalls    int
	batchCalls     int
	changelogCalls int

	srv *httptest.Server
}

const fakePageSize = 2

func newFakeTracker(t *testing.T) *fakeTracker {
	t.Helper()
	f := &fakeTracker{
		changelogs:    map[string][]map[string]any{},
		changelogFail: map[string]int{},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v3/issues/_search":
			f.handleScroll(w, r)
		case r.URL.Path == "/v2/issues/_search":
			f.handleBatch(w, r)
		case strings.HasSuffix(r.URL.Path, "/changelog"):
			f.handleChangelog(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTracker) handleScroll(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.searchCalls++
	issues := f.issues
	f.mu.Unlock()

	start := 0
	if sid := r.URL.Query().Get("scrollId"); sid != "" {
		start, _ = strconv.Atoi(sid)
	}
	end := min(start+fakePageSize, len(issues))
	if end < len(issues) {
		w.Header().Set("X-Scroll-Id", strconv.Itoa(end))
	}
	_ = json.NewEncoder(w).Encode(issues[start:end])
}

func (f *fakeTracker) handleBatch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.batchCalls++
	issues := f.issues
	f.mu.Unlock()

	var req struct {
		Keys []string `json:"keys"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	out := []map[string]any{}
	for _, k := range req.Keys {
		for _, is := range issues {
			if is["key"] == k {
				out = append(out, is)
			}
		}
	}
	_ = json.NewEncoder(w).Encode(out)
}

func (f *fakeTracker) handleChangelog(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.changelogCalls++
	f.mu.Unlock()

	key := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v2/issues/"), "/changelog")
	if status, ok := f.changelogFail[key]; ok {
		http.Error(w, "changelog unavailable", status)
		return
	}
	events := f.changelogs[key]
	if events == nil {
		events = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(events)
}

func (f *fakeTracker) counts() (search, batch, changelog int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.searchCalls, f.batchCalls, f.changelogCalls
}

func issueJSON(id, key, status, createdAt string) map[string]any {
	return map[string]any{
		"id":        id,
		"key":       key,
		"summary":   "work on " + key,
		"status":    map[string]string{"key": strings.ToLower(status), "display": status},
		"createdBy": map[string]string{"id": "u-1", "display": "alice"},
		"createdAt": createdAt,
		"updatedAt": createdAt,
	}
}

func statusEvent(at, from, to string) map[string]any {
	ref := func(display string) any {
		if display == "" {
			return nil
		}
		return map[string]string{"key": strings.ToLower(display), "display": display}
	}
	return map[string]any{
		"id":        at,
		"updatedAt": at,
		"fields": []map[string]any{{
			"field": map[string]string{"id": "status"},
			"from":  ref(from),
			"to":    ref(to),
		}},
	}
}

// output collects engine callbacks from concurrent workers.
type output struct {
	mu       sync.Mutex
	progress []string
	warnings []string
}

func (o *output) hook(e *syncer.Engine) {
	e.OnProgress = func(msg string) {
		o.mu.Lock()
		o.progress = append(o.progress, msg)
		o.mu.Unlock()
	}
	e.OnWarning = func(msg string) {
		o.mu.Lock()
		o.warnings = append(o.warnings, msg)
		o.mu.Unlock()
	}
}

func (o *output) anyContains(lines []string, sub string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, l := range lines {
		if strings.Contains(l, sub) {
			return true
		}
	}
	return false
}

func newEngine(t *testing.T, st *store.Store, baseURL, lockPath string) *syncer.Engine {
	t.Helper()
	cfg := &config.Config{
		Tracker: config.TrackerConfig{
			Token:          "test-token",
			OrgID:          "org",
			BaseURL:        baseURL,
			MaxWorkers:     3,
			RequestDelay:   time.Millisecond,
			ScrollPageSize: fakePageSize,
			ScrollTTL:      time.Minute,
			BatchSize:      100,
		},
		LockPath: lockPath,
	}
	return syncer.New(trackerapi.NewClient(cfg.Tracker), st, cfg)
}

func runCount(t *testing.T, st *store.Store) int {
	t.Helper()
	var n int
	err := st.Pool().QueryRow(context.Background(), `SELECT COUNT(*) FROM sync_runs`).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestSyncEngine(t *testing.T) {
	st := teststore.New(t)
	ctx := context.Background()
	lockPath := filepath.Join(t.TempDir(), "ft-sync.lock")

	f := newFakeTracker(t)
	f.issues = []map[string]any{
		issueJSON("id-1", "CPO-1", "Done", "2025-01-01T08:00:00.000+0000"),
		issueJSON("id-2", "CPO-2", "Open", "2025-01-02T08:00:00.000+0000"),
		issueJSON("id-3", "CPO-3", "Open", "2025-01-03T08:00:00.000+0000"),
	}
	f.changelogs["CPO-1"] = []map[string]any{
		statusEvent("2025-01-05T10:00:00.000+0000", "Open", "In Progress"),
		statusEvent("2025-01-10T10:00:00.000+0000", "In Progress", "Done"),
	}
	f.changelogFail["CPO-3"] = http.StatusNotFound

	t.Run("first sync creates tasks and history", func(t *testing.T) {
		eng := newEngine(t, st, f.srv.URL, lockPath)
		var out output
		out.hook(eng)

		res, err := eng.Run(ctx, syncer.Options{Filter: "Queue: CPO", Debug: true})
		require.NoError(t, err)

		assert.Equal(t, 3, res.Counters.Processed)
		assert.Equal(t, 3, res.Counters.Created)
		assert.Zero(t, res.Counters.Updated)
		assert.Equal(t, 1, res.Counters.Errors, "CPO-3 changelog 404 is a task error")
		assert.Equal(t, 4, res.Counters.HistoryEntries, "3 intervals for CPO-1, 1 for CPO-2")
		assert.False(t, res.Cancelled)
		assert.Positive(t, res.Requests)

		run, err := st.RunByID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, store.RunCompleted, run.Status, "per-task failures must not fail the run")
		assert.Equal(t, res.Counters, run.Counters)

		task, err := st.TaskByKey(ctx, "CPO-1")
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, "work on CPO-1", task.Summary)
		assert.Equal(t, "alice", task.Author)
		require.NotNil(t, task.LastSyncAt)

		hist, err := st.HistoryForTask(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, hist, 3)
		assert.Equal(t, "Open", hist[0].StatusDisplay)
		assert.Equal(t, "In Progress", hist[1].StatusDisplay)
		assert.Equal(t, "Done", hist[2].StatusDisplay)
		assert.Equal(t, task.CreatedAt.UTC(), hist[0].StartDate.UTC(),
			"initial interval starts at task creation")
		require.NotNil(t, hist[0].EndDate)
		assert.Equal(t, hist[1].StartDate.UTC(), hist[0].EndDate.UTC(), "intervals chain without gaps")
		assert.Nil(t, hist[2].EndDate, "last interval stays open")

		// Changelog failure leaves the task record synced, history empty.
		broken, err := st.TaskByKey(ctx, "CPO-3")
		require.NoError(t, err)
		require.NotNil(t, broken)
		require.NotNil(t, broken.LastSyncAt)
		bh, err := st.HistoryForTask(ctx, broken.ID)
		require.NoError(t, err)
		assert.Empty(t, bh)

		assert.True(t, out.anyContains(out.progress, "CPO-1 created (3 history rows)"))
		assert.True(t, out.anyContains(out.warnings, "changelog CPO-3"))
	})

	t.Run("re-sync is idempotent", func(t *testing.T) {
		task, err := st.TaskByKey(ctx, "CPO-1")
		require.NoError(t, err)
		before, err := st.HistoryForTask(ctx, task.ID)
		require.NoError(t, err)

		eng := newEngine(t, st, f.srv.URL, lockPath)
		res, err := eng.Run(ctx, syncer.Options{Filter: "Queue: CPO"})
		require.NoError(t, err)

		assert.Equal(t, 3, res.Counters.Processed)
		assert.Zero(t, res.Counters.Created)
		assert.Equal(t, 3, res.Counters.Updated)

		after, err := st.HistoryForTask(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, after, len(before))
		for i := range before {
			assert.Equal(t, before[i].Status, after[i].Status)
			assert.Equal(t, before[i].StartDate.UTC(), after[i].StartDate.UTC())
			if before[i].EndDate == nil {
				assert.Nil(t, after[i].EndDate)
			} else {
				assert.Equal(t, before[i].EndDate.UTC(), after[i].EndDate.UTC())
			}
		}
	})

	t.Run("limit caps processing", func(t *testing.T) {
		eng := newEngine(t, st, f.srv.URL, lockPath)
		res, err := eng.Run(ctx, syncer.Options{Filter: "Queue: CPO", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Counters.Processed)
		assert.Zero(t, res.Counters.Errors, "the broken third task is never reached")
	})

	t.Run("skip history leaves rows untouched", func(t *testing.T) {
		_, _, beforeChangelog := f.counts()

		eng := newEngine(t, st, f.srv.URL, lockPath)
		res, err := eng.Run(ctx, syncer.Options{Filter: "Queue: CPO", SkipHistory: true})
		require.NoError(t, err)

		_, _, afterChangelog := f.counts()
		assert.Equal(t, beforeChangelog, afterChangelog, "no changelog requests under SkipHistory")
		assert.Zero(t, res.Counters.HistoryEntries)
		assert.Zero(t, res.Counters.Errors, "the broken changelog is never touched")

		task, err := st.TaskByKey(ctx, "CPO-1")
		require.NoError(t, err)
		hist, err := st.HistoryForTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Len(t, hist, 3)
	})

	t.Run("explicit key list uses batch fetch", func(t *testing.T) {
		searchBefore, batchBefore, _ := f.counts()

		eng := newEngine(t, st, f.srv.URL, lockPath)
		var out output
		out.hook(eng)

		res, err := eng.Run(ctx, syncer.Options{Keys: []string{"CPO-2", "CPO-404"}})
		require.NoError(t, err)

		searchAfter, batchAfter, _ := f.counts()
		assert.Equal(t, searchBefore, searchAfter, "key sync must not open a scroll")
		assert.Greater(t, batchAfter, batchBefore)
		assert.Equal(t, 1, res.Counters.Processed)
		assert.True(t, out.anyContains(out.warnings, "not found"))
	})

	t.Run("lock contention yields ErrLocked and no run row", func(t *testing.T) {
		lock, err := lockfile.Acquire(lockPath)
		require.NoError(t, err)

		runsBefore := runCount(t, st)
		eng := newEngine(t, st, f.srv.URL, lockPath)
		_, err = eng.Run(ctx, syncer.Options{Filter: "Queue: CPO"})
		require.ErrorIs(t, err, lockfile.ErrLocked)
		assert.Equal(t, runsBefore, runCount(t, st))

		require.NoError(t, lock.Release())
		res, err := eng.Run(ctx, syncer.Options{Filter: "Queue: CPO"})
		require.NoError(t, err)
		assert.Equal(t, runsBefore+1, runCount(t, st))
		assert.Equal(t, 3, res.Counters.Processed)
	})

	t.Run("cancellation finalizes the run as cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		slow := &fakeTracker{
			changelogs:    map[string][]map[string]any{},
			changelogFail: map[string]int{},
			issues: []map[string]any{
				issueJSON("cid-1", "CPO-21", "Open", "2025-02-01T08:00:00.000+0000"),
				issueJSON("cid-2", "CPO-22", "Open", "2025-02-01T08:00:00.000+0000"),
				issueJSON("cid-3", "CPO-23", "Open", "2025-02-01T08:00:00.000+0000"),
			},
		}
		slow.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/v3/issues/_search" && r.URL.Query().Get("scrollId") != "" {
				// Second page: the operator hits Ctrl-C mid-run.
				cancel()
				<-r.Context().Done()
				return
			}
			switch {
			case r.URL.Path == "/v3/issues/_search":
				slow.handleScroll(w, r)
			case strings.HasSuffix(r.URL.Path, "/changelog"):
				slow.handleChangelog(w, r)
			default:
				http.NotFound(w, r)
			}
		}))
		defer slow.srv.Close()

		eng := newEngine(t, st, slow.srv.URL, lockPath)
		res, err := eng.Run(cctx, syncer.Options{Filter: "Queue: CPO"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		require.NotNil(t, res)
		assert.True(t, res.Cancelled)

		run, err := st.RunByID(ctx, res.RunID)
		require.NoError(t, err)
		assert.Equal(t, store.RunFailed, run.Status)
		assert.Equal(t, "cancelled", run.ErrorMessage)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		eng := newEngine(t, st, f.srv.URL, lockPath)
		_, err := eng.Run(ctx, syncer.Options{})
		require.Error(t, err)
	})
}
