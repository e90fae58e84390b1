// Package syncer orchestrates one synchronization run against the tracker:
// a producer drives the scroll search into a bounded channel, a worker pool
// writes each task in its own transaction, and a sync_runs row records the
// outcome. Runs are serialized process-wide by the lock file.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vporoshin/flowtime/internal/config"
	"github.com/vporoshin/flowtime/internal/history"
	"github.com/vporoshin/flowtime/internal/lockfile"
	"github.com/vporoshin/flowtime/internal/logging"
	"github.com/vporoshin/flowtime/internal/store"
	"github.com/vporoshin/flowtime/internal/telemetry"
	"github.com/vporoshin/flowtime/internal/trackerapi"
)

// orphanAge is how old a "running" sync_runs row must be before the
// start-of-run sweep declares it abandoned.
const orphanAge = 24 * time.Hour

// errLimitReached stops the producer once --limit tasks have been queued.
var errLimitReached = errors.New("limit reached")

// Options control one sync run.
type Options struct {
	// Filter is a tracker query-language expression selecting tasks to sync.
	Filter string
	// Keys syncs an explicit list of issue keys instead of running a search.
	Keys []string
	// Limit caps the number of tasks processed (0 = no cap).
	Limit int
	// SkipHistory syncs task records only, leaving task_history untouched.
	SkipHistory bool
	// ForceFullHistory re-fetches every changelog. History replacement is
	// already full per task, so this only documents intent at call sites.
	ForceFullHistory bool
	// Debug emits a progress line per completed task.
	Debug bool
}

// Result is what a finished run reports back to the CLI.
type Result struct {
	RunID         int64
	Counters      store.RunCounters
	SkippedEvents int   // malformed changelog events dropped during replay
	DupesRemoved  int64 // history rows removed by the post-run dedup sweep
	Requests      int64 // outbound API requests issued
	Cancelled     bool
	Elapsed       time.Duration
}

// Engine ties the tracker client, the store and the run bookkeeping together
// for one synchronization pass.
type Engine struct {
	Client *trackerapi.Client
	Store  *store.Store
	Config *config.Config

	// Callbacks for CLI feedback (optional).
	OnProgress func(msg string)
	OnWarning  func(msg string)

	tel *telemetry.SyncMetrics
	log zerolog.Logger
	now func() time.Time
}

// New creates a sync engine over an open client and store.
func New(client *trackerapi.Client, st *store.Store, cfg *config.Config) *Engine {
	return &Engine{
		Client: client,
		Store:  st,
		Config: cfg,
		tel:    telemetry.NewSyncMetrics(),
		log:    logging.WithComponent("syncer"),
		now:    time.Now,
	}
}

// Run executes one synchronization pass. Lock contention surfaces as
// lockfile.ErrLocked before any sync_runs row exists; cancellation drains
// in-flight tasks and finalizes the run as failed/"cancelled". Per-task
// failures are counted in the run row and do not fail the run.
func (e *Engine) Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Filter == "" && len(opts.Keys) == 0 {
		return nil, fmt.Errorf("nothing to sync: no filter and no keys")
	}
	if opts.ForceFullHistory {
		opts.SkipHistory = false
	}

	lock, err := lockfile.Acquire(e.Config.LockPath)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	if e.Config.Tracker.SyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Config.Tracker.SyncTimeout)
		defer cancel()
	}

	// Runs that never got finalized (crash, kill -9) stay "running" forever
	// and would read as concurrent syncs; sweep them before opening a new one.
	if swept, err := e.Store.FailOrphanedRuns(ctx, e.now().Add(-orphanAge)); err != nil {
		e.warn("orphaned-run sweep: %v", err)
	} else if swept > 0 {
		e.msg("swept %d orphaned run(s)", swept)
	}

	runID, err := e.Store.StartRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("start sync run: %w", err)
	}

	log := logging.WithRun(runID)
	log.Info().
		Str("filter", opts.Filter).
		Int("keys", len(opts.Keys)).
		Int("limit", opts.Limit).
		Bool("skip_history", opts.SkipHistory).
		Msg("sync run started")

	started := e.now()
	res := &Result{RunID: runID}
	ctx, span := e.tel.StartRun(ctx, opts.Filter, opts.Limit)

	cnt := newCounters()
	err = e.pipeline(ctx, opts, cnt, log)

	res.Counters, res.SkippedEvents = cnt.snapshot()
	res.Requests = e.Client.RequestCount()
	res.Elapsed = e.now().Sub(started)

	// Finalization has to land even when the context is already dead.
	finCtx := context.WithoutCancel(ctx)

	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Cancelled = true
		e.tel.EndRun(span, res.Counters.Processed, res.Counters.Errors, err)
		log.Warn().Int("processed", res.Counters.Processed).Msg("sync cancelled")
		if ferr := e.Store.FailRun(finCtx, runID, res.Counters, "cancelled"); ferr != nil {
			log.Error().Err(ferr).Msg("finalizing cancelled run failed")
		}
		return res, err
	case err != nil:
		e.tel.EndRun(span, res.Counters.Processed, res.Counters.Errors, err)
		log.Error().Err(err).Msg("sync failed")
		if ferr := e.Store.FailRun(finCtx, runID, res.Counters, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("finalizing failed run failed")
		}
		return res, err
	}

	if !opts.SkipHistory {
		removed, err := e.Store.CleanupDuplicateHistory(ctx)
		if err != nil {
			e.warn("duplicate-history sweep: %v", err)
			log.Warn().Err(err).Msg("duplicate-history sweep failed")
		} else if removed > 0 {
			res.DupesRemoved = removed
			log.Info().Int64("removed", removed).Msg("duplicate history rows removed")
		}
	}

	e.tel.EndRun(span, res.Counters.Processed, res.Counters.Errors, nil)
	if err := e.Store.CompleteRun(ctx, runID, res.Counters); err != nil {
		return res, fmt.Errorf("complete sync run: %w", err)
	}

	log.Info().
		Int("processed", res.Counters.Processed).
		Int("created", res.Counters.Created).
		Int("updated", res.Counters.Updated).
		Int("history_entries", res.Counters.HistoryEntries).
		Int("errors", res.Counters.Errors).
		Int64("requests", res.Requests).
		Dur("elapsed", res.Elapsed).
		Msg("sync run completed")
	return res, nil
}

// pipeline runs the producer and the worker pool to completion.
func (e *Engine) pipeline(ctx context.Context, opts Options, cnt *counters, log zerolog.Logger) error {
	workers := e.Config.Tracker.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	queue := make(chan trackerapi.Issue, workers*2)

	g.Go(func() error {
		defer close(queue)
		err := e.produce(ctx, opts, queue)
		if errors.Is(err, errLimitReached) {
			return nil
		}
		return err
	})

	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for issue := range queue {
				if err := ctx.Err(); err != nil {
					return err
				}
				e.syncTask(ctx, &issue, opts, cnt, log)
			}
			return nil
		})
	}

	return g.Wait()
}

// produce feeds issues into out until the source, the limit or the context is
// exhausted. Issues seen twice are emitted once.
func (e *Engine) produce(ctx context.Context, opts Options, out chan<- trackerapi.Issue) error {
	sent := 0
	seen := make(map[string]bool)
	emit := func(page []trackerapi.Issue) error {
		for i := range page {
			issue := page[i]
			if issue.ID == "" || seen[issue.ID] {
				continue
			}
			if opts.Limit > 0 && sent >= opts.Limit {
				return errLimitReached
			}
			select {
			case out <- issue:
				seen[issue.ID] = true
				sent++
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}

	if len(opts.Keys) > 0 {
		batch := e.Config.Tracker.BatchSize
		if batch < 1 {
			batch = len(opts.Keys)
		}
		for start := 0; start < len(opts.Keys); start += batch {
			end := min(start+batch, len(opts.Keys))
			page, err := e.Client.GetTasksBatch(ctx, opts.Keys[start:end])
			if err != nil {
				return fmt.Errorf("batch fetch: %w", err)
			}
			if missing := end - start - len(page); missing > 0 {
				e.warn("%d of %d requested keys not found", missing, end-start)
			}
			if err := emit(page); err != nil {
				return err
			}
		}
		e.msg("queued %d task(s) from key list", sent)
		return nil
	}

	scroll := e.Client.Search(opts.Filter)
	for {
		page, err := scroll.Next(ctx)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		if page == nil {
			e.msg("search exhausted after %d task(s)", sent)
			return nil
		}
		if err := emit(page); err != nil {
			return err
		}
	}
}

// syncTask brings one task fully up to date. Failures are counted, never
// propagated: one bad task must not sink the run.
func (e *Engine) syncTask(ctx context.Context, issue *trackerapi.Issue, opts Options, cnt *counters, log zerolog.Logger) {
	ctx, span, startedAt := e.tel.StartTask(ctx, issue.Key)
	cnt.processed()

	task := taskFromIssue(issue)

	replaceHistory := !opts.SkipHistory
	var rows []store.HistoryEntry
	if replaceHistory {
		events, err := e.Client.GetChangelog(ctx, issue.Key)
		if err != nil {
			// The task record still lands below; only this history refresh
			// is lost and the previous rows stay in place.
			cnt.fail()
			replaceHistory = false
			e.warn("changelog %s: %v", issue.Key, err)
			log.Warn().Err(err).Str("key", issue.Key).Msg("changelog fetch failed")
		} else {
			entries, skipped := history.Reconstruct(
				statusChanges(events), issue.CreatedAt.Time, statusKey(issue), issue.StatusDisplay())
			if skipped > 0 {
				cnt.skip(skipped)
				log.Warn().Int("skipped", skipped).Str("key", issue.Key).
					Msg("malformed changelog events skipped")
			}
			rows = historyRows(entries, issue.ID)
		}
	}

	// The write finishes even when cancellation lands mid-task: the data is
	// already in hand and the transaction is the atomicity boundary.
	saved, err := e.Store.SaveTaskSync(context.WithoutCancel(ctx), task, rows, replaceHistory, e.now().UTC())
	if err != nil {
		cnt.fail()
		e.warn("save %s: %v", issue.Key, err)
		log.Error().Err(err).Str("key", issue.Key).Msg("task save failed")
		e.tel.EndTask(ctx, span, startedAt, false, 0, err)
		return
	}

	cnt.saved(saved.Created, saved.History)
	e.tel.EndTask(ctx, span, startedAt, saved.Created, saved.History, nil)

	if opts.Debug {
		verb := "updated"
		if saved.Created {
			verb = "created"
		}
		e.msg("%s %s (%d history rows)", issue.Key, verb, saved.History)
	}
}

func (e *Engine) msg(format string, args ...any) {
	if e.OnProgress != nil {
		e.OnProgress(fmt.Sprintf(format, args...))
	}
}

func (e *Engine) warn(format string, args ...any) {
	if e.OnWarning != nil {
		e.OnWarning(fmt.Sprintf(format, args...))
	}
}

// counters is the mutex-guarded tally every worker reports into.
type counters struct {
	mu      sync.Mutex
	c       store.RunCounters
	skipped int
}

func newCounters() *counters { return &counters{} }

func (k *counters) processed() {
	k.mu.Lock()
	k.c.Processed++
	k.mu.Unlock()
}

func (k *counters) saved(created bool, historyRows int) {
	k.mu.Lock()
	if created {
		k.c.Created++
	} else {
		k.c.Updated++
	}
	k.c.HistoryEntries += historyRows
	k.mu.Unlock()
}

func (k *counters) fail() {
	k.mu.Lock()
	k.c.Errors++
	k.mu.Unlock()
}

func (k *counters) skip(n int) {
	k.mu.Lock()
	k.skipped += n
	k.mu.Unlock()
}

func (k *counters) snapshot() (store.RunCounters, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.c, k.skipped
}
