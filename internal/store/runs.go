package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Sync run states as stored in sync_runs.status.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// RunCounters accumulates what a sync run touched.
type RunCounters struct {
	Processed      int
	Created        int
	Updated        int
	HistoryEntries int
	Errors         int
}

// Run mirrors one row of the sync_runs table.
type Run struct {
	ID           int64
	StartedAt    time.Time
	CompletedAt  *time.Time
	Status       string
	Counters     RunCounters
	ErrorMessage string
}

const runColumns = `id, started_at, completed_at, status,
	tasks_processed, tasks_created, tasks_updated, history_entries_processed, errors_count,
	COALESCE(error_message, '')`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	err := row.Scan(
		&r.ID, &r.StartedAt, &r.CompletedAt, &r.Status,
		&r.Counters.Processed, &r.Counters.Created, &r.Counters.Updated,
		&r.Counters.HistoryEntries, &r.Counters.Errors,
		&r.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// StartRun records the beginning of a sync run and returns its id.
func (s *Store) StartRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_runs DEFAULT VALUES RETURNING id`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start sync run: %w", err)
	}
	return id, nil
}

// CompleteRun marks the run completed and stores its final counters.
func (s *Store) CompleteRun(ctx context.Context, id int64, c RunCounters) error {
	_, err := s.pool.Exec(ctx, `
UPDATE sync_runs SET
    status                    = $2,
    completed_at              = now(),
    tasks_processed           = $3,
    tasks_created             = $4,
    tasks_updated             = $5,
    history_entries_processed = $6,
    errors_count              = $7
WHERE id = $1`,
		id, RunCompleted, c.Processed, c.Created, c.Updated, c.HistoryEntries, c.Errors)
	if err != nil {
		return fmt.Errorf("complete sync run %d: %w", id, err)
	}
	return nil
}

// FailRun marks the run failed, storing the counters gathered so far and the
// failure reason.
func (s *Store) FailRun(ctx context.Context, id int64, c RunCounters, msg string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE sync_runs SET
    status                    = $2,
    completed_at              = now(),
    tasks_processed           = $3,
    tasks_created             = $4,
    tasks_updated             = $5,
    history_entries_processed = $6,
    errors_count              = $7,
    error_message             = $8
WHERE id = $1`,
		id, RunFailed, c.Processed, c.Created, c.Updated, c.HistoryEntries, c.Errors, msg)
	if err != nil {
		return fmt.Errorf("fail sync run %d: %w", id, err)
	}
	return nil
}

// FailOrphanedRuns marks runs still 'running' that started before cutoff as
// failed. Called at startup while holding the sync lock, when no other
// process can legitimately own a running row.
func (s *Store) FailOrphanedRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE sync_runs SET
    status        = $2,
    completed_at  = now(),
    error_message = 'orphaned: process exited without finishing'
WHERE status = $3 AND started_at < $1`,
		cutoff, RunFailed, RunRunning)
	if err != nil {
		return 0, fmt.Errorf("fail orphaned runs: %w", err)
	}
	swept := tag.RowsAffected()
	if swept > 0 {
		s.log.Warn().Int64("runs", swept).Msg("marked orphaned sync runs as failed")
	}
	return swept, nil
}

// RunByID returns the run, or nil when it does not exist.
func (s *Store) RunByID(ctx context.Context, id int64) (*Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM sync_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sync run %d: %w", id, err)
	}
	return r, nil
}
