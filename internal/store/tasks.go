package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the slice of pgx shared by *pgxpool.Pool and pgx.Tx, so the
// same statements can run standalone or inside a sync transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const taskColumns = `id, tracker_id, key, summary, description, status,
	author, assignee, team, prodteam, profit_forecast, business_client,
	links, created_at, updated_at, resolved_at, last_sync_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(
		&t.ID, &t.TrackerID, &t.Key, &t.Summary, &t.Description, &t.Status,
		&t.Author, &t.Assignee, &t.Team, &t.Prodteam, &t.ProfitForecast, &t.BusinessClient,
		&t.Links, &t.CreatedAt, &t.UpdatedAt, &t.ResolvedAt, &t.LastSyncAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*Task, error) {
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

const upsertTaskSQL = `
INSERT INTO tasks (
    tracker_id, key, summary, description, status,
    author, assignee, team, prodteam, profit_forecast, business_client,
    links, created_at, updated_at, resolved_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (tracker_id) DO UPDATE SET
    key             = EXCLUDED.key,
    summary         = EXCLUDED.summary,
    description     = EXCLUDED.description,
    status          = EXCLUDED.status,
    author          = EXCLUDED.author,
    assignee        = EXCLUDED.assignee,
    team            = EXCLUDED.team,
    prodteam        = EXCLUDED.prodteam,
    profit_forecast = EXCLUDED.profit_forecast,
    business_client = EXCLUDED.business_client,
    links           = EXCLUDED.links,
    created_at      = EXCLUDED.created_at,
    updated_at      = EXCLUDED.updated_at,
    resolved_at     = EXCLUDED.resolved_at
RETURNING id, (xmax = 0)`

func upsertTask(ctx context.Context, q querier, task *Task) (id int64, created bool, err error) {
	links := task.Links
	if links == nil {
		// jsonb null would break jsonb_array_elements in the hierarchy walk.
		links = []TaskLink{}
	}

	err = q.QueryRow(ctx, upsertTaskSQL,
		task.TrackerID, task.Key, task.Summary, task.Description, task.Status,
		task.Author, task.Assignee, task.Team, task.Prodteam, task.ProfitForecast, task.BusinessClient,
		links, task.CreatedAt, task.UpdatedAt, task.ResolvedAt,
	).Scan(&id, &created)
	return id, created, err
}

// UpsertTask inserts the task or updates every synced field when the
// tracker id already exists. Returns the row id and whether a new row was
// created. last_sync_at is left alone; SaveTaskSync owns it.
func (s *Store) UpsertTask(ctx context.Context, task *Task) (int64, bool, error) {
	id, created, err := upsertTask(ctx, s.pool, task)
	if err != nil {
		return 0, false, fmt.Errorf("upsert task %s: %w", task.Key, err)
	}
	return id, created, nil
}

// SaveResult reports what a SaveTaskSync call did.
type SaveResult struct {
	TaskID  int64
	Created bool
	History int // history rows written, 0 when history was not replaced
}

// SaveTaskSync is the per-task sync transaction: upsert the task, optionally
// replace its status history wholesale, then stamp last_sync_at. Either
// everything lands or nothing does, so a crash mid-sync never leaves a task
// with half its history.
func (s *Store) SaveTaskSync(ctx context.Context, task *Task, entries []HistoryEntry, replaceHistory bool, syncedAt time.Time) (SaveResult, error) {
	var res SaveResult

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id, created, err := upsertTask(ctx, tx, task)
	if err != nil {
		return res, fmt.Errorf("upsert task %s: %w", task.Key, err)
	}
	res.TaskID = id
	res.Created = created

	if replaceHistory {
		n, err := replaceHistoryTx(ctx, tx, id, task.TrackerID, entries)
		if err != nil {
			return res, fmt.Errorf("replace history for %s: %w", task.Key, err)
		}
		res.History = n
	}

	if _, err := tx.Exec(ctx, `UPDATE tasks SET last_sync_at = $2 WHERE id = $1`, id, syncedAt); err != nil {
		return res, fmt.Errorf("stamp last_sync_at for %s: %w", task.Key, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("commit %s: %w", task.Key, err)
	}
	return res, nil
}

// TaskByKey returns the task with the given issue key, or nil when absent.
func (s *Store) TaskByKey(ctx context.Context, key string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("task by key %s: %w", key, err)
	}
	return t, nil
}

// TasksByKeys returns the tasks with the given issue keys, ordered by key.
// Missing keys are silently absent from the result.
func (s *Store) TasksByKeys(ctx context.Context, keys []string) ([]*Task, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE key = ANY ($1) ORDER BY key`, keys)
	if err != nil {
		return nil, fmt.Errorf("tasks by keys: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("tasks by keys: %w", err)
	}
	return tasks, nil
}

// TasksByQueue returns every task whose key belongs to the queue, ordered by
// key. createdSince, when non-nil, keeps only tasks created at or after it.
func (s *Store) TasksByQueue(ctx context.Context, queue string, createdSince *time.Time) ([]*Task, error) {
	sql := `SELECT ` + taskColumns + ` FROM tasks WHERE key LIKE $1`
	args := []any{queue + "-%"}
	if createdSince != nil {
		sql += ` AND created_at >= $2`
		args = append(args, *createdSince)
	}
	sql += ` ORDER BY key`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("tasks by queue %s: %w", queue, err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("tasks by queue %s: %w", queue, err)
	}
	return tasks, nil
}

// TasksForMetricWindow is the coarse report preselect: queue tasks with a
// non-empty author that entered any of the given statuses inside [from, to].
// It deliberately over-selects; the metric pass recomputes exact anchors
// from full history and drops tasks that fall outside the window.
func (s *Store) TasksForMetricWindow(ctx context.Context, queue string, statuses []string, from, to time.Time) ([]*Task, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+taskColumns+`
FROM tasks t
WHERE t.key LIKE $1
  AND t.author <> ''
  AND EXISTS (
      SELECT 1
      FROM task_history h
      WHERE h.task_id = t.id
        AND h.status_display = ANY ($2)
        AND h.start_date >= $3
        AND h.start_date <= $4
  )
ORDER BY t.key`,
		queue+"-%", statuses, from, to)
	if err != nil {
		return nil, fmt.Errorf("tasks for metric window: %w", err)
	}
	tasks, err := collectTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("tasks for metric window: %w", err)
	}
	return tasks, nil
}
