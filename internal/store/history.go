package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const historyColumns = `id, task_id, tracker_id, status, status_display, start_date, end_date`

const insertHistorySQL = `
INSERT INTO task_history (task_id, tracker_id, status, status_display, start_date, end_date)
VALUES ($1, $2, $3, $4, $5, $6)`

// replaceHistoryTx deletes the task's history and writes the new entries in
// one batched round trip. Only the Status, StatusDisplay, StartDate and
// EndDate fields of entries are used; task_id and tracker_id come from the
// arguments.
func replaceHistoryTx(ctx context.Context, tx pgx.Tx, taskID int64, trackerID string, entries []HistoryEntry) (int, error) {
	if _, err := tx.Exec(ctx, `DELETE FROM task_history WHERE task_id = $1`, taskID); err != nil {
		return 0, fmt.Errorf("delete old history: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, e := range entries {
		b.Queue(insertHistorySQL, taskID, trackerID, e.Status, e.StatusDisplay, e.StartDate, e.EndDate)
	}

	br := tx.SendBatch(ctx, b)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return 0, fmt.Errorf("insert history: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}
	return len(entries), nil
}

// ReplaceHistory swaps the task's entire status history in one transaction.
// Running it twice with the same entries leaves the table in the same state.
func (s *Store) ReplaceHistory(ctx context.Context, taskID int64, trackerID string, entries []HistoryEntry) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := replaceHistoryTx(ctx, tx, taskID, trackerID, entries)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func collectHistory(rows pgx.Rows) ([]HistoryEntry, error) {
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.TaskID, &e.TrackerID, &e.Status, &e.StatusDisplay, &e.StartDate, &e.EndDate); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HistoryForTask returns the task's history ordered by interval start.
func (s *Store) HistoryForTask(ctx context.Context, taskID int64) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+historyColumns+` FROM task_history WHERE task_id = $1 ORDER BY start_date, id`,
		taskID)
	if err != nil {
		return nil, fmt.Errorf("history for task %d: %w", taskID, err)
	}
	entries, err := collectHistory(rows)
	if err != nil {
		return nil, fmt.Errorf("history for task %d: %w", taskID, err)
	}
	return entries, nil
}

// HistoriesForKeys loads history for many tasks in a single joined query and
// groups it by issue key. Keys with no stored history are absent from the
// map. This is the report path's one history round trip per batch.
func (s *Store) HistoriesForKeys(ctx context.Context, keys []string) (map[string][]HistoryEntry, error) {
	if len(keys) == 0 {
		return map[string][]HistoryEntry{}, nil
	}

	rows, err := s.pool.Query(ctx, `
SELECT t.key, h.id, h.task_id, h.tracker_id, h.status, h.status_display, h.start_date, h.end_date
FROM task_history h
JOIN tasks t ON t.id = h.task_id
WHERE t.key = ANY ($1)
ORDER BY t.key, h.start_date, h.id`,
		keys)
	if err != nil {
		return nil, fmt.Errorf("histories for keys: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]HistoryEntry, len(keys))
	for rows.Next() {
		var (
			key string
			e   HistoryEntry
		)
		if err := rows.Scan(&key, &e.ID, &e.TaskID, &e.TrackerID, &e.Status, &e.StatusDisplay, &e.StartDate, &e.EndDate); err != nil {
			return nil, fmt.Errorf("histories for keys: %w", err)
		}
		out[key] = append(out[key], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("histories for keys: %w", err)
	}
	return out, nil
}

// CleanupDuplicateHistory removes rows that share (task_id, status,
// start_date) with an earlier row, keeping the oldest by created_at. Returns
// the number of rows deleted. Pre-dates wholesale history replacement but
// kept for repairing databases written by older versions.
func (s *Store) CleanupDuplicateHistory(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM task_history
WHERE id IN (
    SELECT id
    FROM (
        SELECT id, ROW_NUMBER() OVER (
            PARTITION BY task_id, status, start_date
            ORDER BY created_at, id
        ) AS rn
        FROM task_history
    ) ranked
    WHERE rn > 1
)`)
	if err != nil {
		return 0, fmt.Errorf("cleanup duplicate history: %w", err)
	}
	deleted := tag.RowsAffected()
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("removed duplicate history rows")
	}
	return deleted, nil
}
