// Package store is the persistence layer: a PostgreSQL schema for tasks,
// status history and sync-run bookkeeping, plus the query helpers the sync
// engine and the report pass consume. All mutation paths are transactional
// per task; history rows are only ever replaced wholesale, never appended.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/vporoshin/flowtime/internal/logging"
)

// Task mirrors one row of the tasks table.
type Task struct {
	ID             int64
	TrackerID      string
	Key            string
	Summary        string
	Description    string
	Status         string // current status display name
	Author         string
	Assignee       string
	Team           string
	Prodteam       string
	ProfitForecast string
	BusinessClient string
	Links          []TaskLink
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
	LastSyncAt     *time.Time
}

// TaskLink is the normalized link shape kept in the tasks.links jsonb column.
// The hierarchy walk filters on these three fields server-side.
type TaskLink struct {
	TypeID    string `json:"type_id"`
	Direction string `json:"direction"`
	Key       string `json:"key"`
}

// HistoryEntry mirrors one row of the task_history table.
type HistoryEntry struct {
	ID            int64
	TaskID        int64
	TrackerID     string
	Status        string
	StatusDisplay string
	StartDate     time.Time
	EndDate       *time.Time
}

// Store wraps a pgx pool with the schema-aware operations.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Open creates a PostgreSQL connection pool and verifies connectivity.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log := logging.WithComponent("store")
	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, log: logging.WithComponent("store")}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the raw pool for callers that need their own queries (tests,
// mostly).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
