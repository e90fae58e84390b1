package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const syncScopeName = "github.com/vporoshin/flowtime/sync"

// SyncMetrics instruments one synchronization run: a root span for the run,
// a child span per task, and counters for tasks, errors and history rows.
// With telemetry disabled all instruments are no-ops (the global providers
// are the no-op ones), so callers never branch.
type SyncMetrics struct {
	tracer  trace.Tracer
	tasks   metric.Int64Counter
	errs    metric.Int64Counter
	history metric.Int64Counter
	taskDur metric.Float64Histogram
}

// NewSyncMetrics builds the sync instrument set.
func NewSyncMetrics() *SyncMetrics {
	m := Meter(syncScopeName)
	tasks, _ := m.Int64Counter("ft.sync.tasks",
		metric.WithDescription("Tasks written during sync runs"),
	)
	errs, _ := m.Int64Counter("ft.sync.errors",
		metric.WithDescription("Per-task sync failures"),
	)
	history, _ := m.Int64Counter("ft.sync.history.entries",
		metric.WithDescription("History rows written during sync runs"),
	)
	taskDur, _ := m.Float64Histogram("ft.sync.task.duration",
		metric.WithDescription("Per-task sync duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return &SyncMetrics{
		tracer:  Tracer(syncScopeName),
		tasks:   tasks,
		errs:    errs,
		history: history,
		taskDur: taskDur,
	}
}

// StartRun opens the root span for a sync run.
func (s *SyncMetrics) StartRun(ctx context.Context, filter string, limit int) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "sync.run",
		trace.WithAttributes(
			attribute.String("ft.sync.filter", filter),
			attribute.Int("ft.sync.limit", limit),
		),
	)
}

// EndRun closes the run span with the final tallies.
func (s *SyncMetrics) EndRun(span trace.Span, processed, errors int, err error) {
	span.SetAttributes(
		attribute.Int("ft.sync.processed", processed),
		attribute.Int("ft.sync.errors", errors),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartTask opens a per-task child span.
func (s *SyncMetrics) StartTask(ctx context.Context, key string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, "sync.task",
		trace.WithAttributes(attribute.String("ft.task.key", key)),
	)
	return ctx, span, time.Now()
}

// EndTask closes a task span, recording counters and duration.
func (s *SyncMetrics) EndTask(ctx context.Context, span trace.Span, start time.Time, created bool, historyRows int, err error) {
	s.taskDur.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		s.errs.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		s.tasks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ft.task.created", created)))
		s.history.Add(ctx, int64(historyRows))
	}
	span.End()
}
