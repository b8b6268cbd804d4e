package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// TaskEnqueuer republishes a task to its work queue.
type TaskEnqueuer interface {
	EnqueueTask(ctx context.Context, req domain.AIProcessRequest, class domain.PriorityClass) error
}

// InflightChecker reports whether a task is currently being processed here.
type InflightChecker interface{ Contains(taskID string) bool }

// TaskJanitor is the store surface the sweeper needs.
type TaskJanitor interface {
	ListQueuedTasks(ctx domain.Context, limit int) ([]domain.AIProcessRequest, error)
	CleanupOldTasks(ctx domain.Context) (int, error)
}

// SweeperConfig tunes the recovery sweeper.
type SweeperConfig struct {
	Interval     time.Duration
	CleanupEvery time.Duration
	MaxQueuedAge time.Duration
	BatchSize    int
}

// RecoverySweeper periodically republishes store records that are still
// queued long after enqueue. A record stays queued when the original publish
// was lost between the store write and the broker, or when the broker dropped
// the message; requeueing is safe because duplicate deliveries collapse on
// the inflight set and the last attempt wins in the store.
//
// On a longer cadence it also deletes old terminal records.
type RecoverySweeper struct {
	store    TaskJanitor
	enqueue  TaskEnqueuer
	inflight InflightChecker
	cfg      SweeperConfig
}

func NewRecoverySweeper(store TaskJanitor, enqueue TaskEnqueuer, inflight InflightChecker, cfg SweeperConfig) *RecoverySweeper {
	if store == nil || enqueue == nil {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = 24 * time.Hour
	}
	if cfg.MaxQueuedAge <= 0 {
		cfg.MaxQueuedAge = 3 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &RecoverySweeper{store: store, enqueue: enqueue, inflight: inflight, cfg: cfg}
}

func (s *RecoverySweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	nextCleanup := time.Now().Add(s.cfg.CleanupEvery)

	for {
		select {
		case <-ctx.Done():
			slog.Info("recovery sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
			if time.Now().After(nextCleanup) {
				s.cleanupOnce(ctx)
				nextCleanup = time.Now().Add(s.cfg.CleanupEvery)
			}
		}
	}
}

func (s *RecoverySweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("app.sweeper")
	ctx, span := tracer.Start(ctx, "RecoverySweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.cfg.MaxQueuedAge)
	span.SetAttributes(
		attribute.Int("tasks.batch_size", s.cfg.BatchSize),
		attribute.Float64("tasks.max_queued_age_seconds", s.cfg.MaxQueuedAge.Seconds()),
	)

	tasks, err := s.store.ListQueuedTasks(ctx, s.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		slog.Error("recovery sweep failed to list queued tasks", slog.Any("error", err))
		return
	}

	requeued := 0
	for _, task := range tasks {
		if task.Timestamp.After(cutoff) {
			continue
		}
		if s.inflight != nil && s.inflight.Contains(task.TaskID) {
			continue
		}
		if err := s.enqueue.EnqueueTask(ctx, task, domain.PriorityNormal); err != nil {
			span.RecordError(err)
			slog.Error("recovery sweep failed to requeue task",
				slog.String("task_id", task.TaskID), slog.Any("error", err))
			continue
		}
		requeued++
	}

	span.SetAttributes(
		attribute.Int("tasks.checked", len(tasks)),
		attribute.Int("tasks.requeued", requeued),
	)
	if requeued > 0 {
		slog.Info("recovery sweep requeued tasks", slog.Int("count", requeued))
	}
}

func (s *RecoverySweeper) cleanupOnce(ctx context.Context) {
	tracer := otel.Tracer("app.sweeper")
	ctx, span := tracer.Start(ctx, "RecoverySweeper.cleanupOnce")
	defer span.End()

	deleted, err := s.store.CleanupOldTasks(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("cleanup of old task records failed", slog.Any("error", err))
		return
	}
	span.SetAttributes(attribute.Int("tasks.deleted", deleted))
	if deleted > 0 {
		slog.Info("cleaned up old task records", slog.Int("deleted", deleted))
	}
}
