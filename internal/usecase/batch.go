package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
	"github.com/mosaicgrid/ai-task-pipeline/internal/observability"
)

// ProcessBatch runs the children of a batch with bounded concurrency and
// aggregates their terminals in input order. Child failures land in the
// aggregate, not in the returned error; with fail-fast the first failure
// cancels the rest of the batch. The batch shares one deadline.
func (e *Engine) ProcessBatch(ctx domain.Context, batch domain.BatchTask, emit domain.ProgressFunc) (domain.BatchResult, error) {
	tracer := otel.Tracer("usecase.engine")
	ctx, span := tracer.Start(ctx, "RunBatch", trace.WithAttributes(
		attribute.String("batch.id", batch.BatchID),
		attribute.Int("batch.size", len(batch.Tasks)),
	))
	defer span.End()

	started := time.Now()
	deadline := e.cfg.BatchDeadline
	if deadline <= 0 {
		deadline = defaultBatchDeadline
	}
	batchCtx, cancelBatch := context.WithTimeout(ctx, deadline)
	defer cancelBatch()

	conc := batch.Options.Concurrency
	if conc <= 0 {
		conc = e.cfg.BatchConcurrency
	}
	if conc <= 0 {
		conc = defaultBatchConcurrency
	}
	if conc > len(batch.Tasks) {
		conc = len(batch.Tasks)
	}

	lg := observability.LoggerFromContext(ctx)
	sem := semaphore.NewWeighted(int64(conc))
	results := make([]domain.AIProcessResponse, len(batch.Tasks))
	var wg sync.WaitGroup

	for i, task := range batch.Tasks {
		if err := sem.Acquire(batchCtx, 1); err != nil {
			// Batch cancelled or deadline hit before this child started.
			results[i] = domain.CancelledResponse(task, "", nil)
			continue
		}
		wg.Add(1)
		go func(i int, task domain.AIProcessRequest) {
			defer wg.Done()
			defer sem.Release(1)
			resp, err := e.Process(batchCtx, task, emit)
			if err != nil {
				if domain.IsCancelled(err) {
					resp = domain.CancelledResponse(task, "", nil)
				} else {
					resp = domain.FailedResponse(task, err, nil)
					if batch.Options.FailFast {
						cancelBatch()
					}
				}
			}
			results[i] = resp
		}(i, task)
	}
	wg.Wait()

	var completed, failed, cancelled int
	for _, r := range results {
		switch r.Status {
		case domain.TaskCompleted:
			completed++
		case domain.TaskCancelled:
			cancelled++
		default:
			failed++
		}
	}
	status := domain.TaskCompleted
	if failed > 0 {
		status = domain.TaskFailed
	} else if cancelled > 0 {
		status = domain.TaskCancelled
	}
	span.SetAttributes(
		attribute.Int("batch.completed", completed),
		attribute.Int("batch.failed", failed),
		attribute.Int("batch.cancelled", cancelled),
	)
	lg.Info("batch aggregated",
		slog.String("batch_id", batch.BatchID),
		slog.String("status", string(status)),
		slog.Int("completed", completed),
		slog.Int("failed", failed),
		slog.Int("cancelled", cancelled))

	return domain.BatchResult{
		BatchID:        batch.BatchID,
		Status:         status,
		Results:        results,
		CompletedCount: completed,
		FailedCount:    failed,
		CancelledCount: cancelled,
		DurationMs:     time.Since(started).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	}, nil
}
