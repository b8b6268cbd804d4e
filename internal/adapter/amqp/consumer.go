package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	adapterobs "github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
	"github.com/mosaicgrid/ai-task-pipeline/internal/observability"
)

// terminalPublishTimeout bounds the result/persist work after an attempt
// ends. Detached from the task context so terminal messages still go out
// when the attempt was cancelled.
const terminalPublishTimeout = 10 * time.Second

// ConsumerConfig sizes the worker pools and the retry schedule.
type ConsumerConfig struct {
	HighWorkers   int
	NormalWorkers int
	LowWorkers    int
	BatchWorkers  int
	// Prefetch is the QoS on the cancel listener channel. Work pool channels
	// always run prefetch equal to their worker count so a pool never pulls
	// more than it can process.
	Prefetch      int
	Retry         domain.RetryPolicy
	ShutdownGrace time.Duration
}

// retryDelayer parks a delivery for later redelivery. Split out so handler
// tests can record retry decisions without a broker.
type retryDelayer interface {
	Delay(ctx context.Context, d amqp091.Delivery, exchange, key string, retry int, wait time.Duration) error
}

// busDelayer republishes a copy of the delivery onto a TTL wait queue that
// dead-letters back to the work exchange, then lets the caller ack the
// original. The delay survives worker crashes because it lives on the
// broker.
type busDelayer struct {
	conn *Conn
}

func (r busDelayer) Delay(ctx context.Context, d amqp091.Delivery, exchange, key string, retry int, wait time.Duration) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	queue, err := DeclareWaitQueue(ch, exchange, key, wait)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Type:         d.Type,
		Priority:     d.Priority,
		Headers:      withRetryCount(d.Headers, retry),
		Body:         d.Body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to wait queue %s: %w", queue, err)
	}
	return nil
}

// Consumer runs the worker pools: one per priority class, one for the
// default queue, one for batches, and the cancel listener. Deliveries are
// manually acked after the full handling flow.
type Consumer struct {
	conn   *Conn
	bus    *Bus
	engine domain.TaskProcessor
	store  domain.TaskStore
	events domain.ResultPublisher
	cfg    ConsumerConfig

	inflight *InflightSet
	delayer  retryDelayer

	workCtx    context.Context
	workCancel context.CancelFunc

	chanMu   sync.Mutex
	channels []*amqp091.Channel
	tags     []string

	workers  sync.WaitGroup
	stopping atomic.Bool
}

// NewConsumer wires the consumer. Start must be called to begin consuming.
func NewConsumer(conn *Conn, bus *Bus, engine domain.TaskProcessor, store domain.TaskStore, events domain.ResultPublisher, cfg ConsumerConfig) *Consumer {
	workCtx, workCancel := context.WithCancel(context.Background())
	return &Consumer{
		conn:       conn,
		bus:        bus,
		engine:     engine,
		store:      store,
		events:     events,
		cfg:        cfg,
		inflight:   NewInflightSet(),
		delayer:    busDelayer{conn: conn},
		workCtx:    workCtx,
		workCancel: workCancel,
	}
}

// Inflight exposes the inflight set for the cancel path and the recovery
// sweeper.
func (c *Consumer) Inflight() *InflightSet { return c.inflight }

// Start declares the topology, subscribes every pool, and blocks until ctx
// ends. It then drains inflight work within the shutdown grace before
// returning; a non-nil error means tasks had to be cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.bus.EnsureTopology(); err != nil {
		return fmt.Errorf("declare topology: %w", err)
	}
	if err := c.subscribeAll(); err != nil {
		return err
	}
	c.conn.OnConnected(func(reconnected bool) {
		if !reconnected || c.stopping.Load() {
			return
		}
		if err := c.subscribeAll(); err != nil {
			slog.Error("resubscribe after reconnect failed", slog.Any("error", err))
		}
	})

	slog.Info("consumer started",
		slog.Int("high_workers", c.cfg.HighWorkers),
		slog.Int("normal_workers", c.cfg.NormalWorkers),
		slog.Int("low_workers", c.cfg.LowWorkers),
		slog.Int("batch_workers", c.cfg.BatchWorkers))

	<-ctx.Done()
	slog.Info("consumer stopping", slog.Int("inflight", c.inflight.Size()))
	return c.drain()
}

func (c *Consumer) subscribeAll() error {
	cancelPrefetch := c.cfg.Prefetch
	if cancelPrefetch <= 0 {
		cancelPrefetch = 1
	}
	pools := []struct {
		queue    string
		workers  int
		prefetch int
		handler  func(amqp091.Delivery)
	}{
		{domain.QueueProcessHigh, c.cfg.HighWorkers, c.cfg.HighWorkers, func(d amqp091.Delivery) {
			c.handleTask(d, domain.QueueProcessHigh, domain.PriorityHigh)
		}},
		{domain.QueueProcessNormal, c.cfg.NormalWorkers, c.cfg.NormalWorkers, func(d amqp091.Delivery) {
			c.handleTask(d, domain.QueueProcessNormal, domain.PriorityNormal)
		}},
		{domain.QueueProcessLow, c.cfg.LowWorkers, c.cfg.LowWorkers, func(d amqp091.Delivery) {
			c.handleTask(d, domain.QueueProcessLow, domain.PriorityLow)
		}},
		// Unclassified producers land on the default queue; treated as normal.
		{domain.QueueProcess, 1, 1, func(d amqp091.Delivery) {
			c.handleTask(d, domain.QueueProcess, domain.PriorityNormal)
		}},
		{domain.QueueBatchProcess, c.cfg.BatchWorkers, c.cfg.BatchWorkers, c.handleBatch},
		{domain.QueueTaskCancel, 1, cancelPrefetch, c.handleCancel},
	}
	for _, p := range pools {
		if p.workers <= 0 {
			continue
		}
		if err := c.startPool(p.queue, p.workers, p.prefetch, p.handler); err != nil {
			return err
		}
	}
	return nil
}

// startPool opens one channel per queue and fans deliveries out to the
// worker goroutines. Prefetch matches the worker count on work pools so
// backpressure stays at the broker.
func (c *Consumer) startPool(queue string, workers, prefetch int, handler func(amqp091.Delivery)) error {
	tag := "worker." + queue
	deliveries, ch, err := c.bus.Subscribe(queue, tag, prefetch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", queue, err)
	}
	c.chanMu.Lock()
	c.channels = append(c.channels, ch)
	c.tags = append(c.tags, tag)
	c.chanMu.Unlock()

	for i := 0; i < workers; i++ {
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			for d := range deliveries {
				handler(d)
			}
		}()
	}
	slog.Info("worker pool subscribed", slog.String("queue", queue), slog.Int("workers", workers))
	return nil
}

// drain cancels the subscriptions, waits for running handlers within the
// grace, and force-cancels whatever remains.
func (c *Consumer) drain() error {
	c.stopping.Store(true)
	c.cancelSubscriptions()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	grace := c.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-done:
		slog.Info("consumer drained")
		c.closeSubscriptions()
		return nil
	case <-time.After(grace):
	}

	left := c.inflight.TaskIDs()
	slog.Warn("shutdown grace elapsed, cancelling remaining tasks",
		slog.Int("remaining", len(left)),
		slog.Any("task_ids", left))
	c.inflight.CancelAll("worker shutting down")
	c.workCancel()
	select {
	case <-done:
	case <-time.After(terminalPublishTimeout):
		slog.Error("workers still running after forced cancellation")
	}
	c.closeSubscriptions()
	return fmt.Errorf("shutdown incomplete: %d tasks cancelled", len(left))
}

func (c *Consumer) cancelSubscriptions() {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	for i, ch := range c.channels {
		if err := ch.Cancel(c.tags[i], false); err != nil {
			slog.Debug("consumer cancel failed", slog.String("tag", c.tags[i]), slog.Any("error", err))
		}
	}
}

func (c *Consumer) closeSubscriptions() {
	c.chanMu.Lock()
	defer c.chanMu.Unlock()
	for _, ch := range c.channels {
		_ = ch.Close()
	}
	c.channels = nil
	c.tags = nil
}

// handleTask runs the full per-message flow: parse, dedupe, announce, run
// the engine, then settle the delivery according to the outcome.
func (c *Consumer) handleTask(d amqp091.Delivery, queue string, class domain.PriorityClass) {
	adapterobs.TaskConsumed(queue)

	req, err := domain.ParseAIProcessRequest(d.Body)
	if err != nil {
		c.rejectPoison(d, queue, err)
		return
	}

	lg := slog.With(
		slog.String("task_id", req.TaskID),
		slog.String("queue", queue),
		slog.String("class", string(class)))

	tracer := otel.Tracer("amqp.consumer")
	ctx, span := tracer.Start(c.workCtx, "ProcessTask", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
		attribute.String("task.queue", queue),
		attribute.Int("task.retry_count", retryCount(d)),
	))
	defer span.End()
	ctx = observability.ContextWithTaskID(ctx, req.TaskID)
	ctx = observability.ContextWithLogger(ctx, lg)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !c.inflight.Insert(req.TaskID, class, cancel) {
		lg.Warn("duplicate delivery for inflight task, acking")
		ackDelivery(d, lg)
		return
	}
	defer c.inflight.Remove(req.TaskID)

	adapterobs.TaskStarted()
	retries := retryCount(d)
	attempt := domain.TaskAttempt{TaskID: req.TaskID, AttemptNumber: retries + 1, StartedAt: time.Now()}

	if err := c.events.PublishTaskStart(taskCtx, req, domain.ProcessingUpdate(req)); err != nil {
		lg.Warn("publish task start failed", slog.Any("error", err))
	}
	c.publishStatus(taskCtx, req.TaskID, domain.TaskProcessing, lg)
	if err := c.store.StartTask(taskCtx, req.TaskID); err != nil {
		lg.Warn("store start-task failed", slog.Any("error", err))
	}

	// Legacy task types translate into a prompt prefix; the payload itself
	// stays canonical.
	procReq := req
	procReq.Prompt = domain.PromptForTaskType(headerString(d.Headers, domain.HeaderTaskType), req.Prompt)

	resp, procErr := c.engine.Process(taskCtx, procReq, c.progressForwarder(taskCtx, req))

	termCtx, termCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalPublishTimeout)
	defer termCancel()

	if procErr == nil {
		if err := c.settleCompleted(termCtx, resp, lg); err != nil {
			// The result is the product; losing it fails the attempt.
			procErr = err
		} else {
			attempt.EndedAt = time.Now()
			attempt.Outcome = domain.TaskCompleted
			ackDelivery(d, lg)
			adapterobs.TaskCompleted(string(class), attempt.Duration())
			lg.Info("task completed",
				slog.Int("attempt", attempt.AttemptNumber),
				slog.Int64("duration_ms", attempt.Duration().Milliseconds()),
				slog.String("model", modelUsed(resp)))
			return
		}
	}

	if domain.IsCancelled(procErr) {
		attempt.EndedAt = time.Now()
		attempt.Outcome = domain.TaskCancelled
		reason := c.inflight.CancelReason(req.TaskID)
		cancelled := domain.CancelledResponse(req, reason, nil)
		c.persistFailure(termCtx, cancelled, lg)
		if err := c.events.PublishResult(termCtx, cancelled); err != nil {
			lg.Error("publish cancelled result failed", slog.Any("error", err))
		}
		c.publishStatus(termCtx, req.TaskID, domain.TaskCancelled, lg)
		ackDelivery(d, lg)
		adapterobs.TaskCancelled(string(class))
		lg.Info("task cancelled",
			slog.Int("attempt", attempt.AttemptNumber),
			slog.String("reason", reason))
		return
	}

	span.RecordError(procErr)
	decision := c.cfg.Retry.Decide(procErr, retries)
	if decision.Retry {
		if err := c.delayer.Delay(termCtx, d, domain.ExchangeLLMDirect, domain.RouteForClass(class), retries+1, decision.Delay); err != nil {
			lg.Error("retry republish failed, requeueing delivery", slog.Any("error", err))
			nackDelivery(d, true, lg)
			adapterobs.TaskRetried(string(class))
			return
		}
		ackDelivery(d, lg)
		adapterobs.TaskRetried(string(class))
		lg.Warn("task scheduled for retry",
			slog.Int("retry", retries+1),
			slog.Duration("delay", decision.Delay),
			slog.String("code", string(decision.Code)),
			slog.Any("error", procErr))
		return
	}

	attempt.EndedAt = time.Now()
	attempt.Outcome = domain.TaskFailed
	failed := domain.FailedResponse(req, procErr, nil)
	c.persistFailure(termCtx, failed, lg)
	if err := c.events.PublishResult(termCtx, failed); err != nil {
		lg.Error("publish failure result failed", slog.Any("error", err))
		c.systemError(termCtx, "publisher", domain.ErrorCodeInternal, "terminal result publish failed: "+err.Error(), req.TaskID, lg)
	}
	c.publishStatus(termCtx, req.TaskID, domain.TaskFailed, lg)
	nackDelivery(d, false, lg)
	adapterobs.TaskFailed(string(class), string(decision.Code), attempt.Duration())
	adapterobs.TaskDeadLettered(domain.QueueDLQTasks)
	lg.Error("task failed",
		slog.String("code", string(decision.Code)),
		slog.Int("attempt", attempt.AttemptNumber),
		slog.Any("error", procErr))
}

// handleBatch runs a batch delivery. The engine returns an aggregate even
// when children fail or are cancelled; a non-nil error means the batch
// itself could not run and goes through the retry flow.
func (c *Consumer) handleBatch(d amqp091.Delivery) {
	adapterobs.TaskConsumed(domain.QueueBatchProcess)

	batch, err := domain.ParseBatchTask(d.Body)
	if err != nil {
		c.rejectPoison(d, domain.QueueBatchProcess, err)
		return
	}

	lg := slog.With(slog.String("batch_id", batch.BatchID), slog.Int("tasks", len(batch.Tasks)))

	tracer := otel.Tracer("amqp.consumer")
	ctx, span := tracer.Start(c.workCtx, "ProcessBatch", trace.WithAttributes(
		attribute.String("batch.id", batch.BatchID),
		attribute.Int("batch.size", len(batch.Tasks)),
	))
	defer span.End()
	ctx = observability.ContextWithLogger(ctx, lg)

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !c.inflight.Insert(batch.BatchID, domain.PriorityNormal, cancel) {
		lg.Warn("duplicate delivery for inflight batch, acking")
		ackDelivery(d, lg)
		return
	}
	defer c.inflight.Remove(batch.BatchID)

	adapterobs.TaskStarted()
	started := time.Now()
	retries := retryCount(d)

	reqsByID := make(map[string]domain.AIProcessRequest, len(batch.Tasks))
	for _, t := range batch.Tasks {
		reqsByID[t.TaskID] = t
	}

	res, procErr := c.engine.ProcessBatch(taskCtx, batch, c.batchProgressForwarder(taskCtx, reqsByID))

	termCtx, termCancel := context.WithTimeout(context.WithoutCancel(ctx), terminalPublishTimeout)
	defer termCancel()

	if procErr == nil {
		for _, child := range res.Results {
			c.persistChild(termCtx, child, lg)
			c.publishStatus(termCtx, child.TaskID, child.Status, lg)
		}
		if err := c.events.PublishBatchResult(termCtx, res); err != nil {
			// The aggregate is the product; losing it fails the attempt.
			procErr = err
		}
	}

	if procErr != nil {
		span.RecordError(procErr)
		decision := c.cfg.Retry.Decide(procErr, retries)
		if decision.Retry {
			if err := c.delayer.Delay(termCtx, d, domain.ExchangeLLMDirect, domain.RouteBatchProcess, retries+1, decision.Delay); err != nil {
				lg.Error("batch retry republish failed, requeueing delivery", slog.Any("error", err))
				nackDelivery(d, true, lg)
				adapterobs.TaskRetried("batch")
				return
			}
			ackDelivery(d, lg)
			adapterobs.TaskRetried("batch")
			lg.Warn("batch scheduled for retry",
				slog.Int("retry", retries+1),
				slog.Duration("delay", decision.Delay),
				slog.Any("error", procErr))
			return
		}
		c.systemError(termCtx, "consumer", decision.Code, "batch failed: "+procErr.Error(), batch.BatchID, lg)
		nackDelivery(d, false, lg)
		adapterobs.TaskFailed("batch", string(decision.Code), time.Since(started))
		adapterobs.TaskDeadLettered(domain.QueueDLQBatch)
		lg.Error("batch failed", slog.String("code", string(decision.Code)), slog.Any("error", procErr))
		return
	}

	ackDelivery(d, lg)
	if res.FailedCount > 0 {
		adapterobs.TaskFailed("batch", string(domain.ErrorCodeProcessingFailed), time.Since(started))
	} else if res.CancelledCount > 0 {
		adapterobs.TaskCancelled("batch")
	} else {
		adapterobs.TaskCompleted("batch", time.Since(started))
	}
	lg.Info("batch finished",
		slog.String("status", string(res.Status)),
		slog.Int("completed", res.CompletedCount),
		slog.Int("failed", res.FailedCount),
		slog.Int("cancelled", res.CancelledCount),
		slog.Int64("duration_ms", res.DurationMs))
}

// handleCancel applies a cancellation command to inflight work. Commands for
// tasks running elsewhere (or already finished) are acked and ignored; every
// worker receives its own look at the queue.
func (c *Consumer) handleCancel(d amqp091.Delivery) {
	cmd, err := domain.ParseTaskCancelCommand(d.Body)
	if err != nil {
		slog.Error("rejecting malformed cancel command", slog.Any("error", err))
		nackDelivery(d, false, slog.Default())
		return
	}
	if c.inflight.Cancel(cmd.TaskID, cmd.Reason) {
		slog.Info("cancel command applied",
			slog.String("task_id", cmd.TaskID),
			slog.String("reason", cmd.Reason))
	} else {
		slog.Debug("cancel command for task not inflight here", slog.String("task_id", cmd.TaskID))
	}
	ackDelivery(d, slog.Default())
}

// rejectPoison handles a delivery that failed parsing or validation: report
// it, best-effort address a terminal failure, and dead-letter the message.
func (c *Consumer) rejectPoison(d amqp091.Delivery, queue string, parseErr error) {
	taskID, nodeID, userID, projectID := domain.ExtractIdentity(d.Body)
	lg := slog.With(slog.String("queue", queue), slog.String("task_id", taskID))
	lg.Error("rejecting poison message", slog.Any("error", parseErr))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.workCtx), terminalPublishTimeout)
	defer cancel()

	c.systemError(ctx, "consumer", domain.ClassifyError(parseErr), parseErr.Error(), taskID, lg)
	if taskID != "" && userID != "" && projectID != "" {
		req := domain.AIProcessRequest{TaskID: taskID, NodeID: nodeID, ProjectID: projectID, UserID: userID}
		if err := c.events.PublishResult(ctx, domain.FailedResponse(req, parseErr, nil)); err != nil {
			lg.Warn("publish poison failure result failed", slog.Any("error", err))
		}
		c.publishStatus(ctx, taskID, domain.TaskFailed, lg)
	}

	nackDelivery(d, false, lg)
	if queue == domain.QueueBatchProcess {
		adapterobs.TaskDeadLettered(domain.QueueDLQBatch)
	} else {
		adapterobs.TaskDeadLettered(domain.QueueDLQTasks)
	}
}

// settleCompleted persists and publishes a successful response. The store
// write is best-effort; the confirmed result publish is not.
func (c *Consumer) settleCompleted(ctx context.Context, resp domain.AIProcessResponse, lg *slog.Logger) error {
	if err := c.store.CompleteTask(ctx, resp); err != nil {
		lg.Warn("store complete-task failed", slog.Any("error", err))
		c.systemError(ctx, "store", domain.ErrorCodeInternal, err.Error(), resp.TaskID, lg)
	}
	if err := c.events.PublishResult(ctx, resp); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	c.publishStatus(ctx, resp.TaskID, domain.TaskCompleted, lg)
	return nil
}

// persistFailure records a failed or cancelled terminal in the store.
func (c *Consumer) persistFailure(ctx context.Context, resp domain.AIProcessResponse, lg *slog.Logger) {
	if err := c.store.FailTask(ctx, resp); err != nil {
		lg.Warn("store fail-task failed", slog.Any("error", err))
		c.systemError(ctx, "store", domain.ErrorCodeInternal, err.Error(), resp.TaskID, lg)
	}
}

// persistChild records one batch child terminal in the store.
func (c *Consumer) persistChild(ctx context.Context, child domain.AIProcessResponse, lg *slog.Logger) {
	var err error
	if child.Status == domain.TaskCompleted {
		err = c.store.CompleteTask(ctx, child)
	} else {
		err = c.store.FailTask(ctx, child)
	}
	if err != nil {
		lg.Warn("store batch-child update failed",
			slog.String("child_task_id", child.TaskID),
			slog.Any("error", err))
	}
}

func (c *Consumer) publishStatus(ctx context.Context, taskID string, status domain.TaskStatus, lg *slog.Logger) {
	ev := domain.TaskStatusEvent{TaskID: taskID, Status: status, Timestamp: time.Now().UTC()}
	if err := c.events.PublishStatus(ctx, ev); err != nil {
		lg.Warn("publish status event failed", slog.String("status", string(status)), slog.Any("error", err))
	}
}

func (c *Consumer) systemError(ctx context.Context, source string, code domain.ErrorCode, message, taskID string, lg *slog.Logger) {
	ev := domain.SystemErrorEvent{
		Source:    source,
		Code:      code,
		Message:   message,
		TaskID:    taskID,
		Timestamp: time.Now().UTC(),
	}
	if err := c.events.PublishSystemError(ctx, ev); err != nil {
		lg.Warn("publish system error failed", slog.Any("error", err))
	}
}

// progressForwarder publishes streamed updates for one task, clamping
// progress so it never goes backwards within the attempt.
func (c *Consumer) progressForwarder(ctx context.Context, req domain.AIProcessRequest) domain.ProgressFunc {
	var mu sync.Mutex
	last := -1
	return func(up domain.TaskProgressUpdate) {
		mu.Lock()
		if up.Progress < last {
			up.Progress = last
		} else {
			last = up.Progress
		}
		mu.Unlock()
		if err := c.events.PublishProgress(ctx, req, up); err != nil {
			slog.Warn("publish progress failed",
				slog.String("task_id", up.TaskID),
				slog.Any("error", err))
		}
	}
}

// batchProgressForwarder fans child updates out with per-child addressing
// and per-child monotone clamping.
func (c *Consumer) batchProgressForwarder(ctx context.Context, reqsByID map[string]domain.AIProcessRequest) domain.ProgressFunc {
	var mu sync.Mutex
	last := make(map[string]int, len(reqsByID))
	return func(up domain.TaskProgressUpdate) {
		req, ok := reqsByID[up.TaskID]
		if !ok {
			return
		}
		mu.Lock()
		if prev, seen := last[up.TaskID]; seen && up.Progress < prev {
			up.Progress = prev
		} else {
			last[up.TaskID] = up.Progress
		}
		mu.Unlock()
		if err := c.events.PublishProgress(ctx, req, up); err != nil {
			slog.Warn("publish batch progress failed",
				slog.String("task_id", up.TaskID),
				slog.Any("error", err))
		}
	}
}

func ackDelivery(d amqp091.Delivery, lg *slog.Logger) {
	if err := d.Ack(false); err != nil {
		lg.Error("ack failed", slog.Any("error", err))
	}
}

func nackDelivery(d amqp091.Delivery, requeue bool, lg *slog.Logger) {
	if err := d.Nack(false, requeue); err != nil {
		lg.Error("nack failed", slog.Any("error", err))
	}
}

func modelUsed(resp domain.AIProcessResponse) string {
	if resp.Stats == nil {
		return ""
	}
	return resp.Stats.ModelUsed
}
