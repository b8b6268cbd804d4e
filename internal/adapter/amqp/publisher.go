package amqp

import (
	"context"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// Message type property values. Result-stream payload kinds share the
// per-client routing key, so consumers dispatch on the type property.
const (
	MessageTypeTask        = "ai.task"
	MessageTypeBatch       = "ai.batch"
	MessageTypeResult      = "ai.result"
	MessageTypeProgress    = "ai.progress"
	MessageTypeBatchResult = "ai.batch.result"
	MessageTypeStatus      = "ai.status"
	MessageTypeError       = "ai.error"
	MessageTypeCancel      = "ai.cancel"
)

// publishBus is the slice of Bus the outbound types need; tests substitute a
// recorder.
type publishBus interface {
	Publish(ctx context.Context, exchange, key string, payload any, opts PublishOptions) error
	PublishWithConfirm(ctx context.Context, exchange, key string, payload any, opts PublishOptions) error
}

// EventPublisher publishes pipeline output on the result and event
// exchanges. Terminal results, the pickup notification, batch aggregates and
// status events are confirmed; streamed progress and system errors are
// fire-and-forget.
type EventPublisher struct {
	bus publishBus
}

func NewEventPublisher(bus *Bus) *EventPublisher {
	return &EventPublisher{bus: bus}
}

var _ domain.ResultPublisher = (*EventPublisher)(nil)

// PublishTaskStart emits the confirmed pickup notification on the per-client
// result key.
func (p *EventPublisher) PublishTaskStart(ctx context.Context, req domain.AIProcessRequest, up domain.TaskProgressUpdate) error {
	key := domain.TaskResultRoutingKey(req.UserID, req.ProjectID)
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeAIResults, key, up, PublishOptions{
		Type:    MessageTypeProgress,
		Headers: amqp091.Table{domain.HeaderTaskID: up.TaskID},
	})
}

// PublishProgress forwards a streamed progress update without a confirm.
func (p *EventPublisher) PublishProgress(ctx context.Context, req domain.AIProcessRequest, up domain.TaskProgressUpdate) error {
	key := domain.TaskResultRoutingKey(req.UserID, req.ProjectID)
	return p.bus.Publish(ctx, domain.ExchangeAIResults, key, up, PublishOptions{
		Type:    MessageTypeProgress,
		Headers: amqp091.Table{domain.HeaderTaskID: up.TaskID},
	})
}

// PublishResult emits a terminal response on the per-client result key with
// a confirm.
func (p *EventPublisher) PublishResult(ctx context.Context, resp domain.AIProcessResponse) error {
	key := domain.TaskResultRoutingKey(resp.UserID, resp.ProjectID)
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeAIResults, key, resp, PublishOptions{
		Type:    MessageTypeResult,
		Headers: amqp091.Table{domain.HeaderTaskID: resp.TaskID},
	})
}

// PublishBatchResult emits the aggregated batch outcome with a confirm.
func (p *EventPublisher) PublishBatchResult(ctx context.Context, res domain.BatchResult) error {
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeAIResults, domain.RouteBatchResult, res, PublishOptions{
		Type:    MessageTypeBatchResult,
		Headers: amqp091.Table{domain.HeaderTaskID: res.BatchID},
	})
}

// PublishStatus announces a task state transition on the events exchange.
func (p *EventPublisher) PublishStatus(ctx context.Context, ev domain.TaskStatusEvent) error {
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeEvents, domain.RouteTaskStatus, ev, PublishOptions{
		Type:    MessageTypeStatus,
		Headers: amqp091.Table{domain.HeaderTaskID: ev.TaskID},
	})
}

// PublishSystemError reports a pipeline-level failure. Best effort; an error
// publishing an error is only logged by callers.
func (p *EventPublisher) PublishSystemError(ctx context.Context, ev domain.SystemErrorEvent) error {
	headers := amqp091.Table{}
	if ev.TaskID != "" {
		headers[domain.HeaderTaskID] = ev.TaskID
	}
	return p.bus.Publish(ctx, domain.ExchangeEvents, domain.RouteSystemError, ev, PublishOptions{
		Type:    MessageTypeError,
		Headers: headers,
	})
}
