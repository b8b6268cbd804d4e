package amqp

import (
	"context"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// Producer enqueues work onto the task exchange. The worker uses it to
// requeue recovered tasks; the CLI uses it to inject work the way the
// gateway service does.
type Producer struct {
	bus    publishBus
	source string
}

func NewProducer(bus *Bus, source string) *Producer {
	return &Producer{bus: bus, source: source}
}

// EnqueueTask validates and publishes a task onto its priority queue with a
// confirm, then announces the queued transition.
func (p *Producer) EnqueueTask(ctx context.Context, req domain.AIProcessRequest, class domain.PriorityClass) error {
	if err := domain.ValidateAIProcessRequest(req); err != nil {
		return err
	}
	opts := PublishOptions{
		Type:     MessageTypeTask,
		Priority: uint8(domain.PriorityForClass(class)),
		Headers:  taskHeaders(req, domain.TaskTypeUnified, class, 0, p.source),
	}
	if err := p.bus.PublishWithConfirm(ctx, domain.ExchangeLLMDirect, domain.RouteForClass(class), req, opts); err != nil {
		return err
	}
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeEvents, domain.RouteTaskStatus, domain.TaskStatusEvent{
		TaskID:    req.TaskID,
		Status:    domain.TaskQueued,
		Timestamp: time.Now().UTC(),
	}, PublishOptions{Type: MessageTypeStatus, Headers: amqp091.Table{domain.HeaderTaskID: req.TaskID}})
}

// EnqueueBatch validates and publishes a batch task with a confirm.
func (p *Producer) EnqueueBatch(ctx context.Context, batch domain.BatchTask) error {
	if err := domain.ValidateBatchTask(batch); err != nil {
		return err
	}
	opts := PublishOptions{
		Type:     MessageTypeBatch,
		Priority: uint8(domain.PriorityValueNormal),
		Headers: amqp091.Table{
			domain.HeaderTaskID:        batch.BatchID,
			domain.HeaderTaskType:      domain.TaskTypeUnified,
			domain.HeaderPriority:      int32(domain.PriorityValueNormal),
			domain.HeaderRetryCount:    int32(0),
			domain.HeaderTimestamp:     time.Now().UTC().Format(time.RFC3339),
			domain.HeaderSourceService: p.source,
		},
	}
	return p.bus.PublishWithConfirm(ctx, domain.ExchangeLLMDirect, domain.RouteBatchProcess, batch, opts)
}

// Cancel publishes a cancellation command for a task or batch.
func (p *Producer) Cancel(ctx context.Context, cmd domain.TaskCancelCommand) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now().UTC()
	}
	if err := domain.ValidateTaskCancelCommand(cmd); err != nil {
		return err
	}
	return p.bus.Publish(ctx, domain.ExchangeLLMDirect, domain.RouteTaskCancel, cmd, PublishOptions{
		Type:    MessageTypeCancel,
		Headers: amqp091.Table{domain.HeaderTaskID: cmd.TaskID},
	})
}
