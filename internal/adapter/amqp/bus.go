package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// PublishOptions carries the per-message knobs on top of the bus defaults.
// Type distinguishes payload kinds sharing a routing key; Priority only
// matters on queues declared with x-max-priority.
type PublishOptions struct {
	Type     string
	Priority uint8
	Headers  amqp091.Table
}

// Bus is the publish side of the broker integration. It owns one
// confirm-mode channel, serializes access to it, and re-declares topology
// after reconnects. Payloads are marshalled to JSON; every message is
// persistent and stamped with the source-service header.
type Bus struct {
	conn   *Conn
	source string

	pubMu sync.Mutex
	pubCh *amqp091.Channel
}

// NewBus wires a bus onto the connection. Topology is re-asserted after
// every reconnect before the publisher channel is reopened.
func NewBus(conn *Conn, source string) *Bus {
	b := &Bus{conn: conn, source: source}
	conn.OnConnected(func(reconnected bool) {
		if !reconnected {
			return
		}
		b.dropChannel()
		if err := b.EnsureTopology(); err != nil {
			slog.Error("topology redeclare after reconnect failed", slog.Any("error", err))
		}
	})
	return b
}

// EnsureTopology declares the full pipeline topology on a short-lived
// channel.
func (b *Bus) EnsureTopology() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return DeclareTopology(ch)
}

func (b *Bus) dropChannel() {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	b.dropChannelLocked()
}

func (b *Bus) dropChannelLocked() {
	if b.pubCh != nil {
		_ = b.pubCh.Close()
		b.pubCh = nil
	}
}

// publisherChannel returns the shared confirm-mode channel, opening one when
// needed. Callers must hold pubMu.
func (b *Bus) publisherChannel() (*amqp091.Channel, error) {
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		return b.pubCh, nil
	}
	b.pubCh = nil
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	b.pubCh = ch
	return ch, nil
}

func (b *Bus) message(payload any, opts PublishOptions) (amqp091.Publishing, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return amqp091.Publishing{}, fmt.Errorf("marshal payload: %w", err)
	}
	headers := amqp091.Table{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if _, ok := headers[domain.HeaderSourceService]; !ok && b.source != "" {
		headers[domain.HeaderSourceService] = b.source
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Type:         opts.Type,
		Priority:     opts.Priority,
		Headers:      headers,
		Body:         body,
	}, nil
}

// Publish sends without waiting for a broker confirm. Used for high-rate
// fire-and-forget traffic like streamed progress updates.
func (b *Bus) Publish(ctx context.Context, exchange, key string, payload any, opts PublishOptions) error {
	msg, err := b.message(payload, opts)
	if err != nil {
		return err
	}
	if err := b.conn.WaitUnblocked(ctx); err != nil {
		return err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	ch, err := b.publisherChannel()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		b.dropChannelLocked()
		return fmt.Errorf("%w: publish to %s key %s: %v", domain.ErrTransientNetwork, exchange, key, err)
	}
	observability.Published(exchange)
	return nil
}

// SendToQueue publishes straight to a named queue through the default
// exchange, bypassing routing. The queue must already exist; the broker
// drops the message otherwise.
func (b *Bus) SendToQueue(ctx context.Context, queue string, payload any, opts PublishOptions) error {
	return b.Publish(ctx, "", queue, payload, opts)
}

// PublishWithConfirm sends and waits for the broker to confirm the message
// hit a queue. The confirm wait happens outside the channel lock so
// concurrent publishers are not serialized on the round trip.
func (b *Bus) PublishWithConfirm(ctx context.Context, exchange, key string, payload any, opts PublishOptions) error {
	msg, err := b.message(payload, opts)
	if err != nil {
		return err
	}
	if err := b.conn.WaitUnblocked(ctx); err != nil {
		return err
	}

	b.pubMu.Lock()
	ch, err := b.publisherChannel()
	if err != nil {
		b.pubMu.Unlock()
		return err
	}
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		b.dropChannelLocked()
		b.pubMu.Unlock()
		return fmt.Errorf("%w: publish to %s key %s: %v", domain.ErrTransientNetwork, exchange, key, err)
	}
	b.pubMu.Unlock()

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: await confirm for %s key %s: %v", domain.ErrTransientNetwork, exchange, key, err)
	}
	observability.PublishConfirmed(acked)
	if !acked {
		return fmt.Errorf("%w: broker nacked publish to %s key %s", domain.ErrTransientNetwork, exchange, key)
	}
	observability.Published(exchange)
	return nil
}

// Subscribe opens a dedicated channel with the prefetch applied and starts
// manual-ack delivery from the queue. The channel is returned so the owner
// can cancel the consumer during shutdown.
func (b *Bus) Subscribe(queue, tag string, prefetch int) (<-chan amqp091.Delivery, *amqp091.Channel, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("set qos on %s: %w", queue, err)
	}
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, ch, nil
}
