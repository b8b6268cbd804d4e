package amqp

import (
	"fmt"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// DeclareTopology declares every exchange, queue, and binding the pipeline
// uses. Declarations are idempotent; an existing queue with different
// arguments fails the channel, which is the desired loud failure.
func DeclareTopology(ch *amqp091.Channel) error {
	for _, ex := range domain.Exchanges() {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}
	for _, q := range domain.Queues() {
		if _, err := ch.QueueDeclare(q.Name, true, false, false, false, amqp091.Table(q.Args)); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
		for _, b := range q.Bindings {
			if err := ch.QueueBind(q.Name, b.Key, b.Exchange, false, nil); err != nil {
				return fmt.Errorf("bind %s to %s key %s: %w", q.Name, b.Exchange, b.Key, err)
			}
		}
	}
	return nil
}

// QueueStatus is one row of a queue inspection.
type QueueStatus struct {
	Name      string
	Messages  int
	Consumers int
	Missing   bool
}

// InspectQueues reports depth and consumer counts for every pipeline queue.
// Each check runs on its own channel because a passive declare of a missing
// queue closes the channel it ran on.
func InspectQueues(conn *Conn) ([]QueueStatus, error) {
	queues := domain.Queues()
	statuses := make([]QueueStatus, 0, len(queues))
	for _, q := range queues {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		st, err := ch.QueueDeclarePassive(q.Name, true, false, false, false, amqp091.Table(q.Args))
		if err != nil {
			statuses = append(statuses, QueueStatus{Name: q.Name, Missing: true})
			continue
		}
		statuses = append(statuses, QueueStatus{Name: st.Name, Messages: st.Messages, Consumers: st.Consumers})
		_ = ch.Close()
	}
	return statuses, nil
}

func waitQueueName(delayMs int64, key string) string {
	return fmt.Sprintf("llm.wait.%d.%s", delayMs, key)
}

// DeclareWaitQueue declares the holding queue for a delayed retry. Messages
// sit in it until x-message-ttl expires, then dead-letter back onto the work
// exchange under the original routing key. The queue removes itself once
// idle; it must be redeclared before every use because x-expires may already
// have dropped it.
func DeclareWaitQueue(ch *amqp091.Channel, exchange, key string, delay time.Duration) (string, error) {
	delayMs := delay.Milliseconds()
	if delayMs < 1 {
		delayMs = 1
	}
	name := waitQueueName(delayMs, key)
	args := amqp091.Table{
		"x-dead-letter-exchange":    exchange,
		"x-dead-letter-routing-key": key,
		"x-message-ttl":             delayMs,
		"x-expires":                 delayMs * 2,
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, args); err != nil {
		return "", fmt.Errorf("declare wait queue %s: %w", name, err)
	}
	return name, nil
}
