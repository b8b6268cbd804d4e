package domain

import "fmt"

// Exchange names. These are bit-exact wire names shared with the gateway and
// realtime services; changing any of them is a breaking protocol change.
const (
	ExchangeLLMDirect = "llm.direct"
	ExchangeAIResults = "ai.results.topic"
	ExchangeEvents    = "events.topic"
	ExchangeRealtime  = "realtime.fanout"
	ExchangeDLXTasks  = "dlx.ai.tasks"
	ExchangeDLXBatch  = "dlx.ai.batch"
)

// Exchange kinds as declared on the broker.
const (
	ExchangeKindDirect = "direct"
	ExchangeKindTopic  = "topic"
	ExchangeKindFanout = "fanout"
)

// Queue names.
const (
	QueueProcess         = "llm.process.queue"
	QueueProcessHigh     = "llm.process.high.queue"
	QueueProcessNormal   = "llm.process.normal.queue"
	QueueProcessLow      = "llm.process.low.queue"
	QueueBatchProcess    = "llm.batch.process.queue"
	QueueResultNotify    = "result.notify.queue"
	QueueTaskStatus      = "task.status.queue"
	QueueTaskCancel      = "task.cancel.queue"
	QueueEventsWebsocket = "events.websocket.queue"
	QueueEventsStorage   = "events.storage.queue"
	QueueDLQTasks        = "dlq.ai.tasks.queue"
	QueueDLQBatch        = "dlq.ai.batch.queue"
)

// Routing keys. The class-suffixed process keys route work onto the priority
// queues; the bare key feeds the default queue for producers that do not
// classify.
const (
	RouteProcess       = "llm.process"
	RouteProcessHigh   = "llm.process.high"
	RouteProcessNormal = "llm.process.normal"
	RouteProcessLow    = "llm.process.low"
	RouteResult        = "llm.result"
	RouteBatchProcess  = "llm.batch.process"
	RouteBatchResult   = "llm.batch.result"
	RouteTaskStatus    = "task.status"
	RouteTaskCancel    = "task.cancel"
	RouteSystemError   = "system.error"
)

// Event key families published on the events exchange.
const (
	EventKeyNodePrefix    = "node."
	EventKeyProjectPrefix = "project."
	EventKeyAITaskPrefix  = "ai."
)

// TaskResultRoutingKey builds the per-client result key consumed by the
// realtime layer: task.result.{userId}.{projectId}.
func TaskResultRoutingKey(userID, projectID string) string {
	return fmt.Sprintf("task.result.%s.%s", userID, projectID)
}

// TaskResultPattern matches all per-client result keys.
const TaskResultPattern = "task.result.#"

// RouteForClass returns the routing key feeding a priority queue.
func RouteForClass(c PriorityClass) string {
	switch c {
	case PriorityHigh:
		return RouteProcessHigh
	case PriorityLow:
		return RouteProcessLow
	default:
		return RouteProcessNormal
	}
}

// QueueForClass returns the queue a priority class consumes.
func QueueForClass(c PriorityClass) string {
	switch c {
	case PriorityHigh:
		return QueueProcessHigh
	case PriorityLow:
		return QueueProcessLow
	default:
		return QueueProcessNormal
	}
}

// Message header names.
const (
	HeaderTaskType      = "task-type"
	HeaderTaskID        = "task-id"
	HeaderUserID        = "user-id"
	HeaderProjectID     = "project-id"
	HeaderPriority      = "priority"
	HeaderRetryCount    = "retry-count"
	HeaderTimestamp     = "timestamp"
	HeaderSourceService = "source-service"
)

// Queue argument values.
const (
	TaskQueueMaxPriority = 10
	TaskQueueTTLMs       = 3_600_000
	BatchQueueTTLMs      = 7_200_000
	ResultQueueTTLMs     = 1_800_000
	ResultQueueMaxLen    = 10_000
)

// QueueSpec describes one durable queue and its bindings for topology
// declaration. Args use the broker's x-* argument names.
type QueueSpec struct {
	Name     string
	Args     map[string]any
	Bindings []BindingSpec
}

// BindingSpec binds a queue to an exchange under a routing key.
type BindingSpec struct {
	Exchange string
	Key      string
}

// ExchangeSpec describes one durable exchange.
type ExchangeSpec struct {
	Name string
	Kind string
}

// Exchanges lists every exchange the pipeline declares.
func Exchanges() []ExchangeSpec {
	return []ExchangeSpec{
		{Name: ExchangeLLMDirect, Kind: ExchangeKindDirect},
		{Name: ExchangeAIResults, Kind: ExchangeKindTopic},
		{Name: ExchangeEvents, Kind: ExchangeKindTopic},
		{Name: ExchangeRealtime, Kind: ExchangeKindFanout},
		{Name: ExchangeDLXTasks, Kind: ExchangeKindDirect},
		{Name: ExchangeDLXBatch, Kind: ExchangeKindDirect},
	}
}

func taskQueueArgs() map[string]any {
	return map[string]any{
		"x-max-priority":         int32(TaskQueueMaxPriority),
		"x-message-ttl":          int32(TaskQueueTTLMs),
		"x-dead-letter-exchange": ExchangeDLXTasks,
	}
}

// Queues lists every durable queue the pipeline declares, with arguments and
// bindings. Dead-letter queues bind each work routing key explicitly because
// dead-lettered messages keep their original keys.
func Queues() []QueueSpec {
	return []QueueSpec{
		{
			Name:     QueueProcess,
			Args:     taskQueueArgs(),
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteProcess}},
		},
		{
			Name:     QueueProcessHigh,
			Args:     taskQueueArgs(),
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteProcessHigh}},
		},
		{
			Name:     QueueProcessNormal,
			Args:     taskQueueArgs(),
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteProcessNormal}},
		},
		{
			Name:     QueueProcessLow,
			Args:     taskQueueArgs(),
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteProcessLow}},
		},
		{
			Name: QueueBatchProcess,
			Args: map[string]any{
				"x-max-priority":         int32(TaskQueueMaxPriority),
				"x-message-ttl":          int32(BatchQueueTTLMs),
				"x-dead-letter-exchange": ExchangeDLXBatch,
			},
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteBatchProcess}},
		},
		{
			Name: QueueResultNotify,
			Args: map[string]any{
				"x-message-ttl": int32(ResultQueueTTLMs),
				"x-max-length":  int32(ResultQueueMaxLen),
			},
			Bindings: []BindingSpec{
				{Exchange: ExchangeAIResults, Key: TaskResultPattern},
				{Exchange: ExchangeAIResults, Key: RouteResult},
				{Exchange: ExchangeAIResults, Key: RouteBatchResult},
			},
		},
		{
			Name:     QueueTaskStatus,
			Bindings: []BindingSpec{{Exchange: ExchangeEvents, Key: RouteTaskStatus}},
		},
		{
			Name:     QueueTaskCancel,
			Bindings: []BindingSpec{{Exchange: ExchangeLLMDirect, Key: RouteTaskCancel}},
		},
		{
			Name:     QueueEventsWebsocket,
			Bindings: []BindingSpec{{Exchange: ExchangeEvents, Key: "#"}},
		},
		{
			Name: QueueEventsStorage,
			Bindings: []BindingSpec{
				{Exchange: ExchangeEvents, Key: EventKeyNodePrefix + "*"},
				{Exchange: ExchangeEvents, Key: EventKeyProjectPrefix + "*"},
				{Exchange: ExchangeEvents, Key: EventKeyAITaskPrefix + "*"},
			},
		},
		{
			Name: QueueDLQTasks,
			Bindings: []BindingSpec{
				{Exchange: ExchangeDLXTasks, Key: RouteProcess},
				{Exchange: ExchangeDLXTasks, Key: RouteProcessHigh},
				{Exchange: ExchangeDLXTasks, Key: RouteProcessNormal},
				{Exchange: ExchangeDLXTasks, Key: RouteProcessLow},
			},
		},
		{
			Name:     QueueDLQBatch,
			Bindings: []BindingSpec{{Exchange: ExchangeDLXBatch, Key: RouteBatchProcess}},
		},
	}
}
