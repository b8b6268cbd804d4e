package amqp

import (
	"strconv"
	"time"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// headerInt reads an integer header. Brokers and clients disagree on the
// numeric type they deliver, so every plausible encoding is accepted.
func headerInt(headers amqp091.Table, key string) int {
	if headers == nil {
		return 0
	}
	switch v := headers[key].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// headerString reads a string header, tolerating []byte values.
func headerString(headers amqp091.Table, key string) string {
	if headers == nil {
		return ""
	}
	switch v := headers[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// retryCount extracts the retry counter from a delivery, zero when absent.
func retryCount(d amqp091.Delivery) int {
	n := headerInt(d.Headers, domain.HeaderRetryCount)
	if n < 0 {
		return 0
	}
	return n
}

// taskHeaders builds the standard header set for a task publish.
func taskHeaders(req domain.AIProcessRequest, taskType string, class domain.PriorityClass, retry int, source string) amqp091.Table {
	if taskType == "" {
		taskType = domain.TaskTypeUnified
	}
	return amqp091.Table{
		domain.HeaderTaskType:      taskType,
		domain.HeaderTaskID:        req.TaskID,
		domain.HeaderUserID:        req.UserID,
		domain.HeaderProjectID:     req.ProjectID,
		domain.HeaderPriority:      int32(domain.PriorityForClass(class)),
		domain.HeaderRetryCount:    int32(retry),
		domain.HeaderTimestamp:     time.Now().UTC().Format(time.RFC3339),
		domain.HeaderSourceService: source,
	}
}

// withRetryCount returns a copy of the delivery headers with the retry
// counter replaced. The original table is not mutated.
func withRetryCount(headers amqp091.Table, retry int) amqp091.Table {
	out := amqp091.Table{}
	for k, v := range headers {
		out[k] = v
	}
	out[domain.HeaderRetryCount] = int32(retry)
	return out
}
