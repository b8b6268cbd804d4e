package amqp

import (
	"testing"

	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

func TestHeaderIntVariants(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"int", int(3), 3},
		{"int8", int8(3), 3},
		{"int16", int16(3), 3},
		{"int32", int32(3), 3},
		{"int64", int64(3), 3},
		{"float32", float32(3), 3},
		{"float64", float64(3), 3},
		{"string", "3", 3},
		{"bad string", "three", 0},
		{"bool", true, 0},
		{"nil", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := amqp091.Table{"retry-count": tt.value}
			if got := headerInt(headers, "retry-count"); got != tt.want {
				t.Errorf("Expected %d for %s value, got %d", tt.want, tt.name, got)
			}
		})
	}
	if got := headerInt(nil, "retry-count"); got != 0 {
		t.Errorf("Expected 0 for nil table, got %d", got)
	}
}

func TestHeaderString(t *testing.T) {
	headers := amqp091.Table{
		"task-type": "generate",
		"raw":       []byte("bytes"),
		"num":       int32(7),
	}
	if got := headerString(headers, "task-type"); got != "generate" {
		t.Errorf("Expected generate, got %q", got)
	}
	if got := headerString(headers, "raw"); got != "bytes" {
		t.Errorf("Expected bytes, got %q", got)
	}
	if got := headerString(headers, "num"); got != "" {
		t.Errorf("Expected empty string for non-string header, got %q", got)
	}
	if got := headerString(nil, "task-type"); got != "" {
		t.Errorf("Expected empty string for nil table, got %q", got)
	}
}

func TestRetryCountClampsNegative(t *testing.T) {
	d := amqp091.Delivery{Headers: amqp091.Table{domain.HeaderRetryCount: int32(-2)}}
	if got := retryCount(d); got != 0 {
		t.Errorf("Expected negative retry count clamped to 0, got %d", got)
	}
	if got := retryCount(amqp091.Delivery{}); got != 0 {
		t.Errorf("Expected 0 for missing header, got %d", got)
	}
}

func TestWithRetryCountDoesNotMutate(t *testing.T) {
	orig := amqp091.Table{
		domain.HeaderRetryCount: int32(1),
		domain.HeaderTaskID:     "abc",
	}
	out := withRetryCount(orig, 2)
	if got := headerInt(out, domain.HeaderRetryCount); got != 2 {
		t.Errorf("Expected retry count 2 in copy, got %d", got)
	}
	if got := headerInt(orig, domain.HeaderRetryCount); got != 1 {
		t.Errorf("Expected original retry count untouched, got %d", got)
	}
	if out[domain.HeaderTaskID] != "abc" {
		t.Error("Expected other headers carried over")
	}
}

func TestTaskHeaders(t *testing.T) {
	req := domain.AIProcessRequest{
		TaskID:    "t-1",
		UserID:    "u-1",
		ProjectID: "p-1",
	}
	h := taskHeaders(req, "", domain.PriorityHigh, 2, "taskctl")
	if h[domain.HeaderTaskType] != domain.TaskTypeUnified {
		t.Errorf("Expected empty task type defaulted to unified, got %v", h[domain.HeaderTaskType])
	}
	if h[domain.HeaderTaskID] != "t-1" || h[domain.HeaderUserID] != "u-1" || h[domain.HeaderProjectID] != "p-1" {
		t.Error("Expected identity headers populated from the request")
	}
	if got := headerInt(h, domain.HeaderPriority); got != domain.PriorityValueHigh {
		t.Errorf("Expected priority header %d, got %d", domain.PriorityValueHigh, got)
	}
	if got := headerInt(h, domain.HeaderRetryCount); got != 2 {
		t.Errorf("Expected retry count 2, got %d", got)
	}
	if h[domain.HeaderSourceService] != "taskctl" {
		t.Errorf("Expected source-service taskctl, got %v", h[domain.HeaderSourceService])
	}
	if h[domain.HeaderTimestamp] == "" {
		t.Error("Expected timestamp header set")
	}
}
