package amqp

import (
	"testing"
	"time"
)

func TestWaitQueueName(t *testing.T) {
	tests := []struct {
		delay time.Duration
		key   string
		want  string
	}{
		{time.Second, "llm.process.normal", "llm.wait.1000.llm.process.normal"},
		{2 * time.Second, "llm.process.high", "llm.wait.2000.llm.process.high"},
		{30 * time.Second, "llm.batch.process", "llm.wait.30000.llm.batch.process"},
	}
	for _, tt := range tests {
		if got := waitQueueName(tt.delay.Milliseconds(), tt.key); got != tt.want {
			t.Errorf("waitQueueName(%v, %s) = %s, want %s", tt.delay, tt.key, got, tt.want)
		}
	}
}
