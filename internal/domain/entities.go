// Package domain defines the task pipeline contract: entities, wire names,
// validation, the error taxonomy, and the ports adapters implement.
package domain

import (
	"context"
	"time"
)

// TaskStatus is the lifecycle state of a task as observed by the pipeline.
type TaskStatus string

const (
	TaskQueued     TaskStatus = "queued"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status ends the task lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// PriorityClass names one of the independent worker pools.
type PriorityClass string

const (
	PriorityHigh   PriorityClass = "high"
	PriorityNormal PriorityClass = "normal"
	PriorityLow    PriorityClass = "low"
)

// Wire priority values carried in the "priority" header. Urgent rides the
// high queue with a larger per-message priority.
const (
	PriorityValueLow    = 1
	PriorityValueNormal = 5
	PriorityValueHigh   = 8
	PriorityValueUrgent = 10
)

// ClassForPriority maps a wire priority value to its worker pool.
func ClassForPriority(v int) PriorityClass {
	switch {
	case v >= PriorityValueHigh:
		return PriorityHigh
	case v <= PriorityValueLow:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// PriorityForClass returns the representative wire value for a class.
func PriorityForClass(c PriorityClass) int {
	switch c {
	case PriorityHigh:
		return PriorityValueHigh
	case PriorityLow:
		return PriorityValueLow
	default:
		return PriorityValueNormal
	}
}

// TaskMetadata is the fixed set of recognized request options. Unknown
// top-level metadata keys fail strict parsing; free-form values belong in
// CustomMetadata.
type TaskMetadata struct {
	Model          string         `json:"model,omitempty"`
	Temperature    *float64       `json:"temperature,omitempty" validate:"omitempty,min=0,max=2"`
	MaxTokens      int            `json:"maxTokens,omitempty" validate:"omitempty,min=1"`
	SourceNodeIDs  []string       `json:"sourceNodeIds,omitempty"`
	RetryCount     int            `json:"retryCount,omitempty" validate:"omitempty,min=0"`
	SessionID      string         `json:"sessionId,omitempty"`
	CustomMetadata map[string]any `json:"customMetadata,omitempty"`
}

// AIProcessRequest is the unified task contract: everything an AI task needs
// reduces to context + prompt. Context may be empty; prompt may not.
type AIProcessRequest struct {
	TaskID    string        `json:"taskId" validate:"required,uuid4"`
	NodeID    string        `json:"nodeId" validate:"required"`
	ProjectID string        `json:"projectId" validate:"required,uuid4"`
	UserID    string        `json:"userId" validate:"required,uuid4"`
	Context   string        `json:"context"`
	Prompt    string        `json:"prompt" validate:"required,min=1"`
	Timestamp time.Time     `json:"timestamp" validate:"required"`
	Metadata  *TaskMetadata `json:"metadata,omitempty"`
}

// Model returns the explicitly requested model, if any.
func (r AIProcessRequest) Model() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.Model
}

// AIResult is the success half of a response.
type AIResult struct {
	Content         string   `json:"content" validate:"required"`
	Title           string   `json:"title,omitempty"`
	SemanticType    string   `json:"semanticType,omitempty"`
	ImportanceLevel *int     `json:"importanceLevel,omitempty" validate:"omitempty,min=1,max=5"`
	Confidence      float64  `json:"confidence" validate:"min=0,max=1"`
	Tags            []string `json:"tags,omitempty"`
}

// TaskStats carries per-attempt execution statistics.
type TaskStats struct {
	ModelUsed        string `json:"modelUsed"`
	TokenCount       int    `json:"tokenCount,omitempty"`
	ProcessingTimeMs int64  `json:"processingTimeMs"`
	RequestID        string `json:"requestId,omitempty"`
}

// AIProcessResponse is published per attempt; the last one is authoritative.
// Invariant: Success == (Result != nil) == (Error == nil).
type AIProcessResponse struct {
	TaskID    string     `json:"taskId" validate:"required,uuid4"`
	NodeID    string     `json:"nodeId" validate:"required"`
	ProjectID string     `json:"projectId" validate:"required,uuid4"`
	UserID    string     `json:"userId" validate:"required,uuid4"`
	Status    TaskStatus `json:"status" validate:"required,oneof=queued processing completed failed cancelled"`
	Success   bool       `json:"success"`
	Result    *AIResult  `json:"result,omitempty"`
	Error     *TaskError `json:"error,omitempty"`
	Stats     *TaskStats `json:"stats,omitempty"`
	Timestamp time.Time  `json:"timestamp" validate:"required"`
}

// TaskProgressUpdate is emitted zero or more times per attempt. Progress is
// non-decreasing within one attempt.
type TaskProgressUpdate struct {
	TaskID    string     `json:"taskId" validate:"required,uuid4"`
	NodeID    string     `json:"nodeId" validate:"required"`
	Status    TaskStatus `json:"status" validate:"required,oneof=queued processing completed failed cancelled"`
	Progress  int        `json:"progress" validate:"min=0,max=100"`
	Message   string     `json:"message,omitempty"`
	Timestamp time.Time  `json:"timestamp" validate:"required"`
}

// BatchOptions controls batch fan-out behavior.
type BatchOptions struct {
	FailFast    bool `json:"failFast"`
	Concurrency int  `json:"concurrency" validate:"omitempty,min=1"`
}

// BatchTask groups child requests executed with bounded concurrency.
type BatchTask struct {
	BatchID   string             `json:"batchId" validate:"required,uuid4"`
	Tasks     []AIProcessRequest `json:"tasks" validate:"required,min=1,dive"`
	Options   BatchOptions       `json:"options"`
	Timestamp time.Time          `json:"timestamp" validate:"required"`
}

// BatchResult aggregates child outcomes into a single event.
type BatchResult struct {
	BatchID        string              `json:"batchId"`
	Status         TaskStatus          `json:"status"`
	Results        []AIProcessResponse `json:"results"`
	CompletedCount int                 `json:"completedCount"`
	FailedCount    int                 `json:"failedCount"`
	CancelledCount int                 `json:"cancelledCount"`
	DurationMs     int64               `json:"durationMs"`
	Timestamp      time.Time           `json:"timestamp"`
}

// TaskCancelCommand requests cancellation of an inflight task.
type TaskCancelCommand struct {
	TaskID    string    `json:"taskId" validate:"required,uuid4"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskStatusEvent announces a task state transition on the events exchange.
type TaskStatusEvent struct {
	TaskID    string     `json:"taskId"`
	Status    TaskStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
}

// SystemErrorEvent reports pipeline-level failures (poison messages, publish
// failures, persistence errors) on the events exchange.
type SystemErrorEvent struct {
	Source    string    `json:"source"`
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskAttempt tracks one engine execution of a task. AttemptNumber starts at
// 1 and is strictly increasing across retries of the same task.
type TaskAttempt struct {
	TaskID        string
	AttemptNumber int
	StartedAt     time.Time
	EndedAt       time.Time
	Outcome       TaskStatus
}

// Duration returns the wall-clock attempt duration, zero while running.
func (a TaskAttempt) Duration() time.Duration {
	if a.EndedAt.IsZero() {
		return 0
	}
	return a.EndedAt.Sub(a.StartedAt)
}

// Legacy task types retained for header compatibility. The unified
// context+prompt contract is authoritative; legacy types only contribute a
// prompt prefix.
const (
	TaskTypeUnified  = "unified"
	TaskTypeGenerate = "generate"
	TaskTypeOptimize = "optimize"
	TaskTypeFusion   = "fusion"
	TaskTypeAnalyze  = "analyze"
	TaskTypeExpand   = "expand"
)

var legacyPromptPrefixes = map[string]string{
	TaskTypeGenerate: "Generate new content for this canvas node.",
	TaskTypeOptimize: "Improve and refine the following content.",
	TaskTypeFusion:   "Merge the source materials into one coherent piece.",
	TaskTypeAnalyze:  "Analyze the following content and report the key findings.",
	TaskTypeExpand:   "Expand the following content with more depth and detail.",
}

// PromptForTaskType translates a legacy task-type header into a prompt
// prefix. Unified or unknown types leave the prompt untouched.
func PromptForTaskType(taskType, prompt string) string {
	prefix, ok := legacyPromptPrefixes[taskType]
	if !ok {
		return prompt
	}
	return prefix + "\n\n" + prompt
}

// Ports

// ModelInput is what an adapter receives for one generation.
type ModelInput struct {
	Model       string
	Context     string
	Prompt      string
	Temperature *float64
	MaxTokens   int
}

// ModelChunk is an intermediate adapter yield. Progress is best-effort in
// [0,100]; Content may be empty for pure progress ticks.
type ModelChunk struct {
	Content  string
	Progress int
}

// ModelOutput is a completed adapter generation. TokensUsed is zero when the
// adapter cannot report it; Confidence is raw and normalized by the engine.
type ModelOutput struct {
	Content    string
	Model      string
	Confidence float64
	TokensUsed int
}

// ChunkFunc receives streamed adapter chunks. May be nil.
type ChunkFunc func(ModelChunk)

// ModelAdapter (port) is a pluggable model backend. Implementations must be
// safe for concurrent invocation and honor ctx cancellation.
type ModelAdapter interface {
	Name() string
	Generate(ctx Context, in ModelInput, emit ChunkFunc) (ModelOutput, error)
}

// ModelSelector (port) picks an adapter name for a request when the request
// does not pin one via metadata.
type ModelSelector interface {
	Select(req AIProcessRequest, inputTokens int) string
}

// ModelResolver (port) resolves a model name to the adapter serving it.
// Resolution never fails; unknown names map to the fallback adapter.
type ModelResolver interface {
	AdapterFor(model string) ModelAdapter
}

// TokenCounter (port) estimates token counts for model inputs and outputs.
type TokenCounter interface {
	Count(model, text string) int
}

// ProgressFunc receives progress updates emitted during processing.
type ProgressFunc func(TaskProgressUpdate)

// TaskProcessor (port) is the task engine: a pure transformation of request
// to response modulo the model adapter.
type TaskProcessor interface {
	Process(ctx Context, req AIProcessRequest, emit ProgressFunc) (AIProcessResponse, error)
	ProcessBatch(ctx Context, batch BatchTask, emit ProgressFunc) (BatchResult, error)
}

// TaskStore (port) is the HTTP store-service contract. Implementations log
// failures; callers never block result publication on store errors.
type TaskStore interface {
	CreateTask(ctx Context, req AIProcessRequest) error
	StartTask(ctx Context, taskID string) error
	CompleteTask(ctx Context, resp AIProcessResponse) error
	FailTask(ctx Context, resp AIProcessResponse) error
	ListQueuedTasks(ctx Context, limit int) ([]AIProcessRequest, error)
	CleanupOldTasks(ctx Context) (int, error)
}

// ResultPublisher (port) publishes pipeline output events. Progress payloads
// do not carry addressing fields, so the progress methods take the request to
// build the per-client routing key. PublishTaskStart is confirmed by the
// broker; PublishProgress is fire-and-forget.
type ResultPublisher interface {
	PublishTaskStart(ctx Context, req AIProcessRequest, up TaskProgressUpdate) error
	PublishProgress(ctx Context, req AIProcessRequest, up TaskProgressUpdate) error
	PublishResult(ctx Context, resp AIProcessResponse) error
	PublishBatchResult(ctx Context, res BatchResult) error
	PublishStatus(ctx Context, ev TaskStatusEvent) error
	PublishSystemError(ctx Context, ev SystemErrorEvent) error
}

// Context is an alias to allow decoupling from std context in domain.
// Adapters and usecases pass context.Context through.
type Context = context.Context
