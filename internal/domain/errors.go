package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is the wire-level error taxonomy.
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "VALIDATION"
	ErrorCodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	ErrorCodeTimeout          ErrorCode = "TIMEOUT"
	ErrorCodeRateLimited      ErrorCode = "RATE_LIMITED"
	ErrorCodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
	ErrorCodePoisonMessage    ErrorCode = "POISON_MESSAGE"
	ErrorCodeCancelled        ErrorCode = "CANCELLED"
	ErrorCodeInternal         ErrorCode = "INTERNAL"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrPoisonMessage    = errors.New("poison message")
	ErrTransientNetwork = errors.New("transient network error")
	ErrUpstreamTimeout  = errors.New("upstream timeout")
	ErrRateLimited      = errors.New("rate limited")
	ErrTaskCancelled    = errors.New("task cancelled")
	ErrInternal         = errors.New("internal error")
)

// Retryable reports whether failures with this code may be retried at all.
// INTERNAL is retryable but capped separately (one attempt) by RetryLimit.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrorCodeTransientNetwork, ErrorCodeTimeout, ErrorCodeRateLimited, ErrorCodeInternal:
		return true
	default:
		return false
	}
}

// RetryLimit bounds the retry count for this code given the configured
// maximum. INTERNAL failures get a single retry regardless of the maximum.
func (c ErrorCode) RetryLimit(maxRetries int) int {
	if !c.Retryable() {
		return 0
	}
	if c == ErrorCodeInternal && maxRetries > 1 {
		return 1
	}
	return maxRetries
}

// TaskError is the wire error payload. It implements error so adapters and
// the engine can return it directly and callers can recover it with
// errors.As.
type TaskError struct {
	Code      ErrorCode      `json:"code" validate:"required"`
	Message   string         `json:"message" validate:"required"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewTaskError builds a TaskError with the retryable flag derived from the
// code.
func NewTaskError(code ErrorCode, message string) *TaskError {
	return &TaskError{Code: code, Message: message, Retryable: code.Retryable()}
}

// WithDetail attaches one detail entry and returns the error for chaining.
func (e *TaskError) WithDetail(key string, value any) *TaskError {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// ClassifyError maps any error onto the taxonomy. Explicit TaskErrors and
// sentinels win; otherwise the error text is matched the way upstream
// failures usually spell themselves.
func ClassifyError(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code
	}
	switch {
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrSchemaInvalid):
		return ErrorCodeValidation
	case errors.Is(err, ErrPoisonMessage):
		return ErrorCodePoisonMessage
	case errors.Is(err, ErrTransientNetwork):
		return ErrorCodeTransientNetwork
	case errors.Is(err, ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorCodeTimeout
	case errors.Is(err, ErrRateLimited):
		return ErrorCodeRateLimited
	case errors.Is(err, ErrTaskCancelled), errors.Is(err, context.Canceled):
		return ErrorCodeCancelled
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"):
		return ErrorCodeRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "econnreset"), strings.Contains(msg, "enotfound"),
		strings.Contains(msg, "service_unavailable"), strings.Contains(msg, "service unavailable"),
		strings.Contains(msg, "connection refused"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "no such host"):
		return ErrorCodeTransientNetwork
	case strings.Contains(msg, "schema"), strings.Contains(msg, "invalid response"), strings.Contains(msg, "malformed"):
		return ErrorCodeProcessingFailed
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "validation"):
		return ErrorCodeValidation
	}
	return ErrorCodeInternal
}

// AsTaskError converts any error to a TaskError, classifying when needed.
func AsTaskError(err error) *TaskError {
	if err == nil {
		return nil
	}
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return NewTaskError(ClassifyError(err), err.Error())
}

// IsRetryable reports whether an error is eligible for retry under the
// taxonomy. Cancellation is never retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTaskCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	return ClassifyError(err).Retryable()
}

// IsCancelled reports whether an error represents task cancellation rather
// than a failure, so callers publish a cancelled terminal instead of failed.
func IsCancelled(err error) bool {
	return err != nil && (errors.Is(err, ErrTaskCancelled) || errors.Is(err, context.Canceled))
}
