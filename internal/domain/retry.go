package domain

import (
	"time"
)

// RetryPolicy defines the republish schedule for retryable failures. Delays
// grow exponentially from BaseDelay and are capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

// DefaultRetryPolicy mirrors the wire defaults: up to 3 retries starting at
// one second, doubling each attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// DelayFor computes the republish delay after the given number of completed
// attempts: BaseDelay * Multiplier^attempts, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	delay := float64(p.BaseDelay)
	for i := 0; i < attempts; i++ {
		delay *= p.Multiplier
		if time.Duration(delay) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	d := time.Duration(delay)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// RetryDecision is the outcome of consulting the policy for a failed attempt.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
	Code  ErrorCode
}

// Decide consults the policy for an error after the given retry count
// (value of the retry-count header, zero on first delivery). Non-retryable
// codes and exhausted budgets yield a dead-letter decision.
func (p RetryPolicy) Decide(err error, retryCount int) RetryDecision {
	code := ClassifyError(err)
	if !IsRetryable(err) {
		return RetryDecision{Retry: false, Code: code}
	}
	if retryCount >= code.RetryLimit(p.MaxRetries) {
		return RetryDecision{Retry: false, Code: code}
	}
	return RetryDecision{Retry: true, Delay: p.DelayFor(retryCount), Code: code}
}
