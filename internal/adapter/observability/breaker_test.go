package observability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d rejected while closed: %v", i, err)
		}
		b.Record(boom)
	}

	if got := b.State(); got != BreakerOpen {
		t.Fatalf("Expected open after 3 failures, got %s", got)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("test", 3, time.Minute)
	boom := errors.New("boom")

	b.Record(boom)
	b.Record(boom)
	b.Record(nil)
	b.Record(boom)
	b.Record(boom)

	if got := b.State(); got != BreakerClosed {
		t.Errorf("Expected closed, a success in between breaks the run, got %s", got)
	}
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b := NewBreaker("test", 2, time.Minute)

	for i := 0; i < 5; i++ {
		b.Record(context.Canceled)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("Expected cancellations not to trip the breaker, got %s", got)
	}

	// Deadline expiry is a dependency signal and still counts.
	b.Record(context.DeadlineExceeded)
	b.Record(context.DeadlineExceeded)
	if got := b.State(); got != BreakerOpen {
		t.Errorf("Expected deadline failures to trip the breaker, got %s", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker("test", 1, 20*time.Millisecond)
	b.Record(errors.New("boom"))
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("Expected open, got %s", got)
	}

	time.Sleep(30 * time.Millisecond)

	for i := 0; i < halfOpenProbes; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
		b.Record(nil)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("Expected closed after successful probes, got %s", got)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Expected calls to flow after recovery, got %v", err)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", 1, 20*time.Millisecond)
	b.Record(errors.New("boom"))

	time.Sleep(30 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(errors.New("still down"))

	if got := b.State(); got != BreakerOpen {
		t.Errorf("Expected reopened after failed probe, got %s", got)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected ErrBreakerOpen during renewed cooldown, got %v", err)
	}
}

func TestBreakerHalfOpenProbeBudget(t *testing.T) {
	b := NewBreaker("test", 1, 10*time.Millisecond)
	b.Record(errors.New("boom"))
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < halfOpenProbes; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected probe budget exhausted, got %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker("test", 1, time.Minute)
	b.Record(errors.New("boom"))
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("Expected open, got %s", got)
	}

	b.Reset()
	if got := b.State(); got != BreakerClosed {
		t.Errorf("Expected closed after reset, got %s", got)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Expected calls allowed after reset, got %v", err)
	}
}
