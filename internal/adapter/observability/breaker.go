package observability

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the state of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed means calls flow normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen means calls are rejected until the cooldown elapses.
	BreakerOpen
	// BreakerHalfOpen means a limited number of probe calls are let through.
	BreakerHalfOpen
)

// String returns the state name for logs and metrics.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Allow while the breaker rejects calls.
var ErrBreakerOpen = errors.New("circuit breaker open")

// halfOpenProbes is how many probe calls may run, and must succeed, before a
// half-open breaker closes again.
const halfOpenProbes = 3

// Breaker is a circuit breaker for an outbound dependency. It opens after a
// run of consecutive failures, rejects calls for a cooldown period, then lets
// a few probes through before closing. Callers pair Allow with Record around
// each logical call.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu        sync.Mutex
	state     BreakerState
	failures  int
	probes    int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{name: name, threshold: threshold, cooldown: cooldown}
}

// Allow reports whether a call may proceed. It returns ErrBreakerOpen while
// the breaker is open or the half-open probe budget is spent.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		b.transition(BreakerHalfOpen)
		b.probes = 0
		b.successes = 0
	}

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerHalfOpen:
		if b.probes < halfOpenProbes {
			b.probes++
			return nil
		}
		return ErrBreakerOpen
	default:
		return ErrBreakerOpen
	}
}

// Record feeds the outcome of an allowed call back into the breaker. Caller
// cancellation says nothing about the dependency's health and is ignored.
func (b *Breaker) Record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.threshold {
			b.transition(BreakerOpen)
			b.openedAt = time.Now()
		}
		return
	}

	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= halfOpenProbes {
			b.transition(BreakerClosed)
			b.failures = 0
		}
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(BreakerClosed)
	b.failures = 0
	b.probes = 0
	b.successes = 0
}

// transition must be called with the mutex held.
func (b *Breaker) transition(next BreakerState) {
	b.state = next
	RecordBreakerState(b.name, next)
}
