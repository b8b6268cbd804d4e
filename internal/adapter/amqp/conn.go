// Package amqp provides the broker integration for the task pipeline: the
// connection manager, topology declaration, the message bus, the producer,
// and the consumer/dispatcher with its worker pools.
//
// The package owns the single broker connection and handles reconnects with
// exponential backoff. Channels are created per consumer pool and for the
// publisher; amqp091 channels are not safe for concurrent use, so each one is
// confined to a pool or guarded by a mutex.
package amqp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
)

const defaultMaxReconnectAttempts = 10

// Conn owns the single broker connection. All lifecycle transitions are
// surfaced through typed hooks registered before Connect.
type Conn struct {
	url         string
	maxAttempts int

	mu   sync.Mutex
	conn *amqp091.Connection

	connected atomic.Bool
	closing   atomic.Bool
	done      chan struct{}

	hookMu        sync.Mutex
	onConnected   []func(reconnected bool)
	onDisconnect  []func(err error)
	onError       []func(err error)
	onBlocked     []func(blocked bool)
	onExhausted   []func(err error)
	unblockedCh   chan struct{}
	blockedActive bool
}

// NewConn creates a connection manager for the broker URL. Connect must be
// called before channels can be opened.
func NewConn(url string) *Conn {
	c := &Conn{
		url:         url,
		maxAttempts: defaultMaxReconnectAttempts,
		done:        make(chan struct{}),
		unblockedCh: make(chan struct{}),
	}
	close(c.unblockedCh) // not blocked initially
	return c
}

// OnConnected registers a hook invoked after every successful (re)connect.
// The flag is false for the initial connect and true for reconnects.
func (c *Conn) OnConnected(fn func(reconnected bool)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onConnected = append(c.onConnected, fn)
}

// OnDisconnected registers a hook invoked when the connection drops.
func (c *Conn) OnDisconnected(fn func(err error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// OnError registers a hook invoked for reconnect attempt failures.
func (c *Conn) OnError(fn func(err error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnBlocked registers a hook invoked when the broker applies or lifts
// connection-level flow control.
func (c *Conn) OnBlocked(fn func(blocked bool)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onBlocked = append(c.onBlocked, fn)
}

// OnReconnectExhausted registers a terminal hook invoked when the reconnect
// attempt budget is spent. The process is expected to exit non-zero.
func (c *Conn) OnReconnectExhausted(fn func(err error)) {
	c.hookMu.Lock()
	defer c.hookMu.Unlock()
	c.onExhausted = append(c.onExhausted, fn)
}

// Connect dials the broker, applying the reconnect schedule to initial
// failures as well. It returns once connected, or with an error when the
// attempt budget is exhausted or ctx ends.
func (c *Conn) Connect(ctx context.Context) error {
	if err := c.dial(); err == nil {
		c.fireConnected(false)
		return nil
	} else {
		slog.Warn("broker connect failed, retrying", slog.Any("error", err))
		c.fireError(err)
	}

	expo := c.newBackOff()
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		wait := expo.NextBackOff()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection manager closed")
		case <-time.After(wait):
		}

		err := c.dial()
		if err == nil {
			c.fireConnected(false)
			return nil
		}
		slog.Warn("broker connect attempt failed",
			slog.Int("attempt", attempt),
			slog.Duration("waited", wait),
			slog.Any("error", err))
		c.fireError(err)
	}

	err := fmt.Errorf("broker unreachable after %d attempts", c.maxAttempts)
	c.fireExhausted(err)
	return err
}

// newBackOff builds the reconnect schedule: 1s, 2s, 4s, ... capped at 30s.
// Randomization is disabled so the schedule is exact.
func (c *Conn) newBackOff() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = 30 * time.Second
	expo.MaxElapsedTime = 0
	return expo
}

// dial opens the connection and installs the close/blocked watchers.
func (c *Conn) dial() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("broker dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	observability.SetBrokerConnected(true)

	go c.watch(conn)
	go c.watchBlocked(conn)
	return nil
}

// watch waits for the connection to close and drives the reconnect loop.
func (c *Conn) watch(conn *amqp091.Connection) {
	closeCh := conn.NotifyClose(make(chan *amqp091.Error, 1))
	var reason error
	select {
	case <-c.done:
		return
	case amqpErr := <-closeCh:
		if amqpErr != nil {
			reason = amqpErr
		}
	}

	c.connected.Store(false)
	observability.SetBrokerConnected(false)
	if c.closing.Load() {
		return
	}

	slog.Warn("broker connection lost", slog.Any("error", reason))
	c.fireDisconnected(reason)
	c.reconnectLoop()
}

// reconnectLoop retries the dial on the exponential schedule, capped at the
// attempt budget. Success resets the budget for the next outage.
func (c *Conn) reconnectLoop() {
	expo := c.newBackOff()
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		wait := expo.NextBackOff()
		select {
		case <-c.done:
			return
		case <-time.After(wait):
		}

		err := c.dial()
		if err == nil {
			slog.Info("broker reconnected", slog.Int("attempt", attempt))
			observability.BrokerReconnected()
			c.fireConnected(true)
			return
		}
		slog.Warn("broker reconnect attempt failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Duration("waited", wait),
			slog.Any("error", err))
		c.fireError(err)
	}

	err := fmt.Errorf("broker reconnect exhausted after %d attempts", c.maxAttempts)
	slog.Error("max reconnect attempts reached", slog.Any("error", err))
	c.fireExhausted(err)
}

// watchBlocked forwards broker flow-control notifications to the hooks and
// gates WaitUnblocked.
func (c *Conn) watchBlocked(conn *amqp091.Connection) {
	blockedCh := conn.NotifyBlocked(make(chan amqp091.Blocking, 1))
	for {
		select {
		case <-c.done:
			return
		case b, ok := <-blockedCh:
			if !ok {
				return
			}
			c.setBlocked(b.Active, b.Reason)
		}
	}
}

func (c *Conn) setBlocked(active bool, reason string) {
	c.hookMu.Lock()
	if active && !c.blockedActive {
		c.blockedActive = true
		c.unblockedCh = make(chan struct{})
	} else if !active && c.blockedActive {
		c.blockedActive = false
		close(c.unblockedCh)
	}
	hooks := append([]func(bool){}, c.onBlocked...)
	c.hookMu.Unlock()

	if active {
		slog.Warn("broker connection blocked", slog.String("reason", reason))
	} else {
		slog.Info("broker connection unblocked")
	}
	for _, fn := range hooks {
		fn(active)
	}
}

// WaitUnblocked blocks while the broker has flow control applied. Publishers
// call it before every publish.
func (c *Conn) WaitUnblocked(ctx context.Context) error {
	c.hookMu.Lock()
	ch := c.unblockedCh
	c.hookMu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Channel opens a new channel on the current connection.
func (c *Conn) Channel() (*amqp091.Channel, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil || conn.IsClosed() {
		return nil, fmt.Errorf("broker not connected")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, nil
}

// IsConnected reports whether the connection is currently up.
func (c *Conn) IsConnected() bool {
	return c.connected.Load()
}

// Close shuts the connection down for good; no reconnect is attempted.
func (c *Conn) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	close(c.done)
	c.connected.Store(false)
	observability.SetBrokerConnected(false)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil && !conn.IsClosed() {
		if err := conn.Close(); err != nil {
			return fmt.Errorf("close connection: %w", err)
		}
	}
	return nil
}

func (c *Conn) fireConnected(reconnected bool) {
	c.hookMu.Lock()
	hooks := append([]func(bool){}, c.onConnected...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(reconnected)
	}
}

func (c *Conn) fireDisconnected(err error) {
	c.hookMu.Lock()
	hooks := append([]func(error){}, c.onDisconnect...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (c *Conn) fireError(err error) {
	c.hookMu.Lock()
	hooks := append([]func(error){}, c.onError...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (c *Conn) fireExhausted(err error) {
	c.hookMu.Lock()
	hooks := append([]func(error){}, c.onExhausted...)
	c.hookMu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}
