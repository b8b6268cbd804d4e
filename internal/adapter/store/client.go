// Package store provides the HTTP client for the task record service.
//
// The store keeps durable task records (inputs, outputs, attempt state) on
// behalf of the pipeline. Calls here are best-effort from the consumer's
// point of view: callers log persistence failures and never block result
// publication on them.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

const tasksPath = "/api/v1/ai-tasks"

// Client implements domain.TaskStore against the store service HTTP API.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
	newBackoff func() backoff.BackOff
	breaker    *observability.Breaker
}

// New constructs a store client with an otel-instrumented transport. A
// circuit breaker sheds the retry latency once the store is clearly down;
// rejected calls surface immediately as errors the caller logs.
func New(baseURL, authToken string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		newBackoff: defaultBackoff,
		breaker:    observability.NewBreaker("store", 5, 30*time.Second),
	}
}

// defaultBackoff bounds store retries well under the task timeout so a dead
// store cannot stall the consumer.
func defaultBackoff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 2 * time.Second
	expo.MaxElapsedTime = 5 * time.Second
	return expo
}

// CreateTask records a queued task.
func (c *Client) CreateTask(ctx domain.Context, req domain.AIProcessRequest) error {
	return c.do(ctx, "create", http.MethodPost, tasksPath, req, nil)
}

// StartTask marks a record processing.
func (c *Client) StartTask(ctx domain.Context, taskID string) error {
	path := fmt.Sprintf("%s/%s/start", tasksPath, url.PathEscape(taskID))
	return c.do(ctx, "start", http.MethodPut, path, nil, nil)
}

// CompleteTask stores the terminal success output.
func (c *Client) CompleteTask(ctx domain.Context, resp domain.AIProcessResponse) error {
	path := fmt.Sprintf("%s/%s/complete", tasksPath, url.PathEscape(resp.TaskID))
	return c.do(ctx, "complete", http.MethodPut, path, resp, nil)
}

// FailTask stores the terminal failure output.
func (c *Client) FailTask(ctx domain.Context, resp domain.AIProcessResponse) error {
	path := fmt.Sprintf("%s/%s/fail", tasksPath, url.PathEscape(resp.TaskID))
	return c.do(ctx, "fail", http.MethodPut, path, resp, nil)
}

// ListQueuedTasks returns records still marked queued, oldest first.
func (c *Client) ListQueuedTasks(ctx domain.Context, limit int) ([]domain.AIProcessRequest, error) {
	var out struct {
		Tasks []domain.AIProcessRequest `json:"tasks"`
	}
	path := fmt.Sprintf("%s/queued?limit=%d", tasksPath, limit)
	if err := c.do(ctx, "list_queued", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// CleanupOldTasks removes old terminal records and reports how many.
func (c *Client) CleanupOldTasks(ctx domain.Context) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.do(ctx, "cleanup", http.MethodPost, tasksPath+"/cleanup-old", nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// do runs one store call with retries. Transport errors and 5xx retry under
// the backoff budget; 4xx are permanent. 429 stays retryable.
func (c *Client) do(ctx domain.Context, operation, method, path string, body, out any) error {
	if err := c.breaker.Allow(); err != nil {
		err = fmt.Errorf("store %s: %w", operation, err)
		observability.StoreRequest(operation, err)
		return err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("store %s: encode: %w", operation, err)
		}
		payload = b
	}

	op := func() error {
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("store %s: build request: %w", operation, err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.authToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.authToken)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("store %s: %w", operation, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("store %s: rate limited: 429", operation)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			snippet := readSnippet(resp.Body, 512)
			return backoff.Permanent(fmt.Errorf("store %s: status %d: %s", operation, resp.StatusCode, snippet))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("store %s: status %d", operation, resp.StatusCode)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("store %s: decode: %w", operation, err))
			}
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.newBackoff(), ctx))
	c.breaker.Record(err)
	observability.StoreRequest(operation, err)
	return err
}

func readSnippet(r io.Reader, n int64) string {
	b, _ := io.ReadAll(io.LimitReader(r, n))
	return strings.TrimSpace(string(b))
}
