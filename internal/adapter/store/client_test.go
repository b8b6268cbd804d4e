package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

const (
	storeTaskID    = "f1e2d3c4-b5a6-4798-8a9b-0c1d2e3f4a5b"
	storeProjectID = "a9b8c7d6-e5f4-4a3b-9c2d-1e0f9a8b7c6d"
	storeUserID    = "0f1e2d3c-4b5a-4697-8889-9a0b1c2d3e4f"
)

// testClient tightens the retry schedule so failure tests finish quickly.
func testClient(srv *httptest.Server, token string) *Client {
	c := New(srv.URL, token)
	c.newBackoff = func() backoff.BackOff {
		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = time.Millisecond
		expo.MaxInterval = 5 * time.Millisecond
		expo.MaxElapsedTime = 200 * time.Millisecond
		return expo
	}
	return c
}

func storeRequest() domain.AIProcessRequest {
	return domain.AIProcessRequest{
		TaskID:    storeTaskID,
		NodeID:    "node-1",
		ProjectID: storeProjectID,
		UserID:    storeUserID,
		Prompt:    "summarize the notes",
		Timestamp: time.Now().UTC(),
	}
}

func TestCreateTaskSendsAuthAndBody(t *testing.T) {
	var got struct {
		method, path, auth, contentType string
		body                            domain.AIProcessRequest
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := testClient(srv, "token-1")
	require.NoError(t, c.CreateTask(context.Background(), storeRequest()))

	require.Equal(t, http.MethodPost, got.method)
	require.Equal(t, "/api/v1/ai-tasks", got.path)
	require.Equal(t, "Bearer token-1", got.auth)
	require.Equal(t, "application/json", got.contentType)
	require.Equal(t, storeTaskID, got.body.TaskID)
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	var auth string
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, present = r.Header["Authorization"]
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv, "")
	require.NoError(t, c.StartTask(context.Background(), storeTaskID))
	require.False(t, present, "Authorization header should be absent, got %q", auth)
}

func TestStartTaskPath(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	require.NoError(t, c.StartTask(context.Background(), storeTaskID))
	require.Equal(t, http.MethodPut, method)
	require.Equal(t, "/api/v1/ai-tasks/"+storeTaskID+"/start", path)
}

func TestCompleteTaskSendsTerminalPayload(t *testing.T) {
	var path string
	var body domain.AIProcessResponse
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp := domain.CompletedResponse(storeRequest(), domain.AIResult{Content: "done", Confidence: 0.9}, domain.TaskStats{ModelUsed: "stub"})
	c := testClient(srv, "t")
	require.NoError(t, c.CompleteTask(context.Background(), resp))
	require.Equal(t, "/api/v1/ai-tasks/"+storeTaskID+"/complete", path)
	require.Equal(t, domain.TaskCompleted, body.Status)
	require.True(t, body.Success)
}

func TestFailTaskPath(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp := domain.FailedResponse(storeRequest(), domain.NewTaskError(domain.ErrorCodeProcessingFailed, "model failed"), nil)
	c := testClient(srv, "t")
	require.NoError(t, c.FailTask(context.Background(), resp))
	require.Equal(t, http.MethodPut, method)
	require.Equal(t, "/api/v1/ai-tasks/"+storeTaskID+"/fail", path)
}

func TestRetriesServerErrorsThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	require.NoError(t, c.StartTask(context.Background(), storeTaskID))
	require.Equal(t, int32(3), calls.Load())
}

func TestClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"missing prompt"}`))
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	err := c.CreateTask(context.Background(), storeRequest())
	require.Error(t, err)
	require.Contains(t, err.Error(), "status 422")
	require.Contains(t, err.Error(), "missing prompt")
	require.Equal(t, int32(1), calls.Load(), "4xx must not be retried")
}

func TestRateLimitIsRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	require.NoError(t, c.StartTask(context.Background(), storeTaskID))
	require.Equal(t, int32(2), calls.Load())
}

func TestListQueuedTasks(t *testing.T) {
	var path, rawQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, rawQuery = r.URL.Path, r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tasks":[
			{"taskId":"` + storeTaskID + `","nodeId":"n1","projectId":"` + storeProjectID + `","userId":"` + storeUserID + `","prompt":"a","timestamp":"2026-08-24T10:00:00Z"},
			{"taskId":"` + storeProjectID + `","nodeId":"n2","projectId":"` + storeProjectID + `","userId":"` + storeUserID + `","prompt":"b","timestamp":"2026-08-24T10:01:00Z"}
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	tasks, err := c.ListQueuedTasks(context.Background(), 25)
	require.NoError(t, err)
	require.Equal(t, "/api/v1/ai-tasks/queued", path)
	require.Equal(t, "limit=25", rawQuery)
	require.Len(t, tasks, 2)
	require.Equal(t, storeTaskID, tasks[0].TaskID)
	require.Equal(t, "b", tasks[1].Prompt)
}

func TestCleanupOldTasks(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"deleted":12}`))
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	deleted, err := c.CleanupOldTasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, method)
	require.Equal(t, "/api/v1/ai-tasks/cleanup-old", path)
	require.Equal(t, 12, deleted)
}

func TestBrokenResponseBodyIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"tasks": [`))
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	_, err := c.ListQueuedTasks(context.Background(), 5)
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load(), "decode failures must not be retried")
}

func TestContextCancellationStopsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(srv, "t")
	err := c.StartTask(ctx, storeTaskID)
	require.Error(t, err)
}

func TestBreakerShortCircuitsDownedStore(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	c.newBackoff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	c.breaker = observability.NewBreaker("store-test", 2, time.Minute)

	require.Error(t, c.StartTask(context.Background(), storeTaskID))
	require.Error(t, c.StartTask(context.Background(), storeTaskID))
	require.Equal(t, int32(2), calls.Load())

	err := c.StartTask(context.Background(), storeTaskID)
	require.ErrorIs(t, err, observability.ErrBreakerOpen)
	require.Equal(t, int32(2), calls.Load(), "open breaker must not reach the store")
}

func TestBreakerRecoversWithStore(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(srv, "t")
	c.newBackoff = func() backoff.BackOff { return &backoff.StopBackOff{} }
	c.breaker = observability.NewBreaker("store-test", 1, 20*time.Millisecond)

	require.Error(t, c.StartTask(context.Background(), storeTaskID))
	require.ErrorIs(t, c.StartTask(context.Background(), storeTaskID), observability.ErrBreakerOpen)

	healthy.Store(true)
	time.Sleep(30 * time.Millisecond)

	require.NoError(t, c.StartTask(context.Background(), storeTaskID))
}
