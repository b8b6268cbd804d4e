package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const (
	testTaskID    = "1f8f6aab-7e79-4c5a-bb6c-1a2b3c4d5e6f"
	testProjectID = "2a9e7bcd-8f80-4d6b-9c7d-2b3c4d5e6f70"
	testUserID    = "3b0f8cde-9a91-4e7c-8d8e-3c4d5e6f7081"
)

func validRequest() AIProcessRequest {
	return AIProcessRequest{
		TaskID:    testTaskID,
		NodeID:    "node-1",
		ProjectID: testProjectID,
		UserID:    testUserID,
		Context:   "",
		Prompt:    "I want to build an e-commerce site",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateAIProcessRequestOK(t *testing.T) {
	if err := ValidateAIProcessRequest(validRequest()); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestValidateAIProcessRequestEmptyContextIsValid(t *testing.T) {
	req := validRequest()
	req.Context = ""
	if err := ValidateAIProcessRequest(req); err != nil {
		t.Fatalf("expected empty context to validate, got %v", err)
	}
}

func TestValidateAIProcessRequestEmptyPromptRejected(t *testing.T) {
	req := validRequest()
	req.Prompt = ""
	err := ValidateAIProcessRequest(req)
	if err == nil {
		t.Fatal("expected empty prompt to fail validation")
	}
	if !errors.Is(err, ErrSchemaInvalid) {
		t.Fatalf("expected schema invalid error, got %v", err)
	}
}

func TestValidateAIProcessRequestNonUUIDRejected(t *testing.T) {
	req := validRequest()
	req.TaskID = "not-a-uuid"
	if err := ValidateAIProcessRequest(req); err == nil {
		t.Fatal("expected non-uuid taskId to fail validation")
	}
}

func TestValidateAIProcessRequestZeroTimestampRejected(t *testing.T) {
	req := validRequest()
	req.Timestamp = time.Time{}
	if err := ValidateAIProcessRequest(req); err == nil {
		t.Fatal("expected zero timestamp to fail validation")
	}
}

func TestParseAIProcessRequestUnknownFieldRejected(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"n1","projectId":"` + testProjectID + `","userId":"` + testUserID + `","context":"","prompt":"p","timestamp":"2025-01-01T00:00:00Z","surprise":true}`
	_, err := ParseAIProcessRequest([]byte(payload))
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
	if !errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("expected poison message error, got %v", err)
	}
}

func TestParseAIProcessRequestMalformedJSON(t *testing.T) {
	_, err := ParseAIProcessRequest([]byte(`{not valid json`))
	if err == nil {
		t.Fatal("expected malformed json to be rejected")
	}
	if !errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("expected poison message error, got %v", err)
	}
}

func TestParseAIProcessRequestOK(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"n1","projectId":"` + testProjectID + `","userId":"` + testUserID + `","context":"ctx","prompt":"build it","timestamp":"2025-01-01T00:00:00Z","metadata":{"model":"studio-small","sessionId":"s1"}}`
	req, err := ParseAIProcessRequest([]byte(payload))
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if req.Model() != "studio-small" {
		t.Errorf("Expected metadata model studio-small, got %q", req.Model())
	}
	if req.Prompt != "build it" {
		t.Errorf("Expected prompt to round trip, got %q", req.Prompt)
	}
}

func TestParseAIProcessResponseOK(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"node-1","projectId":"` + testProjectID + `","userId":"` + testUserID + `","status":"completed","success":true,"result":{"content":"hello","confidence":0.9},"stats":{"modelUsed":"studio-small","processingTimeMs":12},"timestamp":"2025-01-01T00:00:00Z"}`
	resp, err := ParseAIProcessResponse([]byte(payload))
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if resp.Result == nil || resp.Result.Content != "hello" {
		t.Errorf("Expected result content to round trip, got %+v", resp.Result)
	}
}

func TestParseAIProcessResponseEnforcesExclusion(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"node-1","projectId":"` + testProjectID + `","userId":"` + testUserID + `","status":"failed","success":true,"error":{"code":"INTERNAL","message":"boom","retryable":false},"timestamp":"2025-01-01T00:00:00Z"}`
	if _, err := ParseAIProcessResponse([]byte(payload)); err == nil {
		t.Fatal("expected success with error payload to fail validation")
	}
}

func TestParseTaskProgressUpdateOK(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"node-1","status":"processing","progress":40,"message":"working","timestamp":"2025-01-01T00:00:00Z"}`
	up, err := ParseTaskProgressUpdate([]byte(payload))
	if err != nil {
		t.Fatalf("expected parse to succeed, got %v", err)
	}
	if up.Progress != 40 {
		t.Errorf("Expected progress 40, got %d", up.Progress)
	}
}

func TestParseTaskProgressUpdateRejectsOutOfRange(t *testing.T) {
	payload := `{"taskId":"` + testTaskID + `","nodeId":"node-1","status":"processing","progress":150,"timestamp":"2025-01-01T00:00:00Z"}`
	if _, err := ParseTaskProgressUpdate([]byte(payload)); err == nil {
		t.Fatal("expected progress above 100 to be rejected")
	}
}

func validResponse() AIProcessResponse {
	return AIProcessResponse{
		TaskID:    testTaskID,
		NodeID:    "node-1",
		ProjectID: testProjectID,
		UserID:    testUserID,
		Status:    TaskCompleted,
		Success:   true,
		Result:    &AIResult{Content: "hello", Confidence: 0.9},
		Stats:     &TaskStats{ModelUsed: "studio-small", ProcessingTimeMs: 12},
		Timestamp: time.Now(),
	}
}

func TestValidateAIProcessResponseOK(t *testing.T) {
	if err := ValidateAIProcessResponse(validResponse()); err != nil {
		t.Fatalf("expected valid response, got %v", err)
	}
}

func TestValidateAIProcessResponseMutualExclusion(t *testing.T) {
	t.Run("success without result", func(t *testing.T) {
		resp := validResponse()
		resp.Result = nil
		if err := ValidateAIProcessResponse(resp); err == nil {
			t.Fatal("expected success without result to fail")
		}
	})

	t.Run("success with error", func(t *testing.T) {
		resp := validResponse()
		resp.Error = NewTaskError(ErrorCodeInternal, "boom")
		if err := ValidateAIProcessResponse(resp); err == nil {
			t.Fatal("expected success with error to fail")
		}
	})

	t.Run("failure without error", func(t *testing.T) {
		resp := validResponse()
		resp.Success = false
		resp.Status = TaskFailed
		resp.Result = nil
		resp.Error = nil
		if err := ValidateAIProcessResponse(resp); err == nil {
			t.Fatal("expected failure without error to fail")
		}
	})

	t.Run("failure with result", func(t *testing.T) {
		resp := validResponse()
		resp.Success = false
		resp.Status = TaskFailed
		resp.Error = NewTaskError(ErrorCodeTimeout, "slow")
		if err := ValidateAIProcessResponse(resp); err == nil {
			t.Fatal("expected failure with result to fail")
		}
	})

	t.Run("valid failure", func(t *testing.T) {
		resp := validResponse()
		resp.Success = false
		resp.Status = TaskFailed
		resp.Result = nil
		resp.Error = NewTaskError(ErrorCodeTimeout, "slow")
		if err := ValidateAIProcessResponse(resp); err != nil {
			t.Fatalf("expected valid failure response, got %v", err)
		}
	})
}

func TestValidateAIProcessResponseImportanceLevelBounds(t *testing.T) {
	resp := validResponse()
	bad := 6
	resp.Result.ImportanceLevel = &bad
	if err := ValidateAIProcessResponse(resp); err == nil {
		t.Fatal("expected importanceLevel=6 to fail validation")
	}
	ok := 5
	resp.Result.ImportanceLevel = &ok
	if err := ValidateAIProcessResponse(resp); err != nil {
		t.Fatalf("expected importanceLevel=5 to validate, got %v", err)
	}
}

func TestValidateTaskProgressUpdateBounds(t *testing.T) {
	up := TaskProgressUpdate{
		TaskID:    testTaskID,
		NodeID:    "node-1",
		Status:    TaskProcessing,
		Progress:  0,
		Timestamp: time.Now(),
	}
	if err := ValidateTaskProgressUpdate(up); err != nil {
		t.Fatalf("expected progress=0 to validate, got %v", err)
	}
	up.Progress = 100
	if err := ValidateTaskProgressUpdate(up); err != nil {
		t.Fatalf("expected progress=100 to validate, got %v", err)
	}
	up.Progress = 101
	if err := ValidateTaskProgressUpdate(up); err == nil {
		t.Fatal("expected progress=101 to fail validation")
	}
}

func TestValidateBatchTask(t *testing.T) {
	batch := BatchTask{
		BatchID:   "4c1f9def-aa02-4f8d-9e9f-4d5e6f708192",
		Tasks:     []AIProcessRequest{validRequest()},
		Options:   BatchOptions{FailFast: true, Concurrency: 2},
		Timestamp: time.Now(),
	}
	if err := ValidateBatchTask(batch); err != nil {
		t.Fatalf("expected valid batch, got %v", err)
	}

	batch.Tasks = nil
	if err := ValidateBatchTask(batch); err == nil {
		t.Fatal("expected empty batch to fail validation")
	}

	dup := validRequest()
	batch.Tasks = []AIProcessRequest{dup, dup}
	err := ValidateBatchTask(batch)
	if err == nil {
		t.Fatal("expected duplicate child ids to fail validation")
	}
	if !strings.Contains(err.Error(), "duplicate_task_id") {
		t.Fatalf("expected duplicate_task_id rule, got %v", err)
	}
}

func TestExtractTaskID(t *testing.T) {
	if got := ExtractTaskID([]byte(`{"taskId":"abc","prompt":""}`)); got != "abc" {
		t.Errorf("Expected abc, got %q", got)
	}
	if got := ExtractTaskID([]byte(`{not json`)); got != "" {
		t.Errorf("Expected empty id for malformed payload, got %q", got)
	}
}

func TestLargePayloadAccepted(t *testing.T) {
	req := validRequest()
	req.Context = strings.Repeat("x", 1<<20+1)
	if err := ValidateAIProcessRequest(req); err != nil {
		t.Fatalf("expected >1MiB context to pass schema validation, got %v", err)
	}
}
