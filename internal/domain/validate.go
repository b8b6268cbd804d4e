package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// FieldError names one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// ValidationError aggregates field failures. It unwraps to ErrSchemaInvalid
// so callers can match the whole family with errors.Is.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+":"+fe.Rule)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrSchemaInvalid }

func newValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Errors: fields}
}

func structError(err error) error {
	if err == nil {
		return nil
	}
	ve := &ValidationError{}
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			ve.Errors = append(ve.Errors, FieldError{Field: strings.ToLower(fe.Field()), Rule: fe.Tag()})
		}
		return ve
	}
	return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
}

// ValidateAIProcessRequest applies the request schema rules.
func ValidateAIProcessRequest(req AIProcessRequest) error {
	if err := getValidator().Struct(req); err != nil {
		return structError(err)
	}
	return nil
}

// ValidateAIProcessResponse applies the response schema rules plus the
// success/error mutual-exclusion refinement: success implies a result and no
// error, failure implies an error and no result.
func ValidateAIProcessResponse(resp AIProcessResponse) error {
	if err := getValidator().Struct(resp); err != nil {
		return structError(err)
	}
	if resp.Success {
		if resp.Result == nil {
			return newValidationError(FieldError{Field: "result", Rule: "required_when_success"})
		}
		if resp.Error != nil {
			return newValidationError(FieldError{Field: "error", Rule: "forbidden_when_success"})
		}
	} else {
		if resp.Error == nil {
			return newValidationError(FieldError{Field: "error", Rule: "required_when_failed"})
		}
		if resp.Result != nil {
			return newValidationError(FieldError{Field: "result", Rule: "forbidden_when_failed"})
		}
	}
	return nil
}

// ValidateTaskProgressUpdate applies the progress schema rules.
func ValidateTaskProgressUpdate(up TaskProgressUpdate) error {
	if err := getValidator().Struct(up); err != nil {
		return structError(err)
	}
	return nil
}

// ValidateBatchTask applies batch rules and rejects duplicate child ids.
func ValidateBatchTask(b BatchTask) error {
	if err := getValidator().Struct(b); err != nil {
		return structError(err)
	}
	seen := make(map[string]struct{}, len(b.Tasks))
	for _, t := range b.Tasks {
		if _, dup := seen[t.TaskID]; dup {
			return newValidationError(FieldError{Field: "tasks", Rule: "duplicate_task_id"})
		}
		seen[t.TaskID] = struct{}{}
	}
	return nil
}

// ValidateTaskCancelCommand applies the cancel command rules.
func ValidateTaskCancelCommand(c TaskCancelCommand) error {
	if err := getValidator().Struct(c); err != nil {
		return structError(err)
	}
	return nil
}

// decodeStrict parses JSON rejecting unknown fields anywhere in the
// document. Ingress is strict by contract.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	// Trailing content after the document is also malformed.
	if dec.More() {
		return fmt.Errorf("%w: trailing data after json document", ErrPoisonMessage)
	}
	return nil
}

// ParseAIProcessRequest parses and validates a request payload.
func ParseAIProcessRequest(data []byte) (AIProcessRequest, error) {
	var req AIProcessRequest
	if err := decodeStrict(data, &req); err != nil {
		return AIProcessRequest{}, err
	}
	if err := ValidateAIProcessRequest(req); err != nil {
		return AIProcessRequest{}, err
	}
	return req, nil
}

// ParseAIProcessResponse parses and validates a response payload.
func ParseAIProcessResponse(data []byte) (AIProcessResponse, error) {
	var resp AIProcessResponse
	if err := decodeStrict(data, &resp); err != nil {
		return AIProcessResponse{}, err
	}
	if err := ValidateAIProcessResponse(resp); err != nil {
		return AIProcessResponse{}, err
	}
	return resp, nil
}

// ParseTaskProgressUpdate parses and validates a progress payload.
func ParseTaskProgressUpdate(data []byte) (TaskProgressUpdate, error) {
	var up TaskProgressUpdate
	if err := decodeStrict(data, &up); err != nil {
		return TaskProgressUpdate{}, err
	}
	if err := ValidateTaskProgressUpdate(up); err != nil {
		return TaskProgressUpdate{}, err
	}
	return up, nil
}

// ParseBatchTask parses and validates a batch payload.
func ParseBatchTask(data []byte) (BatchTask, error) {
	var b BatchTask
	if err := decodeStrict(data, &b); err != nil {
		return BatchTask{}, err
	}
	if err := ValidateBatchTask(b); err != nil {
		return BatchTask{}, err
	}
	return b, nil
}

// ParseTaskCancelCommand parses and validates a cancel payload.
func ParseTaskCancelCommand(data []byte) (TaskCancelCommand, error) {
	var c TaskCancelCommand
	if err := decodeStrict(data, &c); err != nil {
		return TaskCancelCommand{}, err
	}
	if err := ValidateTaskCancelCommand(c); err != nil {
		return TaskCancelCommand{}, err
	}
	return c, nil
}

// ExtractTaskID best-effort pulls a taskId out of a payload that failed
// validation, so a terminal failure result can still be addressed.
func ExtractTaskID(data []byte) string {
	taskID, _, _, _ := ExtractIdentity(data)
	return taskID
}

// ExtractIdentity best-effort pulls the addressing fields out of a payload
// that failed parsing or validation. Missing fields come back empty.
func ExtractIdentity(data []byte) (taskID, nodeID, userID, projectID string) {
	var probe struct {
		TaskID    string `json:"taskId"`
		NodeID    string `json:"nodeId"`
		UserID    string `json:"userId"`
		ProjectID string `json:"projectId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", "", "", ""
	}
	return probe.TaskID, probe.NodeID, probe.UserID, probe.ProjectID
}
