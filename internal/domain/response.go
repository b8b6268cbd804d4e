package domain

import "time"

// ProcessingUpdate builds the task-start progress message emitted when a
// worker picks a task up.
func ProcessingUpdate(req AIProcessRequest) TaskProgressUpdate {
	return TaskProgressUpdate{
		TaskID:    req.TaskID,
		NodeID:    req.NodeID,
		Status:    TaskProcessing,
		Progress:  0,
		Message:   "task picked up",
		Timestamp: time.Now().UTC(),
	}
}

// CompletedResponse builds the terminal success response for a request.
func CompletedResponse(req AIProcessRequest, result AIResult, stats TaskStats) AIProcessResponse {
	return AIProcessResponse{
		TaskID:    req.TaskID,
		NodeID:    req.NodeID,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Status:    TaskCompleted,
		Success:   true,
		Result:    &result,
		Stats:     &stats,
		Timestamp: time.Now().UTC(),
	}
}

// FailedResponse builds the terminal failure response for a request. The
// error is classified onto the taxonomy when it is not already a TaskError.
func FailedResponse(req AIProcessRequest, err error, stats *TaskStats) AIProcessResponse {
	return AIProcessResponse{
		TaskID:    req.TaskID,
		NodeID:    req.NodeID,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Status:    TaskFailed,
		Success:   false,
		Error:     AsTaskError(err),
		Stats:     stats,
		Timestamp: time.Now().UTC(),
	}
}

// CancelledResponse builds the terminal response for a cancelled task. The
// result is still published so clients observe the cancellation.
func CancelledResponse(req AIProcessRequest, reason string, stats *TaskStats) AIProcessResponse {
	if reason == "" {
		reason = "task cancelled"
	}
	return AIProcessResponse{
		TaskID:    req.TaskID,
		NodeID:    req.NodeID,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Status:    TaskCancelled,
		Success:   false,
		Error:     &TaskError{Code: ErrorCodeCancelled, Message: reason, Retryable: false},
		Stats:     stats,
		Timestamp: time.Now().UTC(),
	}
}
