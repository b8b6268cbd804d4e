package amqp

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

type inflightTask struct {
	class        domain.PriorityClass
	cancel       context.CancelFunc
	startedAt    time.Time
	cancelReason string
}

// InflightSet tracks the tasks this worker is currently processing, keyed by
// task id, and holds the cancel function for each so the cancel consumer and
// the shutdown path can stop running work.
type InflightSet struct {
	mu    sync.Mutex
	tasks map[string]*inflightTask
}

func NewInflightSet() *InflightSet {
	return &InflightSet{tasks: make(map[string]*inflightTask)}
}

// Insert registers a task. It returns false when the id is already inflight;
// callers treat that as a duplicate delivery and ack without processing.
func (s *InflightSet) Insert(taskID string, class domain.PriorityClass, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[taskID]; exists {
		return false
	}
	s.tasks[taskID] = &inflightTask{class: class, cancel: cancel, startedAt: time.Now()}
	return true
}

// Remove drops a task once its attempt ends.
func (s *InflightSet) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, taskID)
}

// Cancel stops a running task and records the reason. It reports whether the
// id was inflight on this worker.
func (s *InflightSet) Cancel(taskID, reason string) bool {
	s.mu.Lock()
	entry, ok := s.tasks[taskID]
	if ok {
		entry.cancelReason = reason
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry.cancel()
	return true
}

// CancelReason returns the reason recorded by Cancel, empty otherwise.
func (s *InflightSet) CancelReason(taskID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.tasks[taskID]; ok {
		return entry.cancelReason
	}
	return ""
}

// CancelAll stops everything still running and returns how many tasks were
// cancelled. Used when the shutdown grace elapses.
func (s *InflightSet) CancelAll(reason string) int {
	s.mu.Lock()
	entries := make([]*inflightTask, 0, len(s.tasks))
	for _, entry := range s.tasks {
		entry.cancelReason = reason
		entries = append(entries, entry)
	}
	s.mu.Unlock()
	for _, entry := range entries {
		entry.cancel()
	}
	return len(entries)
}

// Contains reports whether the id is currently inflight.
func (s *InflightSet) Contains(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[taskID]
	return ok
}

// Size returns the number of inflight tasks.
func (s *InflightSet) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// TaskIDs returns a sorted snapshot of inflight ids for stable logs.
func (s *InflightSet) TaskIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// Drain blocks until the set empties or ctx ends, returning the ids still
// running on timeout.
func (s *InflightSet) Drain(ctx context.Context) []string {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Size() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return s.TaskIDs()
		case <-ticker.C:
		}
	}
}
