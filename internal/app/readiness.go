package app

import (
	"context"
	"fmt"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// BrokerStatus is the minimal broker surface readiness needs.
type BrokerStatus interface{ IsConnected() bool }

// QueueLister is the minimal store surface readiness needs.
type QueueLister interface {
	ListQueuedTasks(ctx domain.Context, limit int) ([]domain.AIProcessRequest, error)
}

// BuildReadinessChecks returns two readiness checks: broker and store.
func BuildReadinessChecks(conn BrokerStatus, store QueueLister) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	brokerCheck := func(_ context.Context) error {
		if conn == nil {
			return fmt.Errorf("broker not configured")
		}
		if !conn.IsConnected() {
			return fmt.Errorf("broker disconnected")
		}
		return nil
	}
	storeCheck := func(ctx context.Context) error {
		if store == nil {
			return fmt.Errorf("store not configured")
		}
		if _, err := store.ListQueuedTasks(ctx, 1); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
		return nil
	}
	return brokerCheck, storeCheck
}
