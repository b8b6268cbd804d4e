package app

import (
	"context"
	"errors"
	"testing"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

type fakeBroker struct{ up bool }

func (f fakeBroker) IsConnected() bool { return f.up }

type fakeLister struct{ err error }

func (f fakeLister) ListQueuedTasks(_ domain.Context, _ int) ([]domain.AIProcessRequest, error) {
	return nil, f.err
}

func TestReadinessChecksHealthy(t *testing.T) {
	brokerCheck, storeCheck := BuildReadinessChecks(fakeBroker{up: true}, fakeLister{})
	if err := brokerCheck(context.Background()); err != nil {
		t.Fatalf("broker check should pass, got %v", err)
	}
	if err := storeCheck(context.Background()); err != nil {
		t.Fatalf("store check should pass, got %v", err)
	}
}

func TestReadinessBrokerDisconnected(t *testing.T) {
	brokerCheck, _ := BuildReadinessChecks(fakeBroker{up: false}, fakeLister{})
	if err := brokerCheck(context.Background()); err == nil {
		t.Fatalf("expected error for disconnected broker")
	}
}

func TestReadinessStoreUnreachable(t *testing.T) {
	_, storeCheck := BuildReadinessChecks(fakeBroker{up: true}, fakeLister{err: errors.New("dial tcp: refused")})
	if err := storeCheck(context.Background()); err == nil {
		t.Fatalf("expected error for unreachable store")
	}
}

func TestReadinessNilDeps(t *testing.T) {
	brokerCheck, storeCheck := BuildReadinessChecks(nil, nil)
	if err := brokerCheck(context.Background()); err == nil {
		t.Fatalf("expected error for nil broker")
	}
	if err := storeCheck(context.Background()); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
