// Package main provides the pipeline worker entry point. The worker consumes
// AI tasks from the broker, runs them through the engine, and publishes
// results, progress, and status events back per client.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/ai"
	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/ai/stub"
	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/ai/tokencount"
	brokeramqp "github.com/mosaicgrid/ai-task-pipeline/internal/adapter/amqp"
	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/observability"
	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/store"
	"github.com/mosaicgrid/ai-task-pipeline/internal/app"
	"github.com/mosaicgrid/ai-task-pipeline/internal/config"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
	"github.com/mosaicgrid/ai-task-pipeline/internal/usecase"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		return 1
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Broker connection with automatic reconnect. An exhausted reconnect
	// schedule is unrecoverable: stop consuming and exit non-zero so the
	// supervisor restarts the process.
	var brokerDead atomic.Bool
	conn := brokeramqp.NewConn(cfg.BrokerURL)
	conn.OnReconnectExhausted(func(err error) {
		slog.Error("broker reconnect attempts exhausted", slog.Any("error", err))
		brokerDead.Store(true)
		cancel()
	})
	if err := conn.Connect(ctx); err != nil {
		slog.Error("broker connect failed", slog.Any("error", err))
		return 1
	}
	defer func() { _ = conn.Close() }()

	bus := brokeramqp.NewBus(conn, cfg.SourceService)
	storeClient := store.New(cfg.StoreServiceURL, cfg.StoreAuthToken)

	// Ops HTTP surface: liveness, readiness, Prometheus metrics.
	brokerCheck, storeCheck := app.BuildReadinessChecks(conn, storeClient)
	opsSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.OpsPort),
		Handler: app.BuildOpsRouter(
			app.Check{Name: "broker", Fn: brokerCheck},
			app.Check{Name: "store", Fn: storeCheck},
		),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("ops server listening", slog.Int("port", cfg.OpsPort))
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("ops server error", slog.Any("error", err))
		}
	}()
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = opsSrv.Shutdown(shutCtx)
	}()

	// Model routing: the policy file picks the model, the registry picks the
	// adapter. The stub adapter backs every model until a provider adapter
	// is registered.
	policy := config.LoadModelPolicyOrDefault(cfg.ModelPolicyPath)
	registry := ai.NewRegistry(stub.New())
	selector := ai.NewPolicySelector(policy)
	counter := tokencount.NewCounter()

	engine := usecase.NewEngine(registry, selector, counter, usecase.EngineConfig{
		TaskTimeout:      cfg.TaskTimeout(),
		BatchConcurrency: cfg.BatchConcurrency,
		MaxContextBytes:  cfg.MaxContextBytes,
	})

	rs := cfg.GetRetrySettings()
	counts := cfg.GetWorkerCounts()
	events := brokeramqp.NewEventPublisher(bus)
	consumer := brokeramqp.NewConsumer(conn, bus, engine, storeClient, events, brokeramqp.ConsumerConfig{
		HighWorkers:   counts.High,
		NormalWorkers: counts.Normal,
		LowWorkers:    counts.Low,
		BatchWorkers:  counts.Batch,
		Prefetch:      cfg.BrokerPrefetch,
		Retry: domain.RetryPolicy{
			MaxRetries: rs.MaxRetries,
			BaseDelay:  rs.BaseDelay,
			MaxDelay:   rs.MaxDelay,
			Multiplier: rs.Multiplier,
		},
		ShutdownGrace: cfg.ShutdownGrace(),
	})

	// Recovery sweeper republishes store records whose original publish was
	// lost and prunes old terminal records.
	producer := brokeramqp.NewProducer(bus, cfg.SourceService)
	if sweeper := app.NewRecoverySweeper(storeClient, producer, consumer.Inflight(), app.SweeperConfig{
		Interval:     cfg.RecoveryInterval,
		CleanupEvery: cfg.CleanupInterval,
		BatchSize:    cfg.RecoveryBatchSize,
	}); sweeper != nil {
		go sweeper.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer stopped with error", slog.Any("error", err))
		return 1
	}
	if brokerDead.Load() {
		return 1
	}
	slog.Info("worker stopped")
	return 0
}
