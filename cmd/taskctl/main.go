// Package main provides taskctl, the operator CLI for the task pipeline.
// It publishes single tasks, batches from a JSON file, and cancellation
// commands through the same broker code paths the worker uses, plus small
// operational helpers: raw sends to a named queue and a queue depth report.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	brokeramqp "github.com/mosaicgrid/ai-task-pipeline/internal/adapter/amqp"
	"github.com/mosaicgrid/ai-task-pipeline/internal/adapter/store"
	"github.com/mosaicgrid/ai-task-pipeline/internal/config"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

const usage = `taskctl publishes pipeline commands to the broker.

Usage:
  taskctl publish -prompt <text> [-context <text>] [-context-file <path>]
                  [-priority high|normal|low] [-project <uuid>] [-user <uuid>]
                  [-node <id>] [-model <name>]
  taskctl batch   -file <batch.json> [-fail-fast] [-concurrency <n>]
  taskctl cancel  -task <uuid> [-reason <text>]
  taskctl send    -queue <name> -file <payload.json> [-type <message-type>]
  taskctl queues
  taskctl config

Configuration comes from the same environment variables as the worker.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "publish":
		err = runPublish(os.Args[2:])
	case "batch":
		err = runBatch(os.Args[2:])
	case "cancel":
		err = runCancel(os.Args[2:])
	case "send":
		err = runSend(os.Args[2:])
	case "queues":
		err = runQueues()
	case "config":
		err = runConfig()
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "taskctl: unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "taskctl:", err)
		os.Exit(1)
	}
}

// dialBus connects to the broker and declares the topology so taskctl works
// against a fresh broker too.
func dialBus(ctx context.Context, cfg config.Config) (*brokeramqp.Bus, func(), error) {
	conn := brokeramqp.NewConn(cfg.BrokerURL)
	if err := conn.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("connect broker: %w", err)
	}
	bus := brokeramqp.NewBus(conn, "taskctl")
	if err := bus.EnsureTopology(); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare topology: %w", err)
	}
	return bus, func() { _ = conn.Close() }, nil
}

func dialProducer(ctx context.Context, cfg config.Config) (*brokeramqp.Producer, func(), error) {
	bus, closeConn, err := dialBus(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return brokeramqp.NewProducer(bus, "taskctl"), closeConn, nil
}

// recordTasks writes queued store records ahead of the broker publish so a
// publish lost in transit stays recoverable from the store. Best effort: an
// unreachable store does not stop an operator enqueue.
func recordTasks(ctx context.Context, cfg config.Config, tasks ...domain.AIProcessRequest) {
	st := store.New(cfg.StoreServiceURL, cfg.StoreAuthToken)
	for _, task := range tasks {
		if err := st.CreateTask(ctx, task); err != nil {
			fmt.Fprintf(os.Stderr, "taskctl: store record for %s not created: %v\n", task.TaskID, err)
			return
		}
	}
}

func runPublish(args []string) error {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	prompt := fs.String("prompt", "", "prompt text (required)")
	contextText := fs.String("context", "", "context text")
	contextFile := fs.String("context-file", "", "read context from a file instead of -context")
	priority := fs.String("priority", "normal", "priority class: high, normal or low")
	project := fs.String("project", "", "project id (default: random)")
	user := fs.String("user", "", "user id (default: random)")
	node := fs.String("node", "", "node id (default: the task id)")
	model := fs.String("model", "", "pin a model instead of policy routing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *prompt == "" {
		return fmt.Errorf("-prompt is required")
	}
	class := domain.PriorityClass(*priority)
	switch class {
	case domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow:
	default:
		return fmt.Errorf("invalid priority %q (want high, normal or low)", *priority)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	taskContext := *contextText
	if *contextFile != "" {
		b, err := os.ReadFile(*contextFile)
		if err != nil {
			return fmt.Errorf("read context file: %w", err)
		}
		taskContext = string(b)
	}

	req := domain.AIProcessRequest{
		TaskID:    uuid.NewString(),
		ProjectID: orRandomID(*project),
		UserID:    orRandomID(*user),
		Context:   taskContext,
		Prompt:    *prompt,
		Timestamp: time.Now().UTC(),
	}
	req.NodeID = *node
	if req.NodeID == "" {
		req.NodeID = req.TaskID
	}
	if *model != "" {
		req.Metadata = &domain.TaskMetadata{Model: *model}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	recordTasks(ctx, cfg, req)
	producer, closeConn, err := dialProducer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := producer.EnqueueTask(ctx, req, class); err != nil {
		return err
	}
	fmt.Printf("published task %s (%s)\n", req.TaskID, class)
	return nil
}

func runBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	file := fs.String("file", "", "path to a batch JSON file (required)")
	failFast := fs.Bool("fail-fast", false, "cancel remaining children after the first failure")
	concurrency := fs.Int("concurrency", 0, "children processed in parallel (default: worker setting)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	b, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}
	var batch domain.BatchTask
	if err := json.Unmarshal(b, &batch); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}
	fillBatchDefaults(&batch)
	if *failFast {
		batch.Options.FailFast = true
	}
	if *concurrency > 0 {
		batch.Options.Concurrency = *concurrency
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	recordTasks(ctx, cfg, batch.Tasks...)
	producer, closeConn, err := dialProducer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := producer.EnqueueBatch(ctx, batch); err != nil {
		return err
	}
	fmt.Printf("published batch %s with %d tasks\n", batch.BatchID, len(batch.Tasks))
	return nil
}

// fillBatchDefaults completes ids and timestamps a hand-written batch file
// usually omits. Children missing addressing share one generated project and
// user so their results fan out to the same client key.
func fillBatchDefaults(batch *domain.BatchTask) {
	if batch.BatchID == "" {
		batch.BatchID = uuid.NewString()
	}
	if batch.Timestamp.IsZero() {
		batch.Timestamp = time.Now().UTC()
	}
	sharedProject := uuid.NewString()
	sharedUser := uuid.NewString()
	for i := range batch.Tasks {
		task := &batch.Tasks[i]
		if task.TaskID == "" {
			task.TaskID = uuid.NewString()
		}
		if task.NodeID == "" {
			task.NodeID = task.TaskID
		}
		if task.ProjectID == "" {
			task.ProjectID = sharedProject
		}
		if task.UserID == "" {
			task.UserID = sharedUser
		}
		if task.Timestamp.IsZero() {
			task.Timestamp = batch.Timestamp
		}
	}
}

func runCancel(args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	task := fs.String("task", "", "task id to cancel (required)")
	reason := fs.String("reason", "", "cancellation reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *task == "" {
		return fmt.Errorf("-task is required")
	}
	if _, err := uuid.Parse(*task); err != nil {
		return fmt.Errorf("invalid task id %q: %w", *task, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	producer, closeConn, err := dialProducer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	if err := producer.Cancel(ctx, domain.TaskCancelCommand{
		TaskID:    *task,
		Reason:    *reason,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		return err
	}
	fmt.Printf("published cancel for task %s\n", *task)
	return nil
}

// runSend drops a raw JSON payload straight onto a queue through the default
// exchange. Meant for replaying a DLQ message or poking a consumer by hand;
// the payload skips contract validation on purpose.
func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	queue := fs.String("queue", "", "target queue name (required)")
	file := fs.String("file", "", "path to a JSON payload file (required)")
	msgType := fs.String("type", "", "message type property")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *queue == "" {
		return fmt.Errorf("-queue is required")
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	b, err := os.ReadFile(*file)
	if err != nil {
		return fmt.Errorf("read payload file: %w", err)
	}
	if !json.Valid(b) {
		return fmt.Errorf("payload file %s is not valid JSON", *file)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	bus, closeConn, err := dialBus(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeConn()

	opts := brokeramqp.PublishOptions{Type: *msgType}
	if err := bus.SendToQueue(ctx, *queue, json.RawMessage(b), opts); err != nil {
		return err
	}
	fmt.Printf("sent %d bytes to queue %s\n", len(b), *queue)
	return nil
}

// runQueues prints depth and consumer counts for every pipeline queue. The
// drain check before restarting workers: zero messages and zero consumers
// everywhere means nothing is lost by stopping the fleet.
func runQueues() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	conn := brokeramqp.NewConn(cfg.BrokerURL)
	if err := conn.Connect(ctx); err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	statuses, err := brokeramqp.InspectQueues(conn)
	if err != nil {
		return err
	}
	fmt.Printf("%-28s %9s %10s\n", "QUEUE", "MESSAGES", "CONSUMERS")
	for _, st := range statuses {
		if st.Missing {
			fmt.Printf("%-28s %9s %10s\n", st.Name, "-", "-")
			continue
		}
		fmt.Printf("%-28s %9d %10d\n", st.Name, st.Messages, st.Consumers)
	}
	return nil
}

func runConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreAuthToken != "" {
		cfg.StoreAuthToken = "<redacted>"
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func orRandomID(v string) string {
	if v != "" {
		return v
	}
	return uuid.NewString()
}
