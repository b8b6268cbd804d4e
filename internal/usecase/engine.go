// Package usecase contains the task engine: the pure transformation of a
// validated request into a terminal response via a model adapter.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
	"github.com/mosaicgrid/ai-task-pipeline/internal/observability"
	"github.com/mosaicgrid/ai-task-pipeline/pkg/textx"
)

const (
	defaultTaskTimeout      = 30 * time.Second
	maxTaskTimeout          = 5 * time.Minute
	defaultBatchDeadline    = 5 * time.Minute
	defaultBatchConcurrency = 5
)

// EngineConfig bounds engine execution. Zero values fall back to the
// defaults above.
type EngineConfig struct {
	TaskTimeout      time.Duration
	BatchDeadline    time.Duration
	BatchConcurrency int
	MaxContextBytes  int
}

// Engine implements domain.TaskProcessor. It selects a model, invokes the
// adapter with a bounded timeout, and shapes the output into the response
// contract. The engine holds no mutable state; one instance serves all
// workers.
type Engine struct {
	resolver domain.ModelResolver
	selector domain.ModelSelector
	tokens   domain.TokenCounter
	cfg      EngineConfig
}

// NewEngine wires the engine from its ports.
func NewEngine(resolver domain.ModelResolver, selector domain.ModelSelector, tokens domain.TokenCounter, cfg EngineConfig) *Engine {
	return &Engine{resolver: resolver, selector: selector, tokens: tokens, cfg: cfg}
}

var _ domain.TaskProcessor = (*Engine)(nil)

// Process runs one task attempt. The returned error is classified by the
// caller; a nil error means resp is a completed terminal response.
func (e *Engine) Process(ctx domain.Context, req domain.AIProcessRequest, emit domain.ProgressFunc) (domain.AIProcessResponse, error) {
	tracer := otel.Tracer("usecase.engine")
	ctx, span := tracer.Start(ctx, "RunTask", trace.WithAttributes(
		attribute.String("task.id", req.TaskID),
	))
	defer span.End()

	if max := e.cfg.MaxContextBytes; max > 0 && len(req.Context) > max {
		return domain.AIProcessResponse{}, domain.NewTaskError(domain.ErrorCodeValidation,
			fmt.Sprintf("context size %d exceeds limit %d", len(req.Context), max)).
			WithDetail("contextBytes", len(req.Context))
	}

	started := time.Now()
	requestID := ulid.Make().String()

	inputTokens := e.tokens.Count(req.Model(), req.Context+"\n"+req.Prompt)
	model := req.Model()
	if model == "" {
		model = e.selector.Select(req, inputTokens)
	}
	adapter := e.resolver.AdapterFor(model)
	span.SetAttributes(
		attribute.String("task.model", model),
		attribute.Int("task.input_tokens", inputTokens),
	)
	observability.LoggerFromContext(ctx).Debug("model selected",
		slog.String("model", model),
		slog.String("adapter", adapter.Name()),
		slog.Int("input_tokens", inputTokens),
		slog.String("request_id", requestID))

	genCtx, cancel := context.WithTimeout(ctx, e.timeoutFor(len(req.Context)))
	defer cancel()

	in := domain.ModelInput{Model: model, Context: req.Context, Prompt: req.Prompt}
	if md := req.Metadata; md != nil {
		in.Temperature = md.Temperature
		in.MaxTokens = md.MaxTokens
	}

	out, err := adapter.Generate(genCtx, in, chunkForwarder(req, emit))
	if err != nil {
		span.RecordError(err)
		return domain.AIProcessResponse{}, fmt.Errorf("model %s: %w", model, err)
	}

	content := textx.CleanModelOutput(out.Content)
	if content == "" {
		return domain.AIProcessResponse{}, domain.NewTaskError(domain.ErrorCodeProcessingFailed,
			"model returned empty output").WithDetail("model", model)
	}

	tags := textx.ExtractTags(content)
	result := domain.AIResult{
		Content:      content,
		Title:        textx.DeriveTitle(content),
		SemanticType: semanticTypeFor(tags),
		Confidence:   normalizeConfidence(out.Confidence),
		Tags:         tags,
	}

	modelUsed := out.Model
	if modelUsed == "" {
		modelUsed = model
	}
	tokenCount := out.TokensUsed
	if tokenCount == 0 {
		tokenCount = inputTokens + e.tokens.Count(modelUsed, content)
	}
	stats := domain.TaskStats{
		ModelUsed:        modelUsed,
		TokenCount:       tokenCount,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		RequestID:        requestID,
	}
	return domain.CompletedResponse(req, result, stats), nil
}

// timeoutFor grows the base attempt timeout by one base unit per megabyte of
// context, capped at five minutes.
func (e *Engine) timeoutFor(contextBytes int) time.Duration {
	base := e.cfg.TaskTimeout
	if base <= 0 {
		base = defaultTaskTimeout
	}
	total := base + time.Duration(contextBytes/(1<<20))*base
	if total > maxTaskTimeout {
		return maxTaskTimeout
	}
	return total
}

// chunkForwarder adapts streamed model chunks into progress updates. The
// consumer enforces monotone progress; here chunks are only clamped into
// range.
func chunkForwarder(req domain.AIProcessRequest, emit domain.ProgressFunc) domain.ChunkFunc {
	if emit == nil {
		return nil
	}
	return func(ch domain.ModelChunk) {
		p := ch.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		emit(domain.TaskProgressUpdate{
			TaskID:    req.TaskID,
			NodeID:    req.NodeID,
			Status:    domain.TaskProcessing,
			Progress:  p,
			Timestamp: time.Now().UTC(),
		})
	}
}

// normalizeConfidence maps adapter confidence onto [0,1]. Percent-style
// values are scaled down; out-of-range values are clamped.
func normalizeConfidence(c float64) float64 {
	if c > 1 && c <= 100 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// semanticTypeFor derives the coarse content kind from the structural tags
// textx extracts.
func semanticTypeFor(tags []string) string {
	for _, tag := range tags {
		switch tag {
		case "code", "table", "list":
			return tag
		}
	}
	return "text"
}
