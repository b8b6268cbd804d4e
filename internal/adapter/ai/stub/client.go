// Package stub provides a fast, deterministic model adapter for local runs
// and tests. It streams chunked output, honors context cancellation, and
// supports scripted failures so retry and DLQ paths can be exercised without
// a real provider.
package stub

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// Prompt prefixes that script adapter behavior.
const (
	failTimeoutPrefix    = "FAIL:TIMEOUT"
	failRatePrefix       = "FAIL:RATE"
	failNetworkPrefix    = "FAIL:NETWORK"
	failProcessingPrefix = "FAIL:PROCESSING"
	failInternalPrefix   = "FAIL:INTERNAL"
	sleepPrefix          = "SLEEP:"
)

const defaultModel = "stub-1"

// Adapter is a deterministic streaming model adapter.
type Adapter struct {
	// ChunkDelay spaces out streamed chunks; zero streams immediately.
	ChunkDelay time.Duration
}

// New creates a stub adapter.
func New() *Adapter { return &Adapter{} }

// Name implements domain.ModelAdapter.
func (a *Adapter) Name() string { return "stub" }

// Generate implements domain.ModelAdapter. Output depends only on the input,
// so repeated calls yield identical results.
func (a *Adapter) Generate(ctx domain.Context, in domain.ModelInput, emit domain.ChunkFunc) (domain.ModelOutput, error) {
	prompt := strings.TrimSpace(in.Prompt)

	if rest, ok := strings.CutPrefix(prompt, sleepPrefix); ok {
		var ms int
		if fields := strings.Fields(rest); len(fields) > 0 {
			ms, _ = strconv.Atoi(fields[0])
		}
		select {
		case <-ctx.Done():
			return domain.ModelOutput{}, ctx.Err()
		case <-time.After(time.Duration(ms) * time.Millisecond):
		}
	}

	switch {
	case strings.HasPrefix(prompt, failTimeoutPrefix):
		return domain.ModelOutput{}, fmt.Errorf("stub: scripted timeout: %w", domain.ErrUpstreamTimeout)
	case strings.HasPrefix(prompt, failRatePrefix):
		return domain.ModelOutput{}, fmt.Errorf("stub: scripted rate limit: %w", domain.ErrRateLimited)
	case strings.HasPrefix(prompt, failNetworkPrefix):
		return domain.ModelOutput{}, fmt.Errorf("stub: scripted network failure: %w", domain.ErrTransientNetwork)
	case strings.HasPrefix(prompt, failProcessingPrefix):
		return domain.ModelOutput{}, domain.NewTaskError(domain.ErrorCodeProcessingFailed, "stub: scripted processing failure")
	case strings.HasPrefix(prompt, failInternalPrefix):
		return domain.ModelOutput{}, errors.New("stub: scripted internal failure")
	}

	model := in.Model
	if model == "" {
		model = defaultModel
	}

	content := a.compose(in)
	if in.MaxTokens > 0 && len(content) > in.MaxTokens*4 {
		content = content[:in.MaxTokens*4]
	}

	parts := splitChunks(content, 4)
	for i, part := range parts {
		if err := a.pace(ctx); err != nil {
			return domain.ModelOutput{}, err
		}
		if emit != nil {
			emit(domain.ModelChunk{Content: part, Progress: (i + 1) * 100 / len(parts)})
		}
	}

	return domain.ModelOutput{
		Content:    content,
		Model:      model,
		Confidence: 0.82,
		TokensUsed: (len(in.Context) + len(in.Prompt) + len(content)) / 4,
	}, nil
}

func (a *Adapter) compose(in domain.ModelInput) string {
	var b strings.Builder
	b.WriteString("Draft response\n\n")
	b.WriteString("Request: ")
	b.WriteString(firstLine(in.Prompt))
	b.WriteString("\n")
	if in.Context != "" {
		fmt.Fprintf(&b, "Grounded on %d characters of canvas context.\n", len(in.Context))
	}
	b.WriteString("\nThis is deterministic stub output produced without a model provider. ")
	b.WriteString("It is long enough to exercise title derivation, tag extraction and token accounting downstream.")
	return b.String()
}

// pace applies the inter-chunk delay, bailing out on cancellation.
func (a *Adapter) pace(ctx domain.Context) error {
	if a.ChunkDelay <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(a.ChunkDelay):
		return nil
	}
}

func splitChunks(s string, n int) []string {
	if n < 1 {
		n = 1
	}
	if len(s) < n {
		return []string{s}
	}
	size := (len(s) + n - 1) / n
	parts := make([]string, 0, n)
	for start := 0; start < len(s); start += size {
		end := start + size
		if end > len(s) {
			end = len(s)
		}
		parts = append(parts, s[start:end])
	}
	return parts
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
