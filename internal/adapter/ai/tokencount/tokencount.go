// Package tokencount estimates token counts for model inputs and outputs.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken library, and falls
// back to a bytes/4 heuristic whenever no encoding is available (offline
// environments, unknown models). Counts feed model selection and the
// tokenCount field of task stats, so a rough estimate beats an error.
package tokencount

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Counter provides thread-safe token counting with cached encodings.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// encodingFor returns the encoding for a model, loading and caching it on
// demand.
func (c *Counter) encodingFor(model string) (*tiktoken.Tiktoken, error) {
	normalized := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalized]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if enc, ok := c.encodingCache[normalized]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalized)
	if err != nil {
		// cl100k_base covers most modern chat models well enough.
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalized] = enc
	return enc, nil
}

// normalizeModelName maps pipeline model ids onto tiktoken-known names. The
// in-house mosaic models tokenize close enough to the gpt-4 encoding.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// Provider-prefixed ids like "vendor/model:variant"
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.IndexByte(model, ':'); i >= 0 {
		model = model[:i]
	}

	switch {
	case strings.Contains(model, "gpt-4"):
		return "gpt-4"
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	default:
		return "gpt-4"
	}
}

// Count returns the token count of text for a model. It satisfies the
// pipeline's TokenCounter port and never fails: unknown encodings fall back
// to Estimate.
func (c *Counter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := c.encodingFor(model)
	if err != nil {
		return Estimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Estimate approximates tokens as ceil(bytes/4), the conventional rough
// average for English text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
