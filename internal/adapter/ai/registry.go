// Package ai wires model adapters and the selection policy.
package ai

import (
	"strings"
	"sync"

	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// Registry resolves model names to adapters. Adapters are registered under
// exact model names or name prefixes; anything unresolved goes to the
// fallback adapter. Registration happens at bootstrap, lookups from worker
// goroutines.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]domain.ModelAdapter
	prefixes []prefixEntry
	fallback domain.ModelAdapter
}

type prefixEntry struct {
	prefix  string
	adapter domain.ModelAdapter
}

// NewRegistry creates a registry with a required fallback adapter.
func NewRegistry(fallback domain.ModelAdapter) *Registry {
	return &Registry{
		exact:    make(map[string]domain.ModelAdapter),
		fallback: fallback,
	}
}

// Register maps an exact model name to an adapter.
func (r *Registry) Register(model string, adapter domain.ModelAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[model] = adapter
}

// RegisterPrefix maps a model-name prefix to an adapter. Longer prefixes win
// over shorter ones.
func (r *Registry) RegisterPrefix(prefix string, adapter domain.ModelAdapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.prefixes {
		if len(prefix) > len(e.prefix) {
			r.prefixes = append(r.prefixes[:i], append([]prefixEntry{{prefix, adapter}}, r.prefixes[i:]...)...)
			return
		}
	}
	r.prefixes = append(r.prefixes, prefixEntry{prefix, adapter})
}

// AdapterFor resolves a model name to an adapter. It never returns nil as
// long as the fallback is set.
func (r *Registry) AdapterFor(model string) domain.ModelAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.exact[model]; ok {
		return a
	}
	for _, e := range r.prefixes {
		if strings.HasPrefix(model, e.prefix) {
			return e.adapter
		}
	}
	return r.fallback
}
