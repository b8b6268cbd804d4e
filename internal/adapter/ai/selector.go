package ai

import (
	"github.com/mosaicgrid/ai-task-pipeline/internal/config"
	"github.com/mosaicgrid/ai-task-pipeline/internal/domain"
)

// PolicySelector picks a model for requests that do not pin one via
// metadata, consulting the ordered routing policy.
type PolicySelector struct {
	policy *config.ModelPolicy
}

// NewPolicySelector builds a selector; a nil policy falls back to the
// built-in routing table.
func NewPolicySelector(policy *config.ModelPolicy) *PolicySelector {
	if policy == nil {
		policy = config.DefaultModelPolicy()
	}
	return &PolicySelector{policy: policy}
}

// Select implements domain.ModelSelector.
func (s *PolicySelector) Select(req domain.AIProcessRequest, inputTokens int) string {
	return s.policy.ModelFor(req.Prompt, inputTokens)
}
