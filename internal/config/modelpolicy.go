package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ModelRule routes a request to a model. A rule applies when the prompt
// matches Intent (always, if Intent is empty) and the estimated input size
// is at most MaxInputTokens (unbounded, if zero). Rules are evaluated in
// file order; the first applicable rule wins.
type ModelRule struct {
	Intent         string `yaml:"intent"`
	MaxInputTokens int    `yaml:"max_input_tokens"`
	Model          string `yaml:"model"`

	re *regexp.Regexp
}

// ModelPolicy is the ordered routing table for model selection.
type ModelPolicy struct {
	Default string      `yaml:"default"`
	Rules   []ModelRule `yaml:"rules"`
}

// LoadModelPolicy loads and compiles a model routing policy from a YAML file.
func LoadModelPolicy(filePath string) (*ModelPolicy, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model policy file not found: %s", filePath)
	}

	// #nosec G304 -- Configuration files are expected to be safe
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model policy file: %w", err)
	}

	var policy ModelPolicy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse model policy YAML: %w", err)
	}

	if policy.Default == "" {
		return nil, fmt.Errorf("model policy %s has no default model", filePath)
	}
	if err := policy.compile(); err != nil {
		return nil, err
	}
	return &policy, nil
}

// LoadModelPolicyOrDefault loads the policy file and falls back to the
// built-in policy when the file is missing or invalid.
func LoadModelPolicyOrDefault(filePath string) *ModelPolicy {
	policy, err := LoadModelPolicy(filePath)
	if err != nil {
		return DefaultModelPolicy()
	}
	return policy
}

// DefaultModelPolicy returns the built-in routing table: a lite model for
// short summarization-style prompts, the standard model up to a mid-size
// input, and the extended-context model above that.
func DefaultModelPolicy() *ModelPolicy {
	policy := &ModelPolicy{
		Default: "mosaic-standard",
		Rules: []ModelRule{
			{Intent: `(?i)^(summarize|condense|shorten|tl;dr)`, MaxInputTokens: 2000, Model: "mosaic-lite"},
			{MaxInputTokens: 6000, Model: "mosaic-standard"},
			{Model: "mosaic-extended"},
		},
	}
	if err := policy.compile(); err != nil {
		// Built-in rules are constants; a compile failure is a programming error.
		panic(err)
	}
	return policy
}

func (p *ModelPolicy) compile() error {
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.Model == "" {
			return fmt.Errorf("model policy rule %d has no model", i)
		}
		if r.Intent == "" {
			continue
		}
		re, err := regexp.Compile(r.Intent)
		if err != nil {
			return fmt.Errorf("model policy rule %d has invalid intent pattern: %w", i, err)
		}
		r.re = re
	}
	return nil
}

// ModelFor returns the model for a prompt and estimated input token count.
func (p *ModelPolicy) ModelFor(prompt string, inputTokens int) string {
	for i := range p.Rules {
		r := &p.Rules[i]
		if r.re != nil && !r.re.MatchString(prompt) {
			continue
		}
		if r.MaxInputTokens > 0 && inputTokens > r.MaxInputTokens {
			continue
		}
		return r.Model
	}
	return p.Default
}
