package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePolicyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write policy file: %v", err)
	}
	return path
}

func TestLoadModelPolicy(t *testing.T) {
	path := writePolicyFile(t, `
default: base-model
rules:
  - intent: "(?i)^summarize"
    max_input_tokens: 1000
    model: small-model
  - max_input_tokens: 4000
    model: base-model
  - model: big-model
`)

	policy, err := LoadModelPolicy(path)
	if err != nil {
		t.Fatalf("load err: %v", err)
	}
	if policy.Default != "base-model" {
		t.Errorf("Expected default base-model, got %q", policy.Default)
	}
	if len(policy.Rules) != 3 {
		t.Fatalf("Expected 3 rules, got %d", len(policy.Rules))
	}

	tests := []struct {
		name   string
		prompt string
		tokens int
		want   string
	}{
		{"intent match small input", "Summarize this note", 500, "small-model"},
		{"intent match large input falls through", "Summarize this note", 3000, "base-model"},
		{"generic small input", "Write a plan", 2000, "base-model"},
		{"generic large input", "Write a plan", 9000, "big-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.ModelFor(tt.prompt, tt.tokens); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLoadModelPolicyMissingFile(t *testing.T) {
	_, err := LoadModelPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected not-found error, got %v", err)
	}
}

func TestLoadModelPolicyInvalid(t *testing.T) {
	t.Run("no default", func(t *testing.T) {
		path := writePolicyFile(t, "rules:\n  - model: x\n")
		if _, err := LoadModelPolicy(path); err == nil {
			t.Fatal("expected error for missing default")
		}
	})
	t.Run("bad intent pattern", func(t *testing.T) {
		path := writePolicyFile(t, "default: x\nrules:\n  - intent: \"([\"\n    model: x\n")
		if _, err := LoadModelPolicy(path); err == nil {
			t.Fatal("expected error for invalid pattern")
		}
	})
	t.Run("rule without model", func(t *testing.T) {
		path := writePolicyFile(t, "default: x\nrules:\n  - intent: \"^a\"\n")
		if _, err := LoadModelPolicy(path); err == nil {
			t.Fatal("expected error for rule without model")
		}
	})
}

func TestLoadModelPolicyOrDefault(t *testing.T) {
	policy := LoadModelPolicyOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if policy.Default != "mosaic-standard" {
		t.Errorf("Expected built-in default, got %q", policy.Default)
	}
	if got := policy.ModelFor("Summarize the sprint notes", 300); got != "mosaic-lite" {
		t.Errorf("Expected mosaic-lite for short summarize prompt, got %q", got)
	}
	if got := policy.ModelFor("Draft the architecture overview", 20000); got != "mosaic-extended" {
		t.Errorf("Expected mosaic-extended for large input, got %q", got)
	}
}
