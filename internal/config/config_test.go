package config

import (
	"testing"
)

func TestRoleFallsBackToDefault(t *testing.T) {
	cfg := Default()
	cfg.LLM.Roles = map[string]Endpoint{
		"secretary": {Model: "qwen2.5:7b"},
	}
	ep := cfg.Role("secretary")
	if ep.Model != "qwen2.5:7b" {
		t.Fatalf("model = %s", ep.Model)
	}
	// unset fields inherit from default
	if ep.BaseURL != cfg.LLM.Default.BaseURL {
		t.Fatalf("base url = %s", ep.BaseURL)
	}
	if ep.TimeoutSeconds != cfg.LLM.Default.TimeoutSeconds {
		t.Fatalf("timeout = %d", ep.TimeoutSeconds)
	}
	// unknown role is just the default
	if got := cfg.Role("processor"); got != cfg.LLM.Default {
		t.Fatalf("unknown role = %+v", got)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("llm:\n  default:\n    model: custom:latest\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.LLM.Default.Model != "custom:latest" {
		t.Fatalf("model = %s", cfg.LLM.Default.Model)
	}
	if cfg.LLM.Default.BaseURL == "" {
		t.Fatal("base url default lost")
	}
	if cfg.Worker.IntervalSeconds != 120 {
		t.Fatalf("interval = %d", cfg.Worker.IntervalSeconds)
	}
}

func TestFromYAMLRejectsBadValues(t *testing.T) {
	if _, err := FromYAML([]byte("llm:\n  default:\n    model: \"\"\n")); err == nil {
		t.Fatal("expected error for empty model")
	}
	if _, err := FromYAML([]byte("worker:\n  interval_seconds: -5\n")); err == nil {
		t.Fatal("expected error for negative interval")
	}
	if _, err := FromYAML([]byte("not yaml: [")); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestGenerateDefaultParses(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("template invalid: %v", err)
	}
	if _, ok := cfg.LLM.Roles["secretary"]; !ok {
		t.Fatal("template missing secretary role")
	}
}
