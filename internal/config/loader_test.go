package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExpandEnvVars(t *testing.T) {
	os.Setenv("TEST_VAR", "hello")
	defer os.Unsetenv("TEST_VAR")

	tests := []struct {
		input    string
		expected string
	}{
		{"${TEST_VAR}", "hello"},
		{"${TEST_VAR:default}", "hello"},
		{"${UNSET_VAR:fallback}", "fallback"},
		{"${UNSET_VAR}", ""},
		{"no vars here", "no vars here"},
		{"prefix-${TEST_VAR}-suffix", "prefix-hello-suffix"},
	}

	for _, tt := range tests {
		got := expandEnvVars(tt.input)
		if got != tt.expected {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoadFile(t *testing.T) {
	// Create a temp YAML file
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_PORT", "7777")
	defer os.Unsetenv("TEST_PORT")

	tmpFile, err := os.CreateTemp("", "test-config-env-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "${TEST_HOST:127.0.0.1}"
  port: ${TEST_PORT}
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg Config
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected host 127.0.0.1 (default), got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("expected port 7777, got %d", cfg.Server.Port)
	}
}

func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

const testIntents = `
default_intent: general
intents:
  debugging:
    keywords: [debug, error, exception]
    models: [analysis, code]
    description: Diagnose failures
  code:
    keywords: [fix, bug]
    models: [code]
  general:
    keywords: []
    models: [default]
    description: Anything else
`

const testModels = `
models:
  - name: analysis
    provider: big
    priority: 1
  - name: code
    provider: small
    capabilities: [code]
fallback: code
`

const testProviders = `
providers:
  big:
    type: generate
    instances: ["http://10.0.0.1:8000", "http://10.0.0.2:8000"]
  small:
    type: openai
    instances: ["http://10.0.0.3:8000"]
    api_key: ${TEST_SMALL_KEY:none}
`

func TestLoadFile_IntentOrderPreserved(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"intents.yaml": testIntents})

	var rules IntentRules
	if err := LoadFile(filepath.Join(dir, "intents.yaml"), &rules); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	want := []string{"debugging", "code", "general"}
	if len(rules.Intents) != len(want) {
		t.Fatalf("expected %d intents, got %d", len(want), len(rules.Intents))
	}
	for i, name := range want {
		if rules.Intents[i].Name != name {
			t.Errorf("intent %d = %q, want %q", i, rules.Intents[i].Name, name)
		}
	}
	if got := rules.Intents[0].Models; len(got) != 2 || got[0] != "analysis" {
		t.Errorf("unexpected debugging models: %v", got)
	}
	if err := rules.Validate(); err != nil {
		t.Errorf("expected valid rules, got %v", err)
	}
}

func TestIntentRules_ValidateMissingDefault(t *testing.T) {
	rules := IntentRules{
		DefaultIntent: "general",
		Intents:       IntentList{{Name: "code"}},
	}
	if err := rules.Validate(); err == nil {
		t.Error("expected error for undeclared default intent")
	}
}

func TestIntentList_DuplicateRejected(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"intents.yaml": `
default_intent: a
intents:
  a: {keywords: [x]}
  a: {keywords: [y]}
`})
	var rules IntentRules
	if err := LoadFile(filepath.Join(dir, "intents.yaml"), &rules); err == nil {
		t.Error("expected error for duplicate intent")
	}
}

func TestModelsConfig_Bindings(t *testing.T) {
	m := &ModelsConfig{Models: []ModelEntry{
		{Name: "analysis", Provider: "big"},
		{Name: "code", Provider: "small"},
	}}
	b, err := m.Bindings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b["analysis"] != "big" || b["code"] != "small" {
		t.Errorf("unexpected bindings: %v", b)
	}

	m.Models = append(m.Models, ModelEntry{Name: "code", Provider: "big"})
	if _, err := m.Bindings(); err == nil {
		t.Error("expected error for duplicate model")
	}

	m.Models = []ModelEntry{{Name: "orphan"}}
	if _, err := m.Bindings(); err == nil {
		t.Error("expected error for model without provider")
	}
}

func TestLoader_Load(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"router.yaml": `
server:
  port: 9100
routing:
  default_strategy: round-robin
`,
		"intents.yaml":   testIntents,
		"models.yaml":    testModels,
		"providers.yaml": testProviders,
	})

	l := NewLoader(dir, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfg := l.Config()
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Routing.DefaultStrategy != "round-robin" {
		t.Errorf("expected round-robin, got %s", cfg.Routing.DefaultStrategy)
	}
	// Defaults survive partial files
	if cfg.Routing.HistorySize != 1000 {
		t.Errorf("expected default history size 1000, got %d", cfg.Routing.HistorySize)
	}
	if cfg.Routing.GenerateTimeout != 30*time.Second {
		t.Errorf("expected default generate timeout 30s, got %s", cfg.Routing.GenerateTimeout)
	}

	if l.Intents().DefaultIntent != "general" {
		t.Errorf("expected default intent general, got %s", l.Intents().DefaultIntent)
	}
	if l.Models().Fallback != "code" {
		t.Errorf("expected fallback code, got %s", l.Models().Fallback)
	}
	small := l.Providers().Providers["small"]
	if small.APIKey != "none" {
		t.Errorf("expected expanded api key default, got %q", small.APIKey)
	}
	if len(l.Providers().Providers["big"].Instances) != 2 {
		t.Errorf("expected 2 instances for big")
	}
}

func TestLoader_LoadMissingFile(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"router.yaml": "server: {}\n"})
	if err := NewLoader(dir, nil).Load(); err == nil {
		t.Error("expected error when intents.yaml is missing")
	}
}

func TestLoader_LoadRejectsInvalidSet(t *testing.T) {
	tests := []struct {
		name      string
		models    string
		providers string
	}{
		{
			name:      "undeclared provider",
			models:    "models:\n  - name: code\n    provider: missing\n",
			providers: testProviders,
		},
		{
			name:      "provider without instances",
			models:    testModels,
			providers: "providers:\n  big:\n    instances: []\n  small:\n    instances: [\"http://x\"]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeConfigDir(t, map[string]string{
				"router.yaml":    "server: {}\n",
				"intents.yaml":   testIntents,
				"models.yaml":    tt.models,
				"providers.yaml": tt.providers,
			})
			if err := NewLoader(dir, nil).Load(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoader_InvalidReloadKeepsPrevious(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"router.yaml":    "server: {}\n",
		"intents.yaml":   testIntents,
		"models.yaml":    testModels,
		"providers.yaml": testProviders,
	})
	l := NewLoader(dir, nil)
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	bad := "default_intent: nowhere\nintents:\n  general:\n    models: [code]\n"
	if err := os.WriteFile(filepath.Join(dir, "intents.yaml"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(); err == nil {
		t.Fatal("expected reload to fail validation")
	}
	if got := l.Intents().DefaultIntent; got != "general" {
		t.Errorf("expected previous intents to stay active, got default %q", got)
	}
}

func TestProviderConfig_WithDefaults(t *testing.T) {
	r := DefaultConfig().Routing
	p := ProviderConfig{}.WithDefaults(r)
	if p.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", p.Timeout)
	}
	if p.HealthTimeout != 5*time.Second {
		t.Errorf("expected 5s health timeout, got %s", p.HealthTimeout)
	}

	p = ProviderConfig{Timeout: time.Second}.WithDefaults(r)
	if p.Timeout != time.Second {
		t.Errorf("expected explicit timeout kept, got %s", p.Timeout)
	}
}
