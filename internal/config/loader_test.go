package config

import (
	"os"
	"path/filepath"
	"testing"
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
	tmpFile, err := os.CreateTemp("", "test-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
server:
  host: "0.0.0.0"
  port: 9999
retry:
  max_attempts: 5
  base_delay: 1s
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
	if cfg.Retry.MaxAttempts != 5 {
		t.Errorf("expected 5 retry attempts, got %d", cfg.Retry.MaxAttempts)
	}
}

func TestLoadFile_WithEnvVars(t *testing.T) {
	os.Setenv("TEST_API_KEY", "sk-test-123")
	defer os.Unsetenv("TEST_API_KEY")

	tmpFile, err := os.CreateTemp("", "test-providers-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(tmpFile.Name())

	content := `
providers:
  qwen_normal:
    type: qwen
    base_url: "${TEST_BASE_URL:https://dashscope.aliyuncs.com/compatible-mode/v1}"
    api_key: "${TEST_API_KEY}"
`
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	tmpFile.Close()

	var cfg ProvidersConfig
	if err := LoadFile(tmpFile.Name(), &cfg); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	p, ok := cfg.Providers["qwen_normal"]
	if !ok {
		t.Fatal("expected qwen_normal provider")
	}
	if p.APIKey != "sk-test-123" {
		t.Errorf("expected api key from env, got %q", p.APIKey)
	}
	if p.BaseURL != "https://dashscope.aliyuncs.com/compatible-mode/v1" {
		t.Errorf("expected default base url, got %q", p.BaseURL)
	}
}

func TestLoader_LoadsBothFiles(t *testing.T) {
	dir := t.TempDir()

	gateway := `
server:
  port: 8181
polling:
  max_wait: 120s
  interval: 2s
`
	providers := `
providers:
  hunyuan:
    type: hunyuan
    base_url: "https://api.hunyuan.cloud.tencent.com/v1"
    api_key: "sk-x"
    model: "hunyuan-turbos-latest"
`
	if err := os.WriteFile(filepath.Join(dir, "gateway.yaml"), []byte(gateway), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "providers.yaml"), []byte(providers), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(dir, testLogger())
	if err := l.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if l.Config().Server.Port != 8181 {
		t.Errorf("expected port 8181, got %d", l.Config().Server.Port)
	}
	if l.Config().Retry.MaxAttempts != 3 {
		t.Errorf("expected default retry attempts 3, got %d", l.Config().Retry.MaxAttempts)
	}
	if _, ok := l.Providers().Providers["hunyuan"]; !ok {
		t.Error("expected hunyuan provider")
	}
}
