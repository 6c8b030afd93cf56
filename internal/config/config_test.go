package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")

	yaml := `
listen:
  port: 9090
model:
  backend: ollama
  name: qwen3:8b
  ollama_url: http://10.0.0.5:11434
turn:
  recursion_limit: 10
  tool_timeout_sec: 5
search:
  provider: searxng
  searxng:
    url: http://localhost:8888
log_level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Listen.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Listen.Port)
	}
	if cfg.Model.Name != "qwen3:8b" {
		t.Errorf("model name = %q, want qwen3:8b", cfg.Model.Name)
	}
	if cfg.Turn.RecursionLimit != 10 {
		t.Errorf("recursion limit = %d, want 10", cfg.Turn.RecursionLimit)
	}
	if got := cfg.Turn.ToolTimeout().Seconds(); got != 5 {
		t.Errorf("tool timeout = %vs, want 5s", got)
	}
	// Defaults survive a partial file.
	if cfg.Turn.ModelTimeoutSec != 120 {
		t.Errorf("model timeout = %ds, want default 120", cfg.Turn.ModelTimeoutSec)
	}
	if cfg.Search.Provider != "searxng" {
		t.Errorf("search provider = %q, want searxng", cfg.Search.Provider)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("PARLEY_TEST_KEY", "sk-secret")

	dir := t.TempDir()
	path := filepath.Join(dir, "parley.yaml")
	yaml := `
model:
  backend: anthropic
  name: claude-sonnet-4-20250514
  anthropic:
    api_key: ${PARLEY_TEST_KEY}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.Anthropic.APIKey != "sk-secret" {
		t.Errorf("api key = %q, want expanded env value", cfg.Model.Anthropic.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(c *Config) {}, false},
		{"unknown backend", func(c *Config) { c.Model.Backend = "bard" }, true},
		{"anthropic without key", func(c *Config) {
			c.Model.Backend = "anthropic"
		}, true},
		{"zero recursion limit", func(c *Config) { c.Turn.RecursionLimit = 0 }, true},
		{"searxng without url", func(c *Config) { c.Search.Provider = "searxng" }, true},
		{"brave with key", func(c *Config) {
			c.Search.Provider = "brave"
			c.Search.Brave.APIKey = "key"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{" debug ", slog.LevelDebug, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}
