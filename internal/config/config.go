// Package config handles Parley configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./parley.yaml, ~/.config/parley/config.yaml, /etc/parley/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"parley.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", "config.yaml"))
	}

	paths = append(paths, "/etc/parley/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Parley configuration.
type Config struct {
	Listen           ListenConfig `yaml:"listen"`
	Model            ModelConfig  `yaml:"model"`
	Turn             TurnConfig   `yaml:"turn"`
	Search           SearchConfig `yaml:"search"`
	DataDir          string       `yaml:"data_dir"`
	SystemPromptFile string       `yaml:"system_prompt_file"`
	LogLevel         string       `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelConfig defines the reasoning backend.
type ModelConfig struct {
	// Backend selects the provider: "ollama" (default) or "anthropic".
	Backend string `yaml:"backend"`
	// Name is the model identifier passed to the provider.
	Name string `yaml:"name"`
	// OllamaURL is the Ollama base URL (default http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`
	// Anthropic holds Anthropic Messages API settings.
	Anthropic AnthropicConfig `yaml:"anthropic"`
	// Temperature is passed through to the provider when non-zero.
	Temperature float64 `yaml:"temperature"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

// TurnConfig bounds a single conversation turn.
type TurnConfig struct {
	// RecursionLimit caps generate/tool cycles per turn when the request
	// doesn't supply its own limit.
	RecursionLimit int `yaml:"recursion_limit"`
	// ModelTimeoutSec bounds one model invocation, in seconds.
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	// ToolTimeoutSec bounds one capability invocation, in seconds.
	ToolTimeoutSec int `yaml:"tool_timeout_sec"`
}

// ModelTimeout returns the model invocation timeout as a duration.
func (t TurnConfig) ModelTimeout() time.Duration {
	return time.Duration(t.ModelTimeoutSec) * time.Second
}

// ToolTimeout returns the capability invocation timeout as a duration.
func (t TurnConfig) ToolTimeout() time.Duration {
	return time.Duration(t.ToolTimeoutSec) * time.Second
}

// SearchConfig defines web search providers for the search capability.
type SearchConfig struct {
	// Provider selects the primary backend: "searxng" or "brave".
	Provider string            `yaml:"provider"`
	SearXNG  SearXNGConfig     `yaml:"searxng"`
	Brave    BraveSearchConfig `yaml:"brave"`
}

// SearXNGConfig holds SearXNG instance settings.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveSearchConfig holds Brave Search API settings.
type BraveSearchConfig struct {
	APIKey string `yaml:"api_key"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Model: ModelConfig{
			Backend:   "ollama",
			Name:      "qwen3:4b",
			OllamaURL: "http://localhost:11434",
		},
		Turn: TurnConfig{
			RecursionLimit:  25,
			ModelTimeoutSec: 120,
			ToolTimeoutSec:  30,
		},
		DataDir:  ".",
		LogLevel: "info",
	}
}

// Validate checks the configuration for errors that would only surface
// later as confusing runtime failures.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case "ollama":
		if c.Model.OllamaURL == "" {
			return fmt.Errorf("model.ollama_url is required for the ollama backend")
		}
	case "anthropic":
		if c.Model.Anthropic.APIKey == "" {
			return fmt.Errorf("model.anthropic.api_key is required for the anthropic backend")
		}
	default:
		return fmt.Errorf("unknown model backend %q (expected ollama or anthropic)", c.Model.Backend)
	}

	if c.Turn.RecursionLimit < 1 {
		return fmt.Errorf("turn.recursion_limit must be at least 1 (got %d)", c.Turn.RecursionLimit)
	}

	if c.Search.Provider != "" {
		switch c.Search.Provider {
		case "searxng":
			if c.Search.SearXNG.URL == "" {
				return fmt.Errorf("search.searxng.url is required when search.provider is searxng")
			}
		case "brave":
			if c.Search.Brave.APIKey == "" {
				return fmt.Errorf("search.brave.api_key is required when search.provider is brave")
			}
		default:
			return fmt.Errorf("unknown search provider %q (expected searxng or brave)", c.Search.Provider)
		}
	}

	return nil
}

// SessionDBPath returns the location of the session database.
func (c *Config) SessionDBPath() string {
	dir := c.DataDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "sessions.db")
}
