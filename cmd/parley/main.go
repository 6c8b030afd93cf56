// Parley is a conversational agent service: an HTTP API (plus a small
// embedded web UI) in front of a tool-calling reasoning loop, with
// sessions persisted in SQLite.
//
// Usage:
//
//	parley serve [-config path]       Run the API server
//	parley ask [-config path] <text>  Run a single turn and print the reply
//	parley init [dir]                 Write a starter parley.yaml
//	parley version [-o json]          Print build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dwhitley/parley/internal/api"
	"github.com/dwhitley/parley/internal/buildinfo"
	"github.com/dwhitley/parley/internal/capability"
	"github.com/dwhitley/parley/internal/config"
	"github.com/dwhitley/parley/internal/engine"
	"github.com/dwhitley/parley/internal/fetch"
	"github.com/dwhitley/parley/internal/llm"
	"github.com/dwhitley/parley/internal/prompts"
	"github.com/dwhitley/parley/internal/search"
	"github.com/dwhitley/parley/internal/session"
)

// main is intentionally minimal: it delegates immediately to run so the
// command logic stays testable.
func main() {
	ctx := context.Background()
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var (
		configPath string
		output     string
		command    string
		cmdArgs    []string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			if i+1 >= len(args) {
				return errors.New("-config requires a path")
			}
			i++
			configPath = args[i]
		case "-o", "--output":
			if i+1 >= len(args) {
				return errors.New("-o requires a format (text or json)")
			}
			i++
			output = args[i]
		case "-h", "--help", "help":
			printUsage(stdout)
			return nil
		default:
			if command == "" {
				command = args[i]
			} else {
				cmdArgs = append(cmdArgs, args[i])
			}
		}
	}

	switch command {
	case "", "serve":
		return runServe(ctx, stderr, configPath)
	case "ask":
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "init":
		return runInit(stdout, cmdArgs)
	case "version":
		return runVersion(stdout, output)
	default:
		printUsage(stderr)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Parley - conversational agent service

Usage:
  parley serve [-config path]       Run the API server (default command)
  parley ask [-config path] <text>  Run a single turn and print the reply
  parley init [dir]                 Write a starter parley.yaml
  parley version [-o json]          Print build information

Config is searched at ./parley.yaml, ~/.config/parley/config.yaml, and
/etc/parley/config.yaml unless -config is given.`)
}

func runVersion(stdout io.Writer, output string) error {
	if output == "json" {
		info := buildinfo.Info()
		fmt.Fprintln(stdout, "{")
		for i, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
			comma := ","
			if i == 5 {
				comma = ""
			}
			fmt.Fprintf(stdout, "  %q: %q%s\n", k, info[k], comma)
		}
		fmt.Fprintln(stdout, "}")
		return nil
	}
	fmt.Fprintln(stdout, buildinfo.String())
	return nil
}

// runInit writes a commented starter config so a new install has
// something to edit instead of a blank page.
func runInit(stdout io.Writer, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	path := filepath.Join(dir, "parley.yaml")

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	fmt.Fprintln(stdout, "Edit it, then start the server with: parley serve")
	return nil
}

const starterConfig = `# Parley configuration.
# Environment variables in values are expanded, so secrets can live
# outside this file (e.g. api_key: ${BRAVE_API_KEY}).

listen:
  address: ""        # bind address, empty = all interfaces
  port: 8080

model:
  backend: ollama    # ollama or anthropic
  name: qwen3:4b
  ollama_url: http://localhost:11434
  # anthropic:
  #   api_key: ${ANTHROPIC_API_KEY}
  #   max_tokens: 4096

turn:
  recursion_limit: 25
  model_timeout_sec: 120
  tool_timeout_sec: 30

# Uncomment to enable the web search capability.
# search:
#   provider: searxng
#   searxng:
#     url: http://localhost:8888

data_dir: .
# system_prompt_file: ./prompt.txt
log_level: info
`

func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath string, args []string) error {
	if len(args) == 0 {
		return errors.New("ask requires a message, e.g.: parley ask \"what time is it?\"")
	}
	text := args[0]

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// One-shot turns keep logging out of the way unless something breaks.
	logger := newLogger(stderr, slog.LevelWarn)

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}

	systemPrompt, err := prompts.Load(cfg.SystemPromptFile)
	if err != nil {
		return err
	}

	eng := engine.New(logger, client, cfg.Model.Name, registry, engine.Options{
		SystemPrompt: systemPrompt,
		ModelTimeout: cfg.Turn.ModelTimeout(),
		ToolTimeout:  cfg.Turn.ToolTimeout(),
	})

	res, err := eng.RunTurn(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: text},
	}, cfg.Turn.RecursionLimit)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, res.AssistantText)
	return nil
}

func runServe(ctx context.Context, stderr io.Writer, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stderr, level)
	slog.SetDefault(logger)

	logger.Info("starting", "build", buildinfo.String())

	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}

	store, err := session.Open(cfg.SessionDBPath())
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()
	logger.Info("session store ready", "path", cfg.SessionDBPath())

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("capabilities registered", "names", registry.Names())

	systemPrompt, err := prompts.Load(cfg.SystemPromptFile)
	if err != nil {
		return fmt.Errorf("load system prompt: %w", err)
	}

	eng := engine.New(logger, client, cfg.Model.Name, registry, engine.Options{
		SystemPrompt: systemPrompt,
		ModelTimeout: cfg.Turn.ModelTimeout(),
		ToolTimeout:  cfg.Turn.ToolTimeout(),
	})

	server := api.NewServer(
		cfg.Listen.Address, cfg.Listen.Port,
		eng, store, registry, client,
		cfg.Turn.RecursionLimit, logger,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	if err := server.Start(ctx); err != nil {
		// ListenAndServe returns ErrServerClosed on graceful shutdown.
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("stopped")
	return nil
}

// buildClient constructs the reasoning backend named by the config.
func buildClient(cfg *config.Config, logger *slog.Logger) (llm.Client, error) {
	switch cfg.Model.Backend {
	case "ollama":
		return llm.NewOllamaClient(cfg.Model.OllamaURL, cfg.Model.Temperature), nil
	case "anthropic":
		return llm.NewAnthropicClient(cfg.Model.Anthropic.APIKey, cfg.Model.Anthropic.MaxTokens, logger), nil
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Model.Backend)
	}
}

// buildRegistry assembles the capability set: builtins always, web
// capabilities when the config enables them.
func buildRegistry(cfg *config.Config, logger *slog.Logger) (*capability.Registry, error) {
	registry := capability.NewRegistry()

	if cfg.Search.Provider != "" {
		mgr := search.NewManager(cfg.Search.Provider)
		switch cfg.Search.Provider {
		case "searxng":
			mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
		case "brave":
			mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
		}
		if err := registry.Register(search.Capability(mgr)); err != nil {
			return nil, err
		}
		logger.Debug("search capability enabled", "provider", cfg.Search.Provider)
	}

	if err := registry.Register(fetch.Capability(fetch.New())); err != nil {
		return nil, err
	}

	return registry, nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}
