// Package engine implements the turn controller: the loop that drives a
// single user turn through the reasoning backend and the capability
// registry until the assistant produces a plain answer or the turn fails.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwhitley/parley/internal/capability"
	"github.com/dwhitley/parley/internal/llm"
)

// State describes where a turn ended.
type State string

const (
	// StateAwaitingModel means the next step is a backend call.
	StateAwaitingModel State = "awaiting_model"
	// StateAwaitingTool means the backend asked for a capability and the
	// result is still pending.
	StateAwaitingTool State = "awaiting_tool"
	// StateDone means the assistant produced a plain reply.
	StateDone State = "done"
	// StateFailed means the turn stopped without a reply.
	StateFailed State = "failed"
)

// DefaultRecursionLimit bounds backend calls per turn when the request
// doesn't specify one.
const DefaultRecursionLimit = 25

// Result is the outcome of one turn.
type Result struct {
	// Messages is the full sequence after the turn: the input messages
	// followed by everything this turn appended. On failure it holds the
	// partial sequence up to the point the turn stopped.
	Messages []llm.Message

	// AssistantText is the final reply with reasoning markup stripped.
	// Empty unless State is StateDone.
	AssistantText string

	State      State
	ModelCalls int
}

// Engine runs turns against a backend and a capability registry.
type Engine struct {
	logger       *slog.Logger
	client       llm.Client
	model        string
	registry     *capability.Registry
	systemPrompt string
	modelTimeout time.Duration
	toolTimeout  time.Duration
}

// Options configures an Engine beyond its required collaborators.
type Options struct {
	SystemPrompt string
	ModelTimeout time.Duration
	ToolTimeout  time.Duration
}

// New creates an engine. Zero timeouts disable the per-step deadline and
// leave only the caller's context bounding each step.
func New(logger *slog.Logger, client llm.Client, model string, registry *capability.Registry, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger:       logger,
		client:       client,
		model:        model,
		registry:     registry,
		systemPrompt: opts.SystemPrompt,
		modelTimeout: opts.ModelTimeout,
		toolTimeout:  opts.ToolTimeout,
	}
}

// WithSystemPrompt ensures the sequence starts with a system message,
// prepending the engine's prompt when it doesn't. Applying it twice is a
// no-op; a sequence that already opens with a system message (even a
// different one) is left alone. Returns whether a message was prepended.
func (e *Engine) WithSystemPrompt(messages []llm.Message) ([]llm.Message, bool) {
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		return messages, false
	}
	out := make([]llm.Message, 0, len(messages)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: e.systemPrompt})
	out = append(out, messages...)
	return out, true
}

// RunTurn drives one turn to completion. The input sequence should end
// with the user message that opens the turn. At most limit backend calls
// are made; limit <= 0 means DefaultRecursionLimit.
//
// Capability handler failures do not stop the turn: the error text is
// absorbed into the sequence as a tool result so the model can react.
// The turn fails when the budget runs out, the model names an
// unregistered capability, or the backend is unreachable; in the first
// two cases the returned Result still carries the partial sequence.
func (e *Engine) RunTurn(ctx context.Context, messages []llm.Message, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultRecursionLimit
	}

	msgs, prepended := e.WithSystemPrompt(messages)
	if prepended {
		e.logger.Debug("system prompt prepended")
	}

	res := &Result{Messages: msgs, State: StateAwaitingModel}
	specs := e.registry.Specs()

	for {
		if res.ModelCalls >= limit {
			res.State = StateFailed
			e.logger.Warn("turn budget exhausted", "limit", limit)
			return res, &BudgetExceededError{Limit: limit}
		}

		completion, err := e.generate(ctx, res.Messages, specs)
		if err != nil {
			res.State = StateFailed
			if errors.Is(err, llm.ErrModelUnavailable) {
				e.logger.Error("backend unreachable", "error", err)
			} else {
				e.logger.Error("backend call failed", "error", err)
			}
			return res, err
		}
		res.ModelCalls++
		res.Messages = append(res.Messages, completion.Message)

		if len(completion.Message.ToolCalls) == 0 {
			res.State = StateDone
			res.AssistantText = StripThink(completion.Message.Content)
			e.logger.Info("turn complete",
				"model_calls", res.ModelCalls,
				"messages", len(res.Messages),
			)
			return res, nil
		}

		res.State = StateAwaitingTool
		for _, call := range completion.Message.ToolCalls {
			if e.registry.Get(call.Name) == nil {
				res.State = StateFailed
				err := &capability.UnknownCapabilityError{Name: call.Name}
				e.logger.Error("model requested unknown capability", "name", call.Name)
				return res, err
			}

			output := e.executeTool(ctx, call)
			res.Messages = append(res.Messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				ToolCallID: call.ID,
			})
		}
		res.State = StateAwaitingModel
	}
}

// generate calls the backend with the per-step deadline applied.
func (e *Engine) generate(ctx context.Context, messages []llm.Message, specs []map[string]any) (*llm.Completion, error) {
	if e.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.modelTimeout)
		defer cancel()
	}
	return e.client.Generate(ctx, e.model, messages, specs)
}

// executeTool runs one capability call and folds any failure into the
// result text. The model sees the error and decides how to continue.
func (e *Engine) executeTool(ctx context.Context, call llm.ToolCall) string {
	if e.toolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.toolTimeout)
		defer cancel()
	}

	e.logger.Debug("executing capability", "name", call.Name, "id", call.ID)
	output, err := e.registry.Execute(ctx, call.Name, call.Arguments)
	if err != nil {
		e.logger.Warn("capability failed", "name", call.Name, "error", err)
		return fmt.Sprintf("Error: %v", err)
	}
	return output
}
