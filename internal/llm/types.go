// Package llm provides reasoning-backend client implementations.
//
// The engine talks to a backend only through the [Client] interface:
// given the full message sequence and the available tool descriptors,
// produce the next message, possibly naming a tool to call. Wire format
// conversion happens at provider boundaries (ollama.go, anthropic.go);
// everything above this package works with the neutral types here.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles. Tool results use RoleTool, tagged with the ToolCallID
// of the assistant message that requested the invocation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for tool results
}

// ToolCall is a request from the model to invoke a named capability.
type ToolCall struct {
	// ID correlates the eventual tool result with this call. Providers
	// that don't assign ids get one synthesized at the boundary.
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Completion is the unified response from any provider.
type Completion struct {
	Model   string
	Message Message

	// Token usage (provider-neutral; zero when the backend omits it)
	InputTokens  int
	OutputTokens int
}

// Client is the interface every reasoning backend implements.
type Client interface {
	// Generate sends the message sequence and tool descriptors to the
	// backend and returns its next message.
	Generate(ctx context.Context, model string, messages []Message, tools []map[string]any) (*Completion, error)

	// Ping checks if the backend is reachable.
	Ping(ctx context.Context) error
}

// ErrModelUnavailable marks failures to reach the backend at all, as
// opposed to the backend rejecting a well-formed request. Callers match
// with errors.Is and surface the condition for retry.
var ErrModelUnavailable = errors.New("model backend unavailable")

// unavailable wraps err so it matches ErrModelUnavailable while keeping
// the underlying cause in the chain.
func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrModelUnavailable, backend, err)
}
