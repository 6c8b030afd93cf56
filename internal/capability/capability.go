// Package capability defines the tools the assistant can invoke during
// a turn. Each capability carries a JSON-schema parameter descriptor that
// is forwarded to the reasoning backend, plus the handler that runs when
// the model asks for it.
package capability

import (
	"context"
	"fmt"
	"time"
)

// Capability represents a callable tool.
type Capability struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available capabilities. Registration order is preserved
// so the descriptor list sent to the backend is stable across turns.
type Registry struct {
	byName map[string]*Capability
	order  []*Capability
}

// NewRegistry creates a registry with the built-in capabilities.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Capability)}
	r.registerBuiltins()
	return r
}

func (r *Registry) registerBuiltins() {
	// Current time needs no external service, so it is always available.
	r.Register(&Capability{
		Name:        "current_time",
		Description: "Get the current date and time. Use when the user asks about the time, today's date, or needs time arithmetic anchored to now.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format(time.RFC1123), nil
		},
	})
}

// Register adds a capability to the registry. Registering a second
// capability under an existing name is an error.
func (r *Registry) Register(c *Capability) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("capability has no name")
	}
	if c.Handler == nil {
		return fmt.Errorf("capability %s has no handler", c.Name)
	}
	if _, exists := r.byName[c.Name]; exists {
		return fmt.Errorf("capability %s already registered", c.Name)
	}
	r.byName[c.Name] = c
	r.order = append(r.order, c)
	return nil
}

// Get retrieves a capability by name, or nil.
func (r *Registry) Get(name string) *Capability {
	return r.byName[name]
}

// Names returns the registered capability names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, c := range r.order {
		names[i] = c.Name
	}
	return names
}

// List returns the registered capabilities in registration order.
func (r *Registry) List() []*Capability {
	return append([]*Capability(nil), r.order...)
}

// Specs returns tool descriptors in the wire format backends expect,
// in registration order.
func (r *Registry) Specs() []map[string]any {
	var result []map[string]any
	for _, c := range r.order {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        c.Name,
				"description": c.Description,
				"parameters":  c.Parameters,
			},
		})
	}
	return result
}

// Execute runs a capability by name with the given arguments.
// An unregistered name returns an UnknownCapabilityError; everything the
// handler itself reports comes back as an ordinary error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	c := r.byName[name]
	if c == nil {
		return "", &UnknownCapabilityError{Name: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return c.Handler(ctx, args)
}
