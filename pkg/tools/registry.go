package tools

import (
	"context"
	"fmt"

	"github.com/openvalet/go-valet/pkg/value"
)

// Handler executes a capability. It must call respond exactly once, either
// synchronously or from a background goroutine, and may update status any
// number of times before or after responding.
type Handler func(ctx context.Context, args value.Object, status *Status, respond func(value.Value))

// Tool pairs a wire definition with its handler. Tools are registered once
// at startup and immutable thereafter.
type Tool struct {
	Definition Definition
	Handler    Handler
}

// Provider is a source of related tools, typically one device capability.
type Provider interface {
	Tools() []Tool
}

// Registry holds the invocable capabilities for a session. It is an
// explicit object constructed at process start and passed by reference;
// there is no process-wide registry.
type Registry struct {
	ordered []Tool
	byName  map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a startup bug and
// returns an error rather than silently replacing the earlier tool.
func (r *Registry) Register(t Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("tools: tool with empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: tool %q has no handler", t.Definition.Name)
	}
	if _, exists := r.byName[t.Definition.Name]; exists {
		return fmt.Errorf("tools: duplicate tool name %q", t.Definition.Name)
	}
	r.byName[t.Definition.Name] = t
	r.ordered = append(r.ordered, t)
	return nil
}

// RegisterAll registers every tool from the given providers.
func (r *Registry) RegisterAll(providers ...Provider) error {
	for _, p := range providers {
		for _, t := range p.Tools() {
			if err := r.Register(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// List returns the registered tools in registration order.
func (r *Registry) List() []Tool {
	out := make([]Tool, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup returns the tool with the given name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Definitions compiles the registered tools into the native dialect.
// The projection is pure; calling it repeatedly yields equal results.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, len(r.ordered))
	for i, t := range r.ordered {
		defs[i] = t.Definition
	}
	return defs
}

// OpenAIDefinitions compiles the registered tools into the OpenAI-style
// dialect.
func (r *Registry) OpenAIDefinitions() []OpenAIDefinition {
	defs := make([]OpenAIDefinition, len(r.ordered))
	for i, t := range r.ordered {
		defs[i] = t.Definition.OpenAI()
	}
	return defs
}
