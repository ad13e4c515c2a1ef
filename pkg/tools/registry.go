// Package tools holds the tool surface the chat model can call: a registry
// of named tool descriptors with handlers, and a dispatcher that validates
// and executes model-issued tool calls.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskbridge/taskbridge/pkg/errors"
	"github.com/taskbridge/taskbridge/pkg/llm"
)

// Handler executes a tool call with already-validated arguments.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Descriptor describes a tool to the chat model. Parameters is a JSON
// schema of type object.
type Descriptor struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Mutating    bool
}

// LLMTool converts the descriptor into the wire-level tool definition.
func (d Descriptor) LLMTool() llm.Tool {
	params := d.Parameters
	if params == nil {
		params = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return llm.Tool{
		Type: llm.ToolTypeFunction,
		Function: llm.FunctionDef{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		},
	}
}

type entry struct {
	descriptor Descriptor
	handler    Handler
}

// Registry maps tool names to descriptors and handlers. It is populated at
// startup and read-only afterwards, so concurrent readers need no locking
// beyond the registration phase.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]entry{}}
}

// Register adds a tool. Names are unique; registering a duplicate fails.
func (r *Registry) Register(d Descriptor, h Handler) error {
	if d.Name == "" {
		return errors.New(errors.CodeConfiguration, "tool name is required", nil)
	}
	if h == nil {
		return errors.New(errors.CodeConfiguration,
			fmt.Sprintf("tool %q has no handler", d.Name), nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[d.Name]; exists {
		return errors.New(errors.CodeDuplicateTool,
			fmt.Sprintf("tool %q is already registered", d.Name), nil).
			WithContext("tool", d.Name)
	}
	r.entries[d.Name] = entry{descriptor: d, handler: h}
	r.order = append(r.order, d.Name)
	return nil
}

// Resolve returns the descriptor and handler for a tool name.
func (r *Registry) Resolve(name string) (Descriptor, Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Descriptor{}, nil, errors.New(errors.CodeUnknownTool,
			fmt.Sprintf("unknown tool %q", name), nil).
			WithContext("tool", name)
	}
	return e.descriptor, e.handler, nil
}

// Catalog returns all descriptors in registration order. Successive calls
// return identical catalogs.
func (r *Registry) Catalog() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].descriptor)
	}
	return out
}

// LLMTools returns the catalog as wire-level tool definitions, in the same
// order as Catalog.
func (r *Registry) LLMTools() []llm.Tool {
	catalog := r.Catalog()
	out := make([]llm.Tool, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d.LLMTool())
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
