// Package tools holds the server-side tools the assistant may call.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// ExecutorFunc defines a server-side tool executor.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Definition describes a tool to the model. Parameters is a JSON Schema object.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type entry struct {
	def  Definition
	exec ExecutorFunc
}

// Registry stores tool definitions and executors keyed by tool name.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a tool.
func (r *Registry) Register(def Definition, exec ExecutorFunc) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required")
	}
	if def.Parameters == nil {
		def.Parameters = objectSchema(nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[def.Name]; exists {
		return fmt.Errorf("executor already registered for %s", def.Name)
	}
	r.entries[def.Name] = entry{def: def, exec: exec}
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(def Definition, exec ExecutorFunc) {
	if err := r.Register(def, exec); err != nil {
		panic(err)
	}
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	r.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Has reports whether a tool is registered.
func (r *Registry) Has(toolName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[toolName]
	return ok
}

// Execute runs the executor for the tool name.
func (r *Registry) Execute(ctx context.Context, toolName string, args json.RawMessage) (json.RawMessage, error) {
	if toolName == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	r.mu.RLock()
	e, ok := r.entries[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no executor registered for %s", toolName)
	}
	return e.exec(ctx, args)
}

func objectSchema(properties map[string]interface{}, required ...string) map[string]interface{} {
	if properties == nil {
		properties = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

// decodeArgs unmarshals tool arguments; empty input leaves v untouched.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
