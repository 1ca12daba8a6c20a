package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ferretworks/ferret/llm"
)

// Registry manages tool registration and name-based dispatch. Dispatch is
// uniform across all tool kinds; nothing here special-cases a tool name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Definitions returns the schema for all registered tools, in name order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, Definition(r.tools[name]))
	}
	return defs
}

// Execute dispatches one tool call. Unknown names fail as a normal tool
// error fed back to the model.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tc *Context) Result {
	tool := r.Get(name)
	if tool == nil {
		return Fail(fmt.Sprintf("unknown tool: %s", name))
	}
	return tool.Execute(ctx, args, tc)
}
