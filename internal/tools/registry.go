// Package tools holds the tool registry and the execution pipeline that
// gates every tool call behind validation, permissions, and approval.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/strandworks/strand/pkg/models"
)

// Behavior is one callable tool. Each tool is a strategy object: the generic
// pipeline drives it through the optional ArgResolver and ResultDecorator
// interfaces instead of special-casing tool names.
type Behavior interface {
	Definition() *models.ToolDefinition
	Execute(ctx context.Context, ec *ExecContext, args map[string]any) (*models.ToolResult, error)
}

// ArgResolver is implemented by tools whose arguments may embed opaque
// file or symbol handles needing resolution before execution.
type ArgResolver interface {
	ResolveArgs(ec *ExecContext, args map[string]any) (map[string]any, error)
}

// ResultDecorator is implemented by tools that attach handle ids or other
// session-scoped annotations to their results.
type ResultDecorator interface {
	DecorateResult(ec *ExecContext, result *models.ToolResult)
}

// Registry maps tool names to behaviors. Registration is idempotent: a name
// already present is left untouched, so externally supplied tools can be
// re-registered on every run without churn.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Behavior
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Behavior)}
}

// Register adds a tool unless its name is already taken. It reports whether
// the tool was added.
func (r *Registry) Register(b Behavior) bool {
	def := b.Definition()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return false
	}
	r.tools[def.Name] = b
	return true
}

// Get returns the behavior for a tool name.
func (r *Registry) Get(name string) (Behavior, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.tools[name]
	return b, ok
}

// Definitions returns all registered tool definitions sorted by name, for
// stable prompt and schema output.
func (r *Registry) Definitions() []*models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]*models.ToolDefinition, 0, len(r.tools))
	for _, b := range r.tools {
		defs = append(defs, b.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Names returns the registered tool names sorted.
func (r *Registry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}
