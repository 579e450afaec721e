// Package hooks is the plugin extension protocol. Plugins register handlers
// at fixed extension points; the runtime triggers them with an input and a
// default output. Hook failures never interrupt the caller.
package hooks

import (
	"context"
	"log/slog"
	"sync"
)

// Hook names triggered by the runtime.
const (
	// HookSystemPrompt may transform the composed system prompt text.
	HookSystemPrompt = "prompt.system"

	// HookMessages may transform the model-ready message list.
	HookMessages = "prompt.messages"

	// HookToolBefore may rewrite tool arguments before execution.
	HookToolBefore = "tool.before"

	// HookToolAfter may rewrite the formatted tool output.
	HookToolAfter = "tool.after"

	// HookPermissionAsk may override an ask decision.
	HookPermissionAsk = "permission.ask"

	// HookCompactionContext may inject extra context into the compaction
	// prompt.
	HookCompactionContext = "compaction.context"

	// HookTurnComplete is notified after each finalized assistant turn.
	HookTurnComplete = "turn.complete"

	// HookFinalText may post-process the run's final visible text.
	HookFinalText = "run.final_text"
)

// Handler receives the trigger input and the current output value, and
// returns a replacement output. Handlers chain in registration order.
type Handler func(ctx context.Context, input, current any) (any, error)

// Registry holds registered handlers per hook name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Register appends a handler for a hook name.
func (r *Registry) Register(name string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = append(r.handlers[name], h)
}

// Trigger runs the handlers registered for name, threading the output value
// through the chain starting from def. A handler that errors or panics is
// logged and skipped, leaving the value from the previous handler intact.
// With no handlers registered, def is returned unchanged.
func (r *Registry) Trigger(ctx context.Context, name string, input, def any) any {
	r.mu.RLock()
	chain := r.handlers[name]
	r.mu.RUnlock()

	current := def
	for i, h := range chain {
		next, err := r.invoke(ctx, h, input, current)
		if err != nil {
			r.logger.Debug("hook handler failed",
				"hook", name, "index", i, "error", err)
			continue
		}
		current = next
	}
	return current
}

// TriggerString is Trigger specialized for string-valued hooks. A handler
// returning a non-string value is ignored.
func (r *Registry) TriggerString(ctx context.Context, name string, input any, def string) string {
	out := r.Trigger(ctx, name, input, def)
	if s, ok := out.(string); ok {
		return s
	}
	return def
}

type panicErr struct{ v any }

func (e *panicErr) Error() string { return "hook handler panicked" }

func (r *Registry) invoke(ctx context.Context, h Handler, input, current any) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &panicErr{v: rec}
		}
	}()
	return h(ctx, input, current)
}
