package agent

import (
	"log/slog"

	"github.com/strandworks/strand/pkg/models"
)

// Callbacks are optional host observers invoked alongside the event queue.
// All fields may be nil. Callback panics are captured and logged; they never
// interrupt the run.
type Callbacks struct {
	// OnIterationStart fires when a loop iteration begins.
	OnIterationStart func(iteration int)

	// OnIterationEnd fires after a loop iteration's turn is finalized.
	OnIterationEnd func(iteration int)

	// OnDebug receives debug messages for host-side logging.
	OnDebug func(msg string)

	// OnToken receives visible assistant text fragments as they stream.
	OnToken func(text string)

	// OnThought receives reasoning text fragments as they stream.
	OnThought func(text string)

	// OnToolCall fires before a tool call enters the execution pipeline.
	OnToolCall func(call *models.ToolCall)

	// OnToolResult fires after a tool call completes or is blocked.
	OnToolResult func(result *models.ToolResult)

	// OnStatus fires on run status transitions.
	OnStatus func(status models.RunStatus)

	// OnTurnComplete fires after each assistant message is finalized.
	OnTurnComplete func(msg *models.Message)

	// OnCompactionStart fires when history compaction begins.
	OnCompactionStart func()

	// OnCompactionEnd fires when history compaction finishes, whether or not
	// it succeeded.
	OnCompactionEnd func()
}

// notify runs one observer call, absorbing panics into the debug log.
func notify(logger *slog.Logger, name string, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Debug("observer callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

func (c *Callbacks) iterationStart(logger *slog.Logger, iteration int) {
	if c == nil || c.OnIterationStart == nil {
		return
	}
	notify(logger, "on_iteration_start", func() { c.OnIterationStart(iteration) })
}

func (c *Callbacks) iterationEnd(logger *slog.Logger, iteration int) {
	if c == nil || c.OnIterationEnd == nil {
		return
	}
	notify(logger, "on_iteration_end", func() { c.OnIterationEnd(iteration) })
}

func (c *Callbacks) debug(logger *slog.Logger, msg string) {
	if c == nil || c.OnDebug == nil {
		return
	}
	notify(logger, "on_debug", func() { c.OnDebug(msg) })
}

func (c *Callbacks) token(logger *slog.Logger, text string) {
	if c == nil || c.OnToken == nil {
		return
	}
	notify(logger, "on_token", func() { c.OnToken(text) })
}

func (c *Callbacks) thought(logger *slog.Logger, text string) {
	if c == nil || c.OnThought == nil {
		return
	}
	notify(logger, "on_thought", func() { c.OnThought(text) })
}

func (c *Callbacks) toolCall(logger *slog.Logger, call *models.ToolCall) {
	if c == nil || c.OnToolCall == nil {
		return
	}
	notify(logger, "on_tool_call", func() { c.OnToolCall(call) })
}

func (c *Callbacks) toolResult(logger *slog.Logger, result *models.ToolResult) {
	if c == nil || c.OnToolResult == nil {
		return
	}
	notify(logger, "on_tool_result", func() { c.OnToolResult(result) })
}

func (c *Callbacks) status(logger *slog.Logger, status models.RunStatus) {
	if c == nil || c.OnStatus == nil {
		return
	}
	notify(logger, "on_status", func() { c.OnStatus(status) })
}

func (c *Callbacks) turnComplete(logger *slog.Logger, msg *models.Message) {
	if c == nil || c.OnTurnComplete == nil {
		return
	}
	notify(logger, "on_turn_complete", func() { c.OnTurnComplete(msg) })
}

func (c *Callbacks) compactionStart(logger *slog.Logger) {
	if c == nil || c.OnCompactionStart == nil {
		return
	}
	notify(logger, "on_compaction_start", func() { c.OnCompactionStart() })
}

func (c *Callbacks) compactionEnd(logger *slog.Logger) {
	if c == nil || c.OnCompactionEnd == nil {
		return
	}
	notify(logger, "on_compaction_end", func() { c.OnCompactionEnd() })
}
