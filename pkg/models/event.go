package models

import "time"

// EventType discriminates the events a run emits while it executes.
type EventType string

const (
	// EventDebug carries diagnostic detail for verbose consumers.
	EventDebug EventType = "debug"

	// EventNotice carries a human-readable advisory (fallbacks, warnings).
	EventNotice EventType = "notice"

	// EventStatus reports a run status transition.
	EventStatus EventType = "status"

	// EventAssistantToken is an incremental chunk of visible assistant text.
	EventAssistantToken EventType = "assistant_token"

	// EventThoughtToken is an incremental chunk of reasoning text.
	EventThoughtToken EventType = "thought_token"

	// EventToolCall announces a tool invocation about to execute.
	EventToolCall EventType = "tool_call"

	// EventToolBlocked reports a tool call stopped by policy.
	EventToolBlocked EventType = "tool_blocked"

	// EventToolResult carries a completed tool call's outcome.
	EventToolResult EventType = "tool_result"

	// EventCompactionStart and EventCompactionEnd bracket a compaction.
	EventCompactionStart EventType = "compaction_start"
	EventCompactionEnd   EventType = "compaction_end"
)

// RunStatus is the coarse lifecycle state reported by EventStatus events.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusRetrying RunStatus = "retrying"
	StatusDone     RunStatus = "done"
	StatusError    RunStatus = "error"
)

// Event is one entry on a run's event queue.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`

	// Text is the payload for token, debug, and notice events.
	Text string `json:"text,omitempty"`

	// Status is set for EventStatus.
	Status RunStatus `json:"status,omitempty"`

	// Iteration is the 1-based loop iteration the event belongs to.
	Iteration int `json:"iteration,omitempty"`

	// ToolCall is set for EventToolCall and EventToolBlocked.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult is set for EventToolResult and EventToolBlocked.
	ToolResult *ToolResult `json:"tool_result,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates an event of the given type with the timestamp set.
func NewEvent(t EventType) *Event {
	return &Event{Type: t, Timestamp: time.Now()}
}

// StatusEvent returns a status transition event.
func StatusEvent(status RunStatus) *Event {
	ev := NewEvent(EventStatus)
	ev.Status = status
	return ev
}

// TokenEvent returns an assistant text token event.
func TokenEvent(text string) *Event {
	ev := NewEvent(EventAssistantToken)
	ev.Text = text
	return ev
}

// ThoughtEvent returns a reasoning token event.
func ThoughtEvent(text string) *Event {
	ev := NewEvent(EventThoughtToken)
	ev.Text = text
	return ev
}

// NoticeEvent returns an advisory event.
func NoticeEvent(text string) *Event {
	ev := NewEvent(EventNotice)
	ev.Text = text
	return ev
}

// DebugEvent returns a diagnostic event.
func DebugEvent(text string) *Event {
	ev := NewEvent(EventDebug)
	ev.Text = text
	return ev
}

// ToolCallEvent announces a tool invocation.
func ToolCallEvent(call *ToolCall) *Event {
	ev := NewEvent(EventToolCall)
	ev.ToolCall = call
	return ev
}

// ToolResultEvent carries a tool call's outcome.
func ToolResultEvent(result *ToolResult) *Event {
	ev := NewEvent(EventToolResult)
	ev.ToolResult = result
	return ev
}

// ToolBlockedEvent reports a tool call stopped by policy.
func ToolBlockedEvent(call *ToolCall, result *ToolResult) *Event {
	ev := NewEvent(EventToolBlocked)
	ev.ToolCall = call
	ev.ToolResult = result
	return ev
}
