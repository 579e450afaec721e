package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// PartType discriminates the variants of a message part.
type PartType string

const (
	// PartText is model- or user-visible text.
	PartText PartType = "text"

	// PartReasoning is internal reasoning text, streamed separately and
	// never shown as the final answer.
	PartReasoning PartType = "reasoning"

	// PartToolCall is a tool invocation requested by the assistant.
	PartToolCall PartType = "tool_call"

	// PartToolResult is the recorded outcome of a tool call.
	PartToolResult PartType = "tool_result"

	// PartToolError is a tool call that failed; the result carries the error.
	PartToolError PartType = "tool_error"
)

// Part is one ordered element of a message. Exactly one payload field is set
// depending on Type.
type Part struct {
	Type PartType `json:"type"`

	// Text is set for PartText and PartReasoning.
	Text string `json:"text,omitempty"`

	// ToolCall is set for PartToolCall.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// ToolResult is set for PartToolResult and PartToolError, and always
	// references a prior tool call's id.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// FinishReason reports why a model stream ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
	FinishError     FinishReason = "error"
)

// TokenUsage carries the token accounting reported by the model.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the combined input and output token count.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// MessageMeta holds per-message bookkeeping that is not part of the
// conversation content itself.
type MessageMeta struct {
	// FinishReason is set on assistant messages from the final stream chunk.
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// Usage is the token usage reported for the turn that produced this message.
	Usage *TokenUsage `json:"usage,omitempty"`

	// Synthetic marks messages injected by the runtime rather than authored
	// by the user or the model.
	Synthetic bool `json:"synthetic,omitempty"`

	// CompactionMarker marks the synthetic user message inserted at the
	// compaction boundary.
	CompactionMarker bool `json:"compaction_marker,omitempty"`

	// Summary marks the assistant message holding a compaction summary.
	Summary bool `json:"summary,omitempty"`

	// SkillInjection marks synthetic messages that carry skill content into
	// a subagent; they are stripped from retained child history.
	SkillInjection bool `json:"skill_injection,omitempty"`

	// Prunable marks tool outputs eligible for replacement with a stub when
	// composing model-visible messages.
	Prunable bool `json:"prunable,omitempty"`
}

// Message is one entry in a session's conversation history.
type Message struct {
	ID        string      `json:"id"`
	Role      Role        `json:"role"`
	Parts     []Part      `json:"parts"`
	Meta      MessageMeta `json:"meta,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(role Role, parts ...Part) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a user message with a single text part.
func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, Part{Type: PartText, Text: text})
}

// TextPart returns a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ReasoningPart returns a reasoning part.
func ReasoningPart(text string) Part {
	return Part{Type: PartReasoning, Text: text}
}

// Text concatenates the message's visible text parts.
func (m *Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls requested in this message, in order.
func (m *Message) ToolCalls() []*ToolCall {
	var calls []*ToolCall
	for _, p := range m.Parts {
		if p.Type == PartToolCall && p.ToolCall != nil {
			calls = append(calls, p.ToolCall)
		}
	}
	return calls
}

// HasToolCalls reports whether the message requests any tool calls.
func (m *Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if p.Type == PartToolCall {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Parts = make([]Part, len(m.Parts))
	for i, p := range m.Parts {
		cp := p
		if p.ToolCall != nil {
			tc := *p.ToolCall
			cp.ToolCall = &tc
		}
		if p.ToolResult != nil {
			tr := *p.ToolResult
			cp.ToolResult = &tr
		}
		clone.Parts[i] = cp
	}
	if m.Meta.Usage != nil {
		u := *m.Meta.Usage
		clone.Meta.Usage = &u
	}
	return &clone
}
