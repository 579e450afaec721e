package models

import "encoding/json"

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultMeta carries free-form metadata attached to a tool result.
type ToolResultMeta struct {
	// OutputText overrides the model-visible rendering of the result.
	OutputText string `json:"output_text,omitempty"`

	// Truncated is set when the formatted output was cut at the size budget.
	Truncated bool `json:"truncated,omitempty"`

	// ErrorCode categorizes structured failures (see the ErrCode* constants).
	ErrorCode string `json:"error_code,omitempty"`

	// BlockedPaths lists paths that triggered an external-path block, capped.
	BlockedPaths []string `json:"blocked_paths,omitempty"`

	// BlockedSetting names the setting that caused an external-path block.
	BlockedSetting string `json:"blocked_setting,omitempty"`
}

// ToolResult is the recorded outcome of a tool call.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Success    bool           `json:"success"`
	Content    string         `json:"content,omitempty"`
	Error      string         `json:"error,omitempty"`
	Meta       ToolResultMeta `json:"meta,omitempty"`
}

// Structured tool-failure codes. Failures carrying these codes never abort
// the run; they become model-visible results.
const (
	ErrCodeUnknownTool          = "unknown_tool"
	ErrCodeInvalidArguments     = "invalid_arguments"
	ErrCodeUnknownHandle        = "unknown_handle"
	ErrCodePermissionDenied     = "permission_denied"
	ErrCodePlanModeBlocked      = "plan_mode_blocked"
	ErrCodeApprovalRejected     = "approval_rejected"
	ErrCodeExternalPathsBlocked = "external_paths_blocked"
	ErrCodeTaskRecursionDenied  = "task_recursion_denied"
	ErrCodeUnknownSubagentType  = "unknown_subagent_type"
	ErrCodeExecutionFailed      = "execution_failed"
)

// PatternKind classifies how a tool argument is extracted into a permission
// pattern.
type PatternKind string

const (
	// PatternPath arguments are normalized relative to the workspace root.
	PatternPath PatternKind = "path"

	// PatternCommand arguments are shell command text.
	PatternCommand PatternKind = "command"

	// PatternRaw arguments are matched as-is.
	PatternRaw PatternKind = "raw"
)

// PermissionPattern names a tool argument whose value participates in
// permission evaluation.
type PermissionPattern struct {
	Arg  string      `json:"arg"`
	Kind PatternKind `json:"kind"`
}

// ToolDefinition describes a callable tool: its schema for the model and its
// policy metadata for the permission gate.
type ToolDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Parameters is a JSON-schema document describing the arguments.
	Parameters json.RawMessage `json:"parameters"`

	Category string `json:"category,omitempty"`

	// ReadOnly tools are permitted in plan mode.
	ReadOnly bool `json:"read_only,omitempty"`

	// RequiresApproval forces the approval callback regardless of ruleset.
	RequiresApproval bool `json:"requires_approval,omitempty"`

	// SupportsExternalPaths allows the tool to touch paths outside the
	// workspace root when external access is enabled.
	SupportsExternalPaths bool `json:"supports_external_paths,omitempty"`

	// Permission is the ruleset permission name this tool evaluates under.
	Permission string `json:"permission,omitempty"`

	// PermissionPatterns name the arguments extracted for evaluation.
	PermissionPatterns []PermissionPattern `json:"permission_patterns,omitempty"`
}

// OKResult returns a successful result for the given call id.
func OKResult(callID, content string) *ToolResult {
	return &ToolResult{ToolCallID: callID, Success: true, Content: content}
}

// FailResult returns a structured failure for the given call id.
func FailResult(callID, code, msg string) *ToolResult {
	return &ToolResult{
		ToolCallID: callID,
		Success:    false,
		Error:      msg,
		Meta:       ToolResultMeta{ErrorCode: code},
	}
}

// Blocked reports whether the result is a policy block rather than an
// execution outcome.
func (r *ToolResult) Blocked() bool {
	switch r.Meta.ErrorCode {
	case ErrCodePermissionDenied, ErrCodePlanModeBlocked,
		ErrCodeApprovalRejected, ErrCodeExternalPathsBlocked:
		return true
	}
	return false
}
