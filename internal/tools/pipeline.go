package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/internal/shellsafety"
	"github.com/strandworks/strand/pkg/models"
)

// OutputBudget is the character cap applied to formatted tool output.
const OutputBudget = 30000

// truncationMarker is appended when output is cut at the budget.
const truncationMarker = "\n[output truncated]"

// maxBlockedPaths caps the path list attached to an external-path block.
const maxBlockedPaths = 5

// Approver is the external approval callback. It blocks until the host
// answers and returns whether the call may proceed.
type Approver func(ctx context.Context, call *models.ToolCall, def *models.ToolDefinition, reason string) bool

// ExecContext is the scoped context handed to every tool execution.
type ExecContext struct {
	WorkspaceRoot string
	SessionID     string
	Session       *models.Session
	Logger        *slog.Logger
	Mode          permission.Mode

	// AllowExternalPaths permits tools marked SupportsExternalPaths to
	// touch paths outside the workspace root.
	AllowExternalPaths bool

	// AutoApprove bypasses the approval callback.
	AutoApprove bool

	Approver Approver
}

// Meter abstracts the metrics sink so the pipeline does not depend on the
// observability wiring.
type Meter interface {
	ObserveTool(name, outcome string, seconds float64)
}

// Pipeline executes tool calls through a fixed step sequence: schema
// validation, handle resolution, before-hook, permission, external paths,
// approval, execution, decoration, formatting, after-hook. Failures at any
// step become structured model-visible results; the pipeline never aborts
// the run.
type Pipeline struct {
	registry *Registry
	hooks    *hooks.Registry
	logger   *slog.Logger
	meter    Meter

	// Per-mode rulesets. Empty rulesets fall back to the defaults.
	rulesets map[permission.Mode]permission.Ruleset

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewPipeline creates a pipeline over a registry.
func NewPipeline(registry *Registry, hookReg *hooks.Registry, logger *slog.Logger, meter Meter) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if hookReg == nil {
		hookReg = hooks.NewRegistry(logger)
	}
	return &Pipeline{
		registry: registry,
		hooks:    hookReg,
		logger:   logger,
		meter:    meter,
		rulesets: make(map[permission.Mode]permission.Ruleset),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

// SetRuleset overrides the default ruleset for a mode.
func (p *Pipeline) SetRuleset(mode permission.Mode, rs permission.Ruleset) {
	p.rulesets[mode] = rs
}

// Registry exposes the underlying tool registry.
func (p *Pipeline) Registry() *Registry { return p.registry }

// Execute runs one tool call to a result. The returned result is always
// non-nil and safe to record in history.
func (p *Pipeline) Execute(ctx context.Context, ec *ExecContext, call *models.ToolCall) *models.ToolResult {
	start := time.Now()
	result := p.execute(ctx, ec, call)
	if p.meter != nil {
		outcome := "ok"
		switch {
		case result.Blocked():
			outcome = "blocked"
		case !result.Success:
			outcome = "error"
		}
		p.meter.ObserveTool(call.Name, outcome, time.Since(start).Seconds())
	}
	return result
}

func (p *Pipeline) execute(ctx context.Context, ec *ExecContext, call *models.ToolCall) *models.ToolResult {
	tool, ok := p.registry.Get(call.Name)
	if !ok {
		return models.FailResult(call.ID, models.ErrCodeUnknownTool,
			fmt.Sprintf("unknown tool %q", call.Name))
	}
	def := tool.Definition()

	args, failure := p.validateArgs(call, def)
	if failure != nil {
		return failure
	}

	args, failure = p.resolveHandles(ec, tool, call, args)
	if failure != nil {
		return failure
	}

	args = p.beforeHook(ctx, call, args)

	if failure = p.checkPermission(ctx, ec, call, def, args); failure != nil {
		return failure
	}

	result, err := tool.Execute(ctx, ec, args)
	if err != nil {
		return models.FailResult(call.ID, models.ErrCodeExecutionFailed, err.Error())
	}
	if result == nil {
		result = models.OKResult(call.ID, "")
	}
	result.ToolCallID = call.ID

	if dec, ok := tool.(ResultDecorator); ok {
		dec.DecorateResult(ec, result)
	}

	p.format(result)

	formatted := p.hooks.TriggerString(ctx, hooks.HookToolAfter, call, result.Meta.OutputText)
	result.Meta.OutputText = formatted
	return result
}

// validateArgs unmarshals and schema-checks the call arguments.
func (p *Pipeline) validateArgs(call *models.ToolCall, def *models.ToolDefinition) (map[string]any, *models.ToolResult) {
	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, models.FailResult(call.ID, models.ErrCodeInvalidArguments,
				fmt.Sprintf("arguments are not valid JSON: %v", err))
		}
	}
	schema, err := p.schemaFor(def)
	if err != nil {
		p.logger.Warn("tool parameter schema does not compile",
			"tool", def.Name, "error", err)
		return args, nil
	}
	if schema != nil {
		var doc any
		raw := call.Arguments
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		if err := json.Unmarshal(raw, &doc); err == nil {
			if err := schema.Validate(doc); err != nil {
				return nil, models.FailResult(call.ID, models.ErrCodeInvalidArguments, err.Error())
			}
		}
	}
	return args, nil
}

func (p *Pipeline) schemaFor(def *models.ToolDefinition) (*jsonschema.Schema, error) {
	if len(def.Parameters) == 0 {
		return nil, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.schemas[def.Name]; ok {
		return s, nil
	}
	compiler := jsonschema.NewCompiler()
	url := "inline://" + def.Name + ".json"
	if err := compiler.AddResource(url, strings.NewReader(string(def.Parameters))); err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	p.schemas[def.Name] = schema
	return schema, nil
}

func (p *Pipeline) resolveHandles(ec *ExecContext, tool Behavior, call *models.ToolCall, args map[string]any) (map[string]any, *models.ToolResult) {
	var (
		resolved map[string]any
		err      error
	)
	if resolver, ok := tool.(ArgResolver); ok {
		resolved, err = resolver.ResolveArgs(ec, args)
	} else {
		resolved, err = resolveArgHandles(ec.Session, args)
	}
	if err != nil {
		return nil, models.FailResult(call.ID, models.ErrCodeUnknownHandle, err.Error())
	}
	return resolved, nil
}

// beforeHook lets plugins rewrite arguments. A hook returning anything other
// than a map leaves the arguments untouched.
func (p *Pipeline) beforeHook(ctx context.Context, call *models.ToolCall, args map[string]any) map[string]any {
	out := p.hooks.Trigger(ctx, hooks.HookToolBefore, call, args)
	if m, ok := out.(map[string]any); ok {
		return m
	}
	return args
}

func (p *Pipeline) checkPermission(ctx context.Context, ec *ExecContext, call *models.ToolCall, def *models.ToolDefinition, args map[string]any) *models.ToolResult {
	evaluator := &permission.Evaluator{
		Ruleset:       p.rulesetFor(ec.Mode),
		Mode:          ec.Mode,
		WorkspaceRoot: ec.WorkspaceRoot,
	}
	decision := evaluator.Evaluate(def, args)

	if decision.Action == permission.ActionDeny {
		if ec.Mode == permission.ModePlan && !def.ReadOnly {
			return models.FailResult(call.ID, models.ErrCodePlanModeBlocked,
				fmt.Sprintf("tool %q is blocked in plan mode", def.Name))
		}
		reason := decision.Reason
		if reason == "" {
			reason = "denied by permission rules"
		}
		return models.FailResult(call.ID, models.ErrCodePermissionDenied, reason)
	}

	needsApproval := decision.Action == permission.ActionAsk || decision.RequiresApproval

	// Shell-executing tools get the static safety classification on top.
	for _, pp := range def.PermissionPatterns {
		if pp.Kind != models.PatternCommand {
			continue
		}
		cmd, _ := args[pp.Arg].(string)
		if cmd == "" {
			continue
		}
		switch shellsafety.Classify(cmd) {
		case shellsafety.VerdictDeny:
			return models.FailResult(call.ID, models.ErrCodePermissionDenied,
				"command rejected by safety classification")
		case shellsafety.VerdictNeedsApproval:
			needsApproval = true
		}
	}

	if failure := p.checkExternalPaths(ec, call, def, args); failure != nil {
		return failure
	}

	if !needsApproval || ec.AutoApprove {
		return nil
	}

	// Plugins may settle an ask without involving the host.
	switch p.hooks.TriggerString(ctx, hooks.HookPermissionAsk, call, "ask") {
	case "allow":
		return nil
	case "deny":
		return models.FailResult(call.ID, models.ErrCodePermissionDenied,
			"denied by permission hook")
	}

	if ec.Approver == nil {
		return models.FailResult(call.ID, models.ErrCodeApprovalRejected,
			"approval required but no approver is configured")
	}
	if !ec.Approver(ctx, call, def, decision.Reason) {
		return models.FailResult(call.ID, models.ErrCodeApprovalRejected,
			"approval rejected")
	}
	return nil
}

func (p *Pipeline) rulesetFor(mode permission.Mode) permission.Ruleset {
	if rs, ok := p.rulesets[mode]; ok && len(rs.Rules) > 0 {
		return rs
	}
	return permission.RulesetFor(mode)
}

// checkExternalPaths blocks tools that would touch paths outside the
// workspace when external access is disabled.
func (p *Pipeline) checkExternalPaths(ec *ExecContext, call *models.ToolCall, def *models.ToolDefinition, args map[string]any) *models.ToolResult {
	if !def.SupportsExternalPaths || ec.AllowExternalPaths || ec.WorkspaceRoot == "" {
		return nil
	}
	var blocked []string
	truncated := false
	for _, pp := range def.PermissionPatterns {
		if pp.Kind != models.PatternPath {
			continue
		}
		value, _ := args[pp.Arg].(string)
		if value == "" || !filepath.IsAbs(value) {
			continue
		}
		rel, err := filepath.Rel(ec.WorkspaceRoot, value)
		if err != nil || strings.HasPrefix(rel, "..") {
			if len(blocked) < maxBlockedPaths {
				blocked = append(blocked, value)
			} else {
				truncated = true
			}
		}
	}
	if len(blocked) == 0 {
		return nil
	}
	result := models.FailResult(call.ID, models.ErrCodeExternalPathsBlocked,
		"external path access is disabled")
	result.Meta.BlockedPaths = blocked
	result.Meta.BlockedSetting = "allow_external_paths"
	result.Meta.Truncated = truncated
	return result
}

// format renders the result into a bounded model-visible text.
func (p *Pipeline) format(result *models.ToolResult) {
	text := result.Meta.OutputText
	if text == "" {
		if result.Success {
			text = result.Content
		} else {
			text = "Error: " + result.Error
		}
	}
	if len(text) > OutputBudget {
		text = text[:OutputBudget] + truncationMarker
		result.Meta.Truncated = true
	}
	result.Meta.OutputText = text
}
