// Package task implements the subagent spawner: a tool that delegates a
// sub-task to a fresh child session driven by a nested run loop.
package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

const (
	// defaultCacheCapacity bounds the child-session LRU cache.
	defaultCacheCapacity = 50

	// resultBudget caps the child's final text returned to the parent.
	resultBudget = 8000

	// planModeProfile is the only subagent type permitted in plan mode.
	planModeProfile = "explore"
)

// Profile describes one subagent type.
type Profile struct {
	Name string

	// Instructions are appended to the parent's base prompt for the child.
	Instructions string

	// Tools, when non-empty, restricts the child to the named tools.
	Tools []string
}

// DefaultProfiles returns the built-in subagent types.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"explore": {
			Name: "explore",
			Instructions: "You are a read-only exploration subagent. Investigate the codebase " +
				"and report findings. Do not modify anything.",
			Tools: []string{"read", "glob", "grep"},
		},
		"general": {
			Name: "general",
			Instructions: "You are a delegated subagent. Complete the described sub-task " +
				"autonomously and report the outcome.",
		},
	}
}

// Spawner creates and runs child sessions for the task tool.
type Spawner struct {
	provider agent.ModelProvider
	registry *tools.Registry
	hooks    *hooks.Registry
	logger   *slog.Logger
	cfg      agent.Config
	profiles map[string]Profile
	cache    *sessionCache
}

// NewSpawner builds a spawner sharing the parent's provider, tool registry,
// and configuration. Child runs derive their own config; the parent's is
// never mutated.
func NewSpawner(provider agent.ModelProvider, registry *tools.Registry, hookReg *hooks.Registry, cfg agent.Config, logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		provider: provider,
		registry: registry,
		hooks:    hookReg,
		logger:   logger,
		cfg:      cfg,
		profiles: DefaultProfiles(),
		cache:    newSessionCache(defaultCacheCapacity),
	}
}

// SetProfiles replaces the profile table.
func (s *Spawner) SetProfiles(profiles map[string]Profile) {
	s.profiles = profiles
}

// validNames returns the known subagent type names sorted.
func (s *Spawner) validNames() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tool is the "task" tool behavior backed by a spawner.
type Tool struct {
	Spawner *Spawner
}

type taskArgs struct {
	Description  string `json:"description" jsonschema:"description=Short label for the sub-task"`
	Prompt       string `json:"prompt" jsonschema:"description=Full instructions for the subagent"`
	SubagentType string `json:"subagent_type" jsonschema:"description=Which subagent profile to use"`
	SessionID    string `json:"session_id,omitempty" jsonschema:"description=Reuse an existing child session"`
}

func (t *Tool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "task",
		Name:        "task",
		Description: "Delegate a sub-task to an isolated subagent and return its result.",
		Parameters:  taskSchema(),
		Category:    "agent",
		ReadOnly:    true,
		Permission:  "task",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "subagent_type", Kind: models.PatternRaw},
		},
	}
}

func (t *Tool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	return t.Spawner.Spawn(ctx, ec, args), nil
}

// Spawn runs one delegated sub-task to completion. All failures are
// structured tool results; a child crash never propagates to the parent
// loop.
func (s *Spawner) Spawn(ctx context.Context, ec *tools.ExecContext, args map[string]any) *models.ToolResult {
	// Depth guard: a subagent may not spawn another subagent.
	if ec.Session != nil && ec.Session.IsSubagent() {
		return models.FailResult("", models.ErrCodeTaskRecursionDenied,
			"subagents cannot spawn nested subagents")
	}

	description, _ := args["description"].(string)
	prompt, _ := args["prompt"].(string)
	subagentType, _ := args["subagent_type"].(string)
	if description == "" || prompt == "" || subagentType == "" {
		return models.FailResult("", models.ErrCodeInvalidArguments,
			"description, prompt, and subagent_type are required")
	}

	profile, ok := s.profiles[subagentType]
	if !ok {
		return models.FailResult("", models.ErrCodeUnknownSubagentType,
			fmt.Sprintf("unknown subagent type %q; valid types: %s",
				subagentType, strings.Join(s.validNames(), ", ")))
	}

	if ec.Mode == permission.ModePlan && profile.Name != planModeProfile {
		return models.FailResult("", models.ErrCodePlanModeBlocked,
			fmt.Sprintf("plan mode only permits the %q subagent", planModeProfile))
	}

	child := s.childSession(ec, args, profile)
	modelID := s.resolveModel(ec, child)

	runner := s.childRunner(ec, profile, modelID)
	handle := runner.Run(ctx, child, prompt, nil)

	// The parent blocks on the entire child run, draining its events.
	for {
		ev, err := handle.Events.Next(ctx)
		if ev == nil {
			if err != nil && ctx.Err() != nil {
				return models.FailResult("", models.ErrCodeExecutionFailed, err.Error())
			}
			break
		}
	}
	text, _, err := handle.Wait(ctx)
	stripSkillInjections(child)
	if err != nil {
		return models.FailResult("", models.ErrCodeExecutionFailed,
			fmt.Sprintf("subagent run failed: %v", err))
	}

	return models.OKResult("", formatResult(text, child.ID))
}

// childSession derives or reuses the child session for this call.
func (s *Spawner) childSession(ec *tools.ExecContext, args map[string]any, profile Profile) *models.Session {
	id, _ := args["session_id"].(string)
	if id != "" {
		if cached, ok := s.cache.get(id); ok {
			return cached
		}
	} else {
		id = uuid.NewString()
	}
	child := models.NewSession()
	child.ID = id
	child.ParentID = ec.SessionID
	child.SubagentType = profile.Name
	s.cache.put(id, child)
	return child
}

// resolveModel picks the child's model: its own recorded model, then the
// configured subagent override, then the parent's. A resolution miss falls
// back to the parent's model with a warning rather than failing the call.
func (s *Spawner) resolveModel(ec *tools.ExecContext, child *models.Session) string {
	parentModel := s.cfg.ModelID
	candidate := parentModel
	switch {
	case child.ModelID != "":
		candidate = child.ModelID
	case s.cfg.SubagentModelID != "":
		candidate = s.cfg.SubagentModelID
	}
	if candidate == parentModel {
		return parentModel
	}
	if _, err := s.provider.GetModel(candidate); err != nil {
		s.logger.Warn("subagent model unavailable, falling back to parent model",
			"requested", candidate, "fallback", parentModel, "error", err)
		return parentModel
	}
	return candidate
}

// childRunner builds the nested run loop: forced build mode, optional tool
// allow-list, parent base prompt plus the profile's instructions.
func (s *Spawner) childRunner(ec *tools.ExecContext, profile Profile, modelID string) *agent.Runner {
	registry := s.registry
	if len(profile.Tools) > 0 {
		registry = filterRegistry(s.registry, profile.Tools)
	}
	pipeline := tools.NewPipeline(registry, s.hooks, s.logger, nil)

	basePrompt := s.cfg.BasePrompt
	if profile.Instructions != "" {
		if basePrompt != "" {
			basePrompt += "\n\n"
		}
		basePrompt += profile.Instructions
	}

	cfg := s.cfg.
		WithMode(permission.ModeBuild).
		WithModel(modelID).
		WithBasePrompt(basePrompt)

	return agent.NewRunner(s.provider, pipeline, cfg,
		agent.WithLogger(s.logger.With("subagent", profile.Name)),
		agent.WithHooks(s.hooks),
		agent.WithApprover(ec.Approver),
	)
}

// filterRegistry builds a registry restricted to an allow-list. The task
// tool itself is never carried over; recursion is denied at depth anyway.
func filterRegistry(src *tools.Registry, allowed []string) *tools.Registry {
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	out := tools.NewRegistry()
	for _, def := range src.Definitions() {
		if def.Name == "task" || !allow[def.Name] {
			continue
		}
		if b, ok := src.Get(def.Name); ok {
			out.Register(b)
		}
	}
	return out
}

// stripSkillInjections drops synthetic skill-content messages from the
// retained child history.
func stripSkillInjections(s *models.Session) {
	kept := s.History[:0]
	for _, msg := range s.History {
		if msg.Meta.SkillInjection {
			continue
		}
		kept = append(kept, msg)
	}
	s.History = kept
}

// formatResult truncates the child's final text and appends the session
// trailer so the parent can resume the child later.
func formatResult(text, sessionID string) string {
	if len(text) > resultBudget {
		text = text[:resultBudget] + "\n[result truncated]"
	}
	return text + "\n\n[subagent session: " + sessionID + "]"
}

var _ tools.Behavior = (*Tool)(nil)
