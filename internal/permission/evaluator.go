// Package permission decides whether a tool call may run, must be approved,
// or is denied, based on mode-dependent rulesets and per-argument patterns.
package permission

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/strandworks/strand/pkg/models"
)

// Action is the outcome of evaluating one pattern or a whole call.
type Action string

const (
	ActionAllow Action = "allow"
	ActionAsk   Action = "ask"
	ActionDeny  Action = "deny"
)

// worse orders actions by severity: deny > ask > allow.
func worse(a, b Action) Action {
	rank := map[Action]int{ActionAllow: 0, ActionAsk: 1, ActionDeny: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Mode is the agent's operating mode.
type Mode string

const (
	ModeBuild Mode = "build"
	ModePlan  Mode = "plan"
)

// Rule binds a glob pattern under a permission name to an action.
type Rule struct {
	Permission string `yaml:"permission"`
	Pattern    string `yaml:"pattern"`
	Action     Action `yaml:"action"`
}

// Ruleset is an ordered rule list for one mode.
type Ruleset struct {
	Mode  Mode
	Rules []Rule
}

// planModeExempt are the mode-control tools callable in plan mode even
// though they are not read-only.
var planModeExempt = map[string]bool{
	"exit_plan_mode": true,
	"update_plan":    true,
}

// Evaluator applies a ruleset in a mode, relative to a workspace root.
type Evaluator struct {
	Ruleset       Ruleset
	Mode          Mode
	WorkspaceRoot string
}

// Decision is the evaluation outcome for one tool call.
type Decision struct {
	Action Action

	// RequiresApproval is set when a dotenv-named argument forces the
	// approval callback regardless of the ruleset outcome.
	RequiresApproval bool

	// Reason explains a deny or a forced approval.
	Reason string
}

// specificity ranks how precisely a rule pattern matched: exact beats glob
// beats the bare wildcard. Returns -1 for no match.
func specificity(pattern, value string) int {
	switch {
	case pattern == value:
		return 2
	case pattern == "*":
		return 0
	default:
		if ok, _ := path.Match(pattern, value); ok {
			return 1
		}
		// Double-star prefix globs ("dir/**") match any nested path.
		if strings.HasSuffix(pattern, "/**") &&
			strings.HasPrefix(value, strings.TrimSuffix(pattern, "**")) {
			return 1
		}
		return -1
	}
}

// evaluatePattern finds the most specific matching rule for one pattern
// value. No matching rule defaults to ask.
func (e *Evaluator) evaluatePattern(permission, value string) Action {
	best := -1
	action := ActionAsk
	for _, rule := range e.Ruleset.Rules {
		if rule.Permission != permission {
			continue
		}
		if s := specificity(rule.Pattern, value); s > best {
			best = s
			action = rule.Action
		}
	}
	return action
}

// normalizePath makes path-kind patterns workspace-relative so rules can be
// written against stable relative paths.
func (e *Evaluator) normalizePath(p string) string {
	if e.WorkspaceRoot == "" || !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	rel, err := filepath.Rel(e.WorkspaceRoot, p)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(rel)
}

// Evaluate decides one tool call. Per-pattern decisions combine worst-case;
// a call with no extractable patterns evaluates the bare permission name
// against the wildcard rules.
func (e *Evaluator) Evaluate(def *models.ToolDefinition, args map[string]any) Decision {
	if e.Mode == ModePlan && !def.ReadOnly && !planModeExempt[def.Name] {
		return Decision{
			Action: ActionDeny,
			Reason: "tool is not read-only and the agent is in plan mode",
		}
	}

	permission := def.Permission
	if permission == "" {
		permission = def.Name
	}

	decision := Decision{Action: ActionAllow}
	if def.RequiresApproval {
		decision.RequiresApproval = true
	}

	evaluated := false
	for _, pp := range def.PermissionPatterns {
		raw, ok := args[pp.Arg]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}
		evaluated = true

		switch pp.Kind {
		case models.PatternPath:
			norm := e.normalizePath(value)
			decision.Action = worse(decision.Action, e.evaluatePattern(permission, norm))
			if DotenvPath(value) {
				decision.RequiresApproval = true
				decision.Reason = "dotenv file access requires approval"
			}
		case models.PatternCommand:
			decision.Action = worse(decision.Action, e.evaluatePattern(permission, value))
			if DotenvInCommand(value) {
				decision.RequiresApproval = true
				decision.Reason = "command references a dotenv file"
			}
		default:
			decision.Action = worse(decision.Action, e.evaluatePattern(permission, value))
			if DotenvPath(value) {
				decision.RequiresApproval = true
				decision.Reason = "pattern references a dotenv file"
			}
		}
	}

	if !evaluated {
		decision.Action = e.evaluatePattern(permission, "*")
	}
	return decision
}
