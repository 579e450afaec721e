package agent

import (
	"context"
	"sort"
	"strings"

	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/pkg/models"
)

const defaultBasePrompt = `You are an autonomous coding agent. Work on the user's task using the
available tools. Prefer reading code before changing it. When the task is
complete, answer with the final result and stop calling tools.`

const toolUsageNotes = `Tool usage notes:
- Search results include file handles like fh:1a2b3c4d; pass a handle back to
  the read tool instead of re-quoting long paths.
- Tool output may be truncated; narrow the request rather than retrying.`

const planModeReminder = `You are in plan mode. Only read-only tools are available. Build a plan with
update_plan and call exit_plan_mode when the plan is ready; do not attempt
writes or shell commands.`

// Composer assembles the system prompt for each iteration.
type Composer struct {
	Hooks *hooks.Registry

	// ResolveSkill returns the content for a mentioned skill name, or ""
	// when the skill is unknown. Skill discovery itself lives in the host.
	ResolveSkill func(name string) string
}

// Compose builds the system prompt: base prompt, tool notes, mentioned
// skills, mode reminder, then the plugin transform.
func (c *Composer) Compose(ctx context.Context, cfg Config, session *models.Session) string {
	var b strings.Builder

	base := cfg.BasePrompt
	if base == "" {
		base = defaultBasePrompt
	}
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(toolUsageNotes)

	if section := c.skillsSection(session); section != "" {
		b.WriteString("\n\n")
		b.WriteString(section)
	}

	if cfg.Mode == permission.ModePlan {
		b.WriteString("\n\n")
		b.WriteString(planModeReminder)
	}

	prompt := b.String()
	if c.Hooks != nil {
		prompt = c.Hooks.TriggerString(ctx, hooks.HookSystemPrompt, session, prompt)
	}
	return prompt
}

func (c *Composer) skillsSection(session *models.Session) string {
	if session == nil || len(session.MentionedSkills) == 0 {
		return ""
	}
	names := make([]string, 0, len(session.MentionedSkills))
	for name := range session.MentionedSkills {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Relevant skills:")
	for _, name := range names {
		b.WriteString("\n## ")
		b.WriteString(name)
		if c.ResolveSkill != nil {
			if content := c.ResolveSkill(name); content != "" {
				b.WriteString("\n")
				b.WriteString(content)
			}
		}
	}
	return b.String()
}
