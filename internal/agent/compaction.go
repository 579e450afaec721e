package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/pkg/models"
)

// compactionMarkerText is the synthetic boundary message content; consumers
// locate the compaction point by the CompactionMarker metadata flag, the
// text is informational.
const compactionMarkerText = "[conversation compacted below this point]"

// continueText resumes the loop after an automatic compaction.
const continueText = "Continue with the task using the summary above."

const summaryInstruction = `Summarize the conversation so far for an agent that will continue the task.
Keep: the original task, decisions made, files touched, tool results that
still matter, and the current state of the work. Omit pleasantries and
superseded attempts. Answer with the summary only.`

// Compactor rewrites session history into a bounded summary when the
// context budget is exceeded.
type Compactor struct {
	Provider ModelProvider
	Hooks    *hooks.Registry
	Logger   *slog.Logger
}

// ShouldCompact reports whether usage has crossed the compaction threshold
// for the model: total tokens above the usable window minus the configured
// protect headroom.
func ShouldCompact(cfg CompactionConfig, model *Model, usage *models.TokenUsage) bool {
	if !cfg.Auto || model == nil || usage == nil {
		return false
	}
	usable := model.ContextTokens - model.ReservedOutputTokens
	if usable <= 0 {
		return false
	}
	return usage.Total() > usable-cfg.PruneProtectTokens
}

// EffectiveHistory returns the messages the model should see: everything
// from the latest compaction summary onward, or the whole history if no
// summary exists. The full history is never rewritten; older messages are
// merely dropped from the model's view.
func EffectiveHistory(session *models.Session) []*models.Message {
	history := session.History
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Meta.Summary {
			return history[i:]
		}
	}
	return history
}

// Compact appends a marker message, streams a summary with a dedicated
// zero-temperature no-retry request, and appends the summary (plus a
// synthetic continue message when auto). On failure or cancellation the
// marker is rolled back and the history is exactly as before the call.
func (c *Compactor) Compact(ctx context.Context, session *models.Session, modelID string, cfg CompactionConfig, auto bool) error {
	marker := models.NewUserMessage(compactionMarkerText)
	marker.Meta.Synthetic = true
	marker.Meta.CompactionMarker = true
	if err := session.Append(marker); err != nil {
		return fmt.Errorf("%w: %v", ErrCompactionFailed, err)
	}

	summaryText, usage, err := c.summarize(ctx, session, modelID)
	if err != nil {
		if !session.RemoveLast(marker.ID) {
			c.Logger.Warn("compaction marker rollback missed", "session", session.ID)
		}
		return fmt.Errorf("%w: %v", ErrCompactionFailed, err)
	}

	summary := models.NewMessage(models.RoleAssistant, models.TextPart(summaryText))
	summary.Meta.Summary = true
	summary.Meta.Synthetic = true
	summary.Meta.Usage = usage
	if err := session.Append(summary); err != nil {
		session.RemoveLast(marker.ID)
		return fmt.Errorf("%w: %v", ErrCompactionFailed, err)
	}

	if auto {
		cont := models.NewUserMessage(continueText)
		cont.Meta.Synthetic = true
		if err := session.Append(cont); err != nil {
			return fmt.Errorf("%w: %v", ErrCompactionFailed, err)
		}
	}
	return nil
}

// summarize runs the dedicated summary stream. No retry: a compaction
// failure surfaces to the run rather than silently continuing on stale
// context.
func (c *Compactor) summarize(ctx context.Context, session *models.Session, modelID string) (string, *models.TokenUsage, error) {
	prompt := c.buildPrompt(ctx, session)
	zero := 0.0
	req := &CompletionRequest{
		Model:       modelID,
		System:      summaryInstruction,
		Messages:    []*models.Message{models.NewUserMessage(prompt)},
		Temperature: &zero,
	}

	stream, err := c.Provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	var usage *models.TokenUsage
	for chunk := range stream {
		if chunk.Err != nil {
			return "", nil, chunk.Err
		}
		b.WriteString(chunk.Text)
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
	}
	if ctx.Err() != nil {
		return "", nil, ctx.Err()
	}

	text := StripMarkup(b.String())
	if text == "" {
		return "", nil, fmt.Errorf("summary stream produced no text")
	}
	return text, usage, nil
}

// buildPrompt renders the history to summarize plus any plugin-injected
// context.
func (c *Compactor) buildPrompt(ctx context.Context, session *models.Session) string {
	var b strings.Builder
	for _, msg := range EffectiveHistory(session) {
		if msg.Meta.CompactionMarker {
			continue
		}
		text := msg.Text()
		if text == "" {
			continue
		}
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(text)
		b.WriteString("\n")
		for _, part := range msg.Parts {
			if part.Type == models.PartToolCall && part.ToolCall != nil {
				fmt.Fprintf(&b, "  [tool call: %s]\n", part.ToolCall.Name)
			}
		}
	}
	if c.Hooks != nil {
		if extra := c.Hooks.TriggerString(ctx, hooks.HookCompactionContext, session, ""); extra != "" {
			b.WriteString("\nAdditional context:\n")
			b.WriteString(extra)
		}
	}
	return b.String()
}
