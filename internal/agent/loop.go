// Package agent drives the run loop: it streams model turns, dispatches tool
// calls through the execution pipeline, compacts history when the context
// budget is exceeded, and exposes the whole run as an event stream.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/retry"
	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

// Meter abstracts the run-level metrics sink.
type Meter interface {
	ObserveIteration(model string)
	ObserveRun(outcome string, seconds float64)
	ObserveCompaction(outcome string)
	ObserveUsage(model string, input, output int)
}

// Runner owns one orchestration configuration and executes runs against it.
// A Runner is safe to reuse across sessions; each run drives exactly one
// session and one goroutine.
type Runner struct {
	provider ModelProvider
	pipeline *tools.Pipeline
	hooks    *hooks.Registry
	logger   *slog.Logger
	meter    Meter
	tracer   trace.Tracer
	approver tools.Approver
	cfg      Config

	composer  *Composer
	compactor *Compactor
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithHooks sets the plugin hook registry.
func WithHooks(h *hooks.Registry) Option {
	return func(r *Runner) { r.hooks = h }
}

// WithMeter sets the metrics sink.
func WithMeter(m Meter) Option {
	return func(r *Runner) { r.meter = m }
}

// WithTracer sets the trace source for run and iteration spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// WithApprover sets the external approval callback for gated tool calls.
func WithApprover(a tools.Approver) Option {
	return func(r *Runner) { r.approver = a }
}

// WithSkillResolver sets the skill content lookup for the prompt composer.
func WithSkillResolver(fn func(name string) string) Option {
	return func(r *Runner) { r.composer.ResolveSkill = fn }
}

// NewRunner builds a runner over a provider and a tool pipeline.
func NewRunner(provider ModelProvider, pipeline *tools.Pipeline, cfg Config, opts ...Option) *Runner {
	r := &Runner{
		provider: provider,
		pipeline: pipeline,
		logger:   slog.Default(),
		cfg:      cfg.sanitized(),
		composer: &Composer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hooks == nil {
		r.hooks = hooks.NewRegistry(r.logger)
	}
	r.composer.Hooks = r.hooks
	r.compactor = &Compactor{Provider: provider, Hooks: r.hooks, Logger: r.logger}
	return r
}

// Config returns the runner's configuration value.
func (r *Runner) Config() Config { return r.cfg }

// Pipeline returns the tool pipeline, for hosts that register tools late.
func (r *Runner) Pipeline() *tools.Pipeline { return r.pipeline }

// Handle is a live run: an event stream plus a single completion value.
type Handle struct {
	Events *EventQueue

	done    chan struct{}
	text    string
	session *models.Session
	err     error
}

// Wait blocks until the run completes and returns the final text and the
// mutated session. Waiting does not consume events; an abandoned event
// queue buffers them harmlessly.
func (h *Handle) Wait(ctx context.Context) (string, *models.Session, error) {
	select {
	case <-h.done:
		return h.text, h.session, h.err
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Run starts a run: the user input is appended to the session and the loop
// executes on its own goroutine until done, cancelled, or failed.
func (r *Runner) Run(ctx context.Context, session *models.Session, input string, cb *Callbacks) *Handle {
	h := &Handle{Events: NewEventQueue(), done: make(chan struct{}), session: session}
	go func() {
		defer close(h.done)
		start := time.Now()
		text, err := r.run(ctx, session, input, cb, h)
		h.text = text
		h.err = err
		if r.meter != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			r.meter.ObserveRun(outcome, time.Since(start).Seconds())
		}
		if err != nil {
			h.Events.Push(models.StatusEvent(models.StatusError))
			cb.status(r.logger, models.StatusError)
			h.Events.Fail(err)
			return
		}
		h.Events.Push(models.StatusEvent(models.StatusDone))
		cb.status(r.logger, models.StatusDone)
		h.Events.Close()
	}()
	return h
}

// turn is the outcome of one successful stream iteration.
type turn struct {
	text     string
	finish   models.FinishReason
	usage    *models.TokenUsage
	hasTools bool
	message  *models.Message
}

func (r *Runner) run(ctx context.Context, session *models.Session, input string, cb *Callbacks, h *Handle) (string, error) {
	if r.tracer != nil {
		var span trace.Span
		ctx, span = r.tracer.Start(ctx, "agent.run",
			trace.WithAttributes(attribute.String("session.id", session.ID)))
		defer span.End()
	}

	modelID := r.cfg.ModelID
	if session.ModelID != "" {
		modelID = session.ModelID
	}
	model, err := r.provider.GetModel(modelID)
	if err != nil {
		return "", newRunError(PhaseCompose, 0, ErrNoModel)
	}

	if input != "" {
		if err := session.Append(models.NewUserMessage(input)); err != nil {
			return "", newRunError(PhaseCompose, 0, err)
		}
	}

	h.Events.Push(models.StatusEvent(models.StatusRunning))
	cb.status(r.logger, models.StatusRunning)

	ec := &tools.ExecContext{
		WorkspaceRoot:      r.cfg.WorkspaceRoot,
		SessionID:          session.ID,
		Session:            session,
		Logger:             r.logger.With("session", session.ID),
		Mode:               r.cfg.Mode,
		AllowExternalPaths: r.cfg.AllowExternalPaths,
		AutoApprove:        r.cfg.AutoApprove,
		Approver:           r.approver,
	}

	var (
		lastText  string
		lastUsage *models.TokenUsage
		finished  bool
	)
	iteration := 0
	for iteration < r.cfg.MaxIterations {
		if ctx.Err() != nil {
			return "", newRunError(PhaseStream, iteration, ctx.Err())
		}
		iteration++
		if r.meter != nil {
			r.meter.ObserveIteration(model.ID)
		}
		cb.iterationStart(r.logger, iteration)

		t, err := r.streamTurn(ctx, session, model, ec, iteration, lastUsage, h, cb)
		if err != nil {
			return "", err
		}
		if t.text != "" {
			lastText = t.text
		}
		if t.usage != nil {
			lastUsage = t.usage
			if r.meter != nil {
				r.meter.ObserveUsage(model.ID, t.usage.InputTokens, t.usage.OutputTokens)
			}
		}

		r.hooks.Trigger(ctx, hooks.HookTurnComplete, t.message, nil)
		cb.turnComplete(r.logger, t.message)
		cb.iterationEnd(r.logger, iteration)

		if t.hasTools || t.finish == models.FinishToolCalls {
			r.markPrunable(session, t.message)
			continue
		}

		if ShouldCompact(r.cfg.Compaction, model, lastUsage) {
			if err := r.compact(ctx, session, model, iteration, h, cb); err != nil {
				return "", err
			}
			// Compaction does not consume an answer slot.
			iteration--
			continue
		}
		// The tool-call turn preceding the final answer still needs its
		// outputs flagged, or a resumed session composes them unpruned.
		r.markPrunable(session, t.message)
		finished = true
		break
	}

	if !finished {
		r.markPrunable(session, nil)
		h.Events.Push(models.NoticeEvent("iteration ceiling reached; returning last response"))
		r.logger.Warn("iteration ceiling reached", "session", session.ID, "iterations", iteration)
	}

	final := r.hooks.TriggerString(ctx, hooks.HookFinalText, session, lastText)
	return final, nil
}

func (r *Runner) compact(ctx context.Context, session *models.Session, model *Model, iteration int, h *Handle, cb *Callbacks) error {
	h.Events.Push(models.NewEvent(models.EventCompactionStart))
	cb.compactionStart(r.logger)
	err := r.compactor.Compact(ctx, session, model.ID, r.cfg.Compaction, r.cfg.Compaction.Auto)
	h.Events.Push(models.NewEvent(models.EventCompactionEnd))
	cb.compactionEnd(r.logger)
	if r.meter != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.meter.ObserveCompaction(outcome)
	}
	if err != nil {
		return newRunError(PhaseCompaction, iteration, err)
	}
	return nil
}

// streamTurn runs one iteration's model stream, dispatching tool calls
// inline. On a retryable transport error with no progress (no tool call and
// no visible text; reasoning-only output does not count as progress) the
// same iteration is retried with backoff.
func (r *Runner) streamTurn(ctx context.Context, session *models.Session, model *Model, ec *tools.ExecContext, iteration int, lastUsage *models.TokenUsage, h *Handle, cb *Callbacks) (*turn, error) {
	system := r.composer.Compose(ctx, r.cfg, session)
	messages := r.composeMessages(ctx, session, lastUsage)

	req := &CompletionRequest{
		Model:     model.ID,
		System:    system,
		Messages:  messages,
		Tools:     r.pipeline.Registry().Definitions(),
		MaxTokens: r.cfg.MaxTokens,
	}

	for attempt := 1; ; attempt++ {
		t, progress, streamErr := r.attempt(ctx, session, ec, req, iteration, h, cb)
		if streamErr == nil {
			return t, nil
		}
		if retry.Retryable(streamErr) && !progress && attempt <= r.cfg.MaxRetries && ctx.Err() == nil {
			r.logger.Debug("retrying iteration after transport error",
				"iteration", iteration, "attempt", attempt, "error", streamErr)
			cb.debug(r.logger, "retrying iteration after transport error: "+streamErr.Error())
			h.Events.Push(models.StatusEvent(models.StatusRetrying))
			cb.status(r.logger, models.StatusRetrying)
			if err := r.cfg.Retry.Sleep(ctx, attempt); err != nil {
				return nil, newRunError(PhaseStream, iteration, err)
			}
			continue
		}
		return nil, newRunError(PhaseStream, iteration, streamErr)
	}
}

// attempt consumes one model stream. It returns the finished turn, or the
// stream error plus whether the attempt made visible progress.
func (r *Runner) attempt(ctx context.Context, session *models.Session, ec *tools.ExecContext, req *CompletionRequest, iteration int, h *Handle, cb *Callbacks) (*turn, bool, error) {
	stream, err := r.provider.Stream(ctx, req)
	if err != nil {
		return nil, false, err
	}

	var (
		textB    strings.Builder
		reasonB  strings.Builder
		parts    []models.Part
		progress bool
		finish   = models.FinishStop
		usage    *models.TokenUsage
		hasTools bool
	)

	for chunk := range stream {
		if chunk.Err != nil {
			return nil, progress, chunk.Err
		}
		if ctx.Err() != nil {
			return nil, progress, ctx.Err()
		}

		switch {
		case chunk.Text != "":
			if strings.TrimSpace(chunk.Text) != "" {
				progress = true
			}
			textB.WriteString(chunk.Text)
			ev := models.TokenEvent(chunk.Text)
			ev.SessionID = session.ID
			ev.Iteration = iteration
			h.Events.Push(ev)
			cb.token(r.logger, chunk.Text)

		case chunk.Reasoning != "":
			reasonB.WriteString(chunk.Reasoning)
			ev := models.ThoughtEvent(chunk.Reasoning)
			ev.SessionID = session.ID
			ev.Iteration = iteration
			h.Events.Push(ev)
			cb.thought(r.logger, chunk.Reasoning)

		case chunk.ToolCall != nil:
			progress = true
			hasTools = true
			result := r.dispatchTool(ctx, ec, chunk.ToolCall, session, iteration, h, cb)
			parts = append(parts,
				models.Part{Type: models.PartToolCall, ToolCall: chunk.ToolCall},
				toolResultPart(result),
			)

		case chunk.Done:
			finish = chunk.FinishReason
			usage = chunk.Usage
		}
	}
	if ctx.Err() != nil {
		return nil, progress, ctx.Err()
	}

	text := StripMarkup(textB.String())
	msg := r.finalizeTurn(session, text, reasonB.String(), parts, finish, usage)
	if err := session.Append(msg); err != nil {
		return nil, progress, err
	}
	return &turn{text: text, finish: finish, usage: usage, hasTools: hasTools, message: msg}, progress, nil
}

func (r *Runner) dispatchTool(ctx context.Context, ec *tools.ExecContext, call *models.ToolCall, session *models.Session, iteration int, h *Handle, cb *Callbacks) *models.ToolResult {
	callCtx := ctx
	if r.tracer != nil {
		var span trace.Span
		callCtx, span = r.tracer.Start(ctx, "agent.tool",
			trace.WithAttributes(attribute.String("tool.name", call.Name)))
		defer span.End()
	}

	ev := models.ToolCallEvent(call)
	ev.SessionID = session.ID
	ev.Iteration = iteration
	h.Events.Push(ev)
	cb.toolCall(r.logger, call)

	result := r.pipeline.Execute(callCtx, ec, call)

	var rev *models.Event
	if result.Blocked() {
		rev = models.ToolBlockedEvent(call, result)
	} else {
		rev = models.ToolResultEvent(result)
	}
	rev.SessionID = session.ID
	rev.Iteration = iteration
	h.Events.Push(rev)
	cb.toolResult(r.logger, result)
	return result
}

func (r *Runner) finalizeTurn(session *models.Session, text, reasoning string, toolParts []models.Part, finish models.FinishReason, usage *models.TokenUsage) *models.Message {
	var parts []models.Part
	if reasoning != "" {
		parts = append(parts, models.ReasoningPart(reasoning))
	}
	if text != "" {
		parts = append(parts, models.TextPart(text))
	}
	parts = append(parts, toolParts...)

	msg := models.NewMessage(models.RoleAssistant, parts...)
	msg.Meta.FinishReason = finish
	msg.Meta.Usage = usage
	return msg
}

// markPrunable flags the newest assistant tool-call turn before latest as
// prunable, when the mode calls for it. A nil latest considers the tail
// itself, which covers runs that end on a tool-call turn.
func (r *Runner) markPrunable(session *models.Session, latest *models.Message) {
	if r.cfg.Compaction.ToolOutputMode != PruneAfterToolCall {
		return
	}
	history := session.History
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if msg == latest {
			continue
		}
		if msg.Role != models.RoleAssistant {
			continue
		}
		if msg.HasToolCalls() {
			msg.Meta.Prunable = true
		}
		break
	}
}

// prunedStub replaces a pruned tool output in the model's view.
const prunedStub = "[old tool output pruned]"

// composeMessages builds the model-ready message list: the effective history
// with prunable tool outputs stubbed out, then the message-list hook. Pruning
// only kicks in once usage clears the configured floor.
func (r *Runner) composeMessages(ctx context.Context, session *models.Session, lastUsage *models.TokenUsage) []*models.Message {
	prune := r.cfg.Compaction.Prune &&
		lastUsage != nil && lastUsage.Total() >= r.cfg.Compaction.PruneMinimumTokens
	effective := EffectiveHistory(session)
	out := make([]*models.Message, 0, len(effective))
	for _, msg := range effective {
		if prune && msg.Meta.Prunable {
			clone := msg.Clone()
			for i := range clone.Parts {
				if clone.Parts[i].Type == models.PartToolResult || clone.Parts[i].Type == models.PartToolError {
					clone.Parts[i].ToolResult.Meta.OutputText = prunedStub
					clone.Parts[i].ToolResult.Content = prunedStub
				}
			}
			out = append(out, clone)
			continue
		}
		out = append(out, msg)
	}

	if transformed := r.hooks.Trigger(ctx, hooks.HookMessages, session, out); transformed != nil {
		if msgs, ok := transformed.([]*models.Message); ok {
			return msgs
		}
	}
	return out
}

func toolResultPart(result *models.ToolResult) models.Part {
	t := models.PartToolResult
	if !result.Success {
		t = models.PartToolError
	}
	return models.Part{Type: t, ToolResult: result}
}
