package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

// scriptedProvider replays canned chunk sequences, one per Stream call.
type scriptedProvider struct {
	mu       sync.Mutex
	model    *Model
	scripts  [][]*StreamChunk
	requests []*CompletionRequest
}

func newScriptedProvider(scripts ...[]*StreamChunk) *scriptedProvider {
	return &scriptedProvider{
		model:   &Model{ID: "test-model", ContextTokens: 100000, ReservedOutputTokens: 4000},
		scripts: scripts,
	}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) GetModel(id string) (*Model, error) {
	if id != p.model.ID {
		return nil, fmt.Errorf("unknown model %q", id)
	}
	return p.model, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	n := len(p.requests) - 1
	var script []*StreamChunk
	if n < len(p.scripts) {
		script = p.scripts[n]
	}
	p.mu.Unlock()

	ch := make(chan *StreamChunk, len(script)+1)
	for _, chunk := range script {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

// recordingMeter captures metric observations for assertions.
type recordingMeter struct {
	mu          sync.Mutex
	iterations  int
	runOutcomes []string
	runSeconds  []float64
}

func (m *recordingMeter) ObserveIteration(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations++
}

func (m *recordingMeter) ObserveRun(outcome string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runOutcomes = append(m.runOutcomes, outcome)
	m.runSeconds = append(m.runSeconds, seconds)
}

func (m *recordingMeter) ObserveCompaction(string) {}

func (m *recordingMeter) ObserveUsage(string, int, int) {}

// retryableErr simulates a classified transient transport failure.
type retryableErr struct{ msg string }

func (e *retryableErr) Error() string   { return e.msg }
func (e *retryableErr) Retryable() bool { return true }

// noteTool is a registered read-only tool for loop tests.
type noteTool struct{ calls int }

func (t *noteTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		Name:       "note",
		ReadOnly:   true,
		Permission: "note",
		Parameters: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
	}
}

func (t *noteTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	t.calls++
	text, _ := args["text"].(string)
	return models.OKResult("", "noted: "+text), nil
}

func testRunner(t *testing.T, p ModelProvider, behaviors ...tools.Behavior) *Runner {
	t.Helper()
	reg := tools.NewRegistry()
	for _, b := range behaviors {
		reg.Register(b)
	}
	pipeline := tools.NewPipeline(reg, hooks.NewRegistry(nil), nil, nil)
	pipeline.SetRuleset(permission.ModeBuild, permission.Ruleset{
		Mode: permission.ModeBuild,
		Rules: []permission.Rule{
			{Permission: "note", Pattern: "*", Action: permission.ActionAllow},
		},
	})
	cfg := DefaultConfig().WithModel("test-model")
	cfg.Compaction.Auto = false
	cfg.Retry.InitialDelay = 1
	return NewRunner(p, pipeline, cfg)
}

func drain(t *testing.T, h *Handle) []*models.Event {
	t.Helper()
	var events []*models.Event
	for {
		ev, err := h.Events.Next(context.Background())
		if ev == nil {
			if err != nil {
				t.Logf("event stream failed: %v", err)
			}
			return events
		}
		events = append(events, ev)
	}
}

func countEvents(events []*models.Event, typ models.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

func TestRunToolFreePrompt(t *testing.T) {
	p := newScriptedProvider([]*StreamChunk{
		{Text: "<think>silent</think>"},
		{Text: "hello "},
		{Text: "world"},
		{Done: true, FinishReason: models.FinishStop, Usage: &models.TokenUsage{InputTokens: 10, OutputTokens: 5}},
	})
	r := testRunner(t, p)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "say hello", nil)
	text, got, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("final text = %q, want markup-stripped text", text)
	}
	if got != session {
		t.Fatal("wait must return the mutated session")
	}

	events := drain(t, h)
	if n := countEvents(events, models.EventToolCall); n != 0 {
		t.Fatalf("tool-free run emitted %d tool_call events", n)
	}
	if n := countEvents(events, models.EventAssistantToken); n != 3 {
		t.Fatalf("token events = %d, want 3", n)
	}
	last := events[len(events)-1]
	if last.Type != models.EventStatus || last.Status != models.StatusDone {
		t.Fatalf("final event = %+v, want done status", last)
	}

	// History: user input + one assistant message.
	if len(session.History) != 2 || session.History[1].Role != models.RoleAssistant {
		t.Fatalf("unexpected history: %d messages", len(session.History))
	}
}

func TestRunSingleToolCall(t *testing.T) {
	tool := &noteTool{}
	p := newScriptedProvider(
		[]*StreamChunk{
			{ToolCall: &models.ToolCall{ID: "c1", Name: "note", Arguments: json.RawMessage(`{"text":"hi"}`)}},
			{Done: true, FinishReason: models.FinishToolCalls},
		},
		[]*StreamChunk{
			{Text: "done"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p, tool)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "take a note", nil)
	text, _, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if text != "done" {
		t.Fatalf("final text = %q, want second iteration's text", text)
	}
	if tool.calls != 1 {
		t.Fatalf("tool executed %d times, want 1", tool.calls)
	}

	events := drain(t, h)
	if n := countEvents(events, models.EventToolCall); n != 1 {
		t.Fatalf("tool_call events = %d, want 1", n)
	}
	if n := countEvents(events, models.EventToolResult); n != 1 {
		t.Fatalf("tool_result events = %d, want 1", n)
	}

	// The tool result must be recorded on the assistant message.
	assistant := session.History[1]
	if !assistant.HasToolCalls() {
		t.Fatal("assistant message must record the tool call")
	}
	found := false
	for _, part := range assistant.Parts {
		if part.Type == models.PartToolResult && part.ToolResult.Content == "noted: hi" {
			found = true
		}
	}
	if !found {
		t.Fatal("assistant message must record the tool result")
	}
}

func TestRunCompactsWhenBudgetExceeded(t *testing.T) {
	tool := &noteTool{}
	big := &models.TokenUsage{InputTokens: 90000, OutputTokens: 4000}
	p := newScriptedProvider(
		[]*StreamChunk{
			{ToolCall: &models.ToolCall{ID: "c1", Name: "note", Arguments: json.RawMessage(`{"text":"x"}`)}},
			{Done: true, FinishReason: models.FinishToolCalls, Usage: big},
		},
		[]*StreamChunk{
			{Text: "interim answer"},
			{Done: true, FinishReason: models.FinishStop, Usage: big},
		},
		// Summary stream for the compaction.
		[]*StreamChunk{
			{Text: "summary of work"},
			{Done: true, FinishReason: models.FinishStop, Usage: &models.TokenUsage{InputTokens: 100, OutputTokens: 50}},
		},
		[]*StreamChunk{
			{Text: "final answer"},
			{Done: true, FinishReason: models.FinishStop, Usage: &models.TokenUsage{InputTokens: 500, OutputTokens: 20}},
		},
	)
	r := testRunner(t, p, tool)
	r.cfg.Compaction.Auto = true
	r.cfg.Compaction.PruneProtectTokens = 20000

	session := models.NewSession()
	h := r.Run(context.Background(), session, "work", nil)
	text, _, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if text != "final answer" {
		t.Fatalf("final text = %q", text)
	}

	events := drain(t, h)
	if n := countEvents(events, models.EventCompactionStart); n != 1 {
		t.Fatalf("compaction_start events = %d, want 1", n)
	}
	if n := countEvents(events, models.EventCompactionEnd); n != 1 {
		t.Fatalf("compaction_end events = %d, want 1", n)
	}

	// Marker and summary must both be in history, in order.
	markerIdx, summaryIdx := -1, -1
	for i, msg := range session.History {
		if msg.Meta.CompactionMarker {
			markerIdx = i
		}
		if msg.Meta.Summary {
			summaryIdx = i
		}
	}
	if markerIdx < 0 || summaryIdx != markerIdx+1 {
		t.Fatalf("marker at %d, summary at %d; want adjacent pair", markerIdx, summaryIdx)
	}
}

func TestRunRetriesWithoutProgress(t *testing.T) {
	p := newScriptedProvider(
		[]*StreamChunk{
			{Err: &retryableErr{msg: "rate limited"}},
		},
		[]*StreamChunk{
			{Text: "recovered"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "go", nil)
	text, _, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("retryable error with no progress must retry, got %v", err)
	}
	if text != "recovered" {
		t.Fatalf("final text = %q", text)
	}
	events := drain(t, h)
	retrying := 0
	for _, ev := range events {
		if ev.Type == models.EventStatus && ev.Status == models.StatusRetrying {
			retrying++
		}
	}
	if retrying != 1 {
		t.Fatalf("retrying status events = %d, want 1", retrying)
	}
}

func TestRunDoesNotRetryAfterVisibleText(t *testing.T) {
	p := newScriptedProvider(
		[]*StreamChunk{
			{Text: "partial answer"},
			{Err: &retryableErr{msg: "connection reset"}},
		},
		[]*StreamChunk{
			{Text: "should never stream"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "go", nil)
	_, _, err := h.Wait(context.Background())
	if err == nil {
		t.Fatal("error after visible text must propagate, not retry")
	}
	var runErr *RunError
	if !errors.As(err, &runErr) || runErr.Phase != PhaseStream {
		t.Fatalf("want stream-phase run error, got %v", err)
	}
}

func TestRunRetriesAfterReasoningOnlyOutput(t *testing.T) {
	p := newScriptedProvider(
		[]*StreamChunk{
			{Reasoning: "thinking about it"},
			{Err: &retryableErr{msg: "server error"}},
		},
		[]*StreamChunk{
			{Text: "after retry"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "go", nil)
	text, _, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("reasoning-only output must still qualify for retry, got %v", err)
	}
	if text != "after retry" {
		t.Fatalf("final text = %q", text)
	}
}

func TestRunFatalErrorPropagates(t *testing.T) {
	p := newScriptedProvider(
		[]*StreamChunk{
			{Err: errors.New("invalid request")},
		},
	)
	r := testRunner(t, p)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "go", nil)
	_, _, err := h.Wait(context.Background())
	if err == nil {
		t.Fatal("unclassified error must fail the run")
	}
	// The event queue must fail with the same terminal error.
	for {
		ev, qerr := h.Events.Next(context.Background())
		if ev == nil {
			if qerr == nil {
				t.Fatal("event queue must fail, not close cleanly")
			}
			break
		}
	}
}

func TestRunIterationCeiling(t *testing.T) {
	// Every script requests another tool call; the loop must stop anyway.
	script := []*StreamChunk{
		{ToolCall: &models.ToolCall{ID: "c", Name: "note", Arguments: json.RawMessage(`{"text":"again"}`)}},
		{Done: true, FinishReason: models.FinishToolCalls},
	}
	scripts := make([][]*StreamChunk, 6)
	for i := range scripts {
		scripts[i] = script
	}
	tool := &noteTool{}
	p := newScriptedProvider(scripts...)
	r := testRunner(t, p, tool)
	r.cfg.MaxIterations = 3

	session := models.NewSession()
	h := r.Run(context.Background(), session, "loop forever", nil)
	_, _, err := h.Wait(context.Background())
	if err != nil {
		t.Fatalf("hitting the ceiling is best-effort completion, got %v", err)
	}
	if tool.calls != 3 {
		t.Fatalf("tool calls = %d, want exactly the ceiling", tool.calls)
	}
}

func TestRunMeterRecordsOutcome(t *testing.T) {
	p := newScriptedProvider([]*StreamChunk{
		{Text: "ok"},
		{Done: true, FinishReason: models.FinishStop},
	})
	meter := &recordingMeter{}
	reg := tools.NewRegistry()
	pipeline := tools.NewPipeline(reg, hooks.NewRegistry(nil), nil, nil)
	r := NewRunner(p, pipeline, DefaultConfig().WithModel("test-model"), WithMeter(meter))

	h := r.Run(context.Background(), models.NewSession(), "go", nil)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(meter.runOutcomes) != 1 || meter.runOutcomes[0] != "ok" {
		t.Fatalf("run outcomes = %v, want one ok", meter.runOutcomes)
	}
	if meter.runSeconds[0] < 0 {
		t.Fatalf("run duration = %v, want non-negative", meter.runSeconds[0])
	}
	if meter.iterations != 1 {
		t.Fatalf("iterations observed = %d, want 1", meter.iterations)
	}

	fail := newScriptedProvider([]*StreamChunk{
		{Err: errors.New("invalid request")},
	})
	r = NewRunner(fail, pipeline, DefaultConfig().WithModel("test-model"), WithMeter(meter))
	h = r.Run(context.Background(), models.NewSession(), "go", nil)
	if _, _, err := h.Wait(context.Background()); err == nil {
		t.Fatal("run must fail")
	}
	if len(meter.runOutcomes) != 2 || meter.runOutcomes[1] != "error" {
		t.Fatalf("run outcomes = %v, want ok then error", meter.runOutcomes)
	}
}

func TestRunObserverCallbacks(t *testing.T) {
	tool := &noteTool{}
	big := &models.TokenUsage{InputTokens: 90000, OutputTokens: 4000}
	p := newScriptedProvider(
		[]*StreamChunk{
			{ToolCall: &models.ToolCall{ID: "c1", Name: "note", Arguments: json.RawMessage(`{"text":"x"}`)}},
			{Done: true, FinishReason: models.FinishToolCalls, Usage: big},
		},
		[]*StreamChunk{
			{Text: "interim"},
			{Done: true, FinishReason: models.FinishStop, Usage: big},
		},
		[]*StreamChunk{
			{Text: "summary"},
			{Done: true, FinishReason: models.FinishStop},
		},
		[]*StreamChunk{
			{Text: "final"},
			{Done: true, FinishReason: models.FinishStop, Usage: &models.TokenUsage{InputTokens: 500, OutputTokens: 20}},
		},
	)
	r := testRunner(t, p, tool)
	r.cfg.Compaction.Auto = true
	r.cfg.Compaction.PruneProtectTokens = 20000

	var starts, ends, compactStarts, compactEnds int
	cb := &Callbacks{
		OnIterationStart:  func(int) { starts++ },
		OnIterationEnd:    func(int) { ends++ },
		OnCompactionStart: func() { compactStarts++ },
		OnCompactionEnd:   func() { compactEnds++ },
	}
	h := r.Run(context.Background(), models.NewSession(), "work", cb)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if starts != 3 || ends != 3 {
		t.Fatalf("iteration callbacks = %d starts / %d ends, want 3 / 3", starts, ends)
	}
	if compactStarts != 1 || compactEnds != 1 {
		t.Fatalf("compaction callbacks = %d starts / %d ends, want 1 / 1", compactStarts, compactEnds)
	}
}

func TestRunDebugCallbackOnRetry(t *testing.T) {
	p := newScriptedProvider(
		[]*StreamChunk{
			{Err: &retryableErr{msg: "rate limited"}},
		},
		[]*StreamChunk{
			{Text: "recovered"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p)

	var debugs []string
	cb := &Callbacks{OnDebug: func(msg string) { debugs = append(debugs, msg) }}
	h := r.Run(context.Background(), models.NewSession(), "go", cb)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(debugs) != 1 || !strings.Contains(debugs[0], "rate limited") {
		t.Fatalf("debug callbacks = %v, want one retry message", debugs)
	}
}

func TestRunMarksTerminalToolTurnPrunable(t *testing.T) {
	tool := &noteTool{}
	p := newScriptedProvider(
		[]*StreamChunk{
			{ToolCall: &models.ToolCall{ID: "c1", Name: "note", Arguments: json.RawMessage(`{"text":"x"}`)}},
			{Done: true, FinishReason: models.FinishToolCalls},
		},
		[]*StreamChunk{
			{Text: "done"},
			{Done: true, FinishReason: models.FinishStop},
		},
	)
	r := testRunner(t, p, tool)
	session := models.NewSession()

	h := r.Run(context.Background(), session, "go", nil)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// History: user, tool-call turn, final answer. The tool-call turn must
	// be prunable even though no further assistant turn followed it.
	if len(session.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(session.History))
	}
	if !session.History[1].Meta.Prunable {
		t.Fatal("tool-call turn before the final answer must be prunable")
	}
	if session.History[2].Meta.Prunable {
		t.Fatal("the final answer itself must not be prunable")
	}
}

func TestRunMarksTailToolTurnPrunableAtCeiling(t *testing.T) {
	script := []*StreamChunk{
		{ToolCall: &models.ToolCall{ID: "c", Name: "note", Arguments: json.RawMessage(`{"text":"x"}`)}},
		{Done: true, FinishReason: models.FinishToolCalls},
	}
	tool := &noteTool{}
	p := newScriptedProvider(script, script)
	r := testRunner(t, p, tool)
	r.cfg.MaxIterations = 2

	session := models.NewSession()
	h := r.Run(context.Background(), session, "go", nil)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	last := session.History[len(session.History)-1]
	if !last.HasToolCalls() || !last.Meta.Prunable {
		t.Fatal("a run ending on a tool-call turn must leave that turn prunable")
	}
}

func TestRunUnknownModel(t *testing.T) {
	p := newScriptedProvider()
	reg := tools.NewRegistry()
	pipeline := tools.NewPipeline(reg, hooks.NewRegistry(nil), nil, nil)
	r := NewRunner(p, pipeline, DefaultConfig().WithModel("missing"))

	h := r.Run(context.Background(), models.NewSession(), "go", nil)
	_, _, err := h.Wait(context.Background())
	if !errors.Is(err, ErrNoModel) {
		t.Fatalf("want ErrNoModel, got %v", err)
	}
}

func TestRunSessionModelOverride(t *testing.T) {
	p := newScriptedProvider([]*StreamChunk{
		{Text: "ok"},
		{Done: true, FinishReason: models.FinishStop},
	})
	r := testRunner(t, p)
	session := models.NewSession()
	session.ModelID = "test-model"
	r.cfg.ModelID = "other-model"

	h := r.Run(context.Background(), session, "go", nil)
	if _, _, err := h.Wait(context.Background()); err != nil {
		t.Fatalf("session model override must resolve, got %v", err)
	}
	if p.requests[0].Model != "test-model" {
		t.Fatalf("request model = %q, want session override", p.requests[0].Model)
	}
}
