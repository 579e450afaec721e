package providers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/pkg/models"
)

// Anthropic streams completions from the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	models map[string]*agent.Model
}

// NewAnthropic creates an Anthropic provider. The served models must be
// registered up front so GetModel can report context windows.
func NewAnthropic(apiKey string, served []*agent.Model) *Anthropic {
	p := &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		models: make(map[string]*agent.Model, len(served)),
	}
	for _, m := range served {
		p.models[m.ID] = m
	}
	return p
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) GetModel(id string) (*agent.Model, error) {
	m, ok := p.models[id]
	if !ok {
		return nil, &Error{
			Reason:   ReasonModelUnavailable,
			Provider: p.Name(),
			Model:    id,
			Message:  "model not registered",
		}
	}
	return m, nil
}

// Stream opens a Messages API stream and translates its events into chunks.
func (p *Anthropic) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.StreamChunk, error) {
	if _, err := p.GetModel(req.Model); err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:    anthropic.Model(req.Model),
		Messages: toAnthropicMessages(req.Messages),
	}
	params.MaxTokens = int64(req.MaxTokens)
	if params.MaxTokens <= 0 {
		params.MaxTokens = 4096
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}

	out := make(chan *agent.StreamChunk, 16)
	go func() {
		defer close(out)
		p.consume(ctx, req.Model, params, out)
	}()
	return out, nil
}

func (p *Anthropic) consume(ctx context.Context, model string, params anthropic.MessageNewParams, out chan<- *agent.StreamChunk) {
	stream := p.client.Messages.NewStreaming(ctx, params)

	usage := &models.TokenUsage{}
	finish := models.FinishStop

	// Tool-use input arrives as partial JSON deltas keyed by block index.
	type pendingTool struct {
		id, name string
		args     []byte
	}
	pending := map[int64]*pendingTool{}

	emit := func(c *agent.StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = int(ev.Message.Usage.InputTokens)

		case anthropic.ContentBlockStartEvent:
			if tb, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				pending[ev.Index] = &pendingTool{id: tb.ID, name: tb.Name}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text != "" && !emit(&agent.StreamChunk{Text: delta.Text}) {
					return
				}
			case anthropic.ThinkingDelta:
				if delta.Thinking != "" && !emit(&agent.StreamChunk{Reasoning: delta.Thinking}) {
					return
				}
			case anthropic.InputJSONDelta:
				if t := pending[ev.Index]; t != nil {
					t.args = append(t.args, delta.PartialJSON...)
				}
			}

		case anthropic.ContentBlockStopEvent:
			if t := pending[ev.Index]; t != nil {
				delete(pending, ev.Index)
				args := t.args
				if len(args) == 0 {
					args = []byte("{}")
				}
				call := &models.ToolCall{ID: t.id, Name: t.name, Arguments: json.RawMessage(args)}
				if !emit(&agent.StreamChunk{ToolCall: call}) {
					return
				}
			}

		case anthropic.MessageDeltaEvent:
			usage.OutputTokens = int(ev.Usage.OutputTokens)
			switch ev.Delta.StopReason {
			case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence:
				finish = models.FinishStop
			case anthropic.StopReasonToolUse:
				finish = models.FinishToolCalls
			case anthropic.StopReasonMaxTokens:
				finish = models.FinishLength
			}
		}
	}

	if err := stream.Err(); err != nil {
		emit(&agent.StreamChunk{Err: p.classify(model, err), Done: true, FinishReason: models.FinishError})
		return
	}
	emit(&agent.StreamChunk{Done: true, FinishReason: finish, Usage: usage})
}

func (p *Anthropic) classify(model string, err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		e := wrap(p.Name(), model, apierr.StatusCode, err)
		e.Message = apierr.Error()
		return e
	}
	return wrap(p.Name(), model, 0, err)
}

// toAnthropicMessages flattens history into Messages API turns. System
// messages are excluded; the caller passes the system prompt separately.
func toAnthropicMessages(history []*models.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			if text := msg.Text(); text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		case models.RoleAssistant:
			assistant := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			var results []anthropic.ContentBlockParamUnion
			for _, part := range msg.Parts {
				switch part.Type {
				case models.PartText:
					if part.Text != "" {
						assistant.Content = append(assistant.Content, anthropic.NewTextBlock(part.Text))
					}
				case models.PartToolCall:
					var input map[string]any
					_ = json.Unmarshal(part.ToolCall.Arguments, &input)
					assistant.Content = append(assistant.Content, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    part.ToolCall.ID,
							Name:  part.ToolCall.Name,
							Input: input,
						},
					})
				case models.PartToolResult, models.PartToolError:
					tr := part.ToolResult
					content := tr.Content
					if !tr.Success {
						content = tr.Error
					}
					if tr.Meta.OutputText != "" {
						content = tr.Meta.OutputText
					}
					results = append(results,
						anthropic.NewToolResultBlock(tr.ToolCallID, content, !tr.Success))
				}
			}
			if len(assistant.Content) > 0 {
				out = append(out, assistant)
			}
			// Tool results follow as a user turn, per the Messages API shape.
			if len(results) > 0 {
				out = append(out, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleUser,
					Content: results,
				})
			}
		}
	}
	return out
}

func toAnthropicTools(defs []*models.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		if err := json.Unmarshal(def.Parameters, &schema); err != nil {
			continue
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: schema.Properties,
					Required:   schema.Required,
				},
			},
		})
	}
	return out
}

var _ agent.ModelProvider = (*Anthropic)(nil)
