package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/pkg/models"
)

// OpenAI streams completions from the OpenAI Chat Completions API.
type OpenAI struct {
	client *openai.Client
	models map[string]*agent.Model
}

// NewOpenAI creates an OpenAI provider serving the given models.
func NewOpenAI(apiKey string, served []*agent.Model) *OpenAI {
	p := &OpenAI{
		client: openai.NewClient(apiKey),
		models: make(map[string]*agent.Model, len(served)),
	}
	for _, m := range served {
		p.models[m.ID] = m
	}
	return p
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) GetModel(id string) (*agent.Model, error) {
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

// Stream opens a chat completion stream and translates deltas into chunks.
// Tool-call arguments accumulate across deltas and are emitted whole at the
// end of the stream, before the final chunk.
func (p *OpenAI) Stream(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.StreamChunk, error) {
	if _, err := p.GetModel(req.Model); err != nil {
		return nil, err
	}

	oreq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      toOpenAIMessages(req.System, req.Messages),
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if req.Temperature != nil {
		oreq.Temperature = float32(*req.Temperature)
	}
	if len(req.Tools) > 0 {
		oreq.Tools = toOpenAITools(req.Tools)
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, oreq)
	if err != nil {
		return nil, p.classify(req.Model, err)
	}

	out := make(chan *agent.StreamChunk, 16)
	go func() {
		defer close(out)
		defer stream.Close()
		p.consume(ctx, req.Model, stream, out)
	}()
	return out, nil
}

func (p *OpenAI) consume(ctx context.Context, model string, stream *openai.ChatCompletionStream, out chan<- *agent.StreamChunk) {
	usage := &models.TokenUsage{}
	finish := models.FinishStop

	type pendingTool struct {
		id, name string
		args     []byte
	}
	var pending []*pendingTool

	emit := func(c *agent.StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			emit(&agent.StreamChunk{Err: p.classify(model, err), Done: true, FinishReason: models.FinishError})
			return
		}

		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" && !emit(&agent.StreamChunk{Text: choice.Delta.Content}) {
			return
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := len(pending) - 1
			if tc.Index != nil {
				idx = *tc.Index
			}
			if idx < 0 {
				idx = 0
			}
			for len(pending) <= idx {
				pending = append(pending, &pendingTool{})
			}
			cur := pending[idx]
			if tc.ID != "" {
				cur.id = tc.ID
			}
			if tc.Function.Name != "" {
				cur.name = tc.Function.Name
			}
			cur.args = append(cur.args, tc.Function.Arguments...)
		}

		switch choice.FinishReason {
		case openai.FinishReasonToolCalls:
			finish = models.FinishToolCalls
		case openai.FinishReasonLength:
			finish = models.FinishLength
		case openai.FinishReasonStop:
			finish = models.FinishStop
		}
	}

	for _, t := range pending {
		args := t.args
		if len(args) == 0 {
			args = []byte("{}")
		}
		call := &models.ToolCall{ID: t.id, Name: t.name, Arguments: json.RawMessage(args)}
		if !emit(&agent.StreamChunk{ToolCall: call}) {
			return
		}
	}
	emit(&agent.StreamChunk{Done: true, FinishReason: finish, Usage: usage})
}

func (p *OpenAI) classify(model string, err error) error {
	var apierr *openai.APIError
	if errors.As(err, &apierr) {
		e := wrap(p.Name(), model, apierr.HTTPStatusCode, err)
		e.Message = apierr.Message
		return e
	}
	return wrap(p.Name(), model, 0, err)
}

func toOpenAIMessages(system string, history []*models.Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			if text := msg.Text(); text != "" {
				out = append(out, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: text,
				})
			}
		case models.RoleAssistant:
			assistant := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			var results []openai.ChatCompletionMessage
			for _, part := range msg.Parts {
				switch part.Type {
				case models.PartToolCall:
					assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
						ID:   part.ToolCall.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      part.ToolCall.Name,
							Arguments: string(part.ToolCall.Arguments),
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
					results = append(results, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    content,
						ToolCallID: tr.ToolCallID,
					})
				}
			}
			if assistant.Content != "" || len(assistant.ToolCalls) > 0 {
				out = append(out, assistant)
			}
			out = append(out, results...)
		}
	}
	return out
}

func toOpenAITools(defs []*models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}

var _ agent.ModelProvider = (*OpenAI)(nil)
