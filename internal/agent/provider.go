package agent

import (
	"context"

	"github.com/strandworks/strand/pkg/models"
)

// Model describes one model a provider can serve.
type Model struct {
	// ID is the provider-facing model identifier.
	ID string

	// Name is a human-readable label.
	Name string

	// ContextTokens is the model's total context window.
	ContextTokens int

	// ReservedOutputTokens is held back from the window for the response.
	ReservedOutputTokens int
}

// CompletionRequest is a single streaming completion call.
type CompletionRequest struct {
	Model    string
	System   string
	Messages []*models.Message
	Tools    []*models.ToolDefinition

	// MaxTokens caps the response length. Zero means provider default.
	MaxTokens int

	// Temperature overrides the provider default when non-nil. Compaction
	// summaries pin it to zero.
	Temperature *float64
}

// StreamChunk is one increment of a streaming completion. Exactly one of the
// payload fields is meaningful per chunk; Done is set on the final chunk.
type StreamChunk struct {
	// Text is a fragment of visible assistant text.
	Text string

	// Reasoning is a fragment of internal reasoning text.
	Reasoning string

	// ToolCall is a fully assembled tool invocation.
	ToolCall *models.ToolCall

	// Done marks the final chunk of the stream.
	Done bool

	// FinishReason is set on the final chunk.
	FinishReason models.FinishReason

	// Usage is set on the final chunk when the provider reports it.
	Usage *models.TokenUsage

	// Err terminates the stream with a failure. No further chunks follow.
	Err error
}

// ModelProvider is the transport to a model backend. Stream returns a channel
// of chunks that the provider closes when the completion ends; a chunk with
// Err set is terminal. Implementations must honor ctx cancellation.
type ModelProvider interface {
	Name() string
	GetModel(id string) (*Model, error)
	Stream(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error)
}
