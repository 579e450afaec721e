package agent

import (
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/internal/retry"
)

// ToolOutputMode selects when old tool outputs become prunable.
type ToolOutputMode string

const (
	// PruneAfterToolCall marks a turn's tool outputs prunable as soon as the
	// following assistant turn lands.
	PruneAfterToolCall ToolOutputMode = "afterToolCall"

	// PruneOnCompaction leaves tool outputs intact until compaction runs.
	PruneOnCompaction ToolOutputMode = "onCompaction"
)

// CompactionConfig governs automatic history compaction and pruning.
type CompactionConfig struct {
	// Auto enables compaction when the context budget is exceeded.
	Auto bool

	// Prune enables replacing prunable tool outputs with stubs when
	// composing model messages.
	Prune bool

	// PruneProtectTokens is the headroom kept free below the model's usable
	// context before compaction triggers.
	PruneProtectTokens int

	// PruneMinimumTokens is the usage floor below which pruning never runs.
	PruneMinimumTokens int

	ToolOutputMode ToolOutputMode
}

// DefaultCompactionConfig returns the compaction defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		Auto:               true,
		Prune:              true,
		PruneProtectTokens: 20000,
		PruneMinimumTokens: 40000,
		ToolOutputMode:     PruneAfterToolCall,
	}
}

// Config is the immutable runner configuration. The With* methods return
// modified copies; a Config value is never mutated after construction, so
// runs and subagent runs can share one without aliasing surprises.
type Config struct {
	WorkspaceRoot string
	Mode          permission.Mode

	// ModelID is the default model; a session-level ModelID overrides it.
	ModelID string

	// SubagentModelID, when set, overrides the model for spawned subagents.
	SubagentModelID string

	// BasePrompt is the system prompt foundation.
	BasePrompt string

	// MaxIterations is the hard iteration ceiling.
	MaxIterations int

	// MaxRetries bounds same-iteration retries on retryable stream errors.
	MaxRetries int

	// MaxTokens caps each completion response. Zero uses provider defaults.
	MaxTokens int

	AllowExternalPaths bool
	AutoApprove        bool

	Compaction CompactionConfig
	Retry      retry.Policy
}

// DefaultConfig returns the runner defaults.
func DefaultConfig() Config {
	return Config{
		Mode:          permission.ModeBuild,
		MaxIterations: 50,
		MaxRetries:    3,
		Compaction:    DefaultCompactionConfig(),
		Retry:         retry.DefaultPolicy(),
	}
}

func (c Config) sanitized() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 50
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Mode == "" {
		c.Mode = permission.ModeBuild
	}
	if c.Compaction.ToolOutputMode == "" {
		c.Compaction.ToolOutputMode = PruneAfterToolCall
	}
	return c
}

// WithMode returns a copy running in the given mode.
func (c Config) WithMode(mode permission.Mode) Config {
	c.Mode = mode
	return c
}

// WithModel returns a copy using the given default model.
func (c Config) WithModel(id string) Config {
	c.ModelID = id
	return c
}

// WithWorkspaceRoot returns a copy rooted at the given directory.
func (c Config) WithWorkspaceRoot(root string) Config {
	c.WorkspaceRoot = root
	return c
}

// WithBasePrompt returns a copy with the given system prompt base.
func (c Config) WithBasePrompt(prompt string) Config {
	c.BasePrompt = prompt
	return c
}

// WithCompaction returns a copy with the given compaction settings.
func (c Config) WithCompaction(cc CompactionConfig) Config {
	c.Compaction = cc
	return c
}

// WithMaxIterations returns a copy with the given iteration ceiling.
func (c Config) WithMaxIterations(n int) Config {
	c.MaxIterations = n
	return c
}

// WithAutoApprove returns a copy that bypasses approval callbacks.
func (c Config) WithAutoApprove(v bool) Config {
	c.AutoApprove = v
	return c
}
