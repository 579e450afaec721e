// Package config loads the runtime configuration from a YAML file plus the
// process environment (optionally seeded from a .env file).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/permission"
)

// Config is the full file-backed configuration.
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Model     ModelConfig     `yaml:"model"`
	Runner    RunnerConfig    `yaml:"runner"`
	Compact   CompactConfig   `yaml:"compaction"`
	Rules     []RuleConfig    `yaml:"permission_rules"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// WorkspaceConfig locates the workspace the agent operates in.
type WorkspaceConfig struct {
	Root               string `yaml:"root"`
	AllowExternalPaths bool   `yaml:"allow_external_paths"`
}

// ModelConfig selects the provider and models.
type ModelConfig struct {
	// Provider is "anthropic" or "openai".
	Provider string `yaml:"provider"`

	ID            string `yaml:"id"`
	SubagentID    string `yaml:"subagent_id"`
	ContextTokens int    `yaml:"context_tokens"`
	ReservedOut   int    `yaml:"reserved_output_tokens"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
}

// RunnerConfig tunes the run loop.
type RunnerConfig struct {
	Mode          string `yaml:"mode"`
	MaxIterations int    `yaml:"max_iterations"`
	MaxRetries    int    `yaml:"max_retries"`
	MaxTokens     int    `yaml:"max_tokens"`
	AutoApprove   bool   `yaml:"auto_approve"`
	BasePrompt    string `yaml:"base_prompt"`
}

// CompactConfig mirrors the compaction settings.
type CompactConfig struct {
	Auto               *bool  `yaml:"auto"`
	Prune              *bool  `yaml:"prune"`
	PruneProtectTokens int    `yaml:"prune_protect_tokens"`
	PruneMinimumTokens int    `yaml:"prune_minimum_tokens"`
	ToolOutputMode     string `yaml:"tool_output_mode"`
}

// RuleConfig is one permission rule.
type RuleConfig struct {
	Permission string `yaml:"permission"`
	Pattern    string `yaml:"pattern"`
	Action     string `yaml:"action"`
}

// StoreConfig selects session persistence.
type StoreConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// TelemetryConfig controls metrics and tracing.
type TelemetryConfig struct {
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:      "anthropic",
			ID:            "claude-sonnet-4-5",
			ContextTokens: 200000,
			ReservedOut:   8192,
			APIKeyEnv:     "ANTHROPIC_API_KEY",
		},
		Runner: RunnerConfig{
			Mode:          string(permission.ModeBuild),
			MaxIterations: 50,
			MaxRetries:    3,
		},
		Store: StoreConfig{Driver: "memory"},
	}
}

// Load reads the YAML file at path (missing file means defaults) after
// seeding the environment from .env when one exists next to the config.
func Load(path string) (Config, error) {
	// A missing .env is not an error; explicit env always wins.
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	switch c.Model.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	switch c.Runner.Mode {
	case "", string(permission.ModeBuild), string(permission.ModePlan):
	default:
		return fmt.Errorf("unknown mode %q", c.Runner.Mode)
	}
	switch c.Store.Driver {
	case "", "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	for _, rule := range c.Rules {
		switch permission.Action(rule.Action) {
		case permission.ActionAllow, permission.ActionAsk, permission.ActionDeny:
		default:
			return fmt.Errorf("rule %q/%q: unknown action %q",
				rule.Permission, rule.Pattern, rule.Action)
		}
	}
	return nil
}

// APIKey resolves the provider API key from the environment.
func (c Config) APIKey() string {
	env := c.Model.APIKeyEnv
	if env == "" {
		if c.Model.Provider == "openai" {
			env = "OPENAI_API_KEY"
		} else {
			env = "ANTHROPIC_API_KEY"
		}
	}
	return os.Getenv(env)
}

// AgentConfig maps the file configuration onto the runner configuration,
// keeping the runner defaults for anything the file leaves unset.
func (c Config) AgentConfig() agent.Config {
	out := agent.DefaultConfig()
	out.WorkspaceRoot = c.Workspace.Root
	out.AllowExternalPaths = c.Workspace.AllowExternalPaths
	out.ModelID = c.Model.ID
	out.SubagentModelID = c.Model.SubagentID
	if c.Runner.Mode != "" {
		out.Mode = permission.Mode(c.Runner.Mode)
	}
	if c.Runner.MaxIterations > 0 {
		out.MaxIterations = c.Runner.MaxIterations
	}
	if c.Runner.MaxRetries > 0 {
		out.MaxRetries = c.Runner.MaxRetries
	}
	out.MaxTokens = c.Runner.MaxTokens
	out.AutoApprove = c.Runner.AutoApprove
	out.BasePrompt = c.Runner.BasePrompt

	if c.Compact.Auto != nil {
		out.Compaction.Auto = *c.Compact.Auto
	}
	if c.Compact.Prune != nil {
		out.Compaction.Prune = *c.Compact.Prune
	}
	if c.Compact.PruneProtectTokens > 0 {
		out.Compaction.PruneProtectTokens = c.Compact.PruneProtectTokens
	}
	if c.Compact.PruneMinimumTokens > 0 {
		out.Compaction.PruneMinimumTokens = c.Compact.PruneMinimumTokens
	}
	if c.Compact.ToolOutputMode != "" {
		out.Compaction.ToolOutputMode = agent.ToolOutputMode(c.Compact.ToolOutputMode)
	}
	return out
}

// Models returns the models this configuration serves through the provider.
func (c Config) Models() []*agent.Model {
	primary := &agent.Model{
		ID:                   c.Model.ID,
		Name:                 c.Model.ID,
		ContextTokens:        c.Model.ContextTokens,
		ReservedOutputTokens: c.Model.ReservedOut,
	}
	out := []*agent.Model{primary}
	if c.Model.SubagentID != "" && c.Model.SubagentID != c.Model.ID {
		out = append(out, &agent.Model{
			ID:                   c.Model.SubagentID,
			Name:                 c.Model.SubagentID,
			ContextTokens:        c.Model.ContextTokens,
			ReservedOutputTokens: c.Model.ReservedOut,
		})
	}
	return out
}

// Ruleset converts the configured rules for a mode, falling back to the
// built-in defaults when none are configured.
func (c Config) Ruleset(mode permission.Mode) permission.Ruleset {
	if len(c.Rules) == 0 {
		return permission.RulesetFor(mode)
	}
	rs := permission.Ruleset{Mode: mode}
	for _, rule := range c.Rules {
		rs.Rules = append(rs.Rules, permission.Rule{
			Permission: rule.Permission,
			Pattern:    rule.Pattern,
			Action:     permission.Action(rule.Action),
		})
	}
	return rs
}
