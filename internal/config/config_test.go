package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/strandworks/strand/internal/permission"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strand.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != "anthropic" {
		t.Fatalf("provider = %q, want anthropic", cfg.Model.Provider)
	}
	if cfg.Runner.MaxIterations != 50 {
		t.Fatalf("max iterations = %d, want 50", cfg.Runner.MaxIterations)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("store driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  provider: openai
  id: gpt-4o
  api_key_env: MY_OPENAI_KEY
runner:
  mode: plan
  max_iterations: 10
workspace:
  root: /tmp/ws
  allow_external_paths: true
compaction:
  auto: false
  prune_protect_tokens: 5000
store:
  driver: sqlite
  path: /tmp/sessions.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model.Provider != "openai" || cfg.Model.ID != "gpt-4o" {
		t.Fatalf("model = %+v", cfg.Model)
	}
	if cfg.Runner.Mode != "plan" || cfg.Runner.MaxIterations != 10 {
		t.Fatalf("runner = %+v", cfg.Runner)
	}
	if !cfg.Workspace.AllowExternalPaths || cfg.Workspace.Root != "/tmp/ws" {
		t.Fatalf("workspace = %+v", cfg.Workspace)
	}
	if cfg.Compact.Auto == nil || *cfg.Compact.Auto {
		t.Fatal("compaction.auto must be parsed as explicit false")
	}
	if cfg.Compact.PruneProtectTokens != 5000 {
		t.Fatalf("prune protect = %d", cfg.Compact.PruneProtectTokens)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.Path != "/tmp/sessions.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := writeConfig(t, "model:\n  provider: cohere\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestLoadRejectsBadRuleAction(t *testing.T) {
	path := writeConfig(t, `
permission_rules:
  - permission: shell
    pattern: "git *"
    action: maybe
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected unknown action error")
	}
}

func TestAPIKeyResolution(t *testing.T) {
	t.Setenv("STRAND_TEST_KEY", "sk-test")
	cfg := Default()
	cfg.Model.APIKeyEnv = "STRAND_TEST_KEY"
	if got := cfg.APIKey(); got != "sk-test" {
		t.Fatalf("api key = %q", got)
	}

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg = Default()
	cfg.Model.Provider = "openai"
	cfg.Model.APIKeyEnv = ""
	if got := cfg.APIKey(); got != "sk-openai" {
		t.Fatalf("api key = %q, want provider default env", got)
	}
}

func TestAgentConfigMapping(t *testing.T) {
	path := writeConfig(t, `
model:
  id: claude-sonnet-4-5
  subagent_id: claude-haiku-4-5
runner:
  mode: plan
  max_iterations: 7
  max_tokens: 2048
compaction:
  auto: false
  tool_output_mode: onCompaction
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ac := cfg.AgentConfig()
	if ac.Mode != permission.ModePlan || ac.MaxIterations != 7 {
		t.Fatalf("agent config = %+v", ac)
	}
	if ac.SubagentModelID != "claude-haiku-4-5" {
		t.Fatalf("subagent model = %q", ac.SubagentModelID)
	}
	if ac.Compaction.Auto {
		t.Fatal("compaction.auto must map to false")
	}
	if !ac.Compaction.Prune {
		t.Fatal("unset compaction.prune must keep the default")
	}
	if string(ac.Compaction.ToolOutputMode) != "onCompaction" {
		t.Fatalf("tool output mode = %q", ac.Compaction.ToolOutputMode)
	}
	if models := cfg.Models(); len(models) != 2 {
		t.Fatalf("models = %d, want primary plus subagent", len(models))
	}
}

func TestRulesetFallsBackToDefaults(t *testing.T) {
	cfg := Default()
	rs := cfg.Ruleset(permission.ModeBuild)
	if len(rs.Rules) == 0 {
		t.Fatal("expected built-in ruleset when no rules configured")
	}

	cfg.Rules = []RuleConfig{{Permission: "shell", Pattern: "git *", Action: "allow"}}
	rs = cfg.Ruleset(permission.ModeBuild)
	if len(rs.Rules) != 1 || rs.Rules[0].Action != permission.ActionAllow {
		t.Fatalf("configured ruleset = %+v", rs.Rules)
	}
}
