// handlers.go implements the command handlers: runtime assembly for the run
// command and the session store operations.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strandworks/strand/internal/agent"
	"github.com/strandworks/strand/internal/agent/providers"
	"github.com/strandworks/strand/internal/config"
	"github.com/strandworks/strand/internal/hooks"
	"github.com/strandworks/strand/internal/observability"
	"github.com/strandworks/strand/internal/permission"
	"github.com/strandworks/strand/internal/sessions"
	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/internal/tools/builtin"
	"github.com/strandworks/strand/internal/tools/task"
	"github.com/strandworks/strand/pkg/models"
)

// runtime bundles everything a run needs, assembled once per invocation.
type runtime struct {
	cfg      config.Config
	runner   *agent.Runner
	store    sessions.Store
	shutdown func(context.Context) error
}

func runRun(ctx context.Context, flags runFlags, prompt string) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyRunFlags(&cfg, flags)

	rt, err := buildRuntime(cfg, flags)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rt.shutdown(sctx)
	}()

	session, err := openSession(ctx, rt.store, flags.sessionID)
	if err != nil {
		return err
	}

	handle := rt.runner.Run(ctx, session, prompt, nil)
	renderErr := renderEvents(ctx, handle, flags)
	_, _, runErr := handle.Wait(context.Background())
	if runErr == nil {
		runErr = renderErr
	}

	// Save what we have even when the run failed partway.
	if saveErr := rt.store.Save(ctx, session.Export()); saveErr != nil {
		fmt.Fprintln(os.Stderr, "warning: session not saved:", saveErr)
	} else {
		fmt.Fprintln(os.Stderr, "session:", session.ID)
	}
	return runErr
}

func applyRunFlags(cfg *config.Config, flags runFlags) {
	if flags.mode != "" {
		cfg.Runner.Mode = flags.mode
	}
	if flags.modelID != "" {
		cfg.Model.ID = flags.modelID
	}
	if flags.subagentModel != "" {
		cfg.Model.SubagentID = flags.subagentModel
	}
	if flags.workspaceRoot != "" {
		cfg.Workspace.Root = flags.workspaceRoot
	}
	if flags.autoApprove {
		cfg.Runner.AutoApprove = true
	}
	if flags.externalPaths {
		cfg.Workspace.AllowExternalPaths = true
	}
	if flags.maxIterations > 0 {
		cfg.Runner.MaxIterations = flags.maxIterations
	}
}

func buildRuntime(cfg config.Config, flags runFlags) (*runtime, error) {
	if cfg.Workspace.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.Workspace.Root = wd
	}

	level := "info"
	if flags.debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level})
	metrics := observability.NewMetrics(nil)
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "strand",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
	})

	if addr := cfg.Telemetry.MetricsAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Warn("metrics listener stopped", "addr", addr, "error", err)
			}
		}()
	}

	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("no API key found for provider %q", cfg.Model.Provider)
	}
	var provider agent.ModelProvider
	switch cfg.Model.Provider {
	case "openai":
		provider = providers.NewOpenAI(apiKey, cfg.Models())
	default:
		provider = providers.NewAnthropic(apiKey, cfg.Models())
	}

	hookReg := hooks.NewRegistry(logger)

	registry := tools.NewRegistry()
	registry.Register(&builtin.ReadTool{})
	registry.Register(&builtin.GlobTool{})
	registry.Register(&builtin.GrepTool{})
	registry.Register(&builtin.ShellTool{})
	registry.Register(&builtin.WriteTool{})
	registry.Register(&builtin.UpdatePlanTool{})
	registry.Register(&builtin.ExitPlanModeTool{})

	agentCfg := cfg.AgentConfig()

	spawner := task.NewSpawner(provider, registry, hookReg, agentCfg, logger)
	registry.Register(&task.Tool{Spawner: spawner})

	pipeline := tools.NewPipeline(registry, hookReg, logger, metrics)
	pipeline.SetRuleset(permission.ModeBuild, cfg.Ruleset(permission.ModeBuild))
	pipeline.SetRuleset(permission.ModePlan, cfg.Ruleset(permission.ModePlan))

	runner := agent.NewRunner(provider, pipeline, agentCfg,
		agent.WithLogger(logger),
		agent.WithHooks(hookReg),
		agent.WithMeter(metrics),
		agent.WithTracer(tracer),
		agent.WithApprover(terminalApprover()),
	)

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:    cfg,
		runner: runner,
		store:  store,
		shutdown: func(ctx context.Context) error {
			closeStore()
			return shutdownTracer(ctx)
		},
	}, nil
}

func openStore(cfg config.Config) (sessions.Store, func(), error) {
	if cfg.Store.Driver == "sqlite" {
		path := cfg.Store.Path
		if path == "" {
			path = "strand-sessions.db"
		}
		store, err := sessions.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	return sessions.NewMemoryStore(), func() {}, nil
}

func openSession(ctx context.Context, store sessions.Store, id string) (*models.Session, error) {
	if id == "" {
		return models.NewSession(), nil
	}
	snap, err := store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume session %s: %w", id, err)
	}
	return models.ImportSession(snap), nil
}

// terminalApprover asks on stderr and reads one line from stdin. Anything
// except an explicit yes rejects.
func terminalApprover() tools.Approver {
	reader := bufio.NewReader(os.Stdin)
	return func(ctx context.Context, call *models.ToolCall, def *models.ToolDefinition, reason string) bool {
		fmt.Fprintf(os.Stderr, "\napprove %s? %s\n  args: %s\n[y/N] ",
			call.Name, reason, compactJSON(call.Arguments))
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		}
		return false
	}
}

func renderEvents(ctx context.Context, handle *agent.Handle, flags runFlags) error {
	enc := json.NewEncoder(os.Stdout)
	wroteText := false
	for {
		ev, err := handle.Events.Next(ctx)
		if err != nil {
			return err
		}
		if ev == nil {
			break
		}
		if flags.jsonEvents {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		switch ev.Type {
		case models.EventAssistantToken:
			fmt.Print(ev.Text)
			wroteText = true
		case models.EventThoughtToken:
			if flags.showThoughts {
				fmt.Fprint(os.Stderr, ev.Text)
			}
		case models.EventToolCall:
			fmt.Fprintf(os.Stderr, "\n[tool] %s %s\n",
				ev.ToolCall.Name, compactJSON(ev.ToolCall.Arguments))
		case models.EventToolBlocked:
			fmt.Fprintf(os.Stderr, "[blocked] %s: %s\n",
				ev.ToolCall.Name, ev.ToolResult.Error)
		case models.EventToolResult:
			if !ev.ToolResult.Success {
				fmt.Fprintf(os.Stderr, "[tool failed] %s\n", ev.ToolResult.Error)
			}
		case models.EventNotice:
			fmt.Fprintln(os.Stderr, "[notice]", ev.Text)
		case models.EventCompactionStart:
			fmt.Fprintln(os.Stderr, "[compacting history]")
		case models.EventDebug:
			if flags.debug {
				fmt.Fprintln(os.Stderr, "[debug]", ev.Text)
			}
		}
	}
	if wroteText && !flags.jsonEvents {
		fmt.Println()
	}
	return nil
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func runSessionsList(ctx context.Context, configPath string) error {
	store, closeStore, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeStore()
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("no stored sessions")
		return nil
	}
	for _, id := range ids {
		fmt.Println(id)
	}
	return nil
}

func runSessionsShow(ctx context.Context, configPath, id string) error {
	store, closeStore, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeStore()
	snap, err := store.Load(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("session %s  (model=%s plan=%q messages=%d)\n",
		snap.ID, snap.ModelID, snap.PendingPlan, len(snap.History))
	for _, msg := range snap.History {
		text := msg.Text()
		if text == "" {
			if calls := msg.ToolCalls(); len(calls) > 0 {
				text = fmt.Sprintf("[%d tool call(s)]", len(calls))
			}
		}
		fmt.Printf("%-9s %s\n", msg.Role+":", text)
	}
	return nil
}

func runSessionsDelete(ctx context.Context, configPath, id string) error {
	store, closeStore, err := storeFromConfig(configPath)
	if err != nil {
		return err
	}
	defer closeStore()
	if err := store.Delete(ctx, id); err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return fmt.Errorf("session %s not found", id)
		}
		return err
	}
	fmt.Println("deleted", id)
	return nil
}

func storeFromConfig(configPath string) (sessions.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	return openStore(cfg)
}
