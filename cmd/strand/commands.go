// commands.go contains the cobra command definitions and their flag wiring.
// Each builder creates one command and delegates to a handler in handlers.go.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// runFlags collects every flag override the run command accepts. Zero values
// mean "use the config file".
type runFlags struct {
	configPath     string
	sessionID      string
	mode           string
	modelID        string
	autoApprove    bool
	externalPaths  bool
	showThoughts   bool
	debug          bool
	jsonEvents     bool
	workspaceRoot  string
	maxIterations  int
	subagentModel  string
}

func buildRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [prompt]",
		Short: "Run one agent turn sequence against the workspace",
		Long: `Run executes a prompt to completion: the model streams text and tool
calls, tools execute through the permission gate, and the loop continues
until the model stops calling tools or the iteration ceiling is reached.

Sessions persist through the configured store; pass --session to resume
one with its history, handles, and pending plan intact.`,
		Example: `  # One-shot run in the current directory
  strand run "add a retry helper to internal/client"

  # Resume a stored session in plan mode
  strand run --session 4f1f2f9a --mode plan "revise the plan"

  # Fully unattended
  strand run --auto-approve "fix the failing build"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), flags, joinPrompt(args))
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "strand.yaml",
		"Path to YAML configuration file")
	cmd.Flags().StringVarP(&flags.sessionID, "session", "s", "",
		"Resume the stored session with this id")
	cmd.Flags().StringVarP(&flags.mode, "mode", "m", "",
		"Permission mode: build or plan")
	cmd.Flags().StringVar(&flags.modelID, "model", "",
		"Model id override")
	cmd.Flags().StringVar(&flags.subagentModel, "subagent-model", "",
		"Model id override for spawned subagents")
	cmd.Flags().StringVarP(&flags.workspaceRoot, "workspace", "w", "",
		"Workspace root (defaults to the current directory)")
	cmd.Flags().BoolVar(&flags.autoApprove, "auto-approve", false,
		"Skip approval prompts and allow every ask-gated tool call")
	cmd.Flags().BoolVar(&flags.externalPaths, "allow-external-paths", false,
		"Let capable tools touch paths outside the workspace root")
	cmd.Flags().BoolVar(&flags.showThoughts, "thoughts", false,
		"Print model reasoning tokens to stderr")
	cmd.Flags().BoolVar(&flags.debug, "debug", false,
		"Enable debug logging")
	cmd.Flags().BoolVar(&flags.jsonEvents, "json", false,
		"Emit the raw event stream as JSON lines instead of rendered text")
	cmd.Flags().IntVar(&flags.maxIterations, "max-iterations", 0,
		"Iteration ceiling override")

	return cmd
}

func buildSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect and manage stored sessions",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "strand.yaml",
		"Path to YAML configuration file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored session ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd.Context(), configPath)
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a stored session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd.Context(), configPath, args[0])
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd.Context(), configPath, args[0])
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the strand version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("strand", version)
		},
	}
}

func joinPrompt(args []string) string {
	prompt := args[0]
	for _, a := range args[1:] {
		prompt += " " + a
	}
	return prompt
}
