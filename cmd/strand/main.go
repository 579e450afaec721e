// Package main provides the strand CLI: an autonomous coding agent that runs
// prompts against a workspace through a permission-gated tool pipeline.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "strand",
		Short:         "Autonomous coding agent runtime",
		Long:          "strand runs coding-agent sessions against a workspace:\nstreaming model turns, permission-gated tools, context compaction,\nand delegated subagent tasks.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		buildRunCmd(),
		buildSessionsCmd(),
		buildVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
