package builtin

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

const defaultCommandTimeout = 2 * time.Minute

type shellArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds"`
}

// ShellTool runs a shell command in the workspace root.
type ShellTool struct{}

func (t *ShellTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "run_command",
		Name:        "run_command",
		Description: "Run a shell command from the workspace root and return its combined output.",
		Parameters:  schemaFor(&shellArgs{}),
		Category:    "shell",
		Permission:  "shell",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "command", Kind: models.PatternCommand},
		},
	}
}

func (t *ShellTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	command, _ := args["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := defaultCommandTimeout
	if secs := intArg(args, "timeout"); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command)
	cmd.Dir = ec.WorkspaceRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		result := models.FailResult("", models.ErrCodeExecutionFailed,
			fmt.Sprintf("command failed: %v", err))
		result.Meta.OutputText = fmt.Sprintf("command failed: %v\n%s", err, output)
		return result, nil
	}
	return models.OKResult("", string(output)), nil
}
