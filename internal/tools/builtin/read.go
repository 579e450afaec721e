package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

type readArgs struct {
	Path   string `json:"path" jsonschema:"description=File path or file handle to read"`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-based line to start from"`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines"`
}

// ReadTool reads a file from the workspace.
type ReadTool struct{}

func (t *ReadTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "read",
		Name:        "read",
		Description: "Read a file. Accepts a path or a file handle from a previous search result.",
		Parameters:  schemaFor(&readArgs{}),
		Category:    "filesystem",
		ReadOnly:    true,
		Permission:  "read",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "path", Kind: models.PatternPath},
		},
	}
}

func (t *ReadTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ec.WorkspaceRoot, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	content := string(data)
	offset := intArg(args, "offset")
	limit := intArg(args, "limit")
	if offset > 0 || limit > 0 {
		lines := strings.Split(content, "\n")
		start := 0
		if offset > 0 {
			start = offset - 1
		}
		if start > len(lines) {
			start = len(lines)
		}
		end := len(lines)
		if limit > 0 && start+limit < end {
			end = start + limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return models.OKResult("", content), nil
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
