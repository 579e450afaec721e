package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

type writeArgs struct {
	Path    string `json:"path" jsonschema:"description=File path to write"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

// WriteTool writes a file, creating parent directories as needed.
type WriteTool struct{}

func (t *WriteTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "write",
		Name:        "write",
		Description: "Write a file, replacing its contents.",
		Parameters:  schemaFor(&writeArgs{}),
		Category:    "filesystem",
		Permission:  "write",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "path", Kind: models.PatternPath},
		},
	}
}

func (t *WriteTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	path, _ := args["path"].(string)
	content, _ := args["content"].(string)
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ec.WorkspaceRoot, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, err
	}
	return models.OKResult("", fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
}
