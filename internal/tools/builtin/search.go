package builtin

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/strandworks/strand/internal/tools"
	"github.com/strandworks/strand/pkg/models"
)

const maxSearchResults = 200

type globArgs struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern matched against workspace-relative paths"`
}

// GlobTool lists files matching a glob pattern. Results carry file handles
// so later calls can reference matches compactly.
type GlobTool struct{}

func (t *GlobTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "glob",
		Name:        "glob",
		Description: "Find files by glob pattern, relative to the workspace root.",
		Parameters:  schemaFor(&globArgs{}),
		Category:    "filesystem",
		ReadOnly:    true,
		Permission:  "glob",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "pattern", Kind: models.PatternRaw},
		},
	}
}

func (t *GlobTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}

	var matches []string
	err := filepath.WalkDir(ec.WorkspaceRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(ec.WorkspaceRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if matchGlob(pattern, rel) {
			matches = append(matches, rel)
		}
		if len(matches) >= maxSearchResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return models.OKResult("", strings.Join(matches, "\n")), nil
}

// DecorateResult appends a file handle to each matched path.
func (t *GlobTool) DecorateResult(ec *tools.ExecContext, result *models.ToolResult) {
	decoratePathLines(ec, result, func(line string) string { return line })
}

// matchGlob supports ** prefixes in addition to path.Match syntax.
func matchGlob(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		if ok, _ := path.Match(strings.TrimPrefix(pattern, "**/"), path.Base(rel)); ok {
			return true
		}
	}
	return false
}

type grepArgs struct {
	Pattern string `json:"pattern" jsonschema:"description=Regular expression to search for"`
	Include string `json:"include,omitempty" jsonschema:"description=Glob filter on file names"`
}

// GrepTool searches file contents by regular expression.
type GrepTool struct{}

func (t *GrepTool) Definition() *models.ToolDefinition {
	return &models.ToolDefinition{
		ID:          "grep",
		Name:        "grep",
		Description: "Search file contents with a regular expression.",
		Parameters:  schemaFor(&grepArgs{}),
		Category:    "filesystem",
		ReadOnly:    true,
		Permission:  "grep",
		PermissionPatterns: []models.PermissionPattern{
			{Arg: "pattern", Kind: models.PatternRaw},
			{Arg: "include", Kind: models.PatternRaw},
		},
	}
}

func (t *GrepTool) Execute(ctx context.Context, ec *tools.ExecContext, args map[string]any) (*models.ToolResult, error) {
	pattern, _ := args["pattern"].(string)
	if pattern == "" {
		return nil, fmt.Errorf("pattern is required")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	include, _ := args["include"].(string)

	var lines []string
	err = filepath.WalkDir(ec.WorkspaceRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(ec.WorkspaceRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if include != "" && !matchGlob(include, rel) && !matchGlob(include, path.Base(rel)) {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return nil
		}
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if re.MatchString(scanner.Text()) {
				lines = append(lines, fmt.Sprintf("%s:%d: %s", rel, lineNo, scanner.Text()))
				if len(lines) >= maxSearchResults {
					return fs.SkipAll
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return models.OKResult("", strings.Join(lines, "\n")), nil
}

// DecorateResult appends a file handle to each matched line's path.
func (t *GrepTool) DecorateResult(ec *tools.ExecContext, result *models.ToolResult) {
	decoratePathLines(ec, result, func(line string) string {
		if i := strings.Index(line, ":"); i > 0 {
			return line[:i]
		}
		return line
	})
}

// decoratePathLines rewrites each result line as "line (handle)" using the
// session's file-handle table.
func decoratePathLines(ec *tools.ExecContext, result *models.ToolResult, pathOf func(string) string) {
	if ec.Session == nil || !result.Success || result.Content == "" {
		return
	}
	lines := strings.Split(result.Content, "\n")
	for i, line := range lines {
		p := pathOf(line)
		if p == "" {
			continue
		}
		handle := tools.NewFileHandle(ec.Session, filepath.Join(ec.WorkspaceRoot, p))
		lines[i] = line + " (" + handle + ")"
	}
	result.Content = strings.Join(lines, "\n")
}

var (
	_ tools.ResultDecorator = (*GlobTool)(nil)
	_ tools.ResultDecorator = (*GrepTool)(nil)
)
