package tools

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/strandworks/strand/pkg/models"
)

// Handle prefixes. Handles let the model refer to large results compactly;
// the tables live on the session.
const (
	filePrefix   = "fh:"
	symbolPrefix = "sym:"
)

// NewFileHandle records a path in the session's file-handle table and
// returns its short id.
func NewFileHandle(s *models.Session, path string) string {
	if s.FileHandles == nil {
		s.FileHandles = map[string]string{}
	}
	// Reuse an existing handle for the same path.
	for id, p := range s.FileHandles {
		if p == path {
			return id
		}
	}
	id := filePrefix + uuid.NewString()[:8]
	s.FileHandles[id] = path
	return id
}

// NewSymbolHandle records a source location and returns its short id.
func NewSymbolHandle(s *models.Session, loc models.SemanticLocation) string {
	if s.SemanticHandles == nil {
		s.SemanticHandles = map[string]models.SemanticLocation{}
	}
	id := symbolPrefix + uuid.NewString()[:8]
	s.SemanticHandles[id] = loc
	return id
}

// ResolveHandle maps a handle id back to a concrete path. Symbol handles
// resolve to their location's path. Non-handle values pass through.
func ResolveHandle(s *models.Session, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, filePrefix):
		if path, ok := s.FileHandles[value]; ok {
			return path, nil
		}
		return "", fmt.Errorf("unknown file handle %q", value)
	case strings.HasPrefix(value, symbolPrefix):
		if loc, ok := s.SemanticHandles[value]; ok {
			return loc.Path, nil
		}
		return "", fmt.Errorf("unknown symbol handle %q", value)
	default:
		return value, nil
	}
}

// resolveArgHandles resolves handle ids embedded in string arguments,
// returning a fresh map. A handle that misses fails the whole resolution.
func resolveArgHandles(s *models.Session, args map[string]any) (map[string]any, error) {
	if s == nil {
		return args, nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		str, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		resolved, err := ResolveHandle(s, str)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}
