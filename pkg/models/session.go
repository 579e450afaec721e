package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SemanticLocation is a resolved source location behind a semantic handle.
type SemanticLocation struct {
	Path   string `json:"path"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// Session holds one conversation's ordered history plus auxiliary handle
// tables. History ordering is the canonical conversation order; it is
// append-only except for compaction rewrites. A session is mutated only by
// the run currently holding it and is never shared for concurrent mutation.
type Session struct {
	ID string `json:"id"`

	// ParentID is set when this session belongs to a subagent.
	ParentID string `json:"parent_id,omitempty"`

	// SubagentType names the subagent profile this session was spawned for.
	SubagentType string `json:"subagent_type,omitempty"`

	// ModelID overrides the runner's default model for this session.
	ModelID string `json:"model_id,omitempty"`

	History []*Message `json:"history"`

	// PendingPlan is free text accumulated in plan mode.
	PendingPlan string `json:"pending_plan,omitempty"`

	// MentionedSkills is the set of skill names referenced in this session.
	MentionedSkills map[string]bool `json:"mentioned_skills,omitempty"`

	// FileHandles maps short opaque ids to resolved file paths.
	FileHandles map[string]string `json:"file_handles,omitempty"`

	// SemanticHandles maps short opaque ids to resolved source locations.
	SemanticHandles map[string]SemanticLocation `json:"semantic_handles,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ids map[string]bool
}

// NewSession creates an empty session.
func NewSession() *Session {
	now := time.Now()
	return &Session{
		ID:              uuid.NewString(),
		MentionedSkills: map[string]bool{},
		FileHandles:     map[string]string{},
		SemanticHandles: map[string]SemanticLocation{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsSubagent reports whether this session was spawned for a subagent.
func (s *Session) IsSubagent() bool {
	return s.ParentID != ""
}

// Append adds a message to the history, enforcing id uniqueness within the
// session.
func (s *Session) Append(msg *Message) error {
	if msg == nil {
		return fmt.Errorf("message is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if s.ids == nil {
		s.ids = make(map[string]bool, len(s.History))
		for _, m := range s.History {
			s.ids[m.ID] = true
		}
	}
	if s.ids[msg.ID] {
		return fmt.Errorf("duplicate message id %s", msg.ID)
	}
	s.ids[msg.ID] = true
	s.History = append(s.History, msg)
	s.UpdatedAt = time.Now()
	return nil
}

// RemoveLast drops the most recent message if it has the given id. It is used
// by compaction rollback and returns whether a message was removed.
func (s *Session) RemoveLast(id string) bool {
	n := len(s.History)
	if n == 0 || s.History[n-1].ID != id {
		return false
	}
	s.History = s.History[:n-1]
	if s.ids != nil {
		delete(s.ids, id)
	}
	s.UpdatedAt = time.Now()
	return true
}

// Snapshot is the serializable form of a session, used by hosts that persist
// and restore sessions opaquely.
type Snapshot struct {
	ID              string                      `json:"id"`
	ParentID        string                      `json:"parent_id,omitempty"`
	SubagentType    string                      `json:"subagent_type,omitempty"`
	ModelID         string                      `json:"model_id,omitempty"`
	History         []*Message                  `json:"history"`
	PendingPlan     string                      `json:"pending_plan,omitempty"`
	MentionedSkills []string                    `json:"mentioned_skills,omitempty"`
	FileHandles     map[string]string           `json:"file_handles,omitempty"`
	SemanticHandles map[string]SemanticLocation `json:"semantic_handles,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// Export returns a deep snapshot of the session.
func (s *Session) Export() Snapshot {
	snap := Snapshot{
		ID:           s.ID,
		ParentID:     s.ParentID,
		SubagentType: s.SubagentType,
		ModelID:      s.ModelID,
		PendingPlan:  s.PendingPlan,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	snap.History = make([]*Message, len(s.History))
	for i, m := range s.History {
		snap.History[i] = m.Clone()
	}
	for name := range s.MentionedSkills {
		snap.MentionedSkills = append(snap.MentionedSkills, name)
	}
	if len(s.FileHandles) > 0 {
		snap.FileHandles = make(map[string]string, len(s.FileHandles))
		for k, v := range s.FileHandles {
			snap.FileHandles[k] = v
		}
	}
	if len(s.SemanticHandles) > 0 {
		snap.SemanticHandles = make(map[string]SemanticLocation, len(s.SemanticHandles))
		for k, v := range s.SemanticHandles {
			snap.SemanticHandles[k] = v
		}
	}
	return snap
}

// ImportSession reconstructs a session from a snapshot.
func ImportSession(snap Snapshot) *Session {
	s := NewSession()
	if snap.ID != "" {
		s.ID = snap.ID
	}
	s.ParentID = snap.ParentID
	s.SubagentType = snap.SubagentType
	s.ModelID = snap.ModelID
	s.PendingPlan = snap.PendingPlan
	if !snap.CreatedAt.IsZero() {
		s.CreatedAt = snap.CreatedAt
	}
	if !snap.UpdatedAt.IsZero() {
		s.UpdatedAt = snap.UpdatedAt
	}
	for _, name := range snap.MentionedSkills {
		s.MentionedSkills[name] = true
	}
	for k, v := range snap.FileHandles {
		s.FileHandles[k] = v
	}
	for k, v := range snap.SemanticHandles {
		s.SemanticHandles[k] = v
	}
	for _, m := range snap.History {
		s.History = append(s.History, m.Clone())
	}
	return s
}
