package models

import (
	"testing"
)

func TestSessionAppendRejectsDuplicateIDs(t *testing.T) {
	s := NewSession()
	msg := NewUserMessage("hello")
	if err := s.Append(msg); err != nil {
		t.Fatalf("first append: %v", err)
	}
	dup := NewUserMessage("again")
	dup.ID = msg.ID
	if err := s.Append(dup); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	if len(s.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(s.History))
	}
}

func TestSessionAppendAssignsMissingID(t *testing.T) {
	s := NewSession()
	msg := &Message{Role: RoleUser, Parts: []Part{TextPart("hi")}}
	if err := s.Append(msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("append should assign an id")
	}
}

func TestSessionRemoveLast(t *testing.T) {
	s := NewSession()
	a := NewUserMessage("a")
	b := NewUserMessage("b")
	if err := s.Append(a); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(b); err != nil {
		t.Fatal(err)
	}

	if s.RemoveLast(a.ID) {
		t.Fatal("should not remove a non-tail message")
	}
	if !s.RemoveLast(b.ID) {
		t.Fatal("should remove the tail message")
	}
	if len(s.History) != 1 || s.History[0].ID != a.ID {
		t.Fatalf("unexpected history after removal: %+v", s.History)
	}

	// The removed id must be reusable.
	b2 := NewUserMessage("b again")
	b2.ID = b.ID
	if err := s.Append(b2); err != nil {
		t.Fatalf("re-append after removal: %v", err)
	}
}

func TestSessionExportImportRoundtrip(t *testing.T) {
	s := NewSession()
	s.SubagentType = "explore"
	s.ParentID = "parent-1"
	s.ModelID = "claude-sonnet-4"
	s.PendingPlan = "step one"
	s.MentionedSkills["refactor"] = true
	s.FileHandles["fh:1"] = "/ws/main.go"
	s.SemanticHandles["sym:1"] = SemanticLocation{Path: "/ws/main.go", Line: 10, Symbol: "main"}

	msg := NewUserMessage("build it")
	msg.Meta.Synthetic = true
	if err := s.Append(msg); err != nil {
		t.Fatal(err)
	}

	got := ImportSession(s.Export())

	if got.ID != s.ID || got.ParentID != s.ParentID || got.SubagentType != s.SubagentType {
		t.Fatalf("identity fields differ: %+v", got)
	}
	if got.ModelID != s.ModelID || got.PendingPlan != s.PendingPlan {
		t.Fatalf("model/plan fields differ: %+v", got)
	}
	if !got.MentionedSkills["refactor"] {
		t.Fatal("mentioned skills lost")
	}
	if got.FileHandles["fh:1"] != "/ws/main.go" {
		t.Fatal("file handles lost")
	}
	if got.SemanticHandles["sym:1"].Symbol != "main" {
		t.Fatal("semantic handles lost")
	}
	if len(got.History) != 1 || got.History[0].ID != msg.ID || !got.History[0].Meta.Synthetic {
		t.Fatalf("history differs: %+v", got.History)
	}

	// Snapshot must be deep: mutating the import must not touch the source.
	got.History[0].Parts[0].Text = "changed"
	if s.History[0].Parts[0].Text != "build it" {
		t.Fatal("export shares message storage with the session")
	}
}

func TestMessageCloneIsDeep(t *testing.T) {
	m := NewMessage(RoleAssistant,
		TextPart("done"),
		Part{Type: PartToolCall, ToolCall: &ToolCall{ID: "c1", Name: "read"}},
	)
	m.Meta.Usage = &TokenUsage{InputTokens: 10, OutputTokens: 5}

	c := m.Clone()
	c.Parts[1].ToolCall.Name = "write"
	c.Meta.Usage.InputTokens = 99

	if m.Parts[1].ToolCall.Name != "read" {
		t.Fatal("clone shares tool call storage")
	}
	if m.Meta.Usage.InputTokens != 10 {
		t.Fatal("clone shares usage storage")
	}
}

func TestToolResultBlocked(t *testing.T) {
	blocked := []string{
		ErrCodePermissionDenied,
		ErrCodePlanModeBlocked,
		ErrCodeApprovalRejected,
		ErrCodeExternalPathsBlocked,
	}
	for _, code := range blocked {
		if !FailResult("c", code, "no").Blocked() {
			t.Errorf("code %s should report blocked", code)
		}
	}
	if FailResult("c", ErrCodeExecutionFailed, "boom").Blocked() {
		t.Error("execution failure should not report blocked")
	}
	if OKResult("c", "fine").Blocked() {
		t.Error("success should not report blocked")
	}
}
