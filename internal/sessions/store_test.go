package sessions

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/strandworks/strand/pkg/models"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleSnapshot(t *testing.T) models.Snapshot {
	t.Helper()
	s := models.NewSession()
	s.PendingPlan = "step one"
	s.MentionedSkills["refactor"] = true
	s.FileHandles["fh:1"] = "/ws/a.go"
	if err := s.Append(models.NewUserMessage("hello")); err != nil {
		t.Fatal(err)
	}
	return s.Export()
}

func TestStoreRoundtrip(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			snap := sampleSnapshot(t)

			if err := store.Save(ctx, snap); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx, snap.ID)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got.ID != snap.ID || got.PendingPlan != snap.PendingPlan {
				t.Fatalf("loaded snapshot differs: %+v", got)
			}
			if len(got.History) != 1 || got.History[0].Text() != "hello" {
				t.Fatalf("history lost: %+v", got.History)
			}
			if got.FileHandles["fh:1"] != "/ws/a.go" {
				t.Fatal("handle table lost")
			}

			restored := models.ImportSession(got)
			if restored.ID != snap.ID || !restored.MentionedSkills["refactor"] {
				t.Fatal("import must reconstruct the session")
			}
		})
	}
}

func TestStoreSaveOverwrites(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			snap := sampleSnapshot(t)
			if err := store.Save(ctx, snap); err != nil {
				t.Fatal(err)
			}
			snap.PendingPlan = "revised"
			if err := store.Save(ctx, snap); err != nil {
				t.Fatalf("overwrite: %v", err)
			}
			got, err := store.Load(ctx, snap.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.PendingPlan != "revised" {
				t.Fatalf("pending plan = %q, want revised", got.PendingPlan)
			}
			ids, err := store.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(ids) != 1 {
				t.Fatalf("list = %v, want single id", ids)
			}
		})
	}
}

func TestStoreMissingSession(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("load missing: %v", err)
			}
			if err := store.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("delete missing: %v", err)
			}
		})
	}
}

func TestStoreDelete(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			snap := sampleSnapshot(t)
			if err := store.Save(ctx, snap); err != nil {
				t.Fatal(err)
			}
			if err := store.Delete(ctx, snap.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := store.Load(ctx, snap.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("deleted session must be gone, got %v", err)
			}
		})
	}
}
