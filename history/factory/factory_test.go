package factory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/types"
)

func TestFromEnv_SQLite(t *testing.T) {
	t.Setenv("RESEARCH_HISTORY_BACKEND", "sqlite")
	t.Setenv("RESEARCH_SQLITE_PATH", filepath.Join(t.TempDir(), "history.db"))

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv sqlite failed: %v", err)
	}
	if s == nil {
		t.Fatalf("expected sqlite store")
	}
	defer s.Close()
}

func TestFromEnv_DefaultsToSQLite(t *testing.T) {
	t.Setenv("RESEARCH_HISTORY_BACKEND", "")
	t.Setenv("RESEARCH_SQLITE_PATH", filepath.Join(t.TempDir(), "history.db"))

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv default failed: %v", err)
	}
	defer s.Close()
}

func TestFromEnv_InvalidBackend(t *testing.T) {
	t.Setenv("RESEARCH_HISTORY_BACKEND", "nope")
	if _, err := FromEnv(context.Background()); err == nil {
		t.Fatalf("expected error for invalid backend")
	}
}

func TestFromEnv_HybridDegradesWithoutCache(t *testing.T) {
	t.Setenv("RESEARCH_HISTORY_BACKEND", "hybrid")
	t.Setenv("RESEARCH_SQLITE_PATH", filepath.Join(t.TempDir(), "history.db"))
	t.Setenv("RESEARCH_REDIS_ADDR", "127.0.0.1:1")

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv hybrid failed: %v", err)
	}
	defer s.Close()

	record := history.Record{
		RunID:       "run-hybrid",
		Status:      types.RunCompleted,
		Progress:    100,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.Save(context.Background(), record); err != nil {
		t.Fatalf("save through hybrid failed: %v", err)
	}
	got, err := s.Load(context.Background(), "run-hybrid")
	if err != nil {
		t.Fatalf("load through hybrid failed: %v", err)
	}
	if got.RunID != "run-hybrid" {
		t.Fatalf("unexpected record: %+v", got)
	}
}
