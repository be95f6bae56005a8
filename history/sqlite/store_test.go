package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func testRecord(runID string, submitted time.Time) history.Record {
	return history.Record{
		RunID:       runID,
		LinkedInURL: "https://www.linkedin.com/in/someone",
		Status:      types.RunCompleted,
		Progress:    100,
		SubmittedAt: submitted,
	}
}

func TestSQLiteStore_SaveLoadRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submitted := time.Now().UTC().Truncate(time.Millisecond)
	completed := submitted.Add(3 * time.Minute)
	record := history.Record{
		RunID:       "run-1",
		LinkedInURL: "https://www.linkedin.com/in/ada",
		Status:      types.RunFailed,
		Progress:    62.5,
		Error:       "profile fetch blocked",
		SubmittedAt: submitted,
		CompletedAt: &completed,
	}
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Status != types.RunFailed || got.Progress != 62.5 || got.Error != "profile fetch blocked" {
		t.Fatalf("unexpected record: %#v", got)
	}
	if !got.SubmittedAt.Equal(submitted) {
		t.Fatalf("submitted_at changed: %v != %v", got.SubmittedAt, submitted)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completed) {
		t.Fatalf("completed_at changed: %#v", got.CompletedAt)
	}
}

func TestSQLiteStore_SaveUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	submitted := time.Now().UTC()
	record := testRecord("run-upsert", submitted)
	record.Status = types.RunCancelled
	record.Progress = 40
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save initial failed: %v", err)
	}

	record.Status = types.RunCompleted
	record.Progress = 100
	completed := submitted.Add(time.Minute)
	record.CompletedAt = &completed
	if err := s.Save(ctx, record); err != nil {
		t.Fatalf("Save upsert failed: %v", err)
	}

	got, err := s.Load(ctx, "run-upsert")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Status != types.RunCompleted || got.Progress != 100 || got.CompletedAt == nil {
		t.Fatalf("upsert not applied: %#v", got)
	}

	records, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("upsert duplicated the row: %d records", len(records))
	}
}

func TestSQLiteStore_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		record := testRecord(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(ctx, record); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	records, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].RunID != "run-2" || records[2].RunID != "run-0" {
		t.Fatalf("unexpected order: %s, %s, %s", records[0].RunID, records[1].RunID, records[2].RunID)
	}

	limited, err := s.List(ctx, 2)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 records, got %d", len(limited))
	}
}

func TestSQLiteStore_TrimKeepsNewest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		record := testRecord(fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.Save(ctx, record); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	if err := s.Trim(ctx, 2); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}

	records, err := s.List(ctx, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after trim, got %d", len(records))
	}
	if records[0].RunID != "run-4" || records[1].RunID != "run-3" {
		t.Fatalf("trim evicted the wrong rows: %s, %s", records[0].RunID, records[1].RunID)
	}
	if _, err := s.Load(ctx, "run-0"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for trimmed run, got %v", err)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testRecord("run-del", time.Now().UTC())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "run-del"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load(ctx, "run-del"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "run-del"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Load(context.Background(), "missing"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}
