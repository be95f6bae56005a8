package hybrid

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/types"
)

type memoryStore struct {
	mu         sync.Mutex
	records    map[string]history.Record
	failWrites bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]history.Record{}}
}

func (m *memoryStore) Save(ctx context.Context, record history.Record) error {
	_ = ctx
	if m.failWrites {
		return errors.New("write failed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.RunID] = record
	return nil
}

func (m *memoryStore) Load(ctx context.Context, runID string) (history.Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[runID]
	if !ok {
		return history.Record{}, history.ErrNotFound
	}
	return record, nil
}

func (m *memoryStore) List(ctx context.Context, limit int) ([]history.Record, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.Record, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, runID string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[runID]; !ok {
		return history.ErrNotFound
	}
	delete(m.records, runID)
	return nil
}

func (m *memoryStore) Trim(ctx context.Context, keep int) error {
	if m.failWrites {
		return errors.New("write failed")
	}
	newest, err := m.List(ctx, 0)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, record := range newest {
		if i >= keep {
			delete(m.records, record.RunID)
		}
	}
	return nil
}

func (m *memoryStore) Close() error { return nil }

func testRecord(runID string) history.Record {
	return history.Record{
		RunID:       runID,
		LinkedInURL: "https://www.linkedin.com/in/example",
		Status:      types.RunCompleted,
		Progress:    100,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestHybridStore_WriteUsesDurableAsSourceOfTruth(t *testing.T) {
	durable := newMemoryStore()
	cache := newMemoryStore()
	cache.failWrites = true

	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("failed to create hybrid store: %v", err)
	}

	if err := h.Save(context.Background(), testRecord("run-1")); err != nil {
		t.Fatalf("Save should succeed when cache fails: %v", err)
	}
	if _, err := durable.Load(context.Background(), "run-1"); err != nil {
		t.Fatalf("durable store should contain record: %v", err)
	}
}

func TestHybridStore_ReadFallbackAndBackfill(t *testing.T) {
	durable := newMemoryStore()
	cache := newMemoryStore()

	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("failed to create hybrid store: %v", err)
	}

	if err := durable.Save(context.Background(), testRecord("run-2")); err != nil {
		t.Fatalf("durable Save failed: %v", err)
	}

	got, err := h.Load(context.Background(), "run-2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.RunID != "run-2" {
		t.Fatalf("unexpected record: %#v", got)
	}
	if _, err := cache.Load(context.Background(), "run-2"); err != nil {
		t.Fatalf("expected backfill into cache, got err: %v", err)
	}
}

func TestHybridStore_FailsWhenDurableFails(t *testing.T) {
	durable := newMemoryStore()
	durable.failWrites = true
	cache := newMemoryStore()

	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("failed to create hybrid store: %v", err)
	}
	if err := h.Save(context.Background(), testRecord("run-3")); err == nil {
		t.Fatalf("expected Save to fail when durable write fails")
	}
}

func TestHybridStore_DeleteAndTrimReachBothStores(t *testing.T) {
	durable := newMemoryStore()
	cache := newMemoryStore()

	h, err := New(durable, cache)
	if err != nil {
		t.Fatalf("failed to create hybrid store: %v", err)
	}

	base := time.Now().UTC()
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		record := testRecord(id)
		record.SubmittedAt = base.Add(time.Duration(i) * time.Second)
		if err := h.Save(context.Background(), record); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := h.Delete(context.Background(), "run-2"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Load(context.Background(), "run-2"); !errors.Is(err, history.ErrNotFound) {
		t.Fatalf("expected cache delete, got err %v", err)
	}

	if err := h.Trim(context.Background(), 1); err != nil {
		t.Fatalf("Trim failed: %v", err)
	}
	left, err := durable.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("expected 1 durable record after trim, got %d", len(left))
	}
}
