package tools

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeMemoryStoreForTool struct {
	recorded []*store.EpisodicRecordData
}

func (f *fakeMemoryStoreForTool) RecordEvent(ctx context.Context, r *store.EpisodicRecordData) error {
	f.recorded = append(f.recorded, r)
	return nil
}
func (f *fakeMemoryStoreForTool) Get(ctx context.Context, id string) (*store.EpisodicRecordData, error) {
	return nil, nil
}
func (f *fakeMemoryStoreForTool) Search(ctx context.Context, ownerUserID, query string, limit int) ([]store.MemorySearchHit, error) {
	return nil, nil
}
func (f *fakeMemoryStoreForTool) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.EpisodicRecordData, error) {
	return nil, nil
}
func (f *fakeMemoryStoreForTool) Reinforce(ctx context.Context, id string, lastAccessedAt int64) error {
	return nil
}
func (f *fakeMemoryStoreForTool) Update(ctx context.Context, r *store.EpisodicRecordData) error {
	return nil
}
func (f *fakeMemoryStoreForTool) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeMemoryStoreForTool) Merge(ctx context.Context, keepID string, removeIDs []string, accessCount int, importance float64) error {
	return nil
}

func TestMemoryAddToolRecordsEvent(t *testing.T) {
	fs := &fakeMemoryStoreForTool{}
	tool := NewMemoryAddTool(memory.New(fs))

	ctx := store.WithUserID(context.Background(), "owner-1")
	res := tool.Execute(ctx, map[string]interface{}{
		"content":    "likes dark roast coffee",
		"event_type": "preference",
	})

	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.ForLLM)
	}
	if len(fs.recorded) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(fs.recorded))
	}
	if fs.recorded[0].EventType != store.EventPreferenceLearned {
		t.Fatalf("expected preference_learned event type, got %s", fs.recorded[0].EventType)
	}
}

func TestMemoryAddToolRequiresOwnerContext(t *testing.T) {
	fs := &fakeMemoryStoreForTool{}
	tool := NewMemoryAddTool(memory.New(fs))

	res := tool.Execute(context.Background(), map[string]interface{}{"content": "x"})
	if !res.IsError {
		t.Fatal("expected error when no owner user id is in context")
	}
}
