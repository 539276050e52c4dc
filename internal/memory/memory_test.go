package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeMemoryStore struct {
	mu      sync.Mutex
	records map[string]*store.EpisodicRecordData
}

func newFakeStore() *fakeMemoryStore {
	return &fakeMemoryStore{records: make(map[string]*store.EpisodicRecordData)}
}

func (f *fakeMemoryStore) RecordEvent(ctx context.Context, r *store.EpisodicRecordData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeMemoryStore) Get(ctx context.Context, id string) (*store.EpisodicRecordData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[id], nil
}

func (f *fakeMemoryStore) Search(ctx context.Context, ownerUserID, query string, limit int) ([]store.MemorySearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hits []store.MemorySearchHit
	for _, r := range f.records {
		if r.OwnerUserID != ownerUserID {
			continue
		}
		hits = append(hits, store.MemorySearchHit{Record: r, Score: 1.0})
	}
	return hits, nil
}

func (f *fakeMemoryStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.EpisodicRecordData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.EpisodicRecordData
	for _, r := range f.records {
		if r.OwnerUserID == ownerUserID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeMemoryStore) Reinforce(ctx context.Context, id string, lastAccessedAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		r.AccessCount++
		r.LastAccessedAt = lastAccessedAt
	}
	return nil
}

func (f *fakeMemoryStore) Update(ctx context.Context, r *store.EpisodicRecordData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeMemoryStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *fakeMemoryStore) Merge(ctx context.Context, keepID string, removeIDs []string, accessCount int, importance float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[keepID]; ok {
		r.AccessCount = accessCount
		r.Importance = importance
	}
	for _, id := range removeIDs {
		delete(f.records, id)
	}
	return nil
}

func TestRecordEventDefaults(t *testing.T) {
	s := newFakeStore()
	e := New(s)
	rec, err := e.RecordEvent(context.Background(), "owner-1", store.EventFactStored, "likes dark mode", "")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Importance != defaultImportance || rec.AccessCount != 0 {
		t.Fatalf("unexpected defaults: %+v", rec)
	}
}

func TestConsolidatePrunesLowValueOldRecords(t *testing.T) {
	s := newFakeStore()
	e := New(s)
	e.now = func() time.Time { return time.Unix(0, 0).Add(100 * 24 * time.Hour) }

	old := &store.EpisodicRecordData{
		ID: "r1", OwnerUserID: "u1", Content: "stale trivial note",
		Importance: 0.1, AccessCount: 0, CreatedAt: 0, LastAccessedAt: 0,
	}
	s.records[old.ID] = old

	res, err := e.Consolidate(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Pruned != 1 {
		t.Fatalf("expected 1 pruned, got %+v", res)
	}
	if _, ok := s.records["r1"]; ok {
		t.Fatal("expected record to be deleted")
	}
}

func TestConsolidateMergesDuplicates(t *testing.T) {
	s := newFakeStore()
	e := New(s)
	e.now = func() time.Time { return time.Unix(0, 0) }

	a := &store.EpisodicRecordData{ID: "a", OwnerUserID: "u1", Content: "user prefers dark mode for the editor", Importance: 0.5}
	b := &store.EpisodicRecordData{ID: "b", OwnerUserID: "u1", Content: "user prefers dark mode for the editor!!", Importance: 0.7}
	s.records[a.ID] = a
	s.records[b.ID] = b

	res, err := e.Consolidate(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Merged != 1 {
		t.Fatalf("expected 1 merged, got %+v", res)
	}
}

func TestGetContextForAgentEmptyWhenNoRecords(t *testing.T) {
	s := newFakeStore()
	e := New(s)
	ctxStr, err := e.GetContextForAgent(context.Background(), "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if ctxStr != "" {
		t.Fatalf("expected empty context, got %q", ctxStr)
	}
}
