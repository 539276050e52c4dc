package templates

import (
	"context"
	"sync"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeStore struct {
	mu        sync.Mutex
	templates map[string]*store.RoleTemplateData
}

func newFakeStore() *fakeStore {
	return &fakeStore{templates: make(map[string]*store.RoleTemplateData)}
}

func (f *fakeStore) Create(ctx context.Context, t *store.RoleTemplateData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.templates[t.ID] = &cp
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*store.RoleTemplateData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templates[id], nil
}
func (f *fakeStore) Update(ctx context.Context, t *store.RoleTemplateData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.templates[t.ID] = &cp
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.templates, id)
	return nil
}
func (f *fakeStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.RoleTemplateData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.RoleTemplateData
	for _, t := range f.templates {
		if t.OwnerUserID == ownerUserID {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStore) CountByOwner(ctx context.Context, ownerUserID string) (int, error) {
	ts, _ := f.ListByOwner(ctx, ownerUserID)
	return len(ts), nil
}

func TestCreateEnforcesCap(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{MaxPerOwner: 1})
	_, err := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Name: "a"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Name: "b"})
	if err != ErrLimitReached {
		t.Fatalf("expected ErrLimitReached, got %v", err)
	}
}

func TestRecordUsageRollingAverage(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{})
	tpl, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Name: "t"})

	if err := m.RecordUsage(context.Background(), tpl.ID, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordUsage(context.Background(), tpl.ID, 0.0); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.Get(context.Background(), tpl.ID)
	if updated.TimesUsed != 2 || updated.AvgPerformance != 0.5 {
		t.Fatalf("unexpected: %+v", updated)
	}
}

func TestFindBestMatchPrefersHigherPerformanceOnTie(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{})
	a, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Name: "researcher", RoleDescription: "does deep research"})
	b, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Name: "researcher", RoleDescription: "does deep research"})
	b.AvgPerformance = 0.9
	s.Update(context.Background(), b)
	_ = a

	best, err := m.FindBestMatch(context.Background(), "u1", "need a researcher for deep research")
	if err != nil {
		t.Fatal(err)
	}
	if best == nil || best.ID != b.ID {
		t.Fatalf("expected b to win tie via avg performance, got %+v", best)
	}
}
