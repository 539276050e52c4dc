package subagents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeStore struct {
	mu     sync.Mutex
	agents map[string]*store.SubAgentData
}

func newFakeStore() *fakeStore {
	return &fakeStore{agents: make(map[string]*store.SubAgentData)}
}

func (f *fakeStore) Create(ctx context.Context, a *store.SubAgentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*store.SubAgentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[id], nil
}
func (f *fakeStore) Update(ctx context.Context, a *store.SubAgentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, id)
	return nil
}
func (f *fakeStore) ListByOwner(ctx context.Context, ownerUserID string, includeSoftDeleted bool) ([]*store.SubAgentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.SubAgentData
	for _, a := range f.agents {
		if a.OwnerUserID != ownerUserID {
			continue
		}
		if a.Status == store.SubAgentSoftDeleted && !includeSoftDeleted {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
func (f *fakeStore) CountActive(ctx context.Context, ownerUserID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.agents {
		if a.OwnerUserID == ownerUserID && a.Status == store.SubAgentActive {
			n++
		}
	}
	return n, nil
}

func TestCreateEnforcesCapacity(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{MaxActivePerUser: 1})

	_, err := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Role: "researcher"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Role: "writer"})
	if err != ErrCapacityExceeded {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestFindReusableThreshold(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{})
	a, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Role: "python backend engineer", RoleDescription: "writes python backend services"})

	found, err := m.FindReusable(context.Background(), "u1", "python backend engineer needed")
	if err != nil {
		t.Fatal(err)
	}
	if found == nil || found.ID != a.ID {
		t.Fatalf("expected to find reused agent, got %+v", found)
	}

	none, err := m.FindReusable(context.Background(), "u1", "completely unrelated topic about gardening")
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("expected no match, got %+v", none)
	}
}

func TestRecordTaskResultUpdatesScore(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{})
	a, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Role: "r"})

	if err := m.RecordTaskResult(context.Background(), a.ID, true); err != nil {
		t.Fatal(err)
	}
	if err := m.RecordTaskResult(context.Background(), a.ID, false); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.Get(context.Background(), a.ID)
	if updated.TotalTasks != 2 || updated.SuccessfulTasks != 1 || updated.PerformanceScore != 0.5 {
		t.Fatalf("unexpected state: %+v", updated)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{})
	a, _ := m.Create(context.Background(), CreateRequest{OwnerUserID: "u1", Role: "r"})

	if err := m.Suspend(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	updated, _ := s.Get(context.Background(), a.ID)
	if updated.Status != store.SubAgentSuspended {
		t.Fatalf("expected suspended, got %s", updated.Status)
	}

	if err := m.Revive(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	updated, _ = s.Get(context.Background(), a.ID)
	if updated.Status != store.SubAgentActive {
		t.Fatalf("expected active after revive, got %s", updated.Status)
	}

	var purged string
	m.PurgeMessages = func(ctx context.Context, key string) error {
		purged = key
		return nil
	}
	if err := m.Kill(context.Background(), a.ID); err != nil {
		t.Fatal(err)
	}
	if purged != "subagent:"+a.ID {
		t.Fatalf("expected purge of subagent session, got %q", purged)
	}
	if gone, _ := s.Get(context.Background(), a.ID); gone != nil {
		t.Fatal("expected agent to be deleted")
	}
}

func TestCleanupArchivesAndDeletes(t *testing.T) {
	s := newFakeStore()
	m := New(s, Config{SuspendedRetention: time.Hour})
	m.now = func() time.Time { return time.Unix(0, 0).Add(100 * time.Hour) }

	suspended := &store.SubAgentData{ID: "a1", OwnerUserID: "u1", Status: store.SubAgentSuspended, LastActiveAt: 0}
	s.agents["a1"] = suspended
	softDeleted := &store.SubAgentData{ID: "a2", OwnerUserID: "u1", Status: store.SubAgentSoftDeleted, DeletedAt: 0}
	s.agents["a2"] = softDeleted

	res, err := m.Cleanup(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 1 || res.Deleted != 1 {
		t.Fatalf("unexpected cleanup result: %+v", res)
	}
}
