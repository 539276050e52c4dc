package tools

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/background"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/subagents"
)

type fakeBackgroundTaskStore struct {
	mu    sync.Mutex
	tasks map[string]*store.BackgroundTaskData
}

func newFakeBackgroundTaskStore() *fakeBackgroundTaskStore {
	return &fakeBackgroundTaskStore{tasks: make(map[string]*store.BackgroundTaskData)}
}

func (f *fakeBackgroundTaskStore) Create(ctx context.Context, t *store.BackgroundTaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}
func (f *fakeBackgroundTaskStore) Get(ctx context.Context, id string) (*store.BackgroundTaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}
func (f *fakeBackgroundTaskStore) Update(ctx context.Context, t *store.BackgroundTaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}
func (f *fakeBackgroundTaskStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	return nil, nil
}
func (f *fakeBackgroundTaskStore) Undelivered(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	return nil, nil
}
func (f *fakeBackgroundTaskStore) MarkDelivered(ctx context.Context, id string, deliveredAt int64) error {
	return nil
}
func (f *fakeBackgroundTaskStore) StaleRunning(ctx context.Context, olderThan int64) ([]*store.BackgroundTaskData, error) {
	return nil, nil
}

type fakeSubagentStore struct {
	mu     sync.Mutex
	agents map[string]*store.SubAgentData
}

func newFakeSubagentStore() *fakeSubagentStore {
	return &fakeSubagentStore{agents: make(map[string]*store.SubAgentData)}
}

func (f *fakeSubagentStore) Create(ctx context.Context, a *store.SubAgentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}
func (f *fakeSubagentStore) Get(ctx context.Context, id string) (*store.SubAgentData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agents[id], nil
}
func (f *fakeSubagentStore) Update(ctx context.Context, a *store.SubAgentData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *a
	f.agents[a.ID] = &cp
	return nil
}
func (f *fakeSubagentStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.agents, id)
	return nil
}
func (f *fakeSubagentStore) ListByOwner(ctx context.Context, ownerUserID string, includeSoftDeleted bool) ([]*store.SubAgentData, error) {
	return nil, nil
}
func (f *fakeSubagentStore) CountActive(ctx context.Context, ownerUserID string) (int, error) {
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

func TestDelegateBackgroundToolCreatesAndRuns(t *testing.T) {
	bgStore := newFakeBackgroundTaskStore()
	runner := background.New(bgStore, nil)
	mgr := subagents.New(newFakeSubagentStore(), subagents.Config{})

	var ranTask string
	tool := NewDelegateBackgroundTool(runner, mgr, func(ctx context.Context, agent *store.SubAgentData, task string) (string, error) {
		ranTask = task
		return "result text", nil
	})

	ctx := store.WithUserID(context.Background(), "owner-1")
	res := tool.Execute(ctx, map[string]interface{}{
		"task": "research quantum computing",
		"role": "Technical Research Analyst",
		"tier": "complex",
	})

	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, `"status":"accepted"`) {
		t.Fatalf("expected accepted status, got %s", res.ForLLM)
	}

	time.Sleep(50 * time.Millisecond)
	if ranTask != "research quantum computing" {
		t.Fatalf("expected the sub-agent runner to be invoked with the task, got %q", ranTask)
	}
}

func TestDelegateBackgroundToolRequiresTaskAndRole(t *testing.T) {
	runner := background.New(newFakeBackgroundTaskStore(), nil)
	mgr := subagents.New(newFakeSubagentStore(), subagents.Config{})
	tool := NewDelegateBackgroundTool(runner, mgr, nil)

	ctx := store.WithUserID(context.Background(), "owner-1")
	res := tool.Execute(ctx, map[string]interface{}{"task": "x"})
	if !res.IsError {
		t.Fatal("expected error when role is missing")
	}
}
