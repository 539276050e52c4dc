package background

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*store.BackgroundTaskData
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*store.BackgroundTaskData)}
}

func (f *fakeStore) Create(ctx context.Context, t *store.BackgroundTaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}
func (f *fakeStore) Get(ctx context.Context, id string) (*store.BackgroundTaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[id], nil
}
func (f *fakeStore) Update(ctx context.Context, t *store.BackgroundTaskData) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tasks[t.ID] = &cp
	return nil
}
func (f *fakeStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	return nil, nil
}
func (f *fakeStore) Undelivered(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.BackgroundTaskData
	for _, t := range f.tasks {
		if t.OwnerUserID == ownerUserID && t.DeliveredAt == 0 &&
			(t.Status == store.BackgroundTaskCompleted || t.Status == store.BackgroundTaskFailed) {
			out = append(out, t)
		}
	}
	return out, nil
}
func (f *fakeStore) MarkDelivered(ctx context.Context, id string, deliveredAt int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok {
		t.DeliveredAt = deliveredAt
	}
	return nil
}
func (f *fakeStore) StaleRunning(ctx context.Context, olderThan int64) ([]*store.BackgroundTaskData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.BackgroundTaskData
	for _, t := range f.tasks {
		if t.Status == store.BackgroundTaskRunning && t.StartedAt < olderThan {
			out = append(out, t)
		}
	}
	return out, nil
}

func TestStartCompletesAndPublishes(t *testing.T) {
	s := newFakeStore()
	ic := bus.NewIntercom()
	var published *store.BackgroundTaskData
	done := make(chan struct{})
	ic.On(bus.TopicTaskCompleted, func(payload interface{}) {
		published = payload.(*store.BackgroundTaskData)
		close(done)
	})

	r := New(s, ic)
	id, err := r.Start(context.Background(), "u1", "a1", "do thing", func(ctx context.Context, task *store.BackgroundTaskData) (string, error) {
		return "done!", nil
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for completion publish")
	}

	if published == nil || published.ID != id || published.Result != "done!" {
		t.Fatalf("unexpected published task: %+v", published)
	}
}

func TestStartFailurePublishesFailed(t *testing.T) {
	s := newFakeStore()
	ic := bus.NewIntercom()
	done := make(chan struct{})
	ic.On(bus.TopicTaskFailed, func(payload interface{}) { close(done) })

	r := New(s, ic)
	_, err := r.Start(context.Background(), "u1", "a1", "do thing", func(ctx context.Context, task *store.BackgroundTaskData) (string, error) {
		return "", errors.New("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for failure publish")
	}
}

func TestUndeliveredAndMarkDelivered(t *testing.T) {
	s := newFakeStore()
	r := New(s, nil)
	s.tasks["t1"] = &store.BackgroundTaskData{ID: "t1", OwnerUserID: "u1", Status: store.BackgroundTaskCompleted}

	undelivered, err := r.GetUndelivered(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(undelivered) != 1 {
		t.Fatalf("expected 1 undelivered, got %d", len(undelivered))
	}

	if err := r.MarkDelivered(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
	undelivered, _ = r.GetUndelivered(context.Background(), "u1")
	if len(undelivered) != 0 {
		t.Fatalf("expected 0 undelivered after mark, got %d", len(undelivered))
	}
}

func TestCleanupStaleMarksFailed(t *testing.T) {
	s := newFakeStore()
	r := New(s, nil)
	r.now = func() time.Time { return time.Unix(1000, 0) }
	s.tasks["t1"] = &store.BackgroundTaskData{ID: "t1", OwnerUserID: "u1", Status: store.BackgroundTaskRunning, StartedAt: 0}

	n, err := r.CleanupStale(context.Background(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale task marked, got %d", n)
	}
	if s.tasks["t1"].Status != store.BackgroundTaskFailed {
		t.Fatalf("expected failed status, got %s", s.tasks["t1"].Status)
	}
}
