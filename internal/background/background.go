// Package background implements the Background Runner: fire
// off a sub-agent task, persist its terminal status, and deliver the
// result to the owner's next turn exactly once.
package background

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Handler runs a background task's body and returns its result text.
type Handler func(ctx context.Context, task *store.BackgroundTaskData) (string, error)

// Runner wraps store.BackgroundTaskStore with task dispatch, delivery
// tracking, and intercom publication.
type Runner struct {
	store    store.BackgroundTaskStore
	intercom *bus.Intercom
	now      func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New creates a Runner. intercom may be nil (publication becomes a no-op).
func New(s store.BackgroundTaskStore, intercom *bus.Intercom) *Runner {
	return &Runner{
		store:    s,
		intercom: intercom,
		now:      time.Now,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start persists a running task and spawns handler on a separate
// goroutine, returning the new task's id immediately.
func (r *Runner) Start(ctx context.Context, ownerUserID, agentID, description string, handler Handler) (string, error) {
	now := r.now().UnixMilli()
	task := &store.BackgroundTaskData{
		ID:          uuid.NewString(),
		OwnerUserID: ownerUserID,
		AgentID:     agentID,
		Description: description,
		Status:      store.BackgroundTaskRunning,
		StartedAt:   now,
	}
	if err := r.store.Create(ctx, task); err != nil {
		return "", fmt.Errorf("background: create: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels[task.ID] = cancel
	r.mu.Unlock()

	go r.run(runCtx, task, handler)

	return task.ID, nil
}

func (r *Runner) run(ctx context.Context, task *store.BackgroundTaskData, handler Handler) {
	defer func() {
		r.mu.Lock()
		delete(r.cancels, task.ID)
		r.mu.Unlock()
	}()

	result, err := handler(ctx, task)

	task.CompletedAt = r.now().UnixMilli()
	if err != nil {
		task.Status = store.BackgroundTaskFailed
		task.Result = err.Error()
	} else {
		task.Status = store.BackgroundTaskCompleted
		task.Result = result
	}

	if updateErr := r.store.Update(context.Background(), task); updateErr != nil {
		slog.Error("background: failed to persist task completion", "task_id", task.ID, "error", updateErr)
		return
	}

	if r.intercom != nil {
		topic := bus.TopicTaskCompleted
		if err != nil {
			topic = bus.TopicTaskFailed
		}
		r.intercom.Publish(topic, task)
	}
}

// GetUndelivered returns terminal tasks whose result hasn't yet been
// delivered to the owner.
func (r *Runner) GetUndelivered(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	tasks, err := r.store.Undelivered(ctx, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("background: undelivered: %w", err)
	}
	return tasks, nil
}

// MarkDelivered stamps deliveredAt = now, making delivery exactly-once.
func (r *Runner) MarkDelivered(ctx context.Context, taskID string) error {
	if err := r.store.MarkDelivered(ctx, taskID, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("background: mark delivered: %w", err)
	}
	return nil
}

// CancelAll attempts best-effort cancellation of every in-flight task.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.cancels))
	for _, c := range r.cancels {
		cancels = append(cancels, c)
	}
	r.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// CleanupStale marks as failed any running task whose startedAt predates
// now-threshold.
func (r *Runner) CleanupStale(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := r.now().Add(-threshold).UnixMilli()
	stale, err := r.store.StaleRunning(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("background: stale running: %w", err)
	}
	for _, t := range stale {
		t.Status = store.BackgroundTaskFailed
		t.Result = "timed out"
		t.CompletedAt = r.now().UnixMilli()
		if err := r.store.Update(ctx, t); err != nil {
			return 0, fmt.Errorf("background: mark stale failed: %w", err)
		}
		if r.intercom != nil {
			r.intercom.Publish(bus.TopicTaskFailed, t)
		}
	}
	return len(stale), nil
}
