package nudge

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestFlushUserDeliversDueNudgesInPriorityOrder(t *testing.T) {
	var mu sync.Mutex
	var delivered []string
	e := New(Config{QuietHoursStart: "00:00", QuietHoursEnd: "00:00"}, func(ctx context.Context, n *Nudge) error {
		mu.Lock()
		delivered = append(delivered, n.Priority.String())
		mu.Unlock()
		return nil
	})

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	e.Schedule(context.Background(), "u1", "reminder", "low one", PriorityLow, now.Add(-time.Minute), nil)
	e.Schedule(context.Background(), "u1", "reminder", "normal one", PriorityNormal, now.Add(-time.Minute), nil)
	e.Schedule(context.Background(), "u1", "reminder", "urgent one", PriorityUrgent, now.Add(-time.Minute), nil)

	if err := e.FlushUser(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	if len(delivered) != 3 {
		t.Fatalf("expected 3 delivered, got %d: %v", len(delivered), delivered)
	}
	if delivered[0] != "urgent" || delivered[1] != "normal" || delivered[2] != "low" {
		t.Fatalf("expected urgent,normal,low order, got %v", delivered)
	}
}

func TestQuietHoursDefersNonUrgent(t *testing.T) {
	var delivered []Priority
	e := New(Config{QuietHoursStart: "22:00", QuietHoursEnd: "08:00"}, func(ctx context.Context, n *Nudge) error {
		delivered = append(delivered, n.Priority)
		return nil
	})
	now := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC) // inside quiet hours
	e.now = func() time.Time { return now }

	e.Schedule(context.Background(), "u1", "c", "normal", PriorityNormal, now.Add(-time.Minute), nil)
	e.Schedule(context.Background(), "u1", "c", "urgent", PriorityUrgent, now.Add(-time.Minute), nil)

	if err := e.FlushUser(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if len(delivered) != 1 || delivered[0] != PriorityUrgent {
		t.Fatalf("expected only urgent delivered during quiet hours, got %v", delivered)
	}
}

func TestRateLimitDefersExcessNormalNudges(t *testing.T) {
	var delivered int
	e := New(Config{MaxPerHour: 1, QuietHoursStart: "00:00", QuietHoursEnd: "00:00"}, func(ctx context.Context, n *Nudge) error {
		delivered++
		return nil
	})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	e.Schedule(context.Background(), "u1", "c", "one", PriorityNormal, now.Add(-time.Minute), nil)
	e.Schedule(context.Background(), "u1", "c", "two", PriorityNormal, now.Add(-time.Minute), nil)

	if err := e.FlushUser(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}
	if delivered != 1 {
		t.Fatalf("expected rate cap to defer second nudge, delivered=%d", delivered)
	}
}
