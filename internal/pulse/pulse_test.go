package pulse

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseIntervalFormats(t *testing.T) {
	cases := map[string]time.Duration{
		"5m": 5 * time.Minute,
		"2h": 2 * time.Hour,
		"1d": 24 * time.Hour,
	}
	for expr, want := range cases {
		got, ok := parseInterval(expr)
		if !ok || got != want {
			t.Fatalf("parseInterval(%q) = %v, %v; want %v", expr, got, ok, want)
		}
	}
	if _, ok := parseInterval("* * * * *"); ok {
		t.Fatal("expected cron expression to not parse as interval")
	}
}

func TestRunOnStartDispatchesImmediately(t *testing.T) {
	s := New(Config{}, nil)
	var calls int32
	done := make(chan struct{})
	s.Register(&Job{
		ID:         "j1",
		Schedule:   "1h",
		RunOnStart: true,
		Handler: func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				close(done)
			}
			return nil
		},
	})
	s.Start(context.Background())
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected runOnStart job to fire immediately")
	}
}

func TestStopIsCooperative(t *testing.T) {
	s := New(Config{}, nil)
	var mu sync.Mutex
	finished := false
	started := make(chan struct{})
	s.Register(&Job{
		ID:         "j1",
		Schedule:   "1h",
		RunOnStart: true,
		Handler: func(ctx context.Context) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			mu.Lock()
			finished = true
			mu.Unlock()
			return nil
		},
	})
	s.Start(context.Background())
	<-started
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !finished {
		t.Fatal("expected in-flight handler to finish before Stop returns")
	}
}

func TestValidateScheduleAcceptsIntervalAndCron(t *testing.T) {
	if err := ValidateSchedule("5m"); err != nil {
		t.Fatalf("expected interval to validate, got %v", err)
	}
	if err := ValidateSchedule("*/5 * * * *"); err != nil {
		t.Fatalf("expected cron expression to validate, got %v", err)
	}
	if err := ValidateSchedule("not a schedule"); err == nil {
		t.Fatal("expected invalid schedule to error")
	}
}
