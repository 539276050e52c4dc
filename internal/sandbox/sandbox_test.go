package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestExecuteReturnsOutput(t *testing.T) {
	s := New(Config{})
	defer s.Shutdown()

	res := s.Execute(context.Background(), "1 + 2", Options{})
	if !res.Success || res.Output != "3" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecuteTimesOutLongLoop(t *testing.T) {
	s := New(Config{DefaultTimeout: 50 * time.Millisecond})
	defer s.Shutdown()

	res := s.Execute(context.Background(), "while(true) {}", Options{})
	if res.Success {
		t.Fatal("expected timeout failure")
	}
}

func TestExecuteWithInputExposesBoundName(t *testing.T) {
	s := New(Config{})
	defer s.Shutdown()

	res := s.ExecuteWithInput(context.Background(), "input.toUpperCase()", "hello", Options{})
	if !res.Success || res.Output != "HELLO" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExecuteSyntaxErrorReturnsStructuredFailure(t *testing.T) {
	s := New(Config{})
	defer s.Shutdown()

	res := s.Execute(context.Background(), "this is not valid js (((", Options{})
	if res.Success || res.Error == "" {
		t.Fatalf("expected structured failure, got %+v", res)
	}
}

func TestTimeoutClampedToMax(t *testing.T) {
	s := New(Config{MaxTimeout: 100 * time.Millisecond})
	defer s.Shutdown()

	got := s.resolveTimeout(Options{TimeoutMs: 10000})
	if got != 100*time.Millisecond {
		t.Fatalf("expected clamp to max, got %s", got)
	}
}
