package sessionqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEnqueueRunsAllWorkForKey(t *testing.T) {
	q := New(10)
	defer q.Stop()

	var mu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), "user-1", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				order = append(order, n)
				mu.Unlock()
				return n, nil
			})
			if err != nil {
				t.Errorf("enqueue %d: %v", n, err)
			}
		}()
		time.Sleep(time.Millisecond) // encourage submission order
	}
	wg.Wait()

	if len(order) != 5 {
		t.Fatalf("expected 5 completions, got %d", len(order))
	}
}

func TestEnqueueDifferentKeysConcurrent(t *testing.T) {
	q := New(10)
	defer q.Stop()

	var running int32
	var maxRunning int32
	release := make(chan struct{})

	run := func(ctx context.Context) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			cur := atomic.LoadInt32(&maxRunning)
			if n <= cur || atomic.CompareAndSwapInt32(&maxRunning, cur, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil, nil
	}

	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		k := key
		go func() {
			defer wg.Done()
			q.Enqueue(context.Background(), k, run)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if atomic.LoadInt32(&maxRunning) < 2 {
		t.Fatalf("expected concurrent execution across distinct keys, max concurrent=%d", maxRunning)
	}
}

func TestStopRejectsFurtherWork(t *testing.T) {
	q := New(10)
	q.Stop()

	_, err := q.Enqueue(context.Background(), "x", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if err != ErrQueueStopped {
		t.Fatalf("expected ErrQueueStopped, got %v", err)
	}
}

func TestTooManyActiveRejected(t *testing.T) {
	q := New(1)
	defer q.Stop()

	block := make(chan struct{})
	done := make(chan struct{})
	go func() {
		q.Enqueue(context.Background(), "busy", func(ctx context.Context) (interface{}, error) {
			<-block
			return nil, nil
		})
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := q.Enqueue(context.Background(), "busy", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if err != ErrTooManyActive {
		t.Fatalf("expected ErrTooManyActive, got %v", err)
	}
	close(block)
	<-done
}
