package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestPool_ExecutesSubmittedTasks verifies every accepted task runs.
func TestPool_ExecutesSubmittedTasks(t *testing.T) {
	t.Parallel()

	p := NewPool(2, 16, nil)

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt64(&ran, 1)
			return nil
		})
		if !ok {
			t.Fatal("expected task accepted")
		}
	}
	wg.Wait()

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := atomic.LoadInt64(&ran); got != 10 {
		t.Errorf("expected 10 tasks run, got %d", got)
	}
}

// TestPool_SubmitNeverBlocks verifies a full queue drops the task and
// reports the drop instead of blocking the caller.
func TestPool_SubmitNeverBlocks(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 1, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	// Occupy the single worker and wait until it has dequeued the task so
	// the queue state below is deterministic.
	p.Submit(func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	// Fill the queue of depth 1.
	if !p.Submit(func(ctx context.Context) error { return nil }) {
		t.Fatal("expected queue slot available")
	}

	done := make(chan bool, 1)
	go func() {
		done <- p.Submit(func(ctx context.Context) error { return nil })
	}()
	select {
	case ok := <-done:
		if ok {
			t.Error("expected drop on full queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(release)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// TestPool_SurvivesPanicAndError verifies a panicking or failing task never
// kills its worker.
func TestPool_SurvivesPanicAndError(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 16, nil)

	p.Submit(func(ctx context.Context) error { panic("boom") })
	p.Submit(func(ctx context.Context) error { return errors.New("task error") })

	ran := make(chan struct{})
	p.Submit(func(ctx context.Context) error {
		close(ran)
		return nil
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// TestPool_StopDrainsQueue verifies Stop waits for queued tasks.
func TestPool_StopDrainsQueue(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 16, nil)

	var ran int64
	for i := 0; i < 5; i++ {
		p.Submit(func(ctx context.Context) error {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&ran, 1)
			return nil
		})
	}

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := atomic.LoadInt64(&ran); got != 5 {
		t.Errorf("expected all queued tasks drained, got %d", got)
	}
}

// TestPool_StopTimeout verifies Stop honors the context deadline when a
// task refuses to finish.
func TestPool_StopTimeout(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 4, nil)

	release := make(chan struct{})
	defer close(release)
	p.Submit(func(ctx context.Context) error {
		<-release
		return nil
	})
	// Give the worker time to pick up the blocking task.
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Stop(ctx); err == nil {
		t.Error("expected drain timeout error")
	}
}

// TestPool_StopIdempotent verifies calling Stop twice is safe.
func TestPool_StopIdempotent(t *testing.T) {
	t.Parallel()

	p := NewPool(1, 4, nil)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
