// Package worker provides the bounded background task pool used by the chat
// webhook. The HTTP handler submits a unit of work and returns immediately;
// workers drain the queue in their own goroutines. Task failures and panics
// are logged and swallowed — the webhook caller has already disconnected,
// so there is nobody to surface them to.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// Task is one unit of background work. Once started a task runs to
// completion or failure; there is no external cancel signal.
type Task func(ctx context.Context) error

// Pool is a fixed-size worker pool over a bounded task queue.
type Pool struct {
	// tasks is the bounded queue of pending work.
	tasks chan Task
	// wg tracks running workers for graceful drain.
	wg sync.WaitGroup
	// log is the structured logger shared by all workers.
	log *slog.Logger
	// stopOnce guards channel close during shutdown.
	stopOnce sync.Once
}

// NewPool starts size workers draining a queue of depth queueDepth.
// Defaults: 4 workers, queue depth 64.
func NewPool(size, queueDepth int, log *slog.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if queueDepth <= 0 {
		queueDepth = 64
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Pool{
		tasks: make(chan Task, queueDepth),
		log:   log,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run(i)
	}

	return p
}

// Submit enqueues a task without blocking. Returns false when the queue is
// full; the task is dropped and the caller decides whether that matters.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		p.log.Warn("worker: queue full, task dropped")
		return false
	}
}

// run is the worker loop. It exits when the task channel is closed and drained.
func (p *Pool) run(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.execute(id, task)
	}
}

// execute runs one task, converting panics to logged errors so a bad task
// never kills the worker.
func (p *Pool) execute(id int, task Task) {
	ctx := logging.WithLogger(context.Background(), p.log)

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker: task panicked",
				slog.Int("worker", id),
				slog.Any("panic", r),
			)
		}
	}()

	if err := task(ctx); err != nil {
		p.log.Error("worker: task failed",
			slog.Int("worker", id),
			slog.Any("error", err),
		)
	}
}

// Stop closes the queue and waits for in-flight and queued tasks to finish,
// or for ctx to expire, whichever comes first.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.tasks) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker: drain timed out: %w", ctx.Err())
	}
}
