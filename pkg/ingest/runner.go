package ingest

import (
	"context"
	"runtime"
	"sync"

	pferrors "github.com/logflow/poflow/pkg/errors"
)

// ErrQueueFull is returned by Submit when every queue slot is taken.
var ErrQueueFull = pferrors.New(pferrors.CodeQueueFull, "import queue is full")

// ErrRunnerClosed is returned by Submit after Shutdown.
var ErrRunnerClosed = pferrors.New(pferrors.CodeStorageUnavailable, "import runner is shut down")

// Task is one unit of background work. The context is the runner's
// lifetime context, not the submitter's request context.
type Task func(ctx context.Context)

// Runner executes import jobs on a fixed pool of workers.
type Runner struct {
	workers int
	tasks   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewRunner starts workers goroutines reading from a queue of queueSize.
func NewRunner(workers, queueSize int) *Runner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 10
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		workers: workers,
		tasks:   make(chan Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.start()
	return r
}

func (r *Runner) start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for task := range r.tasks {
		task(r.ctx)
	}
}

// Submit enqueues task without waiting for a free worker.
func (r *Runner) Submit(task Task) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}
	select {
	case r.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued and running tasks. If ctx
// expires first the runner context is cancelled and ctx.Err() returned.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.tasks)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}
