package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/torosent/concbench/internal/workload"
)

// boundedExecutor is a fixed set of long-lived workers draining a shared queue.
// Units beyond the pool size wait in the queue until a worker frees up.
type boundedExecutor struct {
	opts Options
	jobs chan func()
	quit chan struct{}

	mu          sync.Mutex
	closed      bool
	closeOnce   sync.Once
	dispatchers sync.WaitGroup
	workers     sync.WaitGroup
	inflight    atomic.Int64
}

func newBounded(size int, opts Options) *boundedExecutor {
	e := &boundedExecutor{
		opts: opts,
		jobs: make(chan func(), size),
		quit: make(chan struct{}),
	}
	e.workers.Add(size)
	for i := 0; i < size; i++ {
		go func() {
			defer e.workers.Done()
			for job := range e.jobs {
				job()
			}
		}()
	}
	return e
}

func (e *boundedExecutor) SubmitAll(ctx context.Context, n int, task workload.Task) (*JoinHandle, error) {
	if n < 0 {
		return nil, ErrInvalidCount
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.dispatchers.Add(1)
	e.mu.Unlock()

	b := newBatch(ctx, n, e.quit, e.opts.Observer, &e.inflight)
	job := func() { b.run(task) }

	// Dispatcher: feeds the queue so SubmitAll never blocks on busy workers.
	go func() {
		defer e.dispatchers.Done()
		for i := 0; i < n; i++ {
			if err := b.pace(e.opts.Limiter); err != nil {
				b.abandon(n-i, err)
				return
			}
			select {
			case e.jobs <- job:
			case <-ctx.Done():
				b.abandon(n-i, ctx.Err())
				return
			case <-e.quit:
				b.abandon(n-i, ErrClosed)
				return
			}
		}
	}()

	return b.handle, nil
}

func (e *boundedExecutor) InFlight() int64 {
	return e.inflight.Load()
}

// Close stops dispatching, lets workers drain the queue and waits for them to exit.
// Queued units that have not started are recorded as cancelled.
func (e *boundedExecutor) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.quit)
		e.mu.Unlock()

		e.dispatchers.Wait()
		close(e.jobs)
		e.workers.Wait()
	})
	return nil
}
