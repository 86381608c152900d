package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/concbench/internal/workload"
)

// unboundedExecutor starts a fresh goroutine for every unit. The errgroup is the bookkeeping
// set used to release everything on Close; units never return errors to it, so one failure
// cannot cancel its siblings.
type unboundedExecutor struct {
	opts  Options
	quit  chan struct{}
	group errgroup.Group

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	inflight  atomic.Int64
}

func newUnbounded(opts Options) *unboundedExecutor {
	return &unboundedExecutor{
		opts: opts,
		quit: make(chan struct{}),
	}
}

func (e *unboundedExecutor) SubmitAll(ctx context.Context, n int, task workload.Task) (*JoinHandle, error) {
	if n < 0 {
		return nil, ErrInvalidCount
	}
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}

	b := newBatch(ctx, n, e.quit, e.opts.Observer, &e.inflight)
	e.group.Go(func() error {
		for i := 0; i < n; i++ {
			if err := b.pace(e.opts.Limiter); err != nil {
				b.abandon(n-i, err)
				return nil
			}
			e.group.Go(func() error {
				b.run(task)
				return nil
			})
		}
		return nil
	})

	return b.handle, nil
}

func (e *unboundedExecutor) InFlight() int64 {
	return e.inflight.Load()
}

// Close stops spawning and waits for every started goroutine to return.
func (e *unboundedExecutor) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.quit)
		e.mu.Unlock()

		err = e.group.Wait()
	})
	return err
}
