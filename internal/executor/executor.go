// Package executor runs batches of work units under a bounded or unbounded concurrency model.
//
// Both strategies share one contract: SubmitAll hands over n copies of a task and returns a
// JoinHandle whose Await blocks until every unit has completed, failed or been cancelled.
// A failing unit never aborts its batch. An executor belongs to exactly one run and must be
// closed when that run ends; Close is safe to call on any path and more than once.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/concbench/internal/workload"
)

var (
	ErrClosed       = errors.New("executor is closed")
	ErrInvalidCount = errors.New("unit count must be >= 0")
)

// Observer receives the outcome of every unit. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveUnit(latency time.Duration, err error)
}

// Options configure an executor.
type Options struct {
	Observer Observer      // optional per-unit sink
	Limiter  *rate.Limiter // optional dispatch pacing; nil means unlimited
}

// Executor runs batches of units.
type Executor interface {
	SubmitAll(ctx context.Context, n int, task workload.Task) (*JoinHandle, error)
	// InFlight reports units currently executing.
	InFlight() int64
	Close() error
}

// New builds the executor for model.
func New(model Model, opts Options) (Executor, error) {
	if err := model.Validate(); err != nil {
		return nil, err
	}
	switch model.Kind {
	case KindBounded:
		return newBounded(model.PoolSize, opts), nil
	case KindUnbounded:
		return newUnbounded(opts), nil
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrInvalidModel, model.Kind)
	}
}

// PanicError wraps a value recovered from a panicking unit.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("work unit panicked: %v", e.Value)
}

// Outcome summarises a finished batch. Err is the batch's own cancellation state.
type Outcome struct {
	Submitted int64
	Completed int64
	Failed    int64
	Cancelled int64
	Err       error
}

// Finished is the number of units that reached a terminal state.
func (o Outcome) Finished() int64 {
	return o.Completed + o.Failed + o.Cancelled
}

// JoinHandle is the join barrier of one batch.
type JoinHandle struct {
	done    chan struct{}
	outcome Outcome
}

// Await blocks until every unit of the batch has finished.
func (h *JoinHandle) Await() Outcome {
	<-h.done
	return h.outcome
}

// batch tracks the units of one SubmitAll call.
type batch struct {
	ctx       context.Context
	stop      <-chan struct{}
	observer  Observer
	inflight  *atomic.Int64
	wg        sync.WaitGroup
	submitted int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	handle    *JoinHandle
}

func newBatch(ctx context.Context, n int, stop <-chan struct{}, observer Observer, inflight *atomic.Int64) *batch {
	b := &batch{
		ctx:       ctx,
		stop:      stop,
		observer:  observer,
		inflight:  inflight,
		submitted: int64(n),
		handle:    &JoinHandle{done: make(chan struct{})},
	}
	b.wg.Add(n)
	go b.finish()
	return b
}

func (b *batch) finish() {
	b.wg.Wait()
	b.handle.outcome = Outcome{
		Submitted: b.submitted,
		Completed: b.completed.Load(),
		Failed:    b.failed.Load(),
		Cancelled: b.cancelled.Load(),
		Err:       b.ctx.Err(),
	}
	close(b.handle.done)
}

// run executes one unit and records its outcome.
func (b *batch) run(task workload.Task) {
	defer b.wg.Done()
	if reason := b.stopped(); reason != nil {
		b.record(0, fmt.Errorf("%w: %w", workload.ErrCancelled, reason))
		return
	}

	b.inflight.Add(1)
	defer b.inflight.Add(-1)

	start := time.Now()
	err := safeDo(b.ctx, task)
	b.record(time.Since(start), err)
}

// abandon accounts for count units that were never dispatched.
func (b *batch) abandon(count int, reason error) {
	err := fmt.Errorf("%w: %w", workload.ErrCancelled, reason)
	for i := 0; i < count; i++ {
		b.record(0, err)
		b.wg.Done()
	}
}

func (b *batch) stopped() error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-b.stop:
		return ErrClosed
	default:
		return nil
	}
}

func (b *batch) record(latency time.Duration, err error) {
	switch {
	case err == nil:
		b.completed.Add(1)
	case workload.IsCancelled(err):
		b.cancelled.Add(1)
	default:
		b.failed.Add(1)
	}
	if b.observer != nil {
		b.observer.ObserveUnit(latency, err)
	}
}

// pace blocks until the limiter admits the next dispatch.
func (b *batch) pace(limiter *rate.Limiter) error {
	if limiter == nil {
		return b.stopped()
	}
	if err := limiter.Wait(b.ctx); err != nil {
		if ctxErr := b.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return b.stopped()
}

func safeDo(ctx context.Context, task workload.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	if task == nil {
		return errors.New("nil task")
	}
	return task.Do(ctx)
}
