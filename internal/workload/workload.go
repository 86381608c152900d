// Package workload defines the synthetic unit of work executed by every benchmark run.
//
// A unit first waits for a fixed delay, standing in for an I/O call, and then burns a fixed
// amount of CPU. The mix is what separates a bounded worker pool, which parks a scarce worker
// for the whole wait, from a goroutine-per-task model, which does not.
package workload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultIterations is the CPU loop length used when Synthetic.Iterations is zero.
const DefaultIterations = 100_000

var (
	// ErrCancelled marks a unit whose wait was interrupted before it could run.
	ErrCancelled = errors.New("work unit cancelled")
	// ErrImpossibleResult is returned if the accumulated value is negative.
	ErrImpossibleResult = errors.New("work unit produced a negative accumulation")
)

// Task abstracts executing a single unit of work.
// Implementations should return an error for failed units.
type Task interface {
	Do(ctx context.Context) error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Do(ctx context.Context) error { return f(ctx) }

// Synthetic sleeps for Delay and then accumulates square roots.
type Synthetic struct {
	Delay      time.Duration
	Iterations int
}

// New returns a Synthetic unit with the default CPU loop length.
func New(delay time.Duration) Synthetic {
	return Synthetic{Delay: delay, Iterations: DefaultIterations}
}

func (s Synthetic) Do(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := wait(ctx, s.Delay); err != nil {
		return err
	}

	n := s.Iterations
	if n <= 0 {
		n = DefaultIterations
	}
	result := Accumulate(n)
	// The result must be read or the loop is dead code.
	if result < 0 {
		return ErrImpossibleResult
	}
	return nil
}

// Accumulate sums sqrt(i) for i in [0, n).
func Accumulate(n int) float64 {
	var result float64
	for i := 0; i < n; i++ {
		result += math.Sqrt(float64(i))
	}
	return result
}

func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
}

// IsCancelled reports whether err came from an interrupted unit.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
