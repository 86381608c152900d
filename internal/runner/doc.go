// Package runner orchestrates benchmark runs of the bounded and unbounded executor models.
//
// A run samples the heap, builds a fresh executor for its model, submits a batch of
// synthetic work units, blocks on the batch's join barrier, releases the executor, samples
// the heap again and derives a [metrics.RunResult]:
//
//	r := runner.New(runner.Options{Logger: logger})
//	res, err := r.Platform(ctx, runner.Params{Requests: 1000, Delay: 100 * time.Millisecond}, 200)
//
// [Runner.Compare] runs both models one after the other with identical parameters and relates
// the two results.
//
// # Failure Model
//
// Work unit failures are absorbed: they are counted in [metrics.UnitStats] and never abort a
// batch. Units are never retried. Parameter, executor and derivation errors are returned to
// the caller. When ctx ends before the batch finishes, the remaining units are cancelled and
// Run returns the partial result together with an error wrapping [ErrBatchCancelled].
package runner
