package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/concbench/internal/executor"
	"github.com/torosent/concbench/internal/logging"
	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/tracing"
	"github.com/torosent/concbench/internal/workload"
)

// ErrBatchCancelled is returned alongside a partial result when the run's context ended
// before every unit finished.
var ErrBatchCancelled = errors.New("batch cancelled before all units finished")

// Runner executes benchmark runs. It holds no per-run state, so one Runner may serve
// concurrent Run calls; each call builds its own executor and collector.
type Runner struct {
	opt Options
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// Platform runs params on a bounded pool of poolSize workers.
func (r *Runner) Platform(ctx context.Context, params Params, poolSize int) (metrics.RunResult, error) {
	return r.Run(ctx, executor.Bounded(poolSize), params)
}

// Virtual runs params with one goroutine per unit.
func (r *Runner) Virtual(ctx context.Context, params Params) (metrics.RunResult, error) {
	return r.Run(ctx, executor.Unbounded(), params)
}

// Run submits params.Requests units under model, waits for all of them and derives the
// result. Unit failures are absorbed into the result; setup and teardown failures are
// returned. The executor is released on every path before the closing memory sample.
func (r *Runner) Run(ctx context.Context, model executor.Model, params Params) (result metrics.RunResult, err error) {
	if err := params.Validate(); err != nil {
		return metrics.RunResult{}, err
	}
	if err := model.Validate(); err != nil {
		return metrics.RunResult{}, err
	}

	poolSize := 0
	if model.Kind == executor.KindBounded {
		poolSize = model.PoolSize
	}

	ctx, span := tracing.StartRunSpan(ctx, r.opt.Tracer, model.Name(), poolSize, params.Requests, params.Delay)
	var outcome executor.Outcome
	defer func() {
		tracing.EndSpan(span, err,
			tracing.AttrTotalMs.Int64(result.TotalTimeMs),
			tracing.AttrFailed.Int64(outcome.Failed),
			tracing.AttrCancelled.Int64(outcome.Cancelled),
		)
	}()

	log := r.opt.Logger.With(zap.String("model", model.Name()))
	if id := tracing.TraceID(ctx); id != "" {
		log = log.With(zap.String("trace_id", id))
	}

	collector := metrics.NewCollector()
	memBefore := r.opt.Sampler.Sample(true)

	exec, err := executor.New(model, executor.Options{
		Observer: collector,
		Limiter:  r.opt.LimiterFactory(r.opt.SubmitRate),
	})
	if err != nil {
		return metrics.RunResult{}, fmt.Errorf("build %s executor: %w", model.Name(), err)
	}
	defer func() { _ = exec.Close() }()

	task := r.opt.TaskFactory(params.Delay)
	if r.opt.LogErrors {
		task = workload.WithLogging(task, logging.FailureLogger{Logger: log, Model: model.Name()})
	}

	log.Info("run started",
		zap.Int("requests", params.Requests),
		zap.Duration("delay", params.Delay),
		zap.Int("pool_size", poolSize),
	)

	collector.Start()
	start := r.opt.Now()
	handle, err := exec.SubmitAll(ctx, params.Requests, task)
	if err != nil {
		return metrics.RunResult{}, fmt.Errorf("submit units: %w", err)
	}
	live := Live{Model: model, Requests: params.Requests, Collector: collector, exec: exec}
	if r.opt.OnStart != nil {
		r.opt.OnStart(live)
	}

	outcome = handle.Await()
	end := r.opt.Now()
	if r.opt.OnFinish != nil {
		r.opt.OnFinish(live)
	}

	if err := exec.Close(); err != nil {
		return metrics.RunResult{}, fmt.Errorf("release executor: %w", err)
	}
	memAfter := r.opt.Sampler.Sample(false)

	sample := metrics.Sample{
		Label:        model.Label(),
		Requests:     params.Requests,
		Delay:        params.Delay,
		Start:        start,
		End:          end,
		MemoryBefore: memBefore,
		MemoryAfter:  memAfter,
	}
	result, err = metrics.Derive(sample)
	if err != nil {
		if outcome.Err == nil {
			return metrics.RunResult{}, err
		}
		// A batch cancelled up front can end within the same millisecond.
		result = metrics.Partial(sample)
	}
	stats := collector.Stats(end.Sub(start))
	result.Units = &stats
	result.ID = ulid.Make().String()
	result.PoolSize = poolSize

	fields := []zap.Field{
		zap.String("id", result.ID),
		zap.Int64("total_time_ms", result.TotalTimeMs),
		zap.Float64("throughput_rps", result.ThroughputRPS),
		zap.Int64("memory_used_bytes", result.MemoryUsedBytes),
		zap.Int64("failed", outcome.Failed),
		zap.Int64("cancelled", outcome.Cancelled),
		zap.Int64("finished", outcome.Finished()),
	}

	if outcome.Err != nil {
		log.Warn("run cancelled", fields...)
		return result, fmt.Errorf("%w: %d of %d units cancelled: %w",
			ErrBatchCancelled, outcome.Cancelled, outcome.Submitted, outcome.Err)
	}
	log.Info("run finished", fields...)
	return result, nil
}

// ComparisonReport holds both runs of a comparison and their relation.
type ComparisonReport struct {
	Platform   metrics.RunResult
	Virtual    metrics.RunResult
	Comparison metrics.Comparison
}

// Compare runs params on the bounded model and then on the unbounded model. The runs are
// sequential so neither competes with the other for the scheduler.
func (r *Runner) Compare(ctx context.Context, params Params, poolSize int) (report ComparisonReport, err error) {
	ctx, span := tracing.StartCompareSpan(ctx, r.opt.Tracer, params.Requests, params.Delay)
	defer func() {
		tracing.EndSpan(span, err, tracing.AttrTimeRatio.Float64(report.Comparison.TimeRatio))
	}()

	report.Platform, err = r.Platform(ctx, params, poolSize)
	if err != nil {
		return report, fmt.Errorf("platform run: %w", err)
	}
	report.Virtual, err = r.Virtual(ctx, params)
	if err != nil {
		return report, fmt.Errorf("virtual run: %w", err)
	}
	report.Comparison, err = metrics.Compare(report.Platform, report.Virtual)
	if err != nil {
		return report, err
	}
	return report, nil
}
