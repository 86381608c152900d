package runner

import (
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/concbench/internal/executor"
	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/workload"
)

// ErrInvalidParameters is returned when Params cannot produce a meaningful run.
var ErrInvalidParameters = errors.New("invalid run parameters")

// Params are the inputs of one run.
type Params struct {
	Requests int           // work units to submit; must be >= 1
	Delay    time.Duration // simulated blocking wait per unit; must be >= 0
}

func (p Params) Validate() error {
	if p.Requests < 1 {
		return fmt.Errorf("%w: requests must be >= 1, got %d", ErrInvalidParameters, p.Requests)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: delay must be >= 0, got %s", ErrInvalidParameters, p.Delay)
	}
	return nil
}

// Live exposes a run in progress to progress displays.
type Live struct {
	Model     executor.Model
	Requests  int
	Collector *metrics.Collector
	exec      executor.Executor
}

// InFlight reports units currently executing.
func (l Live) InFlight() int64 {
	if l.exec == nil {
		return 0
	}
	return l.exec.InFlight()
}

// Options configure the Runner.
type Options struct {
	Iterations     int                                     // CPU loop length per unit (0 means workload default)
	SubmitRate     int                                     // units dispatched per second (0 means unlimited)
	Sampler        metrics.MemorySampler                   // heap sampler; defaults to metrics.RuntimeSampler
	Logger         *zap.Logger                             // optional
	LogErrors      bool                                    // log each failed unit at warn level
	Tracer         trace.Tracer                            // optional; defaults to a no-op tracer
	LimiterFactory func(rps int) *rate.Limiter             // optional injection for tests
	TaskFactory    func(delay time.Duration) workload.Task // optional; defaults to workload.Synthetic
	OnStart        func(Live)                              // called once the executor accepted the batch
	OnFinish       func(Live)                              // called after the batch finished, before teardown
	Now            func() time.Time                        // clock for run start and end; defaults to time.Now
}

func (o *Options) normalize() {
	if o.Iterations < 0 {
		o.Iterations = 0
	}
	if o.SubmitRate < 0 {
		o.SubmitRate = 0
	}
	if o.Sampler == nil {
		o.Sampler = metrics.RuntimeSampler{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("concbench")
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return nil
			}
			// Burst of one keeps dispatch evenly spaced.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.TaskFactory == nil {
		iterations := o.Iterations
		o.TaskFactory = func(delay time.Duration) workload.Task {
			task := workload.New(delay)
			if iterations > 0 {
				task.Iterations = iterations
			}
			return task
		}
	}
}
