package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/torosent/concbench/internal/executor"
	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/runner"
	"github.com/torosent/concbench/internal/workload"
)

// seqSampler returns queued heap readings in order and records the reclaim flags it saw.
type seqSampler struct {
	mu       sync.Mutex
	values   []uint64
	reclaims []bool
}

func (s *seqSampler) Sample(reclaim bool) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reclaims = append(s.reclaims, reclaim)
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

func flatSampler() metrics.MemorySampler {
	return metrics.SamplerFunc(func(bool) uint64 { return 0 })
}

// lightOptions keeps the CPU loop short so timing reflects the simulated wait.
func lightOptions() runner.Options {
	return runner.Options{Iterations: 1000, Sampler: flatSampler()}
}

func TestRunPassesThroughParameters(t *testing.T) {
	r := runner.New(lightOptions())
	params := runner.Params{Requests: 20, Delay: 10 * time.Millisecond}

	for _, model := range []executor.Model{executor.Bounded(5), executor.Unbounded()} {
		res, err := r.Run(context.Background(), model, params)
		if err != nil {
			t.Fatalf("Run(%s) error = %v", model, err)
		}
		if res.ThreadType != model.Label() {
			t.Errorf("ThreadType = %q, want %q", res.ThreadType, model.Label())
		}
		if res.Requests != 20 || res.DelayMs != 10 {
			t.Errorf("Requests/DelayMs = %d/%d, want 20/10", res.Requests, res.DelayMs)
		}
		if res.TotalTimeMs < 10 {
			t.Errorf("TotalTimeMs = %d, want >= delay", res.TotalTimeMs)
		}
		if res.AvgTimePerRequestMs != float64(res.TotalTimeMs)/20 {
			t.Errorf("AvgTimePerRequestMs = %v, want %v", res.AvgTimePerRequestMs, float64(res.TotalTimeMs)/20)
		}
		if res.ThroughputRPS != 20*1000/float64(res.TotalTimeMs) {
			t.Errorf("ThroughputRPS = %v, want %v", res.ThroughputRPS, 20*1000/float64(res.TotalTimeMs))
		}
		if res.ID == "" {
			t.Error("expected result ID")
		}
		if res.Units == nil || res.Units.Successes != 20 {
			t.Errorf("Units = %+v, want 20 successes", res.Units)
		}
	}
}

func TestRunPoolSizeOnlyForBounded(t *testing.T) {
	r := runner.New(lightOptions())
	params := runner.Params{Requests: 4, Delay: 2 * time.Millisecond}

	bounded, err := r.Platform(context.Background(), params, 3)
	if err != nil {
		t.Fatalf("Platform() error = %v", err)
	}
	if bounded.PoolSize != 3 {
		t.Errorf("bounded PoolSize = %d, want 3", bounded.PoolSize)
	}
	unbounded, err := r.Virtual(context.Background(), params)
	if err != nil {
		t.Fatalf("Virtual() error = %v", err)
	}
	if unbounded.PoolSize != 0 {
		t.Errorf("unbounded PoolSize = %d, want 0", unbounded.PoolSize)
	}
}

func TestRunStructuralFieldsAreIdempotent(t *testing.T) {
	r := runner.New(lightOptions())
	params := runner.Params{Requests: 8, Delay: 5 * time.Millisecond}

	first, err := r.Virtual(context.Background(), params)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := r.Virtual(context.Background(), params)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ThreadType != second.ThreadType || first.Requests != second.Requests || first.DelayMs != second.DelayMs {
		t.Fatalf("structural fields differ: %+v vs %+v", first, second)
	}
	if first.ID == second.ID {
		t.Fatal("each run should get its own ID")
	}
}

func TestSingleRequestTakesAboutOneDelay(t *testing.T) {
	r := runner.New(lightOptions())
	res, err := r.Virtual(context.Background(), runner.Params{Requests: 1, Delay: 40 * time.Millisecond})
	if err != nil {
		t.Fatalf("Virtual() error = %v", err)
	}
	if res.TotalTimeMs < 40 || res.TotalTimeMs > 200 {
		t.Fatalf("TotalTimeMs = %d, want about 40", res.TotalTimeMs)
	}
}

func TestBoundedPlateausWhileUnboundedDoesNot(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	r := runner.New(lightOptions())
	params := runner.Params{Requests: 500, Delay: 50 * time.Millisecond}

	bounded, err := r.Platform(context.Background(), params, 200)
	if err != nil {
		t.Fatalf("Platform() error = %v", err)
	}
	unbounded, err := r.Virtual(context.Background(), params)
	if err != nil {
		t.Fatalf("Virtual() error = %v", err)
	}

	// 500 units over 200 workers need three waves of 50ms.
	if bounded.TotalTimeMs < 150 {
		t.Errorf("bounded TotalTimeMs = %d, want >= 150", bounded.TotalTimeMs)
	}
	if unbounded.TotalTimeMs < 50 || unbounded.TotalTimeMs >= 150 {
		t.Errorf("unbounded TotalTimeMs = %d, want in [50, 150)", unbounded.TotalTimeMs)
	}
	if unbounded.ThroughputRPS <= bounded.ThroughputRPS {
		t.Errorf("unbounded throughput %.1f should exceed bounded %.1f", unbounded.ThroughputRPS, bounded.ThroughputRPS)
	}
}

func TestRunMemoryDeltaFromSampler(t *testing.T) {
	tests := []struct {
		name   string
		values []uint64
		want   int64
	}{
		{"growth", []uint64{1000, 3000}, 2000},
		{"collected during run", []uint64{5000, 1000}, -4000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := &seqSampler{values: tt.values}
			opts := lightOptions()
			opts.Sampler = sampler
			res, err := runner.New(opts).Virtual(context.Background(), runner.Params{Requests: 2, Delay: 2 * time.Millisecond})
			if err != nil {
				t.Fatalf("Virtual() error = %v", err)
			}
			if res.MemoryUsedBytes != tt.want {
				t.Errorf("MemoryUsedBytes = %d, want %d", res.MemoryUsedBytes, tt.want)
			}
			if len(sampler.reclaims) != 2 || !sampler.reclaims[0] || sampler.reclaims[1] {
				t.Errorf("reclaim flags = %v, want [true false]", sampler.reclaims)
			}
		})
	}
}

func TestRunAbsorbsUnitFailures(t *testing.T) {
	var calls atomic.Int64
	opts := lightOptions()
	opts.TaskFactory = func(delay time.Duration) workload.Task {
		return workload.TaskFunc(func(ctx context.Context) error {
			time.Sleep(delay)
			if calls.Add(1)%2 == 0 {
				return errors.New("boom")
			}
			return nil
		})
	}

	res, err := runner.New(opts).Platform(context.Background(), runner.Params{Requests: 10, Delay: 2 * time.Millisecond}, 3)
	if err != nil {
		t.Fatalf("Platform() error = %v", err)
	}
	if res.Units.Failures != 5 || res.Units.Successes != 5 {
		t.Fatalf("Units = %+v, want 5 failures and 5 successes", res.Units)
	}
	if res.Requests != 10 {
		t.Fatalf("Requests = %d, want 10", res.Requests)
	}
}

func TestRunCancelledBatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	r := runner.New(lightOptions())
	start := time.Now()
	res, err := r.Platform(ctx, runner.Params{Requests: 10, Delay: time.Second}, 2)
	if !errors.Is(err, runner.ErrBatchCancelled) {
		t.Fatalf("Platform() error = %v, want ErrBatchCancelled", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should carry the context cause: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("cancelled run took %s", elapsed)
	}
	if res.Units == nil || res.Units.Cancelled != 10 || res.Units.Successes != 0 {
		t.Fatalf("Units = %+v, want all 10 cancelled", res.Units)
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	r := runner.New(lightOptions())

	if _, err := r.Virtual(context.Background(), runner.Params{Requests: 0, Delay: time.Millisecond}); !errors.Is(err, runner.ErrInvalidParameters) {
		t.Errorf("zero requests error = %v, want ErrInvalidParameters", err)
	}
	if _, err := r.Platform(context.Background(), runner.Params{Requests: 1, Delay: time.Millisecond}, 0); !errors.Is(err, executor.ErrInvalidPoolSize) {
		t.Errorf("zero pool error = %v, want ErrInvalidPoolSize", err)
	}
	if _, err := r.Run(context.Background(), executor.Model{}, runner.Params{Requests: 1, Delay: time.Millisecond}); !errors.Is(err, executor.ErrInvalidModel) {
		t.Errorf("zero model error = %v, want ErrInvalidModel", err)
	}
}

func frozenClock() func() time.Time {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return func() time.Time { return at }
}

func TestRunZeroElapsedIsRejected(t *testing.T) {
	opts := lightOptions()
	opts.Now = frozenClock()
	res, err := runner.New(opts).Virtual(context.Background(), runner.Params{Requests: 50, Delay: 0})
	if !errors.Is(err, metrics.ErrZeroElapsed) {
		t.Fatalf("Virtual() error = %v, want ErrZeroElapsed", err)
	}
	if errors.Is(err, runner.ErrBatchCancelled) {
		t.Fatalf("completed batch reported as cancelled: %v", err)
	}
	if res.ID != "" || res.Units != nil {
		t.Fatalf("zero-elapsed run returned a result: %+v", res)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, tt := range []struct {
		name string
		now  func() time.Time
	}{
		{"frozen clock", frozenClock()},
		{"wall clock", nil},
	} {
		t.Run(tt.name, func(t *testing.T) {
			opts := lightOptions()
			opts.Now = tt.now
			res, err := runner.New(opts).Platform(ctx, runner.Params{Requests: 50, Delay: time.Second}, 4)
			if !errors.Is(err, runner.ErrBatchCancelled) {
				t.Fatalf("Platform() error = %v, want ErrBatchCancelled", err)
			}
			if !errors.Is(err, context.Canceled) {
				t.Errorf("error should carry the context cause: %v", err)
			}
			if errors.Is(err, metrics.ErrZeroElapsed) {
				t.Errorf("cancelled run reported as zero elapsed: %v", err)
			}
			if res.ID == "" || res.ThreadType != "Platform Threads" || res.Requests != 50 || res.PoolSize != 4 {
				t.Fatalf("partial result = %+v", res)
			}
			if res.Units == nil || res.Units.Cancelled != 50 {
				t.Fatalf("Units = %+v, want all 50 cancelled", res.Units)
			}
		})
	}
}

func TestRunHooksSeeLiveRun(t *testing.T) {
	var started, finished atomic.Int32
	var sawRequests atomic.Int64
	opts := lightOptions()
	opts.OnStart = func(l runner.Live) {
		started.Add(1)
		sawRequests.Store(int64(l.Requests))
		if l.Collector == nil {
			t.Error("Live.Collector is nil")
		}
		if l.InFlight() < 0 {
			t.Error("negative in-flight count")
		}
	}
	opts.OnFinish = func(l runner.Live) {
		finished.Add(1)
		if got := l.Collector.Stats(0).Successes; got != 6 {
			t.Errorf("collector successes at finish = %d, want 6", got)
		}
		if l.InFlight() != 0 {
			t.Errorf("InFlight() at finish = %d, want 0", l.InFlight())
		}
	}

	if _, err := runner.New(opts).Virtual(context.Background(), runner.Params{Requests: 6, Delay: 3 * time.Millisecond}); err != nil {
		t.Fatalf("Virtual() error = %v", err)
	}
	if started.Load() != 1 || finished.Load() != 1 {
		t.Fatalf("hooks called start=%d finish=%d, want 1 each", started.Load(), finished.Load())
	}
	if sawRequests.Load() != 6 {
		t.Fatalf("Live.Requests = %d, want 6", sawRequests.Load())
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	r := runner.New(lightOptions())
	params := runner.Params{Requests: 30, Delay: 5 * time.Millisecond}

	var wg sync.WaitGroup
	results := make([]metrics.RunResult, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i], errs[i] = r.Platform(context.Background(), params, 4)
			} else {
				results[i], errs[i] = r.Virtual(context.Background(), params)
			}
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if errs[i] != nil {
			t.Fatalf("run %d error = %v", i, errs[i])
		}
		if res.Units.Total != 30 || res.Units.Successes != 30 {
			t.Errorf("run %d units = %+v, want 30 successes", i, res.Units)
		}
	}
}

func TestCompare(t *testing.T) {
	const mib = 1024 * 1024
	sampler := &seqSampler{values: []uint64{0, 4 * mib, 0, 1 * mib}}
	opts := lightOptions()
	opts.Sampler = sampler

	report, err := runner.New(opts).Compare(context.Background(), runner.Params{Requests: 40, Delay: 10 * time.Millisecond}, 10)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if report.Platform.ThreadType != executor.LabelBounded || report.Virtual.ThreadType != executor.LabelUnbounded {
		t.Fatalf("thread types = %q/%q", report.Platform.ThreadType, report.Virtual.ThreadType)
	}
	wantRatio := float64(report.Platform.TotalTimeMs) / float64(report.Virtual.TotalTimeMs)
	if report.Comparison.TimeRatio != wantRatio {
		t.Errorf("TimeRatio = %v, want %v", report.Comparison.TimeRatio, wantRatio)
	}
	if report.Comparison.MemoryDifferenceMB != 3 {
		t.Errorf("MemoryDifferenceMB = %v, want 3", report.Comparison.MemoryDifferenceMB)
	}
	// Four waves of 10ms on the bounded pool against one wave unbounded.
	if report.Comparison.TimeRatio <= 1 {
		t.Errorf("TimeRatio = %v, want > 1", report.Comparison.TimeRatio)
	}
}

func TestCompareStopsOnFirstFailure(t *testing.T) {
	r := runner.New(lightOptions())
	_, err := r.Compare(context.Background(), runner.Params{Requests: 1, Delay: time.Millisecond}, 0)
	if !errors.Is(err, executor.ErrInvalidPoolSize) {
		t.Fatalf("Compare() error = %v, want ErrInvalidPoolSize", err)
	}
}

func TestRunLogsAndTraces(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	opts := lightOptions()
	opts.Logger = zap.New(core)
	opts.Tracer = tp.Tracer("test")
	opts.LogErrors = true
	opts.TaskFactory = func(time.Duration) workload.Task {
		return workload.TaskFunc(func(context.Context) error {
			time.Sleep(2 * time.Millisecond)
			return errors.New("disk on fire")
		})
	}

	if _, err := runner.New(opts).Compare(context.Background(), runner.Params{Requests: 2, Delay: time.Millisecond}, 1); err != nil {
		t.Fatalf("Compare() error = %v", err)
	}

	if got := logs.FilterMessage("run started").Len(); got != 2 {
		t.Errorf("run started entries = %d, want 2", got)
	}
	if got := logs.FilterMessage("run finished").Len(); got != 2 {
		t.Errorf("run finished entries = %d, want 2", got)
	}
	if got := logs.FilterMessage("work unit failed").Len(); got != 4 {
		t.Errorf("work unit failed entries = %d, want 4", got)
	}
	for _, entry := range logs.FilterMessage("run finished").All() {
		if _, ok := entry.ContextMap()["trace_id"]; !ok {
			t.Errorf("run finished entry missing trace_id: %v", entry.ContextMap())
		}
		if got := entry.ContextMap()["finished"]; got != int64(2) {
			t.Errorf("run finished entry finished = %v, want 2", got)
		}
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}
	names := map[string]bool{}
	for _, s := range spans {
		names[s.Name] = true
	}
	for _, want := range []string{"compare", "run platform", "run virtual"} {
		if !names[want] {
			t.Errorf("missing span %q in %v", want, names)
		}
	}
}
