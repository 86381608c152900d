package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/concbench/internal/config"
	"github.com/torosent/concbench/internal/dashboard"
	"github.com/torosent/concbench/internal/executor"
	"github.com/torosent/concbench/internal/history"
	"github.com/torosent/concbench/internal/logging"
	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/output"
	"github.com/torosent/concbench/internal/promexport"
	"github.com/torosent/concbench/internal/runner"
	"github.com/torosent/concbench/internal/threshold"
	"github.com/torosent/concbench/internal/tracing"
)

const (
	progressInterval = 250 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
)

// iteration is the outcome of one repetition: one run, or the two runs of a comparison.
type iteration struct {
	runs []metrics.RunResult
	cmp  *metrics.Comparison
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	if cfg.BrowsingHistory() {
		return browseHistory(stdout, cfg)
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	if provider.Enabled() {
		log.Info("exporting traces",
			zap.String("endpoint", cfg.Tracing.Endpoint),
			zap.String("protocol", cfg.Tracing.Protocol))
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	disp, err := newDisplay(cfg, stderr, cancel)
	if err != nil {
		return err
	}

	r := runner.New(runner.Options{
		Iterations: cfg.Iterations,
		SubmitRate: cfg.SubmitRate,
		Logger:     log,
		LogErrors:  cfg.LogErrors,
		Tracer:     provider.Tracer(),
		OnStart:    disp.attach,
		OnFinish:   disp.detach,
	})
	params := runner.Params{Requests: cfg.Requests, Delay: cfg.Delay()}

	var iterations []iteration
	var runErr error
	for i := 0; i < cfg.Repeat; i++ {
		it, err := execute(ctx, r, cfg, params)
		for _, res := range it.runs {
			disp.result(res)
		}
		if len(it.runs) > 0 {
			iterations = append(iterations, it)
		}
		if err != nil {
			runErr = err
			break
		}
	}
	disp.stop()

	if err := writeResults(stdout, cfg, iterations); err != nil {
		return err
	}

	results := evaluateThresholds(thresholds, iterations)
	thresholdOut := stdout
	if cfg.Format() != config.OutputText {
		thresholdOut = stderr
	}
	output.PrintThresholds(thresholdOut, results)

	if err := writeArtifacts(cfg, log, iterations, results); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if failed := threshold.Failed(results); failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	if failed := failedUnits(iterations); failed > 0 {
		return fmt.Errorf("%d work units failed", failed)
	}
	return nil
}

func execute(ctx context.Context, r *runner.Runner, cfg *config.Config, params runner.Params) (iteration, error) {
	if cfg.Model != config.ModelCompare {
		model, err := executor.ParseModel(string(cfg.Model), cfg.PoolSize)
		if err != nil {
			return iteration{}, err
		}
		res, err := r.Run(ctx, model, params)
		return single(res), err
	}
	report, err := r.Compare(ctx, params, cfg.PoolSize)
	if err != nil {
		return iteration{runs: partialRuns(report)}, err
	}
	return iteration{
		runs: []metrics.RunResult{report.Platform, report.Virtual},
		cmp:  &report.Comparison,
	}, nil
}

// single wraps a run result; a zero result from a failed setup is dropped.
func single(res metrics.RunResult) iteration {
	if res.ID == "" {
		return iteration{}
	}
	return iteration{runs: []metrics.RunResult{res}}
}

func partialRuns(report runner.ComparisonReport) []metrics.RunResult {
	var runs []metrics.RunResult
	for _, res := range []metrics.RunResult{report.Platform, report.Virtual} {
		if res.ID != "" {
			runs = append(runs, res)
		}
	}
	return runs
}

func writeResults(w io.Writer, cfg *config.Config, iterations []iteration) error {
	switch cfg.Format() {
	case config.OutputJSON, config.OutputYAML:
		docs := make([]any, 0, len(iterations))
		for _, it := range iterations {
			docs = append(docs, document(it)...)
		}
		var v any = docs
		if len(docs) == 1 {
			v = docs[0]
		}
		if cfg.Format() == config.OutputYAML {
			return output.PrintYAMLReport(w, v)
		}
		return output.PrintJSONReport(w, v)
	default:
		for i, it := range iterations {
			if len(iterations) > 1 {
				fmt.Fprintf(w, "\n=== Iteration %d/%d ===\n", i+1, len(iterations))
			}
			if it.cmp != nil {
				output.PrintComparison(w, output.NewComparisonDocument(it.runs[0], it.runs[1], *it.cmp))
				continue
			}
			for _, res := range it.runs {
				output.PrintResult(w, res)
			}
		}
		return nil
	}
}

func document(it iteration) []any {
	if it.cmp != nil {
		return []any{output.NewComparisonDocument(it.runs[0], it.runs[1], *it.cmp)}
	}
	docs := make([]any, 0, len(it.runs))
	for _, res := range it.runs {
		docs = append(docs, res)
	}
	return docs
}

func evaluateThresholds(thresholds []threshold.Threshold, iterations []iteration) []threshold.Result {
	if len(thresholds) == 0 {
		return nil
	}
	evaluator := threshold.NewEvaluator(thresholds)
	var results []threshold.Result
	for _, it := range iterations {
		for _, res := range it.runs {
			results = append(results, evaluator.Evaluate(res)...)
		}
		if it.cmp != nil {
			results = append(results, evaluator.EvaluateComparison(*it.cmp)...)
		}
	}
	return results
}

func writeArtifacts(cfg *config.Config, log *zap.Logger, iterations []iteration, results []threshold.Result) error {
	if len(iterations) == 0 {
		return nil
	}
	var allRuns []metrics.RunResult
	for _, it := range iterations {
		allRuns = append(allRuns, it.runs...)
	}
	last := iterations[len(iterations)-1]

	if cfg.HTMLOutput != "" {
		if err := writeHTML(cfg.HTMLOutput, allRuns, last.cmp, results); err != nil {
			return err
		}
		log.Info("html report written", zap.String("path", cfg.HTMLOutput))
	}

	if cfg.HistoryFile != "" {
		if err := recordHistory(cfg.HistoryFile, log, iterations); err != nil {
			return err
		}
	}

	if cfg.PromTextfile != "" {
		host, _ := os.Hostname()
		exp := promexport.NewExporter("", host)
		if err := exp.WriteTextfile(cfg.PromTextfile, last.runs, last.cmp); err != nil {
			return fmt.Errorf("prometheus export: %w", err)
		}
		log.Info("prometheus textfile written", zap.String("path", cfg.PromTextfile))
	}
	return nil
}

func writeHTML(path string, runs []metrics.RunResult, cmp *metrics.Comparison, results []threshold.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create html report: %w", err)
	}
	if err := output.GenerateHTMLReport(f, runs, cmp, results); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func recordHistory(path string, log *zap.Logger, iterations []iteration) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	for _, it := range iterations {
		rec := history.Record{Runs: it.runs}
		if it.cmp != nil {
			formatted := it.cmp.Format()
			rec.Comparison = &formatted
		}
		rec, err = store.Append(rec)
		if err != nil {
			return err
		}
		for _, res := range it.runs {
			prev, ok, err := store.Previous(res.ThreadType, rec.ID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			log.Info("compared with previous run",
				zap.String("thread_type", res.ThreadType),
				zap.String("previous_id", prev.ID),
				zap.Int64("total_time_ms", res.TotalTimeMs),
				zap.Int64("previous_total_time_ms", prev.TotalTimeMs),
				zap.Int64("delta_ms", res.TotalTimeMs-prev.TotalTimeMs),
			)
		}
	}
	log.Debug("history updated", zap.String("path", store.Path()), zap.Int("records", len(iterations)))
	return nil
}

// browseHistory prints the history index or one record instead of running a benchmark.
func browseHistory(w io.Writer, cfg *config.Config) error {
	store, err := history.Open(cfg.HistoryFile)
	if err != nil {
		return err
	}
	var v any
	if cfg.HistoryList {
		summaries, err := store.List()
		if err != nil {
			return err
		}
		if cfg.Format() == config.OutputText {
			printSummaries(w, summaries)
			return nil
		}
		v = summaries
	} else {
		rec, err := store.Get(cfg.HistoryShow)
		if err != nil {
			return err
		}
		if cfg.Format() == config.OutputText {
			printRecord(w, rec)
			return nil
		}
		v = rec
	}
	if cfg.Format() == config.OutputYAML {
		return output.PrintYAMLReport(w, v)
	}
	return output.PrintJSONReport(w, v)
}

func printSummaries(w io.Writer, summaries []history.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No history records.")
		return
	}
	fmt.Fprintf(w, "%-26s  %-20s  %-34s  %-16s  %s\n", "ID", "Recorded", "Thread types", "Total (ms)", "Ratio")
	for _, s := range summaries {
		totals := make([]string, len(s.TotalTimeMs))
		for i, ms := range s.TotalTimeMs {
			totals[i] = fmt.Sprint(ms)
		}
		ratio := s.TimeRatio
		if ratio == "" {
			ratio = "-"
		}
		fmt.Fprintf(w, "%-26s  %-20s  %-34s  %-16s  %s\n", s.ID, s.RecordedAt.Format(time.DateTime),
			strings.Join(s.ThreadTypes, ", "), strings.Join(totals, ", "), ratio)
	}
}

func printRecord(w io.Writer, rec history.Record) {
	fmt.Fprintf(w, "Record %s (%s)\n", rec.ID, rec.RecordedAt.Format(time.RFC3339))
	if rec.Comparison != nil && len(rec.Runs) == 2 {
		output.PrintComparison(w, output.ComparisonDocument{
			PlatformThreads: rec.Runs[0],
			VirtualThreads:  rec.Runs[1],
			Comparison:      *rec.Comparison,
		})
		return
	}
	for _, res := range rec.Runs {
		output.PrintResult(w, res)
	}
}

func failedUnits(iterations []iteration) int64 {
	var n int64
	for _, it := range iterations {
		for _, res := range it.runs {
			if res.Units != nil {
				n += res.Units.Failures
			}
		}
	}
	return n
}

// display follows runs as they execute: a progress line, the dashboard, or nothing.
type display struct {
	progressOut io.Writer
	progress    *output.ProgressReporter
	dash        *dashboard.Dashboard
}

func newDisplay(cfg *config.Config, stderr io.Writer, shutdown func()) (*display, error) {
	d := &display{}
	switch {
	case cfg.Dashboard:
		dash, err := dashboard.New(dashboard.BenchConfig{
			Model:      string(cfg.Model),
			Requests:   cfg.Requests,
			Delay:      cfg.Delay(),
			PoolSize:   cfg.PoolSize,
			SubmitRate: cfg.SubmitRate,
			Iterations: cfg.Iterations,
			Repeat:     cfg.Repeat,
			ConfigFile: cfg.ConfigFile,
		}, shutdown)
		if err != nil {
			return nil, err
		}
		dash.Start()
		d.dash = dash
	case cfg.Format() == config.OutputText:
		d.progressOut = stderr
	}
	return d, nil
}

func (d *display) attach(live runner.Live) {
	switch {
	case d.dash != nil:
		d.dash.Attach(live.Model.Label(), live.Requests, live.Collector, live.InFlight)
	case d.progressOut != nil:
		d.progress = output.NewProgressReporter(live.Model.Label(), live.Requests, live.Collector, live.InFlight, progressInterval, d.progressOut)
		d.progress.Start()
	}
}

func (d *display) detach(runner.Live) {
	if d.dash != nil {
		d.dash.Detach()
	}
	if d.progress != nil {
		d.progress.Stop()
		d.progress = nil
	}
}

func (d *display) result(res metrics.RunResult) {
	if d.dash != nil {
		d.dash.AddResult(res)
	}
}

func (d *display) stop() {
	if d.dash != nil {
		d.dash.Stop()
		d.dash = nil
	}
}
