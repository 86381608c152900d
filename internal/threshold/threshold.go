// Package threshold evaluates pass/fail assertions against benchmark results.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/concbench/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "total_time", "unit_latency", "time_ratio"
	Aggregate string  // e.g., "ms", "p99", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Comparison reports whether t applies to a comparison rather than a single run.
func (t Threshold) Comparison() bool {
	return t.Metric == "time_ratio" || t.Metric == "memory_difference"
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Subject   string // thread type of the run, or "comparison"
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against results.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks every run threshold against res. Comparison thresholds are skipped.
func (e *Evaluator) Evaluate(res metrics.RunResult) []Result {
	var results []Result
	for _, t := range e.thresholds {
		if t.Comparison() {
			continue
		}
		actual, err := extractRunValue(t, res)
		results = append(results, e.evaluateOne(t, res.ThreadType, actual, err))
	}
	return results
}

// EvaluateComparison checks every comparison threshold against cmp.
func (e *Evaluator) EvaluateComparison(cmp metrics.Comparison) []Result {
	var results []Result
	for _, t := range e.thresholds {
		if !t.Comparison() {
			continue
		}
		actual, err := extractComparisonValue(t, cmp)
		results = append(results, e.evaluateOne(t, "comparison", actual, err))
	}
	return results
}

func (e *Evaluator) evaluateOne(t Threshold, subject string, actual float64, err error) Result {
	if err != nil {
		return Result{
			Threshold: t,
			Subject:   subject,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s [%s] %s: %.2f %s %.2f", status, subject, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Subject:   subject,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

// Failed counts results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*(-?[0-9.]+)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "total_time:ms < 2000"          (run wall time)
// - "avg_time:ms < 5"               (wall time per request)
// - "throughput:rps > 1000"         (requests per second)
// - "memory_used:mb < 64"           (heap delta, also :bytes)
// - "unit_latency:p99 < 150"        (per-unit latency in ms; p50, p90, p99, avg, min, max)
// - "unit_failed:count == 0"        (failed units, also :rate)
// - "unit_cancelled:count == 0"     (cancelled units)
// - "time_ratio:x > 1.5"            (platform time over virtual time)
// - "memory_difference:mb < 10"     (platform minus virtual heap delta)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'total_time:ms < 2000')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := supported[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(metricNames, ", "))
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}

	if !contains([]string{"<", "<=", ">", ">=", "=="}, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var supported = map[string][]string{
	"total_time":        {"ms"},
	"avg_time":          {"ms"},
	"throughput":        {"rps"},
	"memory_used":       {"mb", "bytes"},
	"unit_latency":      {"p50", "p90", "p99", "avg", "min", "max"},
	"unit_failed":       {"count", "rate"},
	"unit_cancelled":    {"count"},
	"time_ratio":        {"x"},
	"memory_difference": {"mb"},
}

var metricNames = []string{
	"total_time", "avg_time", "throughput", "memory_used", "unit_latency",
	"unit_failed", "unit_cancelled", "time_ratio", "memory_difference",
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func extractRunValue(t Threshold, res metrics.RunResult) (float64, error) {
	switch t.Metric {
	case "total_time":
		return float64(res.TotalTimeMs), nil
	case "avg_time":
		return res.AvgTimePerRequestMs, nil
	case "throughput":
		return res.ThroughputRPS, nil
	case "memory_used":
		if t.Aggregate == "bytes" {
			return float64(res.MemoryUsedBytes), nil
		}
		return res.MemoryUsedMB, nil
	case "unit_latency", "unit_failed", "unit_cancelled":
		if res.Units == nil {
			return 0, fmt.Errorf("%s requires per-unit statistics", t.Metric)
		}
		return extractUnitMetric(t, *res.Units)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractUnitMetric(t Threshold, units metrics.UnitStats) (float64, error) {
	switch t.Metric {
	case "unit_latency":
		switch t.Aggregate {
		case "p50":
			return units.P50LatencyMs, nil
		case "p90":
			return units.P90LatencyMs, nil
		case "p99":
			return units.P99LatencyMs, nil
		case "avg":
			return units.MeanLatencyMs, nil
		case "min":
			return units.MinLatencyMs, nil
		case "max":
			return units.MaxLatencyMs, nil
		}
	case "unit_failed":
		if t.Aggregate == "count" {
			return float64(units.Failures), nil
		}
		if units.Total == 0 {
			return 0, nil
		}
		return float64(units.Failures) / float64(units.Total), nil
	case "unit_cancelled":
		return float64(units.Cancelled), nil
	}
	return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
}

func extractComparisonValue(t Threshold, cmp metrics.Comparison) (float64, error) {
	switch t.Metric {
	case "time_ratio":
		return cmp.TimeRatio, nil
	case "memory_difference":
		return cmp.MemoryDifferenceMB, nil
	default:
		return 0, fmt.Errorf("unknown comparison metric: %s", t.Metric)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
