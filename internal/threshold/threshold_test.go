package threshold

import (
	"strings"
	"testing"

	"github.com/torosent/concbench/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "total time",
			input: "total_time:ms < 2000",
			want:  Threshold{Metric: "total_time", Aggregate: "ms", Operator: "<", Value: 2000},
		},
		{
			name:  "unit latency p99 with <=",
			input: "unit_latency:p99 <= 150",
			want:  Threshold{Metric: "unit_latency", Aggregate: "p99", Operator: "<=", Value: 150},
		},
		{
			name:  "throughput",
			input: "throughput:rps > 1000.5",
			want:  Threshold{Metric: "throughput", Aggregate: "rps", Operator: ">", Value: 1000.5},
		},
		{
			name:  "negative memory difference",
			input: "memory_difference:mb >= -2",
			want:  Threshold{Metric: "memory_difference", Aggregate: "mb", Operator: ">=", Value: -2},
		},
		{
			name:  "failed count",
			input: "  unit_failed:count == 0 ",
			want:  Threshold{Metric: "unit_failed", Aggregate: "count", Operator: "==", Value: 0},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "missing operator", input: "total_time:ms 500", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "aggregate of another metric", input: "total_time:p99 < 500", wantError: true},
		{name: "invalid operator", input: "total_time:ms << 500", wantError: true},
		{name: "not a number", input: "total_time:ms < abc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if got.Metric != tt.want.Metric || got.Aggregate != tt.want.Aggregate ||
				got.Operator != tt.want.Operator || got.Value != tt.want.Value {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
			if got.Raw != strings.TrimSpace(tt.input) {
				t.Errorf("Parse() Raw = %q, want %q", got.Raw, strings.TrimSpace(tt.input))
			}
		})
	}
}

func TestParseMultiple(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		wantCount int
		wantError bool
	}{
		{
			name: "multiple valid thresholds",
			input: []string{
				"total_time:ms < 500",
				"unit_failed:rate < 0.01",
				"time_ratio:x > 1",
			},
			wantCount: 3,
		},
		{name: "empty slice", input: []string{}, wantCount: 0},
		{
			name:      "one valid, one invalid",
			input:     []string{"total_time:ms < 500", "invalid threshold"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMultiple(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseMultiple() error = %v, wantError %v", err, tt.wantError)
				return
			}
			if !tt.wantError && len(got) != tt.wantCount {
				t.Errorf("ParseMultiple() returned %d thresholds, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func sampleResult() metrics.RunResult {
	return metrics.RunResult{
		ThreadType:          "Platform Threads",
		Requests:            500,
		DelayMs:             50,
		TotalTimeMs:         160,
		AvgTimePerRequestMs: 0.32,
		ThroughputRPS:       3125,
		MemoryUsedBytes:     3 * 1024 * 1024,
		MemoryUsedMB:        3,
		Units: &metrics.UnitStats{
			Total:         500,
			Successes:     490,
			Failures:      5,
			Cancelled:     5,
			MinLatencyMs:  50,
			MaxLatencyMs:  58,
			MeanLatencyMs: 52,
			P50LatencyMs:  51,
			P90LatencyMs:  55,
			P99LatencyMs:  57,
		},
	}
}

func TestEvaluator(t *testing.T) {
	res := sampleResult()

	tests := []struct {
		threshold  string
		wantActual float64
		wantPass   bool
	}{
		{"total_time:ms < 200", 160, true},
		{"total_time:ms < 100", 160, false},
		{"avg_time:ms <= 0.32", 0.32, true},
		{"throughput:rps > 3000", 3125, true},
		{"memory_used:mb < 2", 3, false},
		{"memory_used:bytes == 3145728", 3145728, true},
		{"unit_latency:p50 < 60", 51, true},
		{"unit_latency:p90 < 60", 55, true},
		{"unit_latency:p99 < 56", 57, false},
		{"unit_latency:avg < 60", 52, true},
		{"unit_latency:min >= 50", 50, true},
		{"unit_latency:max < 60", 58, true},
		{"unit_failed:count == 0", 5, false},
		{"unit_failed:rate < 0.05", 0.01, true},
		{"unit_cancelled:count <= 5", 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.threshold, func(t *testing.T) {
			th, err := Parse(tt.threshold)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(res)
			if len(results) != 1 {
				t.Fatalf("Evaluate() returned %d results, want 1", len(results))
			}
			got := results[0]
			if got.Actual != tt.wantActual {
				t.Errorf("Actual = %v, want %v", got.Actual, tt.wantActual)
			}
			if got.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v (%s)", got.Pass, tt.wantPass, got.Message)
			}
			if got.Subject != "Platform Threads" {
				t.Errorf("Subject = %q, want Platform Threads", got.Subject)
			}
		})
	}
}

func TestEvaluatorSplitsRunAndComparisonThresholds(t *testing.T) {
	ths, err := ParseMultiple([]string{
		"total_time:ms < 200",
		"time_ratio:x > 2",
		"memory_difference:mb < 1",
	})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	e := NewEvaluator(ths)

	if got := e.Evaluate(sampleResult()); len(got) != 1 || got[0].Threshold.Metric != "total_time" {
		t.Fatalf("Evaluate() = %+v, want only total_time", got)
	}

	cmp := e.EvaluateComparison(metrics.Comparison{TimeRatio: 2.5, MemoryDifferenceMB: 3})
	if len(cmp) != 2 {
		t.Fatalf("EvaluateComparison() returned %d results, want 2", len(cmp))
	}
	if !cmp[0].Pass || cmp[1].Pass {
		t.Errorf("comparison results = %+v, want pass then fail", cmp)
	}
	if cmp[0].Subject != "comparison" {
		t.Errorf("Subject = %q, want comparison", cmp[0].Subject)
	}
	if Failed(cmp) != 1 {
		t.Errorf("Failed() = %d, want 1", Failed(cmp))
	}
}

func TestEvaluatorUnitMetricWithoutStats(t *testing.T) {
	res := sampleResult()
	res.Units = nil
	th, _ := Parse("unit_latency:p99 < 100")
	results := NewEvaluator([]Threshold{th}).Evaluate(res)
	if len(results) != 1 || results[0].Pass {
		t.Fatalf("Evaluate() = %+v, want one failing result", results)
	}
	if !strings.HasPrefix(results[0].Message, "error:") {
		t.Errorf("Message = %q, want error message", results[0].Message)
	}
}

func TestEvaluatorNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(sampleResult()); len(got) != 0 {
		t.Fatalf("Evaluate() = %v, want none", got)
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		actual   float64
		operator string
		expected float64
		want     bool
	}{
		{"less than true", 50, "<", 100, true},
		{"less than false", 100, "<", 50, false},
		{"less than equal", 100, "<", 100, false},
		{"less than or equal true", 50, "<=", 100, true},
		{"less than or equal equal", 100, "<=", 100, true},
		{"less than or equal false", 150, "<=", 100, false},
		{"greater than true", 150, ">", 100, true},
		{"greater than false", 50, ">", 100, false},
		{"greater than equal", 100, ">", 100, false},
		{"greater than or equal true", 150, ">=", 100, true},
		{"greater than or equal equal", 100, ">=", 100, true},
		{"greater than or equal false", 50, ">=", 100, false},
		{"equal true", 100, "==", 100, true},
		{"equal false", 100, "==", 101, false},
		{"equal with floating point precision", 100.0000000001, "==", 100, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.actual, tt.operator, tt.expected)
			if got != tt.want {
				t.Errorf("compareValues(%.2f, %s, %.2f) = %v, want %v",
					tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}
