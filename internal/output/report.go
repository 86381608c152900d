// Package output renders benchmark results for terminals, files and other programs.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/torosent/concbench/internal/metrics"
	"github.com/torosent/concbench/internal/threshold"
)

// ComparisonDocument is the wire shape of a comparison: both result records plus the
// formatted relation between them.
type ComparisonDocument struct {
	PlatformThreads metrics.RunResult           `json:"platformThreads" yaml:"platformThreads"`
	VirtualThreads  metrics.RunResult           `json:"virtualThreads" yaml:"virtualThreads"`
	Comparison      metrics.FormattedComparison `json:"comparison" yaml:"comparison"`
}

// NewComparisonDocument pairs two results with their comparison.
func NewComparisonDocument(platform, virtual metrics.RunResult, cmp metrics.Comparison) ComparisonDocument {
	return ComparisonDocument{
		PlatformThreads: platform,
		VirtualThreads:  virtual,
		Comparison:      cmp.Format(),
	}
}

// PrintResult outputs a human-readable summary of one run.
func PrintResult(w io.Writer, res metrics.RunResult) {
	fmt.Fprintf(w, "\n--- %s ---\n", res.ThreadType)
	if res.ID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", res.ID)
	}
	if res.PoolSize > 0 {
		fmt.Fprintf(w, "Pool Size:         %d\n", res.PoolSize)
	}
	fmt.Fprintf(w, "Requests:          %d\n", res.Requests)
	fmt.Fprintf(w, "Delay:             %d ms\n", res.DelayMs)
	fmt.Fprintf(w, "Total Time:        %d ms\n", res.TotalTimeMs)
	fmt.Fprintf(w, "Avg per Request:   %.2f ms\n", res.AvgTimePerRequestMs)
	fmt.Fprintf(w, "Throughput:        %.2f req/s\n", res.ThroughputRPS)
	fmt.Fprintf(w, "Memory Used:       %d bytes (%.2f MB)\n", res.MemoryUsedBytes, res.MemoryUsedMB)

	if res.Units == nil {
		return
	}
	u := res.Units
	fmt.Fprintf(w, "Units:             %d succeeded, %d failed, %d cancelled\n", u.Successes, u.Failures, u.Cancelled)
	fmt.Fprintln(w, "Unit Latency:")
	fmt.Fprintf(w, "  Min:             %.2f ms\n", u.MinLatencyMs)
	fmt.Fprintf(w, "  Mean:            %.2f ms\n", u.MeanLatencyMs)
	fmt.Fprintf(w, "  P50:             %.2f ms\n", u.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.2f ms\n", u.P90LatencyMs)
	fmt.Fprintf(w, "  P99:             %.2f ms\n", u.P99LatencyMs)
	fmt.Fprintf(w, "  Max:             %.2f ms\n", u.MaxLatencyMs)
	if len(u.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, name := range sortedErrorNames(u.Errors) {
			fmt.Fprintf(w, "  %s: %d\n", name, u.Errors[name])
		}
	}
}

// PrintComparison outputs both runs followed by their comparison.
func PrintComparison(w io.Writer, doc ComparisonDocument) {
	PrintResult(w, doc.PlatformThreads)
	PrintResult(w, doc.VirtualThreads)
	fmt.Fprintln(w, "\n--- Comparison ---")
	fmt.Fprintf(w, "Time Ratio:        %s (platform / virtual)\n", doc.Comparison.TimeRatio)
	fmt.Fprintf(w, "Memory Difference: %s MB (platform - virtual)\n", doc.Comparison.MemoryDifferenceMB)
}

// PrintThresholds outputs one line per evaluated threshold.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Thresholds ---")
	for _, r := range results {
		fmt.Fprintln(w, r.Message)
	}
	failed := threshold.Failed(results)
	fmt.Fprintf(w, "%d passed, %d failed\n", len(results)-failed, failed)
}

// PrintJSONReport outputs v as indented JSON.
func PrintJSONReport(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintYAMLReport outputs v as YAML.
func PrintYAMLReport(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func sortedErrorNames(errs map[string]int) []string {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] != errs[names[j]] {
			return errs[names[i]] > errs[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
