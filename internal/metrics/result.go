package metrics

import (
	"errors"
	"fmt"
	"time"
)

const bytesPerMB = 1024.0 * 1024.0

var (
	ErrZeroRequests = errors.New("request count must be > 0")
	ErrZeroElapsed  = errors.New("elapsed time rounds to 0ms; throughput is undefined")
	ErrZeroBaseline = errors.New("unbounded total time is 0ms; time ratio is undefined")
)

// Sample holds the raw observations of one run.
type Sample struct {
	Label        string
	Requests     int
	Delay        time.Duration
	Start        time.Time
	End          time.Time
	MemoryBefore uint64
	MemoryAfter  uint64
}

// RunResult is the immutable snapshot of one run. The first eight fields are the record
// consumed by clients; the rest are optional detail.
type RunResult struct {
	ThreadType          string  `json:"threadType" yaml:"threadType"`
	Requests            int     `json:"requests" yaml:"requests"`
	DelayMs             int64   `json:"delayMs" yaml:"delayMs"`
	TotalTimeMs         int64   `json:"totalTimeMs" yaml:"totalTimeMs"`
	AvgTimePerRequestMs float64 `json:"avgTimePerRequestMs" yaml:"avgTimePerRequestMs"`
	ThroughputRPS       float64 `json:"throughputRPS" yaml:"throughputRPS"`
	MemoryUsedBytes     int64   `json:"memoryUsedBytes" yaml:"memoryUsedBytes"`
	MemoryUsedMB        float64 `json:"memoryUsedMB" yaml:"memoryUsedMB"`

	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	PoolSize  int        `json:"poolSize,omitempty" yaml:"poolSize,omitempty"`
	StartedAt time.Time  `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	Units     *UnitStats `json:"units,omitempty" yaml:"units,omitempty"`
}

// Elapsed returns TotalTimeMs as a duration.
func (r RunResult) Elapsed() time.Duration {
	return time.Duration(r.TotalTimeMs) * time.Millisecond
}

// Derive computes a RunResult from s.
func Derive(s Sample) (RunResult, error) {
	if s.Requests <= 0 {
		return RunResult{}, fmt.Errorf("%w: got %d", ErrZeroRequests, s.Requests)
	}
	if elapsed := s.End.Sub(s.Start); elapsed.Milliseconds() <= 0 {
		return RunResult{}, fmt.Errorf("%w: %s", ErrZeroElapsed, elapsed)
	}
	return Partial(s), nil
}

// Partial fills in every field of s that can be computed. Average and throughput stay zero
// when the requests or the elapsed milliseconds are zero. It describes runs that ended early.
func Partial(s Sample) RunResult {
	totalMs := s.End.Sub(s.Start).Milliseconds()
	if totalMs < 0 {
		totalMs = 0
	}
	memUsed := int64(s.MemoryAfter) - int64(s.MemoryBefore)
	res := RunResult{
		ThreadType:      s.Label,
		Requests:        s.Requests,
		DelayMs:         s.Delay.Milliseconds(),
		TotalTimeMs:     totalMs,
		MemoryUsedBytes: memUsed,
		MemoryUsedMB:    float64(memUsed) / bytesPerMB,
		StartedAt:       s.Start,
	}
	if s.Requests > 0 && totalMs > 0 {
		res.AvgTimePerRequestMs = float64(totalMs) / float64(s.Requests)
		res.ThroughputRPS = float64(s.Requests) * 1000 / float64(totalMs)
	}
	return res
}

// Comparison relates a bounded run to an unbounded run of the same parameters.
type Comparison struct {
	TimeRatio          float64 `json:"-" yaml:"-"`
	MemoryDifferenceMB float64 `json:"-" yaml:"-"`
}

// FormattedComparison is the client-facing rendering of a Comparison.
type FormattedComparison struct {
	TimeRatio          string `json:"timeRatio" yaml:"timeRatio"`
	MemoryDifferenceMB string `json:"memoryDifferenceMB" yaml:"memoryDifferenceMB"`
}

// Compare returns platform/virtual time ratio and platform-minus-virtual memory in MB.
func Compare(platform, virtual RunResult) (Comparison, error) {
	if virtual.TotalTimeMs <= 0 {
		return Comparison{}, ErrZeroBaseline
	}
	return Comparison{
		TimeRatio:          float64(platform.TotalTimeMs) / float64(virtual.TotalTimeMs),
		MemoryDifferenceMB: float64(platform.MemoryUsedBytes-virtual.MemoryUsedBytes) / bytesPerMB,
	}, nil
}

// Format renders the ratio as "<f>x" and the memory difference with two decimals.
func (c Comparison) Format() FormattedComparison {
	return FormattedComparison{
		TimeRatio:          fmt.Sprintf("%.2fx", c.TimeRatio),
		MemoryDifferenceMB: fmt.Sprintf("%.2f", c.MemoryDifferenceMB),
	}
}
