package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/concbench/internal/workload"
)

// Collector records per-unit metrics in a thread-safe manner.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	cancelled    int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	start        time.Time
}

// UnitStats represents aggregated per-unit metrics.
type UnitStats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	Cancelled      int64         `json:"cancelled" yaml:"cancelled"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"unitsPerSec" yaml:"unitsPerSec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64        `json:"minLatencyMs" yaml:"minLatencyMs"`
	MaxLatencyMs  float64        `json:"maxLatencyMs" yaml:"maxLatencyMs"`
	MeanLatencyMs float64        `json:"meanLatencyMs" yaml:"meanLatencyMs"`
	P50LatencyMs  float64        `json:"p50LatencyMs" yaml:"p50LatencyMs"`
	P90LatencyMs  float64        `json:"p90LatencyMs" yaml:"p90LatencyMs"`
	P99LatencyMs  float64        `json:"p99LatencyMs" yaml:"p99LatencyMs"`
	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 10min with 3 significant figures.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		start:        time.Now(),
	}
}

// Start resets the collector clock used by Elapsed.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
}

// Elapsed is the time since NewCollector or the last Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.start)
}

// ObserveUnit records a single unit's latency and error state.
// Cancelled units are counted but their latency is not.
func (c *Collector) ObserveUnit(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil && workload.IsCancelled(err) {
		c.cancelled++
		return
	}

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	if err == nil {
		c.successes++
		return
	}
	c.failures++
	c.errorsByType[ErrorName(err)]++
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) UnitStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	measured := c.successes + c.failures
	stats := UnitStats{
		Total:      measured + c.cancelled,
		Successes:  c.successes,
		Failures:   c.failures,
		Cancelled:  c.cancelled,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if measured > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / measured)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	if elapsed > 0 && c.successes > 0 {
		stats.RequestsPerSec = float64(c.successes) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
