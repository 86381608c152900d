// Package promexport writes benchmark results in the Prometheus text exposition format,
// for pickup by the node exporter textfile collector.
package promexport

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/concbench/internal/metrics"
)

const defaultNamespace = "concbench"

// Exporter builds a fresh registry per write, so a textfile only ever holds the results
// passed to that write.
type Exporter struct {
	Namespace  string
	InstanceID string
}

func NewExporter(namespace, instanceID string) *Exporter {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Exporter{Namespace: namespace, InstanceID: instanceID}
}

// Registry returns a registry holding gauges for runs and, when cmp is non-nil, the
// comparison between them.
func (e *Exporter) Registry(runs []metrics.RunResult, cmp *metrics.Comparison) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{}
	if e.InstanceID != "" {
		constLabels["instance_id"] = e.InstanceID
	}
	labels := []string{"thread_type", "pool_size"}

	gauge := func(name, help string) *prometheus.GaugeVec {
		g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   e.Namespace,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, labels)
		reg.MustRegister(g)
		return g
	}

	requests := gauge("requests", "Work units submitted in the run.")
	delay := gauge("delay_seconds", "Simulated blocking wait per unit.")
	total := gauge("total_time_seconds", "Wall time of the run.")
	avg := gauge("avg_time_per_request_seconds", "Wall time divided by submitted units.")
	throughput := gauge("throughput_rps", "Submitted units per second of wall time.")
	memory := gauge("memory_used_bytes", "Heap delta across the run; may be negative.")
	unitP99 := gauge("unit_latency_p99_seconds", "99th percentile latency of completed units.")
	failed := gauge("units_failed", "Units that returned an error.")
	cancelled := gauge("units_cancelled", "Units cancelled before completion.")

	for _, r := range runs {
		lv := []string{r.ThreadType, strconv.Itoa(r.PoolSize)}
		requests.WithLabelValues(lv...).Set(float64(r.Requests))
		delay.WithLabelValues(lv...).Set(float64(r.DelayMs) / 1000)
		total.WithLabelValues(lv...).Set(float64(r.TotalTimeMs) / 1000)
		avg.WithLabelValues(lv...).Set(r.AvgTimePerRequestMs / 1000)
		throughput.WithLabelValues(lv...).Set(r.ThroughputRPS)
		memory.WithLabelValues(lv...).Set(float64(r.MemoryUsedBytes))
		if r.Units != nil {
			unitP99.WithLabelValues(lv...).Set(r.Units.P99LatencyMs / 1000)
			failed.WithLabelValues(lv...).Set(float64(r.Units.Failures))
			cancelled.WithLabelValues(lv...).Set(float64(r.Units.Cancelled))
		}
	}

	if cmp != nil {
		ratio := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   e.Namespace,
			Name:        "time_ratio",
			Help:        "Bounded run time divided by unbounded run time.",
			ConstLabels: constLabels,
		})
		memDiff := prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   e.Namespace,
			Name:        "memory_difference_bytes",
			Help:        "Bounded heap delta minus unbounded heap delta.",
			ConstLabels: constLabels,
		})
		if err := reg.Register(ratio); err != nil {
			return nil, err
		}
		if err := reg.Register(memDiff); err != nil {
			return nil, err
		}
		ratio.Set(cmp.TimeRatio)
		memDiff.Set(cmp.MemoryDifferenceMB * 1024 * 1024)
	}
	return reg, nil
}

// WriteTextfile writes the gauges for runs to path atomically.
func (e *Exporter) WriteTextfile(path string, runs []metrics.RunResult, cmp *metrics.Comparison) error {
	reg, err := e.Registry(runs, cmp)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write textfile: %w", err)
	}
	return nil
}
