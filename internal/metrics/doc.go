// Package metrics derives benchmark results from timestamps, memory samples and per-unit outcomes.
//
// # Result derivation
//
// [Derive] turns a [Sample] into a [RunResult] using fixed formulas at millisecond resolution:
//
//	totalTimeMs         = end - start
//	avgTimePerRequestMs = totalTimeMs / requests
//	throughputRPS       = requests * 1000 / totalTimeMs
//	memoryUsedBytes     = memoryAfter - memoryBefore
//
// A zero request count or a zero elapsed time is rejected rather than producing NaN or Inf.
//
// # Memory
//
// Memory figures are best effort. [RuntimeSampler] asks the runtime for a collection before the
// baseline sample but the heap still moves with background GC, so memoryUsedBytes is expected to
// be noisy and may be negative.
//
// # Collector
//
// The [Collector] records each unit's latency and outcome while a batch runs:
//
//	collector := metrics.NewCollector()
//	collector.ObserveUnit(latency, err) // called from executor goroutines
//	stats := collector.Stats(elapsed)
//
// It is safe for concurrent use and is what live progress and the dashboard poll.
//
// # Comparison
//
// [Compare] relates a bounded and an unbounded result of the same parameters.
package metrics
