package metrics

import "runtime"

// MemorySampler reports the current heap footprint in bytes.
type MemorySampler interface {
	// Sample returns bytes in use. When reclaim is true the sampler may first request a
	// collection; callers must not rely on it having happened.
	Sample(reclaim bool) uint64
}

// RuntimeSampler samples the Go heap via runtime.ReadMemStats.
type RuntimeSampler struct{}

func (RuntimeSampler) Sample(reclaim bool) uint64 {
	if reclaim {
		runtime.GC()
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// SamplerFunc adapts a function to MemorySampler.
type SamplerFunc func(reclaim bool) uint64

func (f SamplerFunc) Sample(reclaim bool) uint64 { return f(reclaim) }
