package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ResourceUsage is a coarse process-wide sample included in stats.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceTracker samples CPU and heap usage. CPU is reported as the share
// used since the previous sample. One tracker is shared by every
// middleware of a service.
type resourceTracker struct {
	mu      sync.Mutex
	sample  []metrics.Sample
	numCPU  float64
	lastCPU float64
	lastAt  time.Time
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		sample: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU: float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.sample)
	now := time.Now()

	var usage ResourceUsage
	if v := r.sample[0].Value; v.Kind() == metrics.KindFloat64 {
		cpu := v.Float64()
		if wall := now.Sub(r.lastAt).Seconds(); !r.lastAt.IsZero() && wall > 0 && r.numCPU > 0 {
			usage.CPUPercent = (cpu - r.lastCPU) / wall / r.numCPU * 100
		}
		r.lastCPU = cpu
	}
	r.lastAt = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.HeapAlloc
	usage.Goroutines = runtime.NumGoroutine()
	return usage
}
