package runtime

import (
	"math"
	"slices"
	"sync"
	"time"

	"github.com/drblury/docflow/internal/runtime/harness"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// MiddlewareStats is a point-in-time view of one middleware.
type MiddlewareStats struct {
	Succeeded    uint64    `json:"succeeded"`
	Skipped      uint64    `json:"skipped"`
	Transient    uint64    `json:"transient_failures"`
	Fatal        uint64    `json:"fatal_failures"`
	DeadLettered uint64    `json:"dead_lettered"`
	Batches      uint64    `json:"batches"`
	InFlight     int64     `json:"in_flight"`
	LastItemAt   time.Time `json:"last_item_at"`
	LastError    string    `json:"last_error,omitempty"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Resource   ResourceUsage     `json:"resource"`
}

// Processed is the number of items that reached an outcome.
func (s MiddlewareStats) Processed() uint64 {
	return s.Succeeded + s.Skipped + s.Transient + s.Fatal
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS    float64 `json:"current_rps"`
	WindowSeconds float64 `json:"window_seconds"`
	ItemsInWindow int     `json:"items_in_window"`
}

// statsRecorder accumulates MiddlewareStats. Safe for concurrent use.
type statsRecorder struct {
	mu      sync.Mutex
	stats   MiddlewareStats
	latency *latencyRing
	rate    *rateWindow
	sampler *resourceTracker
}

func newStatsRecorder(sampler *resourceTracker) *statsRecorder {
	return &statsRecorder{
		latency: newLatencyRing(latencySampleSize),
		rate:    &rateWindow{horizon: throughputWindowSize},
		sampler: sampler,
	}
}

func (r *statsRecorder) itemStarted() {
	r.mu.Lock()
	r.stats.InFlight++
	r.mu.Unlock()
}

func (r *statsRecorder) itemFinished(res harness.ItemResult, started bool) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if started && r.stats.InFlight > 0 {
		r.stats.InFlight--
	}
	switch res.Outcome {
	case harness.Success:
		r.stats.Succeeded++
	case harness.Skipped:
		r.stats.Skipped++
	case harness.TransientFailure:
		r.stats.Transient++
	case harness.FatalFailure:
		r.stats.Fatal++
	}
	if res.Err != nil && res.Outcome != harness.Skipped {
		r.stats.LastError = res.Err.Error()
	}
	r.stats.LastItemAt = now.UTC()
	r.latency.add(res.Duration)
	r.rate.add(now)
}

func (r *statsRecorder) batchProcessed() {
	r.mu.Lock()
	r.stats.Batches++
	r.mu.Unlock()
}

func (r *statsRecorder) deadLettered() {
	r.mu.Lock()
	r.stats.DeadLettered++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() MiddlewareStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	out.Latency = r.latency.snapshot()
	out.Throughput = r.rate.snapshot(time.Now())
	if r.sampler != nil {
		out.Resource = r.sampler.Snapshot()
	}
	return out
}

// latencyRing keeps the most recent durations.
type latencyRing struct {
	samples []time.Duration
	next    int
	filled  int
	last    time.Duration
}

func newLatencyRing(size int) *latencyRing {
	return &latencyRing{samples: make([]time.Duration, size)}
}

func (l *latencyRing) add(d time.Duration) {
	l.samples[l.next] = d
	l.last = d
	l.next = (l.next + 1) % len(l.samples)
	if l.filled < len(l.samples) {
		l.filled++
	}
}

func (l *latencyRing) snapshot() LatencyMetrics {
	out := LatencyMetrics{LastNs: int64(l.last), SampleSize: l.filled}
	if l.filled == 0 {
		return out
	}
	sorted := slices.Clone(l.samples[:l.filled])
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	out.AverageNs = int64(sum) / int64(len(sorted))
	out.P50Ns = int64(quantile(sorted, 0.50))
	out.P95Ns = int64(quantile(sorted, 0.95))
	out.P99Ns = int64(quantile(sorted, 0.99))
	return out
}

// quantile interpolates linearly between the closest ranks of sorted.
func quantile(sorted []time.Duration, q float64) time.Duration {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(pos)), int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + time.Duration(float64(sorted[hi]-sorted[lo])*frac)
}

// rateWindow counts events seen within horizon.
type rateWindow struct {
	horizon time.Duration
	seen    []time.Time
}

func (w *rateWindow) add(now time.Time) {
	w.seen = append(w.seen, now)
	w.trim(now)
}

func (w *rateWindow) trim(now time.Time) {
	cutoff := now.Add(-w.horizon)
	idx := 0
	for idx < len(w.seen) && w.seen[idx].Before(cutoff) {
		idx++
	}
	w.seen = slices.Delete(w.seen, 0, idx)
}

func (w *rateWindow) snapshot(now time.Time) ThroughputMetrics {
	w.trim(now)
	if len(w.seen) == 0 {
		return ThroughputMetrics{}
	}
	span := now.Sub(w.seen[0])
	if span <= 0 {
		span = time.Millisecond
	}
	return ThroughputMetrics{
		CurrentRPS:    float64(len(w.seen)) / span.Seconds(),
		WindowSeconds: span.Seconds(),
		ItemsInWindow: len(w.seen),
	}
}
