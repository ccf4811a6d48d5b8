package runtime

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/docflow/internal/runtime/harness"
)

func TestQuantile(t *testing.T) {
	sorted := []time.Duration{10, 20, 30, 40, 50}
	assert.Equal(t, time.Duration(30), quantile(sorted, 0.5))
	assert.Equal(t, time.Duration(10), quantile(sorted, 0))
	assert.Equal(t, time.Duration(50), quantile(sorted, 1))
	assert.Equal(t, time.Duration(40), quantile(sorted, 0.75))
	assert.Zero(t, quantile(nil, 0.5))
}

func TestLatencyRingKeepsRecentSamples(t *testing.T) {
	ring := newLatencyRing(3)
	assert.Equal(t, LatencyMetrics{}, ring.snapshot())

	for _, d := range []time.Duration{100, 1, 2, 3} {
		ring.add(d)
	}
	snap := ring.snapshot()
	assert.Equal(t, 3, snap.SampleSize)
	assert.Equal(t, int64(2), snap.AverageNs, "the oldest sample was overwritten")
	assert.Equal(t, int64(2), snap.P50Ns)
	assert.Equal(t, int64(3), snap.LastNs)
}

func TestRateWindow(t *testing.T) {
	w := &rateWindow{horizon: time.Minute}
	now := time.Now()
	assert.Equal(t, ThroughputMetrics{}, w.snapshot(now))

	w.add(now.Add(-2 * time.Minute))
	w.add(now.Add(-10 * time.Second))
	w.add(now.Add(-5 * time.Second))

	snap := w.snapshot(now)
	assert.Equal(t, 2, snap.ItemsInWindow, "samples older than the horizon are dropped")
	assert.InDelta(t, 10, snap.WindowSeconds, 0.001)
	assert.InDelta(t, 0.2, snap.CurrentRPS, 0.001)
}

func TestStatsRecorder(t *testing.T) {
	rec := newStatsRecorder(nil)

	rec.itemStarted()
	rec.itemStarted()
	rec.itemFinished(harness.ItemResult{Outcome: harness.Success, Duration: time.Millisecond}, true)
	rec.itemFinished(harness.ItemResult{Outcome: harness.FatalFailure, Err: errors.New("corrupt")}, true)
	rec.itemFinished(harness.ItemResult{Outcome: harness.Skipped, Err: harness.ErrSkipped}, false)
	rec.batchProcessed()
	rec.deadLettered()

	snap := rec.snapshot()
	assert.Equal(t, uint64(1), snap.Succeeded)
	assert.Equal(t, uint64(1), snap.Fatal)
	assert.Equal(t, uint64(1), snap.Skipped)
	assert.Equal(t, uint64(3), snap.Processed())
	assert.Equal(t, uint64(1), snap.Batches)
	assert.Equal(t, uint64(1), snap.DeadLettered)
	assert.Zero(t, snap.InFlight)
	assert.Equal(t, "corrupt", snap.LastError, "skips are not errors")
	assert.Equal(t, 3, snap.Latency.SampleSize)
	assert.Equal(t, 3, snap.Throughput.ItemsInWindow)
	assert.False(t, snap.LastItemAt.IsZero())
}

func TestStatsRecorderSamplesResources(t *testing.T) {
	rec := newStatsRecorder(newResourceTracker())
	snap := rec.snapshot()
	assert.Positive(t, snap.Resource.Goroutines)
	assert.Positive(t, snap.Resource.MemoryBytes)
}
