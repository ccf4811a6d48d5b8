package runtime

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/docflow/internal/runtime/harness"
)

func TestMetricsRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	other := NewMetrics(reg)
	require.NoError(t, other.Register())
	other.observeBatch("ocr", 2)
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchSize), "collectors of the registry are shared")
}

func TestMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NoError(t, m.Register())

	m.observeItem("ocr", harness.Success, 10*time.Millisecond)
	m.observeItem("ocr", harness.Success, 20*time.Millisecond)
	m.observeItem("ocr", harness.FatalFailure, time.Millisecond)
	m.observeBatch("ocr", 3)
	m.observeDeadLetter("ocr", "images.dlq", reasonFatal, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("ocr", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.itemsTotal.WithLabelValues("ocr", "fatal_failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLetters.WithLabelValues("ocr", "images.dlq", "fatal")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchSize))

	count, err := testutil.GatherAndCount(reg, "docflow_item_duration_seconds", "docflow_dlq_receive_count")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.observeItem("ocr", harness.Success, time.Millisecond)
	m.observeBatch("ocr", 1)
	m.observeDeadLetter("ocr", "dlq", reasonFatal, 1)
}
