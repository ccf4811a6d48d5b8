package runtime

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/docflow/internal/runtime/harness"
)

const metricsNamespace = "docflow"

// Metrics holds the Prometheus collectors of the item pipeline.
type Metrics struct {
	mu sync.Mutex

	itemsTotal    *prometheus.CounterVec
	itemDuration  *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec
	deadLetters   *prometheus.CounterVec
	receiveCounts *prometheus.HistogramVec

	registerer prometheus.Registerer
	registered bool
}

// NewMetrics creates the collectors. Nothing is registered until Register.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &Metrics{
		registerer: registerer,
		itemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "items_total",
			Help:      "Items processed, by middleware and outcome.",
		}, []string{"middleware", "outcome"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "item_duration_seconds",
			Help:      "Time spent on one item, from parse to publish.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 9),
		}, []string{"middleware"}),
		batchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "batch_size",
			Help:      "Number of items per delivered batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}, []string{"middleware"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "dlq",
			Name:      "messages_total",
			Help:      "Items sent to the dead letter queue.",
		}, []string{"middleware", "topic", "reason"}),
		receiveCounts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "dlq",
			Name:      "receive_count",
			Help:      "Deliveries an item had when it was dead-lettered.",
			Buckets:   []float64{1, 2, 3, 5, 10, 20},
		}, []string{"middleware"}),
	}
}

// Register registers the collectors. Safe to call multiple times. When the
// registry already holds a collector with the same description, that one
// is used instead.
func (m *Metrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	errs := []error{
		registerOrReuse(m.registerer, &m.itemsTotal),
		registerOrReuse(m.registerer, &m.itemDuration),
		registerOrReuse(m.registerer, &m.batchSize),
		registerOrReuse(m.registerer, &m.deadLetters),
		registerOrReuse(m.registerer, &m.receiveCounts),
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.registered = true
	return nil
}

func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	err := reg.Register(*c)
	var already prometheus.AlreadyRegisteredError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &already):
		if existing, ok := already.ExistingCollector.(T); ok {
			*c = existing
		}
		return nil
	default:
		return err
	}
}

func (m *Metrics) observeItem(middleware string, outcome harness.Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.itemsTotal.WithLabelValues(middleware, outcome.String()).Inc()
	m.itemDuration.WithLabelValues(middleware).Observe(d.Seconds())
}

func (m *Metrics) observeBatch(middleware string, size int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(middleware).Observe(float64(size))
}

func (m *Metrics) observeDeadLetter(middleware, topic, reason string, receiveCount int) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(middleware, topic, reason).Inc()
	m.receiveCounts.WithLabelValues(middleware).Observe(float64(receiveCount))
}
