package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes the dashboard's display figures to Prometheus.
type Metrics struct {
	totalRecords prometheus.Gauge
	anomalyCount prometheus.Gauge
	anomalyRate  prometheus.Gauge
	refreshes    prometheus.Counter
	degraded     prometheus.Counter
	cycleTime    prometheus.Histogram
}

// NewMetrics registers dashboard metrics on the given registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "netsight"
	}
	factory := promauto.With(reg)

	return &Metrics{
		totalRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_records",
			Help:      "Records in the most recent cycle",
		}),
		anomalyCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomaly_count",
			Help:      "Records labeled anomalous in the most recent cycle",
		}),
		anomalyRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "anomaly_rate",
			Help:      "Fraction of the most recent cycle labeled anomalous",
		}),
		refreshes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Completed refresh cycles",
		}),
		degraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_cycles_total",
			Help:      "Cycles that rendered without anomaly information",
		}),
		cycleTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent generating and scoring one cycle",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
}

// ObserveRefresh records the outcome of one cycle.
func (m *Metrics) ObserveRefresh(snap *Snapshot, elapsed time.Duration) {
	m.refreshes.Inc()
	m.cycleTime.Observe(elapsed.Seconds())

	if snap == nil {
		return
	}
	m.totalRecords.Set(float64(snap.TotalRecords))
	if snap.Degraded {
		m.degraded.Inc()
		return
	}
	m.anomalyCount.Set(float64(snap.AnomalyCount))
	m.anomalyRate.Set(snap.AnomalyRate)
}
