package executor

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all the Prometheus metrics for the executor.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	sequence   prometheus.Gauge
}

// NewMetrics creates and registers the metrics for the executor.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_executor_executions_total",
			Help: "Total number of executed operations, labeled by operation and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_executor_execution_duration_seconds",
			Help:    "Time from begin to commit or rollback of one operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amm_executor_sequence",
			Help: "Sequence number of the last committed operation.",
		}),
	}
	reg.MustRegister(m.executions, m.duration, m.sequence)
	return m
}
