package differ

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all the Prometheus metrics for the differ.
type Metrics struct {
	diffDuration         *prometheus.HistogramVec
	protocolDiffDuration *prometheus.HistogramVec
	diffErrors           *prometheus.CounterVec
	changedProtocols     prometheus.Histogram
}

// NewMetrics creates and registers the metrics for the differ.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_state_diff_duration_seconds",
			Help:    "Time taken to diff two full states.",
			Buckets: prometheus.DefBuckets,
		}, []string{}),
		protocolDiffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_protocol_diff_duration_seconds",
			Help:    "Time taken to diff one protocol, labeled by schema.",
			Buckets: prometheus.DefBuckets,
		}, []string{"schema"}),
		diffErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_state_diff_errors_total",
			Help: "Total number of failed diffs, labeled by reason.",
		}, []string{"reason"}),
		changedProtocols: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amm_state_diff_changed_protocols",
			Help:    "Number of protocols carried by each diff.",
			Buckets: prometheus.LinearBuckets(0, 1, 5),
		}),
	}
	reg.MustRegister(m.diffDuration, m.protocolDiffDuration, m.diffErrors, m.changedProtocols)
	return m
}
