package server

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all the Prometheus metrics for the stream server.
type Metrics struct {
	subscribers        prometheus.Gauge
	droppedSubscribers prometheus.Counter
	eventsSent         *prometheus.CounterVec
	publishDuration    prometheus.Histogram
}

// NewMetrics creates and registers the metrics for the stream server.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "amm_stream_subscribers",
			Help: "Number of active state stream subscribers.",
		}),
		droppedSubscribers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amm_stream_dropped_subscribers_total",
			Help: "Subscribers dropped for falling behind or after a failed diff.",
		}),
		eventsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_stream_events_total",
			Help: "Events queued to subscribers, labeled by type.",
		}, []string{"type"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "amm_stream_publish_duration_seconds",
			Help:    "Time taken to capture, diff and fan out one committed state.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.subscribers, m.droppedSubscribers, m.eventsSent, m.publishDuration)
	return m
}
