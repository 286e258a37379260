package engine

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all the Prometheus metrics for the engine.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	swaps      *prometheus.CounterVec
	volume     *prometheus.CounterVec
	minted     prometheus.Counter
	burned     prometheus.Counter
}

// NewMetrics creates and registers the metrics for the engine.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_engine_operations_total",
			Help: "Total number of engine operations, labeled by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_engine_operation_duration_seconds",
			Help:    "Time taken by a single engine operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_engine_swaps_total",
			Help: "Total number of settled swaps, labeled by curve.",
		}, []string{"curve"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_engine_swap_input_units_total",
			Help: "Input units received by settled swaps before fees, labeled by curve.",
		}, []string{"curve"}),
		minted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amm_engine_liquidity_minted_total",
			Help: "Liquidity receipt units issued, including locked minimum liquidity.",
		}),
		burned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "amm_engine_liquidity_burned_total",
			Help: "Liquidity receipt units redeemed.",
		}),
	}
	reg.MustRegister(m.operations, m.duration, m.swaps, m.volume, m.minted, m.burned)
	return m
}

func curveLabel(stable bool) string {
	if stable {
		return "stable"
	}
	return "volatile"
}
