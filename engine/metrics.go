package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's prometheus collectors.
type Metrics struct {
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	ticksCrossed      prometheus.Histogram
	forfeited         *prometheus.CounterVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synthamm",
			Name:      "operations_total",
			Help:      "Pool operations by name and result.",
		}, []string{"op", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "synthamm",
			Name:      "operation_duration_seconds",
			Help:      "Time spent computing and committing a pool operation.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		ticksCrossed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "synthamm",
			Name:      "ticks_crossed",
			Help:      "Initialized ticks crossed per committed swap.",
			Buckets:   []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		forfeited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "synthamm",
			Name:      "owed_delta_forfeited_total",
			Help:      "Fee or reward accruals dropped because they overflowed 64 bits.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.operations, m.operationDuration, m.ticksCrossed, m.forfeited)
	return m
}

func (m *Metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}
