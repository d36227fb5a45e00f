package metrics

import "github.com/prometheus/client_golang/prometheus"

// GraphMetrics holds Prometheus metrics for outbound Graph API calls.
type GraphMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewGraphMetrics creates and registers Graph API metrics on the given registry.
func NewGraphMetrics(reg prometheus.Registerer) *GraphMetrics {
	m := &GraphMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "requests_total",
			Help:      "Total number of Graph API requests, by endpoint and status.",
		}, []string{"endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "request_duration_seconds",
			Help:      "Duration of Graph API requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(m.Requests, m.RequestDuration)
	return m
}
