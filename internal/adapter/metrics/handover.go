package metrics

import "github.com/prometheus/client_golang/prometheus"

// HandoverMetrics holds Prometheus metrics for thread-control handovers.
type HandoverMetrics struct {
	Handovers *prometheus.CounterVec
}

// NewHandoverMetrics creates and registers handover metrics on the given registry.
func NewHandoverMetrics(reg prometheus.Registerer) *HandoverMetrics {
	m := &HandoverMetrics{
		Handovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handovers_total",
			Help:      "Total number of thread-control handovers, by source and result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(m.Handovers)
	return m
}
