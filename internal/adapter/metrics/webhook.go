package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics holds Prometheus metrics for inbound webhook deliveries and their dispatch.
type WebhookMetrics struct {
	Deliveries       *prometheus.CounterVec
	Events           *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	DispatchDuration prometheus.Histogram
}

// NewWebhookMetrics creates and registers webhook metrics on the given registry.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Total number of webhook deliveries, by result.",
		}, []string{"result"}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Total number of dispatched events, by kind.",
		}, []string{"kind"}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "dispatch_failures_total",
			Help:      "Total number of dispatch units that failed, by unit and reason.",
		}, []string{"unit", "reason"}),
		DispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of dispatching one webhook envelope in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}

	reg.MustRegister(m.Deliveries, m.Events, m.DispatchFailures, m.DispatchDuration)
	return m
}
