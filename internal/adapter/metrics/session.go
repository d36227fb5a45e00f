package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics holds Prometheus metrics for the session registry.
type SessionMetrics struct {
	Active         prometheus.Gauge
	Created        prometheus.Counter
	Evictions      *prometheus.CounterVec
	ProfileFetches *prometheus.CounterVec
}

// NewSessionMetrics creates and registers session metrics on the given registry.
func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	m := &SessionMetrics{
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of sessions held in memory.",
		}),
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Total number of sessions created.",
		}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "evictions_total",
			Help:      "Total number of evicted sessions, by reason.",
		}, []string{"reason"}),
		ProfileFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "profile_fetches_total",
			Help:      "Total number of profile enrichments, by source and result.",
		}, []string{"source", "result"}),
	}

	reg.MustRegister(m.Active, m.Created, m.Evictions, m.ProfileFetches)
	return m
}
