package graph

import (
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/pscheid92/pagegate/internal/adapter/metrics"
)

const breakerComponent = "graph"

// NewCircuitBreaker builds the breaker guarding Graph API calls:
// - WithFailureRateThreshold: 50% failure rate, min 10 requests, 30s rolling window
// - WithDelay: 15s before transitioning from open to half-open
// - WithSuccessThreshold: 2 successful requests in half-open to close
//
// m may be nil.
func NewCircuitBreaker(m *metrics.CircuitBreakerMetrics) circuitbreaker.CircuitBreaker[any] {
	return circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.5, 10, 30*time.Second).
		WithDelay(15 * time.Second).
		WithSuccessThreshold(2).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", breakerComponent,
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.StateChanges.WithLabelValues(breakerComponent, e.NewState.String()).Inc()
				m.State.WithLabelValues(breakerComponent).Set(StateValue(e.NewState))
			}
		}).
		Build()
}

// StateValue maps a breaker state onto the circuit_breaker_state gauge.
func StateValue(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}
