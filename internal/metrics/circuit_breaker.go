// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breakers guard the backend client; component is the breaker name
// (e.g. "backend_api").
var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storyverse_circuit_breaker_state",
		Help: "Active breaker state per component (one-hot over closed, half-open, open)",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_circuit_breaker_trips_total",
		Help: "Breaker transitions to open, by cause",
	}, []string{"component", "reason"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_circuit_breaker_rejected_total",
		Help: "Calls refused without reaching the backend, by breaker state",
	}, []string{"component", "state"})
)

var breakerStates = [...]string{"closed", "half-open", "open"}

// SetCircuitBreakerState marks state as the active one for component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range breakerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		breakerState.WithLabelValues(component, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}

// RecordCircuitBreakerRejection counts a call the breaker refused, either
// because it is open or because a half-open trial call is already in flight.
func RecordCircuitBreakerRejection(component, state string) {
	breakerRejected.WithLabelValues(component, state).Inc()
}
