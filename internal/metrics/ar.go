// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fallbackTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_fallback_timer_transitions_total",
		Help: "Fallback timer lifecycle transitions",
	}, []string{"transition"}) // transition=start|pause|resume|reset|expire|stop

	arSessionStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_ar_session_state_total",
		Help: "AR session state entries",
	}, []string{"state"})

	arEventsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_ar_events_enqueued_total",
		Help: "AR tracking events accepted by the batcher",
	}, []string{"type"})

	arEventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_ar_events_dropped_total",
		Help: "AR tracking events dropped before delivery",
	}, []string{"reason"}) // reason=overflow|closed|undelivered

	arEventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyverse_ar_events_delivered_total",
		Help: "AR tracking events acknowledged by the backend",
	})

	arFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_ar_event_flush_total",
		Help: "AR event batch flush attempts by trigger and outcome",
	}, []string{"trigger", "outcome"}) // trigger=size|timer|manual|force; outcome=ok|error|circuit_open

	arQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storyverse_ar_event_queue_depth",
		Help: "AR tracking events waiting for delivery",
	})
)

// RecordFallbackTransition counts a fallback timer lifecycle transition.
func RecordFallbackTransition(transition string) {
	fallbackTransitions.WithLabelValues(transition).Inc()
}

// RecordARSessionState counts entries into an AR session state.
func RecordARSessionState(state string) {
	arSessionStates.WithLabelValues(state).Inc()
}

func IncAREventEnqueued(eventType string) { arEventsEnqueued.WithLabelValues(eventType).Inc() }
func IncAREventDropped(reason string)     { arEventsDropped.WithLabelValues(reason).Inc() }
func AddAREventsDelivered(n int)          { arEventsDelivered.Add(float64(n)) }
func SetAREventQueueDepth(n int)          { arQueueDepth.Set(float64(n)) }

// RecordAREventFlush counts a flush attempt.
func RecordAREventFlush(trigger, outcome string) {
	arFlushTotal.WithLabelValues(trigger, outcome).Inc()
}
