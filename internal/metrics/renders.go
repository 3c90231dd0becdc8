// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	renderPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_render_polls_total",
		Help: "Render job status fetches by observed status",
	}, []string{"status"}) // status=pending|processing|completed|failed|error

	renderOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_render_poll_outcomes_total",
		Help: "Render poll loop results",
	}, []string{"outcome"}) // outcome=completed|failed|timeout|error|canceled

	renderTransportRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyverse_render_poll_transport_retries_total",
		Help: "Render status fetches retried after a transient transport error",
	})

	renderWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storyverse_render_wait_seconds",
		Help:    "Wall-clock time spent polling a render job until a result",
		Buckets: prometheus.ExponentialBuckets(0.5, 2.0, 10),
	})
)

func IncRenderPoll(status string)       { renderPolls.WithLabelValues(status).Inc() }
func IncRenderTransportRetry()          { renderTransportRetries.Inc() }
func ObserveRenderWait(d time.Duration) { renderWaitSeconds.Observe(d.Seconds()) }

// RecordRenderOutcome counts how a poll loop ended.
func RecordRenderOutcome(outcome string) {
	renderOutcomes.WithLabelValues(outcome).Inc()
}
