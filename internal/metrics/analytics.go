// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analyticsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_analytics_events_total",
		Help: "Analytics events recorded locally by type",
	}, []string{"type"})

	analyticsStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storyverse_analytics_store_errors_total",
		Help: "Failures persisting analytics events to the local store",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyverse_cache_lookups_total",
		Help: "Response cache lookups by result",
	}, []string{"result"}) // result=hit|miss
)

func IncAnalyticsEvent(eventType string) { analyticsEvents.WithLabelValues(eventType).Inc() }
func IncAnalyticsStoreError()            { analyticsStoreErrors.Inc() }
func IncCacheLookup(result string)       { cacheLookups.WithLabelValues(result).Inc() }
