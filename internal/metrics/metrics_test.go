// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetCircuitBreakerState_OneHot(t *testing.T) {
	SetCircuitBreakerState("unit", "open")

	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("unit", "open")))
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("unit", "closed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("unit", "half-open")))

	SetCircuitBreakerState("unit", "closed")
	assert.Equal(t, 0.0, testutil.ToFloat64(breakerState.WithLabelValues("unit", "open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("unit", "closed")))
}

func TestRecordCircuitBreakerRejection(t *testing.T) {
	open := breakerRejected.WithLabelValues("unit", "open")
	halfOpen := breakerRejected.WithLabelValues("unit", "half-open")
	beforeOpen, beforeHalf := testutil.ToFloat64(open), testutil.ToFloat64(halfOpen)

	RecordCircuitBreakerRejection("unit", "open")
	RecordCircuitBreakerRejection("unit", "open")
	RecordCircuitBreakerRejection("unit", "half-open")

	assert.Equal(t, beforeOpen+2, testutil.ToFloat64(open))
	assert.Equal(t, beforeHalf+1, testutil.ToFloat64(halfOpen))
}

func TestRecordAREventFlush(t *testing.T) {
	before := testutil.ToFloat64(arFlushTotal.WithLabelValues("size", "error"))
	RecordAREventFlush("size", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(arFlushTotal.WithLabelValues("size", "error")))
}

func TestQueueDepthGauge(t *testing.T) {
	SetAREventQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(arQueueDepth))
	SetAREventQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(arQueueDepth))
}
