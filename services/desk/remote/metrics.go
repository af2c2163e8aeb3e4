// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package remote

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Outbound Calls
// =============================================================================

var (
	// remoteCallsTotal counts outbound calls by collaborator, operation and outcome.
	// Labels: target (crm, whatsapp), op, outcome (success, NetworkError, RemoteRejected, Timeout, Canceled)
	remoteCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "remote",
		Name:      "calls_total",
		Help:      "Total outbound calls by target, operation and outcome",
	}, []string{"target", "op", "outcome"})

	// remoteLatencySeconds measures outbound call latency including body read.
	// Labels: target, op
	remoteLatencySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "voicedesk",
		Subsystem: "remote",
		Name:      "latency_seconds",
		Help:      "Outbound call latency including response body read",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"target", "op"})

	// remoteActiveRequests tracks in-flight outbound calls.
	// Labels: target
	remoteActiveRequests = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "voicedesk",
		Subsystem: "remote",
		Name:      "active_requests",
		Help:      "Number of in-flight outbound calls",
	}, []string{"target"})

	// remoteThrottledSeconds accumulates time spent waiting on a rate limiter.
	// Labels: target
	remoteThrottledSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "remote",
		Name:      "throttled_seconds_total",
		Help:      "Cumulative time outbound calls waited on a rate limiter",
	}, []string{"target"})
)

// recordCall records one completed outbound call.
//
// Inputs:
//   - target: Collaborator name.
//   - op: Operation name.
//   - duration: Wall time of the call.
//   - err: The failure, if any. Nil means success.
func recordCall(target, op string, duration time.Duration, err *Error) {
	outcome := "success"
	if err != nil {
		outcome = string(err.Kind)
	}
	remoteCallsTotal.WithLabelValues(target, op, outcome).Inc()
	remoteLatencySeconds.WithLabelValues(target, op).Observe(duration.Seconds())
}

// RecordThrottle records time a caller spent waiting for a rate limiter token.
func RecordThrottle(target string, waited time.Duration) {
	if waited > 0 {
		remoteThrottledSeconds.WithLabelValues(target).Add(waited.Seconds())
	}
}
