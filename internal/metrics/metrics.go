// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

// Package metrics provides Prometheus instrumentation for the Coachess
// client: resource request latency and outcomes, identity endpoint calls,
// realtime channel lifecycle, and circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resource client metrics
	ResourceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coachess_resource_request_duration_seconds",
			Help:    "Duration of resource endpoint requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collection", "operation"},
	)

	ResourceRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachess_resource_request_errors_total",
			Help: "Total number of failed resource endpoint requests",
		},
		[]string{"collection", "operation", "status"},
	)

	ResourceTokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachess_resource_token_refreshes_total",
			Help: "Total number of refresh-on-401 attempts by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	// Identity endpoint metrics
	IdentityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachess_identity_requests_total",
			Help: "Total number of identity endpoint requests by operation and outcome",
		},
		[]string{"operation", "outcome"}, // outcome: "success", "auth_error", "rate_limited", "error"
	)

	// Realtime channel metrics
	RealtimeConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachess_realtime_connects_total",
			Help: "Total number of realtime socket connections established",
		},
	)

	RealtimeReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachess_realtime_reconnects_total",
			Help: "Total number of realtime reconnection attempts",
		},
	)

	RealtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachess_realtime_events_total",
			Help: "Total number of realtime events received by type",
		},
		[]string{"event"},
	)

	RealtimeDuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coachess_realtime_duplicates_dropped_total",
			Help: "Total number of duplicate message deliveries dropped by the feed",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coachess_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coachess_circuit_breaker_requests_total",
			Help: "Total requests through circuit breakers by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)
)
