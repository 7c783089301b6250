// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package metrics exposes Prometheus instrumentation for:
// - Portal API request latency, errors, and retries
// - Refresh pipeline outcomes and stage failures
// - Advisory lock contention
// - Memoization cache efficiency
// - Circuit breaker state
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Portal API metrics
	PortalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wse_portal_request_duration_seconds",
			Help:    "Duration of WSE portal API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	PortalRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wse_portal_request_errors_total",
			Help: "Total number of failed WSE portal API requests",
		},
		[]string{"endpoint", "reason"}, // "http_error", "auth", "decode", "network"
	)

	PortalRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wse_portal_retries_total",
			Help: "Total number of retried WSE portal API requests",
		},
		[]string{"endpoint"},
	)

	TokenRefreshRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wse_token_refresh_requests_total",
			Help: "Total number of token refresh webhook triggers",
		},
	)

	// Memoization cache metrics
	MemoCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wse_memo_cache_hits_total",
			Help: "Total number of portal response memoization hits",
		},
	)

	MemoCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wse_memo_cache_misses_total",
			Help: "Total number of portal response memoization misses",
		},
	)

	// Refresh pipeline metrics
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_refresh_total",
			Help: "Total number of refresh cycles by outcome",
		},
		[]string{"trigger", "outcome"}, // trigger: "startup", "background", "manual"; outcome: "success", "failure", "skipped"
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tracker_refresh_duration_seconds",
			Help:    "Duration of complete refresh cycles in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	StageItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_stage_item_failures_total",
			Help: "Total number of per-item failures tolerated during pipeline stages",
		},
		[]string{"stage"}, // "class_details", "level_summaries", "lesson_summaries"
	)

	DataAge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tracker_data_age_seconds",
			Help: "Age of the oldest cached schedule document in seconds",
		},
	)

	// Advisory lock metrics
	LockAcquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_lock_acquisitions_total",
			Help: "Total number of advisory lock acquisition attempts by outcome",
		},
		[]string{"outcome"}, // "acquired", "reclaimed", "contended"
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tracker_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"breaker", "from", "to"},
	)

	// HTTP API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracker_http_request_duration_seconds",
			Help:    "Duration of tracker HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ObservePortalRequest records one portal API call.
func ObservePortalRequest(endpoint string, start time.Time) {
	PortalRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
