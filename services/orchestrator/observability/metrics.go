// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the orchestrator.
//
// Metrics cover the turn pipeline end to end: turn counts and latency,
// intent classification outcomes, tool invocations, reasoning-loop
// iteration spend, and session-store occupancy. All metric operations
// are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "gebeya"

// Subsystem for orchestrator metrics
const orchestratorSubsystem = "orchestrator"

// Metrics holds all Prometheus metrics for the turn pipeline.
// Initialize once at startup via InitMetrics().
type Metrics struct {
	// TurnsTotal counts completed turns by flow and status.
	// Labels: flow (customer, supplier, onboarding, unknown),
	// status (ok, degraded, unavailable, invalid)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: flow
	TurnDurationSeconds *prometheus.HistogramVec

	// ClassificationsTotal counts classifier outcomes.
	// Labels: flow, outcome (parsed, fallback)
	ClassificationsTotal *prometheus.CounterVec

	// ToolInvocationsTotal counts tool calls by tool and status.
	// Labels: tool, status (success, error)
	ToolInvocationsTotal *prometheus.CounterVec

	// ToolDurationSeconds measures individual tool call latency.
	// Labels: tool
	ToolDurationSeconds *prometheus.HistogramVec

	// LoopIterations measures reasoning-loop iterations spent per turn.
	LoopIterations prometheus.Histogram

	// ActiveSessions tracks sessions currently held by the store.
	ActiveSessions prometheus.Gauge

	// SessionsEvictedTotal counts sessions removed by the TTL sweeper.
	SessionsEvictedTotal prometheus.Counter

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *Metrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup; calling twice panics on duplicate registration.
func InitMetrics() *Metrics {
	DefaultMetrics = &Metrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "turns_total",
				Help:      "Total completed turns by flow and status",
			},
			[]string{"flow", "status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
			},
			[]string{"flow"},
		),

		ClassificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "classifications_total",
				Help:      "Intent classifier outcomes by flow",
			},
			[]string{"flow", "outcome"},
		),

		ToolInvocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "tool_invocations_total",
				Help:      "Tool calls by tool name and status",
			},
			[]string{"tool", "status"},
		),

		ToolDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "tool_duration_seconds",
				Help:      "Individual tool call latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"tool"},
		),

		LoopIterations: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "loop_iterations",
				Help:      "Reasoning-loop iterations spent per turn",
				Buckets:   []float64{1, 2, 3, 5, 10, 15, 20, 30},
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "active_sessions",
				Help:      "Sessions currently held by the session store",
			},
		),

		SessionsEvictedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "sessions_evicted_total",
				Help:      "Sessions removed by the TTL sweeper",
			},
		),

		RateLimitedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: orchestratorSubsystem,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
		),
	}

	return DefaultMetrics
}

// Turn statuses for TurnsTotal.
const (
	TurnStatusOK          = "ok"
	TurnStatusDegraded    = "degraded"
	TurnStatusUnavailable = "unavailable"
	TurnStatusInvalid     = "invalid"
)

// RecordTurn records a completed turn.
func (m *Metrics) RecordTurn(flow, status string, seconds float64) {
	m.TurnsTotal.WithLabelValues(flow, status).Inc()
	m.TurnDurationSeconds.WithLabelValues(flow).Observe(seconds)
}

// RecordClassification records a classifier outcome. fallback marks the
// degraded intent.unknown path.
func (m *Metrics) RecordClassification(flow string, fallback bool) {
	outcome := "parsed"
	if fallback {
		outcome = "fallback"
	}
	m.ClassificationsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool string, seconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ToolInvocationsTotal.WithLabelValues(tool, status).Inc()
	m.ToolDurationSeconds.WithLabelValues(tool).Observe(seconds)
}
