// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability holds the Prometheus instruments for the swarm
// orchestration core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instruments registered against the default registry at init.
var (
	// TasksClaimed counts successful task claims.
	TasksClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_tasks_claimed_total",
		Help: "Number of tasks claimed by executors.",
	})

	// TaskTransitions counts task status transitions by target status.
	TaskTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_task_transitions_total",
		Help: "Number of task status transitions by target status.",
	}, []string{"to"})

	// TaskRetries counts failed execution attempts that were retried.
	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_task_retries_total",
		Help: "Number of retried task execution attempts.",
	})

	// TasksBlocked counts tasks blocked after exhausting retries.
	TasksBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_tasks_blocked_total",
		Help: "Number of tasks blocked after exhausting their retry budget.",
	})

	// InvocationCostUSD accumulates backend spend.
	InvocationCostUSD = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_invocation_cost_usd_total",
		Help: "Cumulative backend invocation cost in US dollars.",
	})

	// InvocationDuration observes backend invocation latency.
	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_invocation_duration_seconds",
		Help:    "Backend invocation latency.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// ConflictResolutions counts conflict resolution attempts by
	// checkpoint and outcome.
	ConflictResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_conflict_resolutions_total",
		Help: "Conflict resolution attempts by checkpoint and outcome.",
	}, []string{"checkpoint", "outcome"})

	// ReconcileDuration observes reconciliation sweep latency.
	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_reconcile_duration_seconds",
		Help:    "Reconciliation sweep latency.",
		Buckets: prometheus.DefBuckets,
	})

	// ReconcileRepairs counts inconsistencies fixed by the sweep.
	ReconcileRepairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_reconcile_repairs_total",
		Help: "Inconsistencies repaired by the reconciliation sweep, by kind.",
	}, []string{"kind"})

	// AnalyzeDuration observes dependency graph analysis latency.
	AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_analyze_duration_seconds",
		Help:    "Dependency graph analysis latency.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	// RebalanceChanges observes priority changes applied per rebalance.
	RebalanceChanges = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_rebalance_changes",
		Help:    "Priority changes applied per rebalance run.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
