// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph builds and analyzes the task dependency DAG.
//
// The graph package contains pure functions over an in-memory adjacency
// structure keyed by task id: cycle detection, topological ordering,
// critical-path computation, and parallel-phase grouping. It performs
// no persistence and holds no locks; callers rebuild the graph on
// demand from task rows.
//
// # Structural Damage
//
// Input data may already be damaged: dependency references to unknown
// task ids and dependency cycles are both possible. Neither is fatal.
// Dangling references are dropped from the edge list and reported as
// warnings; cycles are reported in full and degrade the topological
// order to advisory (input order).
//
// # Thread Safety
//
// A Graph is immutable after Build() returns and safe for concurrent
// reads. The Analyzer is safe for concurrent use.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrNilContext is returned when a nil context is passed to Analyze.
	ErrNilContext = errors.New("context must not be nil")

	// ErrDuplicateTask is returned when the input task set contains two
	// tasks with the same id.
	ErrDuplicateTask = errors.New("duplicate task id in task set")
)

// Warning codes attached to analysis results. Structural problems are
// reported, not fatal (the orchestrator must keep scheduling what it
// can).
const (
	// WarnDanglingDependency marks a dependency reference to an unknown
	// task id. The edge is dropped from the graph.
	WarnDanglingDependency = "dangling_dependency"

	// WarnDependencyCycle marks a dependency cycle. Topological order
	// degrades to input order and must be treated as advisory.
	WarnDependencyCycle = "dependency_cycle"
)

// Warning describes a structural problem found while building or
// analyzing the graph.
type Warning struct {
	// Code is one of the Warn* constants.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// TaskIDs lists the tasks involved.
	TaskIDs []string `json:"task_ids,omitempty"`
}
