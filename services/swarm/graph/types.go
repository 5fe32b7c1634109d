// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSwarm/services/swarm/datatypes"
)

// Node is one task in the dependency graph.
//
// Edges are stored as id slices rather than node pointers so that
// cyclic inputs never create reference cycles and the graph stays
// trivially serializable.
type Node struct {
	// TaskID keys the node.
	TaskID string

	// Dependencies are forward edges: tasks this node waits on. Dangling
	// references have already been dropped.
	Dependencies []string

	// Dependents are back edges: tasks waiting on this node.
	Dependents []string
}

// Graph is the derived dependency structure over a task set.
//
// Never persisted; rebuilt on demand from task rows. Immutable after
// Build() returns.
type Graph struct {
	nodes map[string]*Node
	tasks map[string]*datatypes.Task

	// order preserves input order of task ids; it is the fallback
	// ordering when cycles make a topological sort impossible.
	order []string

	warnings []Warning
}

// Build constructs the adjacency structure from a task set in O(V+E).
//
// # Description
//
// Dependency references to unknown task ids are dropped from the edge
// list, logged, and recorded as warnings. Cycles are NOT detected here;
// call DetectCycles on the result.
//
// # Inputs
//
//   - tasks: The task set. May be empty. Duplicate ids return an error.
//
// # Outputs
//
//   - *Graph: The adjacency structure. Never nil on success.
//   - error: Non-nil only for duplicate task ids.
func Build(tasks []*datatypes.Task) (*Graph, error) {
	g := &Graph{
		nodes: make(map[string]*Node, len(tasks)),
		tasks: make(map[string]*datatypes.Task, len(tasks)),
		order: make([]string, 0, len(tasks)),
	}

	for _, t := range tasks {
		if _, exists := g.nodes[t.ID]; exists {
			return nil, ErrDuplicateTask
		}
		g.nodes[t.ID] = &Node{TaskID: t.ID}
		g.tasks[t.ID] = t
		g.order = append(g.order, t.ID)
	}

	for _, t := range tasks {
		node := g.nodes[t.ID]
		for _, dep := range t.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				slog.Warn("dropping dangling dependency reference",
					slog.String("task_id", t.ID),
					slog.String("missing_dep", dep),
				)
				g.warnings = append(g.warnings, Warning{
					Code:    WarnDanglingDependency,
					Message: "dependency references unknown task id " + dep,
					TaskIDs: []string{t.ID, dep},
				})
				continue
			}
			node.Dependencies = append(node.Dependencies, dep)
			g.nodes[dep].Dependents = append(g.nodes[dep].Dependents, t.ID)
		}
	}

	return g, nil
}

// Node returns the node for a task id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Task returns the task row backing a node.
func (g *Graph) Task(id string) (*datatypes.Task, bool) {
	t, ok := g.tasks[id]
	return t, ok
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	return len(g.nodes)
}

// Order returns task ids in input order.
func (g *Graph) Order() []string {
	return g.order
}

// Warnings returns structural warnings recorded during Build.
func (g *Graph) Warnings() []Warning {
	return g.warnings
}

// DependentCount returns the number of direct dependents of a task, or
// zero for unknown ids.
func (g *Graph) DependentCount(id string) int {
	if n, ok := g.nodes[id]; ok {
		return len(n.Dependents)
	}
	return 0
}

// Roots returns the ids of tasks with no dependencies, in input order.
func (g *Graph) Roots() []string {
	var roots []string
	for _, id := range g.order {
		if len(g.nodes[id].Dependencies) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// weight returns the critical-path weight of a task: its estimated
// duration in seconds, or 1 when no estimate is set (task count).
func (g *Graph) weight(id string) float64 {
	t, ok := g.tasks[id]
	if !ok || t.EstimatedDuration <= 0 {
		return 1
	}
	return t.EstimatedDuration.Seconds()
}

// =============================================================================
// Analysis Result
// =============================================================================

// Phase is one parallel execution phase: all tasks at the same
// dependency depth from the roots.
type Phase struct {
	// Index is the phase number, starting at 0 for root tasks.
	Index int `json:"index"`

	// TaskIDs lists the tasks in the phase, in input order.
	TaskIDs []string `json:"task_ids"`

	// Parallelizable is true when the phase holds more than one task.
	Parallelizable bool `json:"parallelizable"`
}

// Bottleneck is a task whose delay disproportionately delays the graph.
type Bottleneck struct {
	TaskID string `json:"task_id"`

	// DependentCount is the number of direct dependents.
	DependentCount int `json:"dependent_count"`

	// OnCriticalPath marks membership in the critical path.
	OnCriticalPath bool `json:"on_critical_path"`
}

// Result is the output of a full graph analysis.
type Result struct {
	// Order is a topological order of task ids, or input order when
	// cycles exist (see OrderAdvisory).
	Order []string `json:"order"`

	// OrderAdvisory is true when cycles degraded Order to input order;
	// callers must not rely on it as a valid linearization.
	OrderAdvisory bool `json:"order_advisory"`

	// Cycles lists every detected dependency cycle as an ordered list
	// of task ids.
	Cycles [][]string `json:"cycles,omitempty"`

	// Phases partitions all tasks by dependency depth.
	Phases []Phase `json:"phases"`

	// CriticalPath is the longest dependency chain, root first.
	CriticalPath []string `json:"critical_path"`

	// CriticalPathLength is the accumulated weight of the critical path
	// (task count, or summed estimated durations in seconds).
	CriticalPathLength float64 `json:"critical_path_length"`

	// Bottlenecks lists tasks with >= 3 direct dependents, descending
	// by dependent count.
	Bottlenecks []Bottleneck `json:"bottlenecks,omitempty"`

	// ParallelizationScore is the percentage of tasks sitting in
	// multi-task phases.
	ParallelizationScore float64 `json:"parallelization_score"`

	// Warnings carries structural problems (dangling refs, cycles).
	Warnings []Warning `json:"warnings,omitempty"`

	// Elapsed is the wall-clock analysis time.
	Elapsed time.Duration `json:"elapsed"`
}

// OnCriticalPath reports whether a task id sits on the critical path.
func (r *Result) OnCriticalPath(id string) bool {
	for _, p := range r.CriticalPath {
		if p == id {
			return true
		}
	}
	return false
}
