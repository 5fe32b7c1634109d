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

// BottleneckThreshold is the minimum direct-dependent count for a task
// to register as a bottleneck.
const BottleneckThreshold = 3

// CriticalPath computes the longest dependency chain in the graph.
//
// # Description
//
// For every root task (no dependencies) a memoized DFS over dependents
// accumulates path weight: one unit per task, or the task's estimated
// duration when set. The maximum-weight path is the critical path,
// returned root first.
//
// Back edges into nodes still on the DFS stack are skipped, so cyclic
// inputs terminate; paths through a cycle are truncated at the cycle
// boundary, consistent with the advisory ordering degradation.
//
// # Outputs
//
//   - []string: Task ids on the critical path, root first. Empty for an
//     empty graph or a graph with no roots (fully cyclic input).
//   - float64: Accumulated path weight.
func (g *Graph) CriticalPath() ([]string, float64) {
	if len(g.nodes) == 0 {
		return nil, 0
	}

	// memo[id] holds the weight of the heaviest path starting at id;
	// next[id] holds the dependent continuing that path.
	memo := make(map[string]float64, len(g.nodes))
	next := make(map[string]string, len(g.nodes))
	state := make(map[string]int, len(g.nodes))

	var dfs func(id string) float64
	dfs = func(id string) float64 {
		if state[id] == colorBlack {
			return memo[id]
		}
		state[id] = colorGray

		var best float64
		var bestNext string
		for _, dep := range g.nodes[id].Dependents {
			if state[dep] == colorGray {
				continue // back edge, truncate at the cycle boundary
			}
			if length := dfs(dep); length > best {
				best = length
				bestNext = dep
			}
		}

		state[id] = colorBlack
		memo[id] = g.weight(id) + best
		if bestNext != "" {
			next[id] = bestNext
		}
		return memo[id]
	}

	var bestRoot string
	var bestLength float64
	for _, root := range g.Roots() {
		if length := dfs(root); length > bestLength {
			bestLength = length
			bestRoot = root
		}
	}

	if bestRoot == "" {
		return nil, 0
	}

	var path []string
	for id := bestRoot; id != ""; id = next[id] {
		path = append(path, id)
	}
	return path, bestLength
}

// Bottlenecks returns tasks with at least BottleneckThreshold direct
// dependents, descending by dependent count. Ties keep input order so
// repeated analysis is stable.
//
// # Inputs
//
//   - criticalPath: The current critical path, used to flag membership.
//
// # Outputs
//
//   - []Bottleneck: Ranked bottlenecks. Nil when none qualify.
func (g *Graph) Bottlenecks(criticalPath []string) []Bottleneck {
	onPath := make(map[string]bool, len(criticalPath))
	for _, id := range criticalPath {
		onPath[id] = true
	}

	var found []Bottleneck
	for _, id := range g.order {
		count := len(g.nodes[id].Dependents)
		if count < BottleneckThreshold {
			continue
		}
		found = append(found, Bottleneck{
			TaskID:         id,
			DependentCount: count,
			OnCriticalPath: onPath[id],
		})
	}

	// Insertion sort keeps ties in input order; bottleneck lists are
	// small.
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].DependentCount > found[j-1].DependentCount; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}

	return found
}
