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

// Phases groups tasks into parallel execution phases by dependency
// depth.
//
// # Description
//
// A task's phase depth is 0 when it has no dependencies, otherwise
// 1 + max(depth of its dependencies). This is the depth-from-root over
// resolved dependencies, distinct from Task.Depth which denotes
// epic/subtask nesting. Each depth bucket is one phase; a phase with
// more than one task is parallelizable.
//
// Every task lands in exactly one phase. Back edges of cycles are
// skipped during depth computation, so cyclic inputs terminate and the
// partition property still holds.
//
// # Outputs
//
//   - []Phase: Phases ordered by index, tasks within a phase in input
//     order. Empty for an empty graph.
func (g *Graph) Phases() []Phase {
	if len(g.nodes) == 0 {
		return nil
	}

	depth := make(map[string]int, len(g.nodes))
	state := make(map[string]int, len(g.nodes))

	var dfs func(id string) int
	dfs = func(id string) int {
		if state[id] == colorBlack {
			return depth[id]
		}
		state[id] = colorGray

		d := 0
		for _, dep := range g.nodes[id].Dependencies {
			if state[dep] == colorGray {
				continue // back edge
			}
			if dd := dfs(dep) + 1; dd > d {
				d = dd
			}
		}

		state[id] = colorBlack
		depth[id] = d
		return d
	}

	maxDepth := 0
	for _, id := range g.order {
		if d := dfs(id); d > maxDepth {
			maxDepth = d
		}
	}

	buckets := make([][]string, maxDepth+1)
	for _, id := range g.order {
		d := depth[id]
		buckets[d] = append(buckets[d], id)
	}

	phases := make([]Phase, 0, len(buckets))
	for i, ids := range buckets {
		if len(ids) == 0 {
			continue
		}
		phases = append(phases, Phase{
			Index:          i,
			TaskIDs:        ids,
			Parallelizable: len(ids) > 1,
		})
	}

	return phases
}

// ParallelizationScore returns the percentage of tasks sitting in
// multi-task phases: (tasks in parallelizable phases / total) x 100.
func ParallelizationScore(phases []Phase, total int) float64 {
	if total == 0 {
		return 0
	}
	parallel := 0
	for _, p := range phases {
		if p.Parallelizable {
			parallel += len(p.TaskIDs)
		}
	}
	return float64(parallel) / float64(total) * 100
}
