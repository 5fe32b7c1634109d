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

// TopologicalOrder computes an execution order over dependency edges.
//
// # Description
//
// Kahn's algorithm: tasks with no unresolved dependencies are emitted
// first, in input order, then each completion releases its dependents.
// The result is deterministic for a given input order, so repeated
// analysis of an unchanged task set yields an identical order.
//
// When cycles prevent a full linearization the result falls back to
// input order and the advisory flag is set; callers must treat an
// advisory order as a hint, not a valid linearization.
//
// # Outputs
//
//   - []string: Task ids, dependencies before dependents (or input
//     order when advisory).
//   - bool: True when the order is advisory due to cycles.
func (g *Graph) TopologicalOrder() ([]string, bool) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = len(g.nodes[id].Dependencies)
	}

	queue := make([]string, 0, len(g.nodes))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		for _, dependent := range g.nodes[id].Dependents {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) < len(g.nodes) {
		// Cycles stranded some tasks with positive in-degree.
		return append([]string(nil), g.order...), true
	}

	return result, false
}
