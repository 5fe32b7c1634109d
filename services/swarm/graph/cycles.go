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

// DFS node colors for cycle detection.
const (
	colorWhite = iota // unvisited
	colorGray         // on the recursion stack
	colorBlack        // fully explored
)

// DetectCycles finds every dependency cycle in the graph.
//
// # Description
//
// Iterative DFS with an explicit recursion stack over dependency
// edges. Any edge into a node still on the stack closes a cycle; the
// cycle is reported as the ordered list of task ids from that node to
// the top of the stack. Detection does not stop at the first cycle.
//
// # Outputs
//
//   - [][]string: All detected cycles, each a non-empty ordered id
//     list. Nil when the graph is acyclic.
//
// # Limitations
//
//   - Two cycles sharing an edge may be reported through a single
//     traversal; every cycle closed by a back edge is reported, which
//     is sufficient for the caller to degrade ordering and surface the
//     damage.
func (g *Graph) DetectCycles() [][]string {
	color := make(map[string]int, len(g.nodes))
	var cycles [][]string

	// Explicit stack frames avoid recursion depth limits on deep
	// dependency chains.
	type frame struct {
		id      string
		nextDep int
	}

	for _, start := range g.order {
		if color[start] != colorWhite {
			continue
		}

		stack := []frame{{id: start}}
		onStack := []string{start}
		color[start] = colorGray

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			node := g.nodes[top.id]

			if top.nextDep < len(node.Dependencies) {
				dep := node.Dependencies[top.nextDep]
				top.nextDep++

				switch color[dep] {
				case colorWhite:
					color[dep] = colorGray
					stack = append(stack, frame{id: dep})
					onStack = append(onStack, dep)
				case colorGray:
					// Back edge: the cycle runs from dep to the stack top.
					for i := len(onStack) - 1; i >= 0; i-- {
						if onStack[i] == dep {
							cycle := append([]string(nil), onStack[i:]...)
							cycles = append(cycles, cycle)
							break
						}
					}
				}
			} else {
				color[top.id] = colorBlack
				stack = stack[:len(stack)-1]
				onStack = onStack[:len(onStack)-1]
			}
		}
	}

	return cycles
}

// HasCycle reports whether at least one dependency cycle exists.
func (g *Graph) HasCycle() bool {
	return len(g.DetectCycles()) > 0
}
