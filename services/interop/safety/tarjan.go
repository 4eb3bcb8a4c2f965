// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"errors"
	"fmt"
)

// ErrMissingComponent indicates a node without a component at propagation
// time, or a component propagated before one of its successors.
var ErrMissingComponent = errors.New("node has no strongly connected component")

// Graph is an adjacency list over dense node indices.
type Graph [][]int

// Components is the SCC decomposition of a Graph.
type Components struct {
	// SCCs lists the components sink-first: every edge leaving SCCs[i]
	// lands in some SCCs[j] with j < i.
	SCCs [][]int

	// Of maps each node to its index in SCCs, or -1 when unassigned.
	Of []int
}

// Tarjan decomposes g into strongly connected components.
//
// Description:
//
//	Iterative Tarjan with an explicit call stack, so deep inheritance or
//	containment chains cannot overflow the goroutine stack. Roots are tried
//	in index order, which makes the output deterministic. A node's
//	component is written once, when its component is popped.
//
//	Time complexity: O(V + E)
//
// Outputs:
//
//	Components - SCCs in sink-first order and the node-to-SCC map.
func Tarjan(g Graph) Components {
	n := len(g)
	comp := Components{Of: make([]int, n)}
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range n {
		index[i] = -1
		comp.Of[i] = -1
	}
	next := 0
	var stack []int

	type callFrame struct {
		node  int
		edge  int
		phase int // 0=enter, 1=edges, 2=after child, 3=finish
		child int
	}

	for root := range n {
		if index[root] >= 0 {
			continue
		}
		calls := []callFrame{{node: root}}
		for len(calls) > 0 {
			f := &calls[len(calls)-1]
			switch f.phase {
			case 0:
				index[f.node] = next
				low[f.node] = next
				next++
				stack = append(stack, f.node)
				onStack[f.node] = true
				f.phase = 1

			case 1:
				pushed := false
				for f.edge < len(g[f.node]) {
					to := g[f.node][f.edge]
					f.edge++
					if index[to] < 0 {
						f.phase = 2
						f.child = to
						calls = append(calls, callFrame{node: to})
						pushed = true
						break
					}
					if onStack[to] && index[to] < low[f.node] {
						low[f.node] = index[to]
					}
				}
				if !pushed {
					f.phase = 3
				}

			case 2:
				if low[f.child] < low[f.node] {
					low[f.node] = low[f.child]
				}
				f.phase = 1

			case 3:
				if low[f.node] == index[f.node] {
					id := len(comp.SCCs)
					var scc []int
					for {
						w := stack[len(stack)-1]
						stack = stack[:len(stack)-1]
						onStack[w] = false
						if comp.Of[w] < 0 {
							comp.Of[w] = id
						}
						scc = append(scc, w)
						if w == f.node {
							break
						}
					}
					comp.SCCs = append(comp.SCCs, scc)
				}
				calls = calls[:len(calls)-1]
			}
		}
	}
	return comp
}

// Propagate computes one verdict per component.
//
// Description:
//
//	Components are processed sink-first. A component that contains a
//	pinned node takes the pinned verdict. Any other component is Safe
//	unless an edge leaves it towards a component that is not Safe, in
//	which case it is Unsafe. Edges inside a component never decide it.
//
// Inputs:
//
//	g - The graph.
//	comp - Tarjan's decomposition of g.
//	pinned - Verdicts fixed before traversal, by node.
//
// Outputs:
//
//	[]Verdict - Indexed like comp.SCCs.
//	error - ErrMissingComponent if comp does not cover g in sink-first order.
func Propagate(g Graph, comp Components, pinned map[int]Verdict) ([]Verdict, error) {
	verdicts := make([]Verdict, len(comp.SCCs))
	for i, scc := range comp.SCCs {
		v := Safe
		fixed := false
		for _, node := range scc {
			if p, ok := pinned[node]; ok {
				v, fixed = p, true
				break
			}
		}
		for _, node := range scc {
			if node < 0 || node >= len(comp.Of) || comp.Of[node] != i {
				return nil, fmt.Errorf("%w: node %d", ErrMissingComponent, node)
			}
			for _, to := range g[node] {
				j := comp.Of[to]
				if j < 0 || j > i {
					return nil, fmt.Errorf("%w: edge %d -> %d", ErrMissingComponent, node, to)
				}
				if !fixed && j != i && verdicts[j] != Safe {
					v = Unsafe
				}
			}
		}
		verdicts[i] = v
	}
	return verdicts, nil
}
