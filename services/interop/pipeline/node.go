// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline sequences analysis passes.
//
// Passes declare the passes they read from; the pipeline validates that the
// declarations form a DAG and runs the passes one at a time in a stable
// topological order. A pass starts only after every pass before it has
// completed and published its result, and the first failure stops the run.
package pipeline

import (
	"context"
	"errors"
	"slices"

	"github.com/dominikbraun/graph"
)

// Node is one step of the pipeline.
type Node interface {
	// Name uniquely identifies the node.
	Name() string

	// Dependencies are the names of nodes that must complete first.
	Dependencies() []string

	// Execute runs the step. It is called at most once per run.
	Execute(ctx context.Context) error
}

// FuncNode adapts a function to Node.
type FuncNode struct {
	name string
	deps []string
	fn   func(context.Context) error
}

// NewFuncNode creates a node from a function.
func NewFuncNode(name string, deps []string, fn func(context.Context) error) *FuncNode {
	return &FuncNode{name: name, deps: deps, fn: fn}
}

// Name implements Node.
func (n *FuncNode) Name() string { return n.name }

// Dependencies implements Node.
func (n *FuncNode) Dependencies() []string {
	if n.deps == nil {
		return []string{}
	}
	return n.deps
}

// Execute implements Node.
func (n *FuncNode) Execute(ctx context.Context) error {
	if n.fn == nil {
		return ErrInvalidInput
	}
	return n.fn(ctx)
}

// DAG is a validated set of nodes with a fixed execution order.
type DAG struct {
	name  string
	nodes map[string]Node
	order []string
}

// Name returns the pipeline name.
func (d *DAG) Name() string { return d.name }

// NodeCount returns the number of nodes.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// Order returns node names in execution order.
func (d *DAG) Order() []string { return slices.Clone(d.order) }

// Node returns the node called name.
func (d *DAG) Node(name string) (Node, bool) {
	n, ok := d.nodes[name]
	return n, ok
}

// Builder constructs a DAG with validation.
//
// Thread Safety: Builder is NOT safe for concurrent use.
//
// Example:
//
//	dag, err := pipeline.NewBuilder("interop").
//	    AddNode(importNode).
//	    AddNode(depsNode).
//	    Build()
type Builder struct {
	name  string
	nodes []Node
	seen  map[string]bool
	errs  []error
}

// NewBuilder creates a builder for a pipeline called name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, seen: make(map[string]bool)}
}

// AddNode adds a node. Errors are reported by Build.
func (b *Builder) AddNode(n Node) *Builder {
	if n == nil {
		b.errs = append(b.errs, ErrNilNode)
		return b
	}
	if b.seen[n.Name()] {
		b.errs = append(b.errs, NewNodeError(n.Name(), ErrDuplicateNode))
		return b
	}
	b.seen[n.Name()] = true
	b.nodes = append(b.nodes, n)
	return b
}

// Build validates the dependencies and fixes the execution order.
//
// Description:
//
//	Nodes become vertices of a directed graph that refuses edges closing
//	a cycle. The order is a stable topological sort where ties are broken
//	by insertion order, so the same builder always yields the same order.
//
// Outputs:
//
//	*DAG - The validated pipeline.
//	error - The first recorded AddNode error, *NodeError wrapping
//	        ErrNodeNotFound, or *CycleError.
func (b *Builder) Build() (*DAG, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}
	if len(b.nodes) == 0 {
		return nil, ErrInvalidInput
	}

	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	rank := make(map[string]int, len(b.nodes))
	nodes := make(map[string]Node, len(b.nodes))
	for i, n := range b.nodes {
		if err := g.AddVertex(n.Name()); err != nil {
			return nil, NewNodeError(n.Name(), err)
		}
		rank[n.Name()] = i
		nodes[n.Name()] = n
	}

	for _, n := range b.nodes {
		for _, dep := range n.Dependencies() {
			if _, ok := nodes[dep]; !ok {
				return nil, NewNodeError(n.Name(), ErrNodeNotFound)
			}
			err := g.AddEdge(dep, n.Name())
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				return nil, &CycleError{Path: cyclePath(g, dep, n.Name())}
			default:
				return nil, NewNodeError(n.Name(), err)
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool {
		return rank[a] < rank[b]
	})
	if err != nil {
		return nil, err
	}
	return &DAG{name: b.name, nodes: nodes, order: order}, nil
}

// cyclePath reconstructs the cycle that the edge from -> to would close.
func cyclePath(g graph.Graph[string, string], from, to string) []string {
	path, err := graph.ShortestPath(g, to, from)
	if err != nil {
		return []string{from, to, from}
	}
	return append(path, to)
}
