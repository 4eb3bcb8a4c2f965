// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety decides which imported types may be shared across threads.
//
// # Algorithm
//
// Every imported record, enum and alias of the analyzed codebase seeds a
// node keyed by its canonical type spelling. Nodes are expanded along the
// dependency edges of the deps pass. Some nodes are pinned without looking
// further: builtins and function types are safe, pointers and references
// are unsafe, allow-listed types are safe, reference-imported types are
// unsafe, and types the analysis cannot see into are unknown.
//
// The graph is decomposed with Tarjan's algorithm and verdicts flow from
// sinks towards sources. A component is safe unless one of its edges lands
// in another component that is not safe. Every declaration whose type falls
// in a component gets that component's verdict.
package safety

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/depgraph"
	"github.com/AleutianAI/interopscan/services/interop/importability"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// PassName identifies the pass in caches and fixtures.
const PassName = "safety"

var (
	verdictTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interop_safety_verdicts_total",
		Help: "Safety verdicts assigned to declarations, by verdict",
	}, []string{"verdict"})

	sccSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "interop_safety_scc_size",
		Help:    "Number of type nodes per strongly connected component",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)

// Classifier is the concurrency-safety pass.
//
// Thread Safety: Not safe for concurrent use. One Classifier serves one run.
type Classifier struct {
	idx     *index.Index
	imports *analysis.Result[importability.Classification]
	deps    *analysis.Result[depgraph.Edges]
	codec   Codec
	logger  *slog.Logger

	keys   map[decl.ID]string
	byKey  map[string]Safety
	warned map[string]bool
}

// NewClassifier returns the pass. imports and deps are the sealed results of
// the import and dependency passes.
func NewClassifier(idx *index.Index, imports *analysis.Result[importability.Classification], deps *analysis.Result[depgraph.Edges], logger *slog.Logger) (*Classifier, error) {
	if idx == nil || imports == nil || deps == nil {
		return nil, fmt.Errorf("safety: index and upstream results must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		idx:     idx,
		imports: imports,
		deps:    deps,
		codec:   NewCodec(idx),
		logger:  logger.With(slog.String("pass", PassName)),
	}, nil
}

// Name implements analysis.Pass.
func (c *Classifier) Name() string { return PassName }

// VisitAll implements analysis.Pass. Only codebase declarations are seeded;
// third-party types enter the graph through edges.
func (c *Classifier) VisitAll() bool { return false }

// Handlers implements analysis.Pass.
func (c *Classifier) Handlers() analysis.Handlers[Safety] {
	seed := func(_ context.Context, res *analysis.Result[Safety], d *decl.Decl) error {
		if d.IsTemplateShell() {
			return nil
		}
		if imp, ok := c.imports.Get(d.ID); !ok || !imp.IsImported() {
			return nil
		}
		res.InsertOrAssign(d.ID, Safety{Verdict: Unknown}, analysis.Provisional)
		return nil
	}
	return analysis.Handlers[Safety]{
		decl.KindRecord: seed,
		decl.KindEnum:   seed,
		decl.KindAlias:  seed,
	}
}

// Codec implements analysis.Pass.
func (c *Classifier) Codec() analysis.Codec[Safety] { return c.codec }

// Complete implements analysis.Completer. It builds the type graph from the
// seeds, decomposes it and computes a verdict for every node.
func (c *Classifier) Complete(ctx context.Context, res *analysis.Result[Safety]) error {
	c.keys = make(map[decl.ID]string)
	c.byKey = make(map[string]Safety)
	c.warned = make(map[string]bool)

	g := newTypeGraph(c)
	for _, id := range res.IDs() {
		n := g.add(c.declType(id))
		c.keys[id] = g.nodes[n].key
	}
	if err := g.expand(ctx); err != nil {
		return err
	}

	comp := Tarjan(g.adj)
	verdicts, err := Propagate(g.adj, comp, g.pinned)
	if err != nil {
		return &analysis.InvariantError{Pass: PassName, Reason: "verdict propagation failed", Err: err}
	}

	for i, scc := range comp.SCCs {
		sccSize.Observe(float64(len(scc)))
		s := Safety{Verdict: verdicts[i]}
		if s.Verdict == Unsafe {
			s.Blocking = c.blocking(g, comp, verdicts, i)
		}
		for _, n := range scc {
			c.byKey[g.nodes[n].key] = s
		}
	}
	c.logger.Info("safety graph solved",
		slog.Int("nodes", len(g.nodes)),
		slog.Int("components", len(comp.SCCs)),
	)
	return nil
}

// blocking lists the edges that leave component i towards a component that
// is not safe, by rescanning each member's raw edges. Pinned components
// report the reason they were pinned.
func (c *Classifier) blocking(g *typeGraph, comp Components, verdicts []Verdict, i int) []Blocking {
	var out []Blocking
	for _, n := range comp.SCCs[i] {
		if why, ok := g.pinnedWhy[n]; ok {
			out = append(out, why...)
			continue
		}
		node := g.nodes[n]
		for k, to := range g.adj[n] {
			j := comp.Of[to]
			if j != i && verdicts[j] != Safe {
				out = append(out, Blocking{Source: node.typ, Edge: node.edges[k]})
			}
		}
	}
	slices.SortStableFunc(out, func(a, b Blocking) int {
		return cmp.Compare(c.codec.FormatBlocking(a), c.codec.FormatBlocking(b))
	})
	return out
}

// Finalize implements analysis.Finalizer.
func (c *Classifier) Finalize(_ context.Context, res *analysis.Result[Safety], id decl.ID) error {
	key, ok := c.keys[id]
	if !ok {
		return analysis.Invariantf(PassName, id, c.idx.Signature(id), "declaration was not part of the safety graph")
	}
	s, ok := c.byKey[key]
	if !ok {
		return analysis.Invariantf(PassName, id, c.idx.Signature(id), "type %s has no component verdict", key)
	}
	res.InsertOrAssign(id, s, analysis.Final)
	verdictTotal.WithLabelValues(s.Verdict.String()).Inc()
	return nil
}

// declType is the type a seed stands for: the record or enum itself, or
// the target of an alias.
func (c *Classifier) declType(id decl.ID) *decl.Type {
	if d, ok := c.idx.Decl(id); ok && d.Kind == decl.KindAlias {
		return d.Type
	}
	return decl.Named(c.idx.Canonical(id))
}

// eligible returns the dependency edges of a named type that is imported
// and has an entry in the deps pass.
func (c *Classifier) eligible(id decl.ID) (depgraph.Edges, bool) {
	imp, ok := c.imports.Get(id)
	if !ok || !imp.IsImported() {
		return nil, false
	}
	return c.deps.Get(id)
}

func (c *Classifier) warnOnce(key, reason string) {
	if c.warned[key] {
		return
	}
	c.warned[key] = true
	c.logger.Warn("dependency treated as unknown",
		slog.String("type", key),
		slog.String("reason", reason),
	)
}

// =============================================================================
// Type graph
// =============================================================================

type typeNode struct {
	key string
	typ *decl.Type

	// edges[k] is the dependency behind adj[n][k].
	edges []depgraph.Edge
}

type typeGraph struct {
	c         *Classifier
	nodes     []*typeNode
	byKey     map[string]int
	adj       Graph
	pinned    map[int]Verdict
	pinnedWhy map[int][]Blocking
	pending   []int
}

func newTypeGraph(c *Classifier) *typeGraph {
	return &typeGraph{
		c:         c,
		byKey:     make(map[string]int),
		pinned:    make(map[int]Verdict),
		pinnedWhy: make(map[int][]Blocking),
	}
}

// add returns the node of t, creating it and queueing it for expansion the
// first time its canonical spelling is seen.
func (g *typeGraph) add(t *decl.Type) int {
	t = g.c.idx.CanonicalType(t)
	key := g.c.idx.Spell(t)
	if n, ok := g.byKey[key]; ok {
		return n
	}
	n := len(g.nodes)
	g.nodes = append(g.nodes, &typeNode{key: key, typ: t})
	g.adj = append(g.adj, nil)
	g.byKey[key] = n
	g.pending = append(g.pending, n)
	return n
}

func (g *typeGraph) expand(ctx context.Context) error {
	for len(g.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := g.pending[len(g.pending)-1]
		g.pending = g.pending[:len(g.pending)-1]
		if err := g.expandNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (g *typeGraph) expandNode(n int) error {
	node := g.nodes[n]
	t := node.typ
	if t == nil {
		return analysis.Invariantf(PassName, 0, "", "missing type in safety graph")
	}
	switch t.Kind {
	case decl.TypeBuiltin, decl.TypeFunction:
		g.pinned[n] = Safe
	case decl.TypePointer, decl.TypeReference:
		g.pinned[n] = Unsafe
	case decl.TypeArray:
		g.link(n, depgraph.Edge{Kind: depgraph.SpecialConditional, Target: t.Elem})
	case decl.TypeNamed:
		return g.expandNamed(n)
	default:
		return analysis.Invariantf(PassName, 0, node.key, "unhandled type shape %s", t.Kind)
	}
	return nil
}

func (g *typeGraph) expandNamed(n int) error {
	node := g.nodes[n]
	edges, ok := g.c.eligible(node.typ.Decl)
	if !ok {
		g.pinned[n] = Unknown
		g.c.warnOnce(node.key, "not importable or has no dependency entry")
		return nil
	}
	switch {
	case edges.Has(depgraph.SpecialAvailable):
		g.pinned[n] = Safe
	case edges.Has(depgraph.SpecialImportedAsReference):
		g.pinned[n] = Unsafe
		g.pinnedWhy[n] = []Blocking{{
			Source: node.typ,
			Edge:   depgraph.Edge{Kind: depgraph.SpecialImportedAsReference},
		}}
	default:
		for _, e := range edges.Targets() {
			g.link(n, e)
		}
	}
	return nil
}

func (g *typeGraph) link(n int, e depgraph.Edge) {
	to := g.add(e.Target)
	g.adj[n] = append(g.adj[n], to)
	g.nodes[n].edges = append(g.nodes[n].edges, e)
}
