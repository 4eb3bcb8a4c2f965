// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package depgraph records, for every concrete type, the types it depends on
// for thread safety: its bases and the types of its data members.
//
// A few declarations get special edges instead. Allow-listed types get a
// single special-available edge, types imported by reference get a single
// special-imported-as-reference edge, and instantiations of configured
// container families depend only on their element arguments.
package depgraph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/importability"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// PassName identifies the pass in caches and fixtures.
const PassName = "deps"

var edgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "interop_dependency_edges_total",
	Help: "Dependency edges emitted, by kind",
}, []string{"kind"})

// Family is a container-like template whose instantiations depend only on
// the type arguments at Elements.
type Family struct {
	Template string
	Elements []int
}

// Options configures the special cases of the builder.
type Options struct {
	// SafeTypes are signatures that are safe by fiat.
	SafeTypes []string

	Families []Family

	// LenientNames downgrades unresolvable configured names to warnings.
	LenientNames bool

	Logger *slog.Logger
}

// Builder is the dependency graph pass.
//
// Thread Safety: Not safe for concurrent use.
type Builder struct {
	idx      *index.Index
	imports  *analysis.Result[importability.Classification]
	logger   *slog.Logger
	safe     map[decl.ID]bool
	families map[decl.ID][]int
}

// NewBuilder resolves the configured names. imports is the sealed result of
// the import pass; it decides which types are imported by reference.
func NewBuilder(idx *index.Index, imports *analysis.Result[importability.Classification], opts Options) (*Builder, error) {
	if idx == nil || imports == nil {
		return nil, fmt.Errorf("depgraph: index and import result must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Builder{
		idx:      idx,
		imports:  imports,
		logger:   logger.With(slog.String("pass", PassName)),
		safe:     make(map[decl.ID]bool),
		families: make(map[decl.ID][]int),
	}

	res := analysis.Resolver{Index: idx, Pass: PassName, Lenient: opts.LenientNames, Logger: b.logger}
	safe, err := res.ResolveAll(opts.SafeTypes, "safe type")
	if err != nil {
		return nil, err
	}
	for _, id := range safe {
		b.safe[id] = true
	}
	for _, f := range opts.Families {
		if len(f.Elements) == 0 {
			return nil, analysis.Invariantf(PassName, 0, f.Template, "container family has no element arguments")
		}
		id, ok, err := res.Resolve(f.Template, "container family")
		if err != nil {
			return nil, err
		}
		if ok {
			b.families[id] = f.Elements
		}
	}
	return b, nil
}

// Name implements analysis.Pass.
func (b *Builder) Name() string { return PassName }

// VisitAll implements analysis.Pass. Third-party types need edges too,
// since codebase types reach them.
func (b *Builder) VisitAll() bool { return true }

// Handlers implements analysis.Pass. Only records and enums carry edges.
func (b *Builder) Handlers() analysis.Handlers[Edges] {
	visit := func(_ context.Context, res *analysis.Result[Edges], d *decl.Decl) error {
		if d.IsTemplateShell() {
			return nil
		}
		es, err := b.EdgesFor(d)
		if err != nil {
			return err
		}
		res.InsertOrAssign(d.ID, es, analysis.Final)
		for _, e := range es {
			edgesTotal.WithLabelValues(e.Kind.String()).Inc()
		}
		return nil
	}
	return analysis.Handlers[Edges]{
		decl.KindRecord: visit,
		decl.KindEnum:   visit,
	}
}

// Codec implements analysis.Pass.
func (b *Builder) Codec() analysis.Codec[Edges] { return NewCodec(b.idx) }

// EdgesFor computes the outgoing edges of d.
//
// Description:
//
//	The special cases are tried in order: allow-listed safe type, type
//	imported by reference, container family. Otherwise every base (private
//	ones included) yields inherits-from and every data member yields
//	has-field-of-type. A container instantiation whose element arguments
//	are not all types takes that generic path too.
//
// Outputs:
//
//	Edges - Never nil for a concrete record; may be empty.
//	error - *analysis.InvariantError when an imported container family
//	        instantiation lacks a type argument at a configured index.
//	        Blocked instantiations fall back to their bases and fields.
func (b *Builder) EdgesFor(d *decl.Decl) (Edges, error) {
	id := b.idx.Canonical(d.ID)
	if b.safe[id] {
		return Edges{{Kind: SpecialAvailable}}, nil
	}
	if c, ok := b.imports.Get(id); ok && c.IsReference() {
		return Edges{{Kind: SpecialImportedAsReference}}, nil
	}
	if d.IsInstantiation() {
		if elems, ok := b.families[b.idx.Canonical(d.Template)]; ok {
			if typeArgsAt(d, elems) {
				return elementEdges(d, elems), nil
			}
			if c, ok := b.imports.Get(id); ok && c.IsImported() {
				return nil, analysis.Invariantf(PassName, d.ID, b.idx.Signature(d.ID),
					"imported container lacks type arguments at %v", elems)
			}
		}
	}

	es := make(Edges, 0, len(d.Bases)+len(d.Fields))
	for _, base := range d.Bases {
		es = append(es, Edge{Kind: InheritsFrom, Target: base.Type})
	}
	for _, f := range d.Fields {
		es = append(es, Edge{Kind: HasFieldOfType, Field: f.Name, Target: f.Type})
	}
	return es, nil
}

// typeArgsAt reports whether every configured element index names a type
// argument of d.
func typeArgsAt(d *decl.Decl, elems []int) bool {
	for _, i := range elems {
		if i < 0 || i >= len(d.Args) || d.Args[i].Kind != decl.ArgType {
			return false
		}
	}
	return true
}

func elementEdges(d *decl.Decl, elems []int) Edges {
	es := make(Edges, 0, len(elems))
	for _, i := range elems {
		es = append(es, Edge{Kind: SpecialConditional, Target: d.Args[i].Type})
	}
	return es
}
