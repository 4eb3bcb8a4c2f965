// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package depgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// ErrInvalidEdge indicates a serialized edge that does not parse.
var ErrInvalidEdge = errors.New("invalid dependency edge")

// EdgeKind is the reason one type depends on another.
type EdgeKind int

const (
	// InheritsFrom points at a base class. Private bases count.
	InheritsFrom EdgeKind = iota + 1

	// HasFieldOfType points at the type of a data member.
	HasFieldOfType

	// SpecialAvailable has no target. The source is safe by fiat.
	SpecialAvailable

	// SpecialImportedAsReference has no target. The source is imported by
	// reference and is therefore never safe to share.
	SpecialImportedAsReference

	// SpecialConditional points at an element argument of a container.
	SpecialConditional
)

var edgeKindNames = map[EdgeKind]string{
	InheritsFrom:               "inherits-from",
	HasFieldOfType:             "has-field-of-type",
	SpecialAvailable:           "special-available",
	SpecialImportedAsReference: "special-imported-as-reference",
	SpecialConditional:         "special-conditional",
}

func (k EdgeKind) String() string {
	if s, ok := edgeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("edge(%d)", int(k))
}

// HasTarget reports whether edges of this kind point at a type.
func (k EdgeKind) HasTarget() bool {
	return k == InheritsFrom || k == HasFieldOfType || k == SpecialConditional
}

// Edge is one outgoing dependency of a declaration.
type Edge struct {
	Kind EdgeKind

	// Field is the data member name for HasFieldOfType.
	Field string

	// Target is the type depended upon; nil for the special axioms.
	Target *decl.Type
}

// Edges is the result value of the dependency pass.
type Edges []Edge

// Targets returns the edges that point at a type.
func (es Edges) Targets() Edges {
	var out Edges
	for _, e := range es {
		if e.Kind.HasTarget() && e.Target != nil {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether es contains an edge of kind k.
func (es Edges) Has(k EdgeKind) bool {
	return slices.ContainsFunc(es, func(e Edge) bool { return e.Kind == k })
}

// =============================================================================
// Codec
// =============================================================================

// Codec renders edges as "inherits-from <type>", "has-field-of-type
// <name>: <type>", "special-conditional <type>" and the bare axioms, joined
// with the composite separator. Types are spelled and resolved through the
// index, so a codec is bound to one universe.
type Codec struct {
	idx *index.Index
}

// NewCodec returns a codec resolving types through idx.
func NewCodec(idx *index.Index) Codec {
	return Codec{idx: idx}
}

// FormatEdge renders one edge.
func (c Codec) FormatEdge(e Edge) string {
	switch e.Kind {
	case InheritsFrom, SpecialConditional:
		return e.Kind.String() + " " + c.idx.Spell(e.Target)
	case HasFieldOfType:
		return e.Kind.String() + " " + e.Field + ": " + c.idx.Spell(e.Target)
	default:
		return e.Kind.String()
	}
}

// Serialize implements analysis.Codec.
func (c Codec) Serialize(es Edges) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = c.FormatEdge(e)
	}
	return analysis.JoinFields(parts)
}

// Deserialize implements analysis.Codec.
func (c Codec) Deserialize(s string) (Edges, error) {
	parts := analysis.SplitFields(s)
	es := make(Edges, 0, len(parts))
	for _, part := range parts {
		e, err := c.ParseEdge(part)
		if err != nil {
			return nil, err
		}
		es = append(es, e)
	}
	return es, nil
}

// ParseEdge is the inverse of FormatEdge.
func (c Codec) ParseEdge(s string) (Edge, error) {
	name, rest, _ := strings.Cut(s, " ")
	var kind EdgeKind
	for k, n := range edgeKindNames {
		if n == name {
			kind = k
		}
	}
	if kind == 0 {
		return Edge{}, fmt.Errorf("%w: unknown kind in %q", ErrInvalidEdge, s)
	}
	if !kind.HasTarget() {
		if rest != "" {
			return Edge{}, fmt.Errorf("%w: %s takes no target: %q", ErrInvalidEdge, name, s)
		}
		return Edge{Kind: kind}, nil
	}

	e := Edge{Kind: kind}
	if kind == HasFieldOfType {
		field, spelling, ok := strings.Cut(rest, ": ")
		if !ok || field == "" {
			return Edge{}, fmt.Errorf("%w: missing field name in %q", ErrInvalidEdge, s)
		}
		e.Field, rest = field, spelling
	}
	if rest == "" {
		return Edge{}, fmt.Errorf("%w: missing target in %q", ErrInvalidEdge, s)
	}
	t, err := c.idx.FindType(rest)
	if err != nil {
		return Edge{}, fmt.Errorf("%w: %q: %w", ErrInvalidEdge, s, err)
	}
	e.Target = t
	return e, nil
}

// Equal implements analysis.Codec. Edge lists are compared as multisets.
func (c Codec) Equal(a, b Edges) bool {
	if len(a) != len(b) {
		return false
	}
	sa := make([]string, len(a))
	sb := make([]string, len(b))
	for i := range a {
		sa[i] = c.FormatEdge(a[i])
		sb[i] = c.FormatEdge(b[i])
	}
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}
