// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

type fixture struct {
	u       *decl.Universe
	ns      decl.ID
	node    decl.ID
	fwd     decl.ID
	vec     decl.ID
	vecA    decl.ID
	vecB    decl.ID
	alias   decl.ID
	fn      decl.ID
	reopen  decl.ID
	counter decl.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := decl.NewBuilder()
	var f fixture
	f.ns = b.Namespace("app", 0, decl.At("a.h", 1))
	f.node = b.Record("Node", f.ns, decl.At("node.h", 10))
	f.fwd = b.Record("Node", f.ns, decl.ForwardOf(f.node), decl.At("fwd.h", 2))
	f.vec = b.Template("Vector", f.ns, decl.At("vector.h", 1))
	// The front end emitted the same implicit instantiation twice.
	f.vecB = b.Instantiate(f.vec, decl.TypeArgs(decl.Named(f.node)), decl.At("z.cpp", 40))
	f.vecA = b.Instantiate(f.vec, decl.TypeArgs(decl.Named(f.fwd)), decl.At("b.cpp", 3))
	f.alias = b.Alias("NodeList", f.ns, decl.Named(f.vecA))
	f.fn = b.Function("walk", f.ns, decl.FunctionOf(decl.Builtin("void"), decl.PointerTo(decl.Named(f.node))))
	f.reopen = b.Namespace("app", 0, decl.At("z.h", 1))
	f.counter = b.Enum("Counter", f.ns)

	u, err := b.Build()
	require.NoError(t, err)
	f.u = u
	return f
}

func TestIndex_FindDeclaration(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	id, ok := x.FindDeclaration("app::Node")
	require.True(t, ok)
	assert.Equal(t, f.node, id)

	id, ok = x.FindDeclaration(" app::walk(app::Node *) ")
	require.True(t, ok)
	assert.Equal(t, f.fn, id)

	_, ok = x.FindDeclaration("app::Missing")
	assert.False(t, ok)
}

func TestIndex_Canonical(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	t.Run("forward declaration", func(t *testing.T) {
		assert.Equal(t, f.node, x.Canonical(f.fwd))
	})

	t.Run("duplicate specialization picks smallest key", func(t *testing.T) {
		assert.Equal(t, f.vecA, x.Canonical(f.vecB))
		assert.Equal(t, f.vecA, x.Canonical(f.vecA))
	})

	t.Run("reopened namespace", func(t *testing.T) {
		assert.Equal(t, f.ns, x.Canonical(f.reopen))
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.Equal(t, decl.ID(999), x.Canonical(999))
	})

	ids := x.CanonicalIDs()
	assert.NotContains(t, ids, f.fwd)
	assert.NotContains(t, ids, f.vecB)
	assert.NotContains(t, ids, f.reopen)
	assert.Contains(t, ids, f.counter)
}

func TestIndex_FindTypeRoundTrip(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	types := []*decl.Type{
		decl.Builtin("unsigned long long"),
		decl.ConstOf(decl.Builtin("int")),
		decl.PointerTo(decl.ConstOf(decl.Named(f.node))),
		decl.ConstOf(decl.PointerTo(decl.Named(f.node))),
		decl.ReferenceTo(decl.Named(f.vecA)),
		{Kind: decl.TypeReference, RValue: true, Elem: decl.Named(f.counter)},
		decl.ArrayOf(decl.PointerTo(decl.Builtin("char")), 4),
		decl.ArrayOf(decl.Builtin("int"), -1),
		decl.PointerTo(decl.FunctionOf(decl.Builtin("void"), decl.Named(f.vecA), decl.Builtin("int"))),
		decl.FunctionOf(decl.Builtin("bool")),
	}

	for _, typ := range types {
		spelling := x.Spell(typ)
		t.Run(spelling, func(t *testing.T) {
			parsed, err := x.FindType(spelling)
			require.NoError(t, err)
			assert.Equal(t, spelling, x.Spell(parsed))
		})
	}
}

func TestIndex_FindTypeAlias(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	typ, err := x.FindType("app::NodeList")
	require.NoError(t, err)
	assert.Equal(t, decl.TypeSugar, typ.Kind)
	assert.Equal(t, "app::Vector<app::Node>", x.Spell(typ))
}

func TestIndex_FindTypeErrors(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	tests := []struct {
		spelling string
		is       error
	}{
		{"", ErrMalformedSpelling},
		{"app::Ghost *", ErrUnresolved},
		{"int[x]", ErrMalformedSpelling},
		{"int]", ErrMalformedSpelling},
		{"app", ErrUnresolved},
	}
	for _, tt := range tests {
		t.Run(tt.spelling, func(t *testing.T) {
			_, err := x.FindType(tt.spelling)
			assert.True(t, errors.Is(err, tt.is), "got %v", err)
		})
	}
}

func TestIndex_FindTypeIsMemoized(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u, WithTypeCacheSize(8))
	require.NoError(t, err)

	first, err := x.FindType("app::Node *")
	require.NoError(t, err)
	second, err := x.FindType("app::Node *")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestIndex_CanonicalType(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u)
	require.NoError(t, err)

	in := decl.ConstOf(decl.SugarFor(f.alias, decl.PointerTo(decl.Named(f.fwd))))
	got := x.CanonicalType(in)

	require.Equal(t, decl.TypePointer, got.Kind)
	assert.False(t, got.Const)
	assert.Equal(t, f.node, got.Elem.Decl)
	assert.Equal(t, f.fwd, in.Elem.Elem.Decl, "input is not modified")
}

func TestIndex_CustomBuiltins(t *testing.T) {
	f := newFixture(t)
	x, err := New(f.u, WithBuiltins("size_t"))
	require.NoError(t, err)

	typ, err := x.FindType("size_t")
	require.NoError(t, err)
	assert.Equal(t, decl.TypeBuiltin, typ.Kind)
}
