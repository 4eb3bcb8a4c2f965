// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package decl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUniverse_Validation(t *testing.T) {
	t.Run("zero id", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{{Kind: KindRecord, Name: "X"}})
		assert.True(t, errors.Is(err, ErrInvalidID))
	})

	t.Run("duplicate id", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{
			{ID: 1, Kind: KindRecord, Name: "X"},
			{ID: 1, Kind: KindRecord, Name: "Y"},
		})
		assert.True(t, errors.Is(err, ErrDuplicateID))
	})

	t.Run("dangling parent", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{{ID: 1, Kind: KindRecord, Name: "X", Parent: 9}})
		var le *LoadError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, ID(1), le.ID)
		assert.Equal(t, "parent", le.Field)
		assert.True(t, errors.Is(err, ErrDanglingReference))
	})

	t.Run("dangling field type", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{{
			ID: 1, Kind: KindRecord, Name: "X",
			Fields: []Field{{Name: "y", Type: Named(42)}},
		}})
		assert.True(t, errors.Is(err, ErrDanglingReference))
	})

	t.Run("definition cycle", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{
			{ID: 1, Kind: KindRecord, Name: "X", Definition: 2},
			{ID: 2, Kind: KindRecord, Name: "X", Definition: 1},
		})
		assert.True(t, errors.Is(err, ErrDefinitionCycle))
	})

	t.Run("scope cycle", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{
			{ID: 1, Kind: KindNamespace, Name: "a", Parent: 2},
			{ID: 2, Kind: KindNamespace, Name: "b", Parent: 1},
		})
		assert.True(t, errors.Is(err, ErrScopeCycle))
	})

	t.Run("function needs signature", func(t *testing.T) {
		_, err := NewUniverse([]*Decl{{ID: 1, Kind: KindFunction, Name: "f"}})
		assert.True(t, errors.Is(err, ErrInvalidType))
	})
}

func TestUniverse_Signature(t *testing.T) {
	b := NewBuilder()
	ns := b.Namespace("app", 0)
	util := b.Namespace("util", 0)
	node := b.Record("Node", ns)
	inner := b.Record("Inner", node)
	vec := b.Template("Vector", util)
	vecNode := b.Instantiate(vec, TypeArgs(PointerTo(ConstOf(Named(node)))))
	arr := b.Template("Array", util)
	arrInt := b.Instantiate(arr, []TemplateArg{TypeArg(Builtin("int")), ValueArg("4")})
	fn := b.Function("visit", ns, FunctionOf(Builtin("void"), ReferenceTo(ConstOf(Named(vecNode))), Builtin("int")))
	fwd := b.Record("Node", ns, ForwardOf(node))

	u, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, "app::Node", u.Signature(node))
	assert.Equal(t, "app::Node::Inner", u.Signature(inner))
	assert.Equal(t, "util::Vector<const app::Node *>", u.Signature(vecNode))
	assert.Equal(t, "util::Array<int, 4>", u.Signature(arrInt))
	assert.Equal(t, "app::visit(const util::Vector<const app::Node *> &, int)", u.Signature(fn))
	assert.Equal(t, "app::Node", u.Signature(fwd))
}

func TestUniverse_Spell(t *testing.T) {
	b := NewBuilder()
	x := b.Record("X", 0)
	alias := b.Alias("XAlias", 0, Named(x))
	u, err := b.Build()
	require.NoError(t, err)

	tests := []struct {
		name string
		typ  *Type
		want string
	}{
		{"builtin", Builtin("int"), "int"},
		{"const builtin", ConstOf(Builtin("int")), "const int"},
		{"pointer", PointerTo(Named(x)), "X *"},
		{"const pointer", ConstOf(PointerTo(Named(x))), "X * const"},
		{"rvalue", &Type{Kind: TypeReference, RValue: true, Elem: Named(x)}, "X &&"},
		{"array", ArrayOf(Builtin("char"), 16), "char[16]"},
		{"unbounded array", ArrayOf(Builtin("char"), -1), "char[]"},
		{"function", FunctionOf(Builtin("void"), Builtin("int"), PointerTo(Builtin("char"))), "void (int, char *)"},
		{"sugar", SugarFor(alias, Named(x)), "X"},
		{"const sugar", ConstOf(SugarFor(alias, Named(x))), "const X"},
		{"subst", Substituted("T", Builtin("bool")), "bool"},
		{"unhandled", &Type{}, "<unhandled>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, u.Spell(tt.typ))
		})
	}
}

func TestUniverse_Redeclarations(t *testing.T) {
	b := NewBuilder()
	def := b.Record("X", 0, At("b.h", 20), External())
	fwd := b.Record("X", 0, ForwardOf(def), At("a.h", 5))
	late := b.Record("X", 0, ForwardOf(def), At("c.h", 1), External())

	u, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, def, u.Definition(fwd))
	assert.Equal(t, []ID{def, fwd, late}, u.Redeclarations(late))
	assert.Equal(t, Location{File: "c.h", Line: 1}, u.LatestLocation(def))
	// The earliest site is the forward declaration in a.h, which is in the codebase.
	assert.True(t, u.EarliestInCodebase(def))
}

func TestUniverse_StructureQueries(t *testing.T) {
	b := NewBuilder()
	ns := b.Namespace("app", 0)
	outer := b.Record("Outer", ns)
	inner := b.Record("Inner", outer)
	tmpl := b.Template("Box", ns)
	inst := b.Instantiate(tmpl, TypeArgs(Named(inner)))

	u, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 0, u.Depth(ns))
	assert.Equal(t, 2, u.Depth(inner))
	assert.Equal(t, []ID{outer, tmpl, inst}, u.Children(ns))
	assert.Equal(t, []ID{inst}, u.Instantiations(tmpl))
	assert.Equal(t, 5, u.Len())

	d, ok := u.Get(inner)
	require.True(t, ok)
	assert.Equal(t, AccessPublic, d.Access)
	_, ok = u.Get(99)
	assert.False(t, ok)
}

func TestDesugar(t *testing.T) {
	sugar := ConstOf(SugarFor(7, PointerTo(Substituted("T", ConstOf(Builtin("int"))))))
	got := Desugar(sugar)

	require.Equal(t, TypePointer, got.Kind)
	assert.False(t, got.Const, "top-level const is dropped")
	require.Equal(t, TypeBuiltin, got.Elem.Kind)
	assert.True(t, got.Elem.Const, "nested const is kept")

	assert.Equal(t, TypeUnhandled, Desugar(&Type{Kind: TypeSugar}).Kind)
	assert.Nil(t, Desugar(nil))
}

func TestNamedDecls(t *testing.T) {
	typ := FunctionOf(PointerTo(Named(1)), ArrayOf(Named(2), 3), SugarFor(9, Named(3)), Builtin("int"))
	assert.Equal(t, []ID{1, 2, 3}, NamedDecls(nil, typ))
}

func TestKindAndAccessParsing(t *testing.T) {
	k, err := ParseKind("alias")
	require.NoError(t, err)
	assert.Equal(t, KindAlias, k)
	_, err = ParseKind("unknown")
	assert.True(t, errors.Is(err, ErrUnknownKind))

	a, err := ParseAccess("")
	require.NoError(t, err)
	assert.True(t, a.IsPublic())
	a, err = ParseAccess("protected")
	require.NoError(t, err)
	assert.False(t, a.IsPublic())
	_, err = ParseAccess("friend")
	assert.True(t, errors.Is(err, ErrUnknownAccess))
}
