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
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/importability"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type fixture struct {
	idx     *index.Index
	runner  *analysis.Runner
	imports *analysis.Result[importability.Classification]
	ids     map[string]decl.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	b := decl.NewBuilder()
	ids := map[string]decl.ID{}

	app := b.Namespace("app", 0)
	ids["X"] = b.Record("X", app)
	ids["Y"] = b.Record("Y", app, decl.WithField("x", decl.Named(ids["X"])))
	ids["Z"] = b.Record("Z", app, decl.WithBase(decl.Named(ids["Y"]), decl.AccessPrivate))
	ids["Color"] = b.Enum("Color", app)

	std := b.Namespace("std", 0, decl.External())
	ids["string"] = b.Record("string", std, decl.External(), decl.WithField("data", decl.PointerTo(decl.Builtin("char"))))
	vec := b.Template("vector", std, decl.External())
	mp := b.Template("map", std, decl.External())
	ids["vector<Y>"] = b.Instantiate(vec, decl.TypeArgs(decl.Named(ids["Y"])),
		decl.WithField("begin", decl.PointerTo(decl.Named(ids["Y"]))))
	ids["map<string, Z>"] = b.Instantiate(mp, decl.TypeArgs(decl.Named(ids["string"]), decl.Named(ids["Z"])))
	ids["map<int, X>"] = b.Instantiate(mp, decl.TypeArgs(decl.Builtin("int"), decl.Named(ids["X"])))
	ids["vector<3>"] = b.Instantiate(vec, []decl.TemplateArg{decl.ValueArg("3")})
	ids["Shell"] = b.Record("Shell", app, decl.Templated())

	root := b.Record("RefCounted", app)
	ids["RefCounted"] = root
	ids["Node"] = b.Record("Node", app,
		decl.WithBase(decl.Named(root), decl.AccessPublic),
		decl.WithField("next", decl.PointerTo(decl.Named(ids["X"]))))
	ids["Holder"] = b.Record("Holder", app,
		decl.WithField("a", decl.Named(ids["X"])),
		decl.WithField("b", decl.ConstOf(decl.Named(ids["Y"]))),
		decl.WithField("c", decl.ArrayOf(decl.Named(ids["X"]), 4)))

	u, err := b.Build()
	require.NoError(t, err)
	idx, err := index.New(u)
	require.NoError(t, err)
	r, err := analysis.NewRunner(idx, analysis.WithLogger(quiet))
	require.NoError(t, err)

	eng, err := importability.NewEngine(idx, importability.Options{
		RefcountedRoots: []string{"app::RefCounted"},
		Logger:          quiet,
	})
	require.NoError(t, err)
	imports, err := analysis.Run[importability.Classification](context.Background(), r, eng)
	require.NoError(t, err)
	return fixture{idx: idx, runner: r, imports: imports, ids: ids}
}

func (f fixture) builder(t *testing.T, opts Options) *Builder {
	t.Helper()
	opts.Logger = quiet
	b, err := NewBuilder(f.idx, f.imports, opts)
	require.NoError(t, err)
	return b
}

func testOptions() Options {
	return Options{
		SafeTypes: []string{"std::string"},
		Families: []Family{
			{Template: "std::vector", Elements: []int{0}},
			{Template: "std::map", Elements: []int{0, 1}},
		},
	}
}

func TestBuilder_Run(t *testing.T) {
	f := newFixture(t)
	b := f.builder(t, testOptions())
	res, err := analysis.Run[Edges](context.Background(), f.runner, b)
	require.NoError(t, err)

	codec := b.Codec()
	tests := []struct {
		decl string
		want string
	}{
		{"X", ""},
		{"Y", "has-field-of-type x: app::X"},
		{"Z", "inherits-from app::Y"},
		{"Color", ""},
		{"string", "special-available"},
		{"vector<Y>", "special-conditional app::Y"},
		{"map<string, Z>", "special-conditional std::string,, special-conditional app::Z"},
		{"map<int, X>", "special-conditional int,, special-conditional app::X"},
		{"vector<3>", ""},
		{"Node", "special-imported-as-reference"},
		{"Holder", "has-field-of-type a: app::X,, has-field-of-type b: const app::Y,, has-field-of-type c: app::X[4]"},
	}
	for _, tt := range tests {
		t.Run(tt.decl, func(t *testing.T) {
			es, ok := res.Get(f.ids[tt.decl])
			require.True(t, ok)
			assert.Equal(t, tt.want, codec.Serialize(es))
		})
	}

	t.Run("template shells have no edges", func(t *testing.T) {
		assert.True(t, res.Find(f.ids["Shell"]).AtEnd())
	})
}

func TestBuilder_BadFamilyArgument(t *testing.T) {
	f := newFixture(t)

	t.Run("blocked instantiation falls back to members", func(t *testing.T) {
		c, ok := f.imports.Get(f.ids["vector<3>"])
		require.True(t, ok)
		assert.Equal(t, "blocked(bad-template-argument)", c.String())

		b := f.builder(t, testOptions())
		d, _ := f.idx.Decl(f.ids["vector<3>"])
		es, err := b.EdgesFor(d)
		require.NoError(t, err)
		assert.Empty(t, es)
	})

	t.Run("imported instantiation missing an element is invariant", func(t *testing.T) {
		b := f.builder(t, Options{Families: []Family{{Template: "std::map", Elements: []int{0, 2}}}})
		d, _ := f.idx.Decl(f.ids["map<int, X>"])
		_, err := b.EdgesFor(d)
		require.Error(t, err)
		assert.True(t, errors.Is(err, analysis.ErrInvariant))
	})
}

func TestBuilder_WithoutFamilies(t *testing.T) {
	f := newFixture(t)
	b := f.builder(t, Options{})
	d, _ := f.idx.Decl(f.ids["vector<Y>"])

	es, err := b.EdgesFor(d)
	require.NoError(t, err)
	require.Len(t, es, 1)
	assert.Equal(t, HasFieldOfType, es[0].Kind)
	assert.Equal(t, "begin", es[0].Field)
}

func TestNewBuilder_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := NewBuilder(f.idx, f.imports, Options{SafeTypes: []string{"std::wstring"}, Logger: quiet})
	assert.True(t, errors.Is(err, index.ErrUnresolved))

	_, err = NewBuilder(f.idx, f.imports, Options{Families: []Family{{Template: "std::vector"}}, Logger: quiet})
	assert.True(t, errors.Is(err, analysis.ErrInvariant))

	b, err := NewBuilder(f.idx, f.imports, Options{SafeTypes: []string{"std::wstring"}, LenientNames: true, Logger: quiet})
	require.NoError(t, err)
	assert.Empty(t, b.safe)

	_, err = NewBuilder(nil, f.imports, Options{})
	assert.Error(t, err)
}

func TestCodec(t *testing.T) {
	f := newFixture(t)
	codec := NewCodec(f.idx)
	x := decl.Named(f.ids["X"])
	y := decl.Named(f.ids["Y"])

	t.Run("round trip every kind", func(t *testing.T) {
		es := Edges{
			{Kind: InheritsFrom, Target: y},
			{Kind: HasFieldOfType, Field: "p", Target: decl.PointerTo(x)},
			{Kind: SpecialConditional, Target: x},
			{Kind: SpecialAvailable},
			{Kind: SpecialImportedAsReference},
		}
		s := codec.Serialize(es)
		got, err := codec.Deserialize(s)
		require.NoError(t, err)
		assert.True(t, codec.Equal(es, got))
		assert.Equal(t, s, codec.Serialize(got))
	})

	t.Run("empty", func(t *testing.T) {
		got, err := codec.Deserialize("")
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.True(t, codec.Equal(nil, got))
	})

	t.Run("equality ignores order", func(t *testing.T) {
		a := Edges{{Kind: InheritsFrom, Target: y}, {Kind: HasFieldOfType, Field: "x", Target: x}}
		b := Edges{a[1], a[0]}
		assert.True(t, codec.Equal(a, b))
		assert.False(t, codec.Equal(a, a[:1]))
		assert.False(t, codec.Equal(a, Edges{a[0], a[0]}))
	})

	t.Run("rejects", func(t *testing.T) {
		for _, s := range []string{
			"depends-on app::X",
			"inherits-from",
			"inherits-from app::Missing",
			"has-field-of-type app::X",
			"has-field-of-type : app::X",
			"special-available app::X",
		} {
			_, err := codec.Deserialize(s)
			assert.ErrorIs(t, err, ErrInvalidEdge, s)
		}
	})
}

func TestEdges_Helpers(t *testing.T) {
	es := Edges{{Kind: SpecialAvailable}, {Kind: InheritsFrom, Target: decl.Builtin("int")}}
	assert.True(t, es.Has(SpecialAvailable))
	assert.False(t, es.Has(SpecialConditional))
	assert.Len(t, es.Targets(), 1)
	assert.Equal(t, "special-imported-as-reference", SpecialImportedAsReference.String())
}
