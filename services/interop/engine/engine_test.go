// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/config"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/index"
	"github.com/AleutianAI/interopscan/services/interop/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// newIndex builds X, Y with a field of X, and Z privately deriving from Y.
func newIndex(t *testing.T) *index.Index {
	t.Helper()
	b := decl.NewBuilder()
	app := b.Namespace("app", 0)
	x := b.Record("X", app)
	y := b.Record("Y", app, decl.WithField("x", decl.Named(x)))
	b.Record("Z", app, decl.WithBase(decl.Named(y), decl.AccessPrivate))
	u, err := b.Build()
	require.NoError(t, err)
	idx, err := index.New(u)
	require.NoError(t, err)
	return idx
}

func analyze(t *testing.T, opts Options) *Results {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quiet
	}
	res, err := Analyze(context.Background(), newIndex(t), opts)
	require.NoError(t, err)
	return res
}

func TestAnalyze_EndToEnd(t *testing.T) {
	res := analyze(t, Options{})
	assert.NotEmpty(t, res.RunID)

	imports, err := res.Lines("import")
	require.NoError(t, err)
	assert.Contains(t, imports, "app::X; imported(value);")
	assert.Contains(t, imports, "app::Y; imported(value);")
	assert.Contains(t, imports, "app::Z; imported(value);")

	deps, err := res.Lines("deps")
	require.NoError(t, err)
	assert.Contains(t, deps, "app::Y; has-field-of-type x: app::X;")
	assert.Contains(t, deps, "app::Z; inherits-from app::Y;")

	verdicts, err := res.Lines("safety")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"app::X; safe;", "app::Y; safe;", "app::Z; safe;"}, verdicts)

	_, err = res.Lines("bogus")
	assert.Error(t, err)
}

func TestResults_Summary(t *testing.T) {
	s := analyze(t, Options{}).Summary()
	assert.Equal(t, 3, s.Count("safety", "safe"))
	assert.Equal(t, 2, s.Count("deps", "generic"))
	assert.Equal(t, 1, s.Count("deps", "leaf"))
	assert.GreaterOrEqual(t, s.Count("import", "imported(value)"), 3)
}

func TestAnalyze_SpecialCases(t *testing.T) {
	res := analyze(t, Options{SpecialCases: config.SpecialCases{
		ImportOverrides: map[string]string{"app::Y": "blocked(access-denied)"},
		SafeTypes:       []string{"app::X"},
	}})

	imports, err := res.Lines("import")
	require.NoError(t, err)
	assert.Contains(t, imports, "app::Y; blocked(access-denied);")

	deps, err := res.Lines("deps")
	require.NoError(t, err)
	assert.Contains(t, deps, "app::X; special-available;")

	ex, err := res.Explain("app::Z")
	require.NoError(t, err)
	assert.Equal(t, "imported(value)", ex.Import)
	assert.Equal(t, []string{"inherits-from app::Y"}, ex.Edges)
	assert.Equal(t, "unsafe", ex.Safety)
	assert.Equal(t, []string{"app::Z => inherits-from app::Y"}, ex.Blocking)
}

func TestAnalyze_Errors(t *testing.T) {
	t.Run("bad override", func(t *testing.T) {
		_, err := Analyze(context.Background(), newIndex(t), Options{
			Logger:       quiet,
			SpecialCases: config.SpecialCases{ImportOverrides: map[string]string{"app::X": "maybe"}},
		})
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
	})

	t.Run("unresolved root", func(t *testing.T) {
		_, err := Analyze(context.Background(), newIndex(t), Options{
			Logger:       quiet,
			SpecialCases: config.SpecialCases{RefcountedRoots: []string{"app::Ghost"}},
		})
		assert.ErrorIs(t, err, analysis.ErrInvariant)
		assert.ErrorIs(t, err, index.ErrUnresolved)
	})

	t.Run("lenient names", func(t *testing.T) {
		_, err := Analyze(context.Background(), newIndex(t), Options{
			Logger:       quiet,
			SpecialCases: config.SpecialCases{RefcountedRoots: []string{"app::Ghost"}, LenientNames: true},
		})
		assert.NoError(t, err)
	})
}

func TestAnalyze_BlockedContainerInstantiation(t *testing.T) {
	b := decl.NewBuilder()
	std := b.Namespace("std", 0, decl.External())
	vec := b.Template("vector", std, decl.External())
	app := b.Namespace("app", 0)
	x := b.Record("X", app)
	xs := b.Instantiate(vec, decl.TypeArgs(decl.Named(x)))
	b.Instantiate(vec, []decl.TemplateArg{decl.ValueArg("3")})
	b.Record("Bag", app, decl.WithField("xs", decl.Named(xs)))
	u, err := b.Build()
	require.NoError(t, err)
	idx, err := index.New(u)
	require.NoError(t, err)

	res, err := Analyze(context.Background(), idx, Options{
		Logger: quiet,
		SpecialCases: config.SpecialCases{
			ContainerFamilies: []config.FamilyConfig{{Template: "std::vector", Elements: []int{0}}},
		},
	})
	require.NoError(t, err)

	imports, err := res.Lines("import")
	require.NoError(t, err)
	assert.Contains(t, imports, "std::vector<3>; blocked(bad-template-argument);")

	deps, err := res.Lines("deps")
	require.NoError(t, err)
	assert.Contains(t, deps, "std::vector<3>; ;")
	assert.Contains(t, deps, "std::vector<app::X>; special-conditional app::X;")

	verdicts, err := res.Lines("safety")
	require.NoError(t, err)
	assert.Contains(t, verdicts, "app::Bag; safe;")
}

func TestExplain_Unresolved(t *testing.T) {
	_, err := analyze(t, Options{}).Explain("app::Ghost")
	assert.ErrorIs(t, err, index.ErrUnresolved)
}

func writeGolden(t *testing.T, dir, name, content string) *analysis.Fixture {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	fx, err := analysis.ReadFixture(path)
	require.NoError(t, err)
	return fx
}

func TestResults_Verify(t *testing.T) {
	res := analyze(t, Options{})
	ctx := context.Background()
	dir := t.TempDir()

	good := []*analysis.Fixture{
		writeGolden(t, dir, "import.golden", "app::X; imported(value);\napp::Z; imported(value);\n"),
		writeGolden(t, dir, "deps.golden", "app::X; ;\napp::Z; inherits-from app::Y;\n"),
		writeGolden(t, dir, "safety.golden", "app::X; safe;\napp::Y; safe;\napp::Z; safe;\n"),
	}
	require.NoError(t, res.Verify(ctx, good))

	t.Run("mismatch", func(t *testing.T) {
		fx := writeGolden(t, t.TempDir(), "safety.golden", "app::Z; unsafe();\n")
		err := res.Verify(ctx, []*analysis.Fixture{fx})
		assert.ErrorIs(t, err, analysis.ErrMismatch)
		var fe *analysis.FixtureError
		require.True(t, errors.As(err, &fe))
		assert.Len(t, fe.Mismatches, 1)
	})

	t.Run("unresolved signature", func(t *testing.T) {
		fx := writeGolden(t, t.TempDir(), "import.golden", "app::Ghost; imported(value);\n")
		err := res.Verify(ctx, []*analysis.Fixture{fx})
		assert.ErrorIs(t, err, analysis.ErrUnresolvedSignature)
	})

	t.Run("unknown pass", func(t *testing.T) {
		fx := writeGolden(t, t.TempDir(), "layout.golden", "app::X; 1;\n")
		assert.Error(t, res.Verify(ctx, []*analysis.Fixture{fx}))
	})
}

func TestFixturePass(t *testing.T) {
	assert.Equal(t, "safety", FixturePass("testdata/safety.golden"))
	assert.Equal(t, "import", FixturePass("import.golden"))
}

func TestAnalyze_CacheReuse(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(config.CacheConfig{Backend: "file", Dir: dir}, quiet)
	require.NoError(t, err)
	defer store.Close()

	first := analyze(t, Options{Store: store, Fingerprint: "fp"})
	for _, pass := range PassNames {
		_, err := os.Stat(filepath.Join(dir, pass+storage.FileExt))
		assert.NoError(t, err, pass)
	}

	second := analyze(t, Options{Store: store, Fingerprint: "fp"})
	for _, pass := range PassNames {
		want, err := first.Lines(pass)
		require.NoError(t, err)
		got, err := second.Lines(pass)
		require.NoError(t, err)
		assert.Equal(t, want, got, pass)
	}
}

func TestOpenStore(t *testing.T) {
	s, err := OpenStore(config.CacheConfig{Backend: "none"}, quiet)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = OpenStore(config.CacheConfig{Backend: "badger", Dir: t.TempDir()}, quiet)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.NoError(t, s.Close())

	_, err = OpenStore(config.CacheConfig{Backend: "s3"}, quiet)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
