// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

func TestOrderer_Sort(t *testing.T) {
	b := decl.NewBuilder()
	late := b.Record("A", 0, decl.At("b.h", 1))
	sameLocB := b.Record("B", 0, decl.At("a.h", 7))
	sameLocA := b.Record("A2", 0, decl.At("a.h", 7))
	first := b.Record("Z", 0, decl.At("a.h", 1))
	u, err := b.Build()
	require.NoError(t, err)

	o := New(u)
	got := o.Sorted([]decl.ID{late, sameLocB, sameLocA, first})

	// Location first, then signature breaks the a.h:7 tie.
	assert.Equal(t, []decl.ID{first, sameLocA, sameLocB, late}, got)
}

func TestOrderer_IDBreaksSignatureTie(t *testing.T) {
	b := decl.NewBuilder()
	ns1 := b.Namespace("app", 0, decl.At("x.h", 1))
	ns2 := b.Namespace("app", 0, decl.At("x.h", 1))
	u, err := b.Build()
	require.NoError(t, err)

	o := New(u)
	assert.True(t, o.Less(ns1, ns2))
	assert.False(t, o.Less(ns2, ns1))
	assert.Equal(t, 0, o.Compare(ns1, ns1))
}

func TestOrderer_UsesLatestRedeclaration(t *testing.T) {
	b := decl.NewBuilder()
	def := b.Record("X", 0, decl.At("a.h", 1))
	b.Record("X", 0, decl.ForwardOf(def), decl.At("z.h", 1))
	other := b.Record("Y", 0, decl.At("m.h", 1))
	u, err := b.Build()
	require.NoError(t, err)

	o := New(u)
	assert.Equal(t, decl.Location{File: "z.h", Line: 1}, o.Key(def).Location)
	assert.True(t, o.Less(other, def))
}

func TestOrderer_KeyIsCached(t *testing.T) {
	b := decl.NewBuilder()
	x := b.Record("X", 0)
	u, err := b.Build()
	require.NoError(t, err)

	o := New(u)
	k1 := o.Key(x)
	k2 := o.Key(x)
	assert.Equal(t, k1, k2)
	assert.Len(t, o.keys, 1)
	assert.Equal(t, "X", k1.Signature)
}
