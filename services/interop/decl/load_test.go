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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleUniverse = `
version: "1"
declarations:
  - id: 1
    kind: namespace
    name: app
    in_codebase: true
  - id: 2
    kind: record
    name: X
    parent: 1
    header: include/app/X.h
    location: {file: include/app/X.h, line: 3}
    in_codebase: true
    traits: {copy: true, move: true, dtor: true}
  - id: 3
    kind: record
    name: Y
    parent: 1
    header: include/app/Y.h
    in_codebase: true
    traits: {copy: true, move: true, dtor: true}
    bases:
      - type: {named: 2}
        access: private
    fields:
      - name: m_x
        type: {pointer: {named: 2, const: true}}
      - name: m_buf
        type: {array: {elem: {builtin: char}, size: 8}}
  - id: 4
    kind: alias
    name: XRef
    parent: 1
    type: {reference: {named: 2}, rvalue: true}
  - id: 5
    kind: function
    name: make
    parent: 1
    type:
      function:
        result: {named: 3}
        params:
          - {sugar: {alias: 4, of: {reference: {named: 2}}}}
`

func TestLoad_Sample(t *testing.T) {
	u, err := Load(strings.NewReader(sampleUniverse))
	require.NoError(t, err)
	assert.Equal(t, 5, u.Len())

	y, ok := u.Get(3)
	require.True(t, ok)
	assert.Equal(t, KindRecord, y.Kind)
	require.Len(t, y.Bases, 1)
	assert.Equal(t, AccessPrivate, y.Bases[0].Access)
	require.Len(t, y.Fields, 2)
	assert.Equal(t, "const app::X *", u.Spell(y.Fields[0].Type))
	assert.Equal(t, "char[8]", u.Spell(y.Fields[1].Type))

	alias, _ := u.Get(4)
	assert.Equal(t, "app::X &&", u.Spell(alias.Type))

	assert.Equal(t, "app::make(app::X &)", u.Signature(5))

	x, _ := u.Get(2)
	assert.Equal(t, Location{File: "include/app/X.h", Line: 3}, x.Location)
	assert.Equal(t, Traits{Copy: true, Move: true, Dtor: true}, x.Traits)
}

func TestLoad_JSON(t *testing.T) {
	doc := `{"declarations": [
		{"id": 1, "kind": "record", "name": "Pair", "in_codebase": true},
		{"id": 2, "kind": "template", "name": "Box"},
		{"id": 3, "kind": "record", "name": "Box", "template": 2,
		 "args": [{"type": {"named": 1}}, {"kind": "value", "value": "3"}]}
	]}`
	u, err := Load(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Box<Pair, 3>", u.Signature(3))
	assert.Equal(t, []ID{3}, u.Instantiations(2))
}

func TestLoad_TraitDefaults(t *testing.T) {
	b := NewBuilder()
	built := b.Decl(b.Record("R", 0))

	tests := []struct {
		name   string
		traits string
		want   Traits
	}{
		{"omitted", "", built.Traits},
		{"empty", "traits: {}", Traits{Copy: true, Move: true, Dtor: true}},
		{"partial", "traits: {copy: false}", Traits{Copy: false, Move: true, Dtor: true}},
		{"explicit", "traits: {copy: false, move: false, dtor: false}", Traits{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := "declarations:\n  - id: 1\n    kind: record\n    name: R\n    " + tt.traits + "\n"
			u, err := Load(strings.NewReader(doc))
			require.NoError(t, err)
			r, ok := u.Get(1)
			require.True(t, ok)
			assert.Equal(t, tt.want, r.Traits)
		})
	}
	assert.Equal(t, Traits{Copy: true, Move: true, Dtor: true}, built.Traits)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
	}{
		{
			name: "empty",
			doc:  "",
		},
		{
			name: "unknown field",
			doc:  "declarations:\n  - {id: 1, kind: record, name: X, colour: red}\n",
		},
		{
			name: "bad kind",
			doc:  "declarations:\n  - {id: 1, kind: struct, name: X}\n",
		},
		{
			name: "missing name",
			doc:  "declarations:\n  - {id: 1, kind: record}\n",
		},
		{
			name: "two shapes",
			doc:  "declarations:\n  - {id: 1, kind: alias, name: A, type: {builtin: int, named: 1}}\n",
			is:   ErrInvalidType,
		},
		{
			name: "dangling",
			doc:  "declarations:\n  - {id: 1, kind: alias, name: A, type: {named: 7}}\n",
			is:   ErrDanglingReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is), "got %v", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleUniverse), 0o644))

	u, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, u.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
