// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/interopscan/services/interop/storage/kv"
)

func sampleSnapshot() *Snapshot {
	return NewSnapshot("import", "00ff00ff00ff00ff", []string{
		"app::X; imported(value);",
		"app::Y; blocked(access-denied);",
	})
}

func TestSnapshot_MarshalUnmarshal(t *testing.T) {
	data, err := sampleSnapshot().Marshal()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# interopscan-results v1.0.0\n"))

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, sampleSnapshot(), got)
}

func TestSnapshot_EmptyBody(t *testing.T) {
	data, err := NewSnapshot("deps", "fp", nil).Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Empty(t, got.Lines)
	assert.Equal(t, "deps", got.Pass)
}

func TestUnmarshal_Rejects(t *testing.T) {
	good, err := sampleSnapshot().Marshal()
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		is   error
	}{
		{"empty", "", ErrCorrupt},
		{"no magic", "app::X; imported(value);\n", ErrCorrupt},
		{"tampered body", strings.Replace(string(good), "access-denied", "value", 1), ErrCorrupt},
		{"future major", strings.Replace(string(good), "v1.0.0", "v2.0.0", 1), ErrVersionMismatch},
		{"invalid version", strings.Replace(string(good), "v1.0.0", "one", 1), ErrVersionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.data))
			assert.ErrorIs(t, err, tt.is)
		})
	}
}

func TestSnapshot_MinorVersionIsCompatible(t *testing.T) {
	assert.True(t, Compatible("v1.4.2"))
	assert.False(t, Compatible("v0.9.0"))
	assert.False(t, Compatible(""))
}

func TestSnapshot_InvalidPassName(t *testing.T) {
	_, err := NewSnapshot("../etc", "fp", nil).Marshal()
	assert.ErrorIs(t, err, ErrInvalidPassName)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("ab"), []byte("c"))
	assert.Equal(t, a, Fingerprint([]byte("ab"), []byte("c")))
	assert.NotEqual(t, a, Fingerprint([]byte("a"), []byte("bc")))
	assert.Len(t, a, 16)
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	bs, err := OpenBadgerStore(kv.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return map[string]Store{"file": fs, "badger": bs}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(ctx, "import")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Save(ctx, sampleSnapshot()))
			got, err := store.Load(ctx, "import")
			require.NoError(t, err)
			assert.Equal(t, sampleSnapshot().Lines, got.Lines)

			replaced := NewSnapshot("import", "other", []string{"app::X; imported(reference);"})
			require.NoError(t, store.Save(ctx, replaced))
			got, err = store.Load(ctx, "import")
			require.NoError(t, err)
			assert.Equal(t, "other", got.Fingerprint)
			assert.Equal(t, replaced.Lines, got.Lines)

			_, err = store.Load(ctx, "bad/name")
			assert.ErrorIs(t, err, ErrInvalidPassName)
		})
	}
}

func TestFileStore_WritesReadableFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleSnapshot()))

	data, err := os.ReadFile(store.Path("import"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "app::Y; blocked(access-denied);\n")

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files are renamed away")
	assert.Equal(t, "import"+FileExt, entries[0].Name())
}

func TestFileStore_CorruptFile(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path("safety"), []byte("garbage\n"), 0600))

	_, err = store.Load(ctx, "safety")
	assert.ErrorIs(t, err, ErrCorrupt)
}
