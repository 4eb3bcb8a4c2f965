// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

// VisitFunc handles one canonical declaration during traversal.
type VisitFunc[T any] func(ctx context.Context, res *Result[T], d *decl.Decl) error

// Handlers is a pass's capability set: one handler per declaration kind it
// cares about. Kinds without a handler are skipped.
type Handlers[T any] map[decl.Kind]VisitFunc[T]

// Codec converts a pass's values to and from their persisted text form.
type Codec[T any] interface {
	// Serialize renders v. Deserialize(Serialize(v)) must Equal v.
	Serialize(v T) string

	// Deserialize parses a serialized value.
	Deserialize(s string) (T, error)

	// Equal compares two values, tolerating reordering of unordered parts.
	Equal(a, b T) bool
}

// Pass is one analysis over the universe.
type Pass[T any] interface {
	// Name identifies the pass in logs, cache keys and fixture file names.
	Name() string

	// VisitAll selects every declaration when true, and otherwise only
	// declarations whose earliest site is inside the analyzed codebase.
	VisitAll() bool

	Handlers() Handlers[T]

	Codec() Codec[T]
}

// Completer is implemented by passes that need a whole-graph step after
// traversal, such as SCC decomposition.
type Completer[T any] interface {
	Complete(ctx context.Context, res *Result[T]) error
}

// Finalizer is implemented by passes that upgrade provisional values. It is
// called once for every declaration holding an entry, in total order.
type Finalizer[T any] interface {
	Finalize(ctx context.Context, res *Result[T], id decl.ID) error
}

// StringCodec builds a Codec from a format and a parse function. Equal
// compares serialized forms, which suits values with a canonical text form.
type StringCodec[T any] struct {
	Format func(T) string
	Parse  func(string) (T, error)
}

// Serialize implements Codec.
func (c StringCodec[T]) Serialize(v T) string { return c.Format(v) }

// Deserialize implements Codec.
func (c StringCodec[T]) Deserialize(s string) (T, error) { return c.Parse(s) }

// Equal implements Codec by structural string equality.
func (c StringCodec[T]) Equal(a, b T) bool { return c.Format(a) == c.Format(b) }
