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
	"fmt"

	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// Phase distinguishes values still being computed from settled ones.
type Phase int

const (
	// Provisional values may still be replaced by the owning pass.
	Provisional Phase = iota + 1

	// Final values are settled.
	Final
)

func (p Phase) String() string {
	switch p {
	case Provisional:
		return "provisional"
	case Final:
		return "final"
	default:
		return "none"
	}
}

type entry[T any] struct {
	value T
	phase Phase
}

// Cursor points at one entry of a Result, or at its end.
type Cursor[T any] struct {
	id    decl.ID
	value T
	phase Phase
	valid bool
}

// AtEnd reports whether the cursor points at no entry.
func (c Cursor[T]) AtEnd() bool { return !c.valid }

// ID returns the canonical declaration of the entry.
func (c Cursor[T]) ID() decl.ID { return c.id }

// Value returns the entry's value. It panics at End.
func (c Cursor[T]) Value() T {
	if !c.valid {
		panic("analysis: Value called on end cursor")
	}
	return c.value
}

// Phase returns the entry's phase, zero at End.
func (c Cursor[T]) Phase() Phase { return c.phase }

// Result maps canonical declarations to one pass's values.
//
// Every accessor canonicalizes its argument through the index, so callers
// may pass forward declarations or duplicate specializations.
type Result[T any] struct {
	name    string
	idx     *index.Index
	entries map[decl.ID]entry[T]
	sealed  bool
}

// NewResult returns an empty result for the named pass.
func NewResult[T any](name string, idx *index.Index) *Result[T] {
	return &Result[T]{
		name:    name,
		idx:     idx,
		entries: make(map[decl.ID]entry[T]),
	}
}

// Name returns the owning pass name.
func (r *Result[T]) Name() string { return r.name }

// Index returns the index used for canonicalization.
func (r *Result[T]) Index() *index.Index { return r.idx }

// Len returns the number of entries in either phase.
func (r *Result[T]) Len() int { return len(r.entries) }

// Sealed reports whether the owning pass has finished.
func (r *Result[T]) Sealed() bool { return r.sealed }

// Find returns the final entry for id, or End. Provisional entries are not
// visible through Find.
func (r *Result[T]) Find(id decl.ID) Cursor[T] {
	c := r.FindProvisional(id)
	if c.phase != Final {
		return r.End()
	}
	return c
}

// FindProvisional returns the entry for id in either phase, or End. Only the
// owning pass should call it, while resolving recursive dependencies.
func (r *Result[T]) FindProvisional(id decl.ID) Cursor[T] {
	cid := r.idx.Canonical(id)
	e, ok := r.entries[cid]
	if !ok {
		return r.End()
	}
	return Cursor[T]{id: cid, value: e.value, phase: e.phase, valid: true}
}

// End returns the cursor that points at no entry.
func (r *Result[T]) End() Cursor[T] {
	return Cursor[T]{}
}

// Get returns the final value for id.
func (r *Result[T]) Get(id decl.ID) (T, bool) {
	c := r.Find(id)
	if c.AtEnd() {
		var zero T
		return zero, false
	}
	return c.value, true
}

// InsertOrAssign sets the value for id, replacing any earlier entry.
// Writing to a sealed result panics.
func (r *Result[T]) InsertOrAssign(id decl.ID, value T, phase Phase) {
	if r.sealed {
		panic(fmt.Sprintf("analysis: write to sealed result of pass %s", r.name))
	}
	if phase != Provisional && phase != Final {
		panic(fmt.Sprintf("analysis: invalid phase %d", phase))
	}
	r.entries[r.idx.Canonical(id)] = entry[T]{value: value, phase: phase}
}

// Data returns a copy of every final entry.
func (r *Result[T]) Data() map[decl.ID]T {
	out := make(map[decl.ID]T, len(r.entries))
	for id, e := range r.entries {
		if e.phase == Final {
			out[id] = e.value
		}
	}
	return out
}

// IDs returns every entry's declaration, in total order.
func (r *Result[T]) IDs() []decl.ID {
	ids := make([]decl.ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.idx.Orderer().Sort(ids)
	return ids
}

func (r *Result[T]) firstProvisional() (decl.ID, bool) {
	for _, id := range r.IDs() {
		if r.entries[id].phase != Final {
			return id, true
		}
	}
	return 0, false
}

func (r *Result[T]) seal() { r.sealed = true }
