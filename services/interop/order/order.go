// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package order provides the total order over declarations used for
// reproducible output.
//
// Declarations have no intrinsic order. A Key combines the latest source
// location, the canonical signature and the numeric id, in that priority,
// so that ties on location are broken by text and ties on text by id.
package order

import (
	"cmp"
	"slices"
	"sync"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

// Key is the ordering key of one declaration.
type Key struct {
	Location  decl.Location
	Signature string
	ID        decl.ID
}

// Compare returns -1, 0 or +1.
func (k Key) Compare(o Key) int {
	if c := k.Location.Compare(o.Location); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Signature, o.Signature); c != 0 {
		return c
	}
	return cmp.Compare(k.ID, o.ID)
}

// Orderer derives and caches keys for the declarations of one universe.
//
// Keys are computed on first use and never invalidated; the universe is
// immutable for the lifetime of the Orderer.
//
// Thread Safety: Safe for concurrent use.
type Orderer struct {
	u *decl.Universe

	mu   sync.Mutex
	keys map[decl.ID]Key
}

// New returns an Orderer over u.
func New(u *decl.Universe) *Orderer {
	return &Orderer{u: u, keys: make(map[decl.ID]Key)}
}

// Key returns the ordering key of id.
func (o *Orderer) Key(id decl.ID) Key {
	o.mu.Lock()
	k, ok := o.keys[id]
	o.mu.Unlock()
	if ok {
		return k
	}

	k = Key{
		Location:  o.u.LatestLocation(id),
		Signature: o.u.Signature(id),
		ID:        id,
	}

	o.mu.Lock()
	o.keys[id] = k
	o.mu.Unlock()
	return k
}

// Compare orders two declarations.
func (o *Orderer) Compare(a, b decl.ID) int {
	return o.Key(a).Compare(o.Key(b))
}

// Less reports whether a sorts before b.
func (o *Orderer) Less(a, b decl.ID) bool {
	return o.Compare(a, b) < 0
}

// Sort orders ids in place.
func (o *Orderer) Sort(ids []decl.ID) {
	slices.SortFunc(ids, o.Compare)
}

// Sorted returns an ordered copy of ids.
func (o *Orderer) Sorted(ids []decl.ID) []decl.ID {
	out := slices.Clone(ids)
	o.Sort(out)
	return out
}
