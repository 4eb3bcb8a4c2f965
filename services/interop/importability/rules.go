// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package importability

import (
	"github.com/AleutianAI/interopscan/services/interop/decl"
)

// headerPublic reports whether the header defining d is public. Declarations
// outside the codebase and declarations without a header are always public.
func (e *Engine) headerPublic(d *decl.Decl) bool {
	if e.headers == nil || !d.InCodebase || d.Header == "" {
		return true
	}
	return e.headers.MatchesPath(d.Header)
}

// headersVisible applies the header rule. Records are judged by their own
// header. Other declarations are also blocked by any declaration reachable
// through their types and, transitively, through instantiation arguments.
// This over-blocks aliases whose private arguments never reach the binding
// surface; that is accepted in favor of never importing a private header.
func (e *Engine) headersVisible(d *decl.Decl) bool {
	if !e.headerPublic(d) {
		return false
	}
	if d.Kind == decl.KindRecord {
		return true
	}

	seen := map[decl.ID]bool{d.ID: true}
	stack := typeRefs(nil, d.Type)
	for len(stack) > 0 {
		id := e.idx.Canonical(stack[len(stack)-1])
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true

		ref, ok := e.idx.Decl(id)
		if !ok {
			continue
		}
		if !e.headerPublic(ref) {
			return false
		}
		if ref.Kind == decl.KindAlias {
			stack = typeRefs(stack, ref.Type)
		}
		for _, arg := range ref.Args {
			stack = argRefs(stack, arg)
		}
	}
	return true
}

// typeRefs appends every declaration named by t, including aliases that
// t is spelled through.
func typeRefs(dst []decl.ID, t *decl.Type) []decl.ID {
	if t == nil {
		return dst
	}
	switch t.Kind {
	case decl.TypeNamed:
		return append(dst, t.Decl)
	case decl.TypeSugar:
		return typeRefs(append(dst, t.Decl), t.Elem)
	case decl.TypePointer, decl.TypeReference, decl.TypeArray, decl.TypeSubstParam:
		return typeRefs(dst, t.Elem)
	case decl.TypeFunction:
		dst = typeRefs(dst, t.Result)
		for _, p := range t.Params {
			dst = typeRefs(dst, p)
		}
		return dst
	default:
		return dst
	}
}

func argRefs(dst []decl.ID, a decl.TemplateArg) []decl.ID {
	switch a.Kind {
	case decl.ArgType:
		return typeRefs(dst, a.Type)
	case decl.ArgTemplate:
		return append(dst, a.Template)
	case decl.ArgPack:
		for _, p := range a.Pack {
			dst = argRefs(dst, p)
		}
	}
	return dst
}

// sharedReference reports whether d reaches a refcounted root through
// public bases only, and sits at the same nesting depth as that root.
func (e *Engine) sharedReference(d *decl.Decl) bool {
	if len(e.roots) == 0 {
		return false
	}
	u := e.idx.Universe()
	depth := u.Depth(d.ID)
	for _, root := range e.roots {
		if u.Depth(root) != depth {
			continue
		}
		if e.publiclyDerives(d, root, map[decl.ID]bool{}) {
			return true
		}
	}
	return false
}

func (e *Engine) publiclyDerives(d *decl.Decl, root decl.ID, seen map[decl.ID]bool) bool {
	if seen[d.ID] {
		return false
	}
	seen[d.ID] = true
	for _, b := range d.Bases {
		if !b.Access.IsPublic() {
			continue
		}
		t := decl.Desugar(b.Type)
		if t == nil || t.Kind != decl.TypeNamed {
			continue
		}
		base, ok := e.idx.Decl(t.Decl)
		if !ok {
			continue
		}
		if base.ID == root || (base.IsInstantiation() && e.idx.Canonical(base.Template) == root) {
			return true
		}
		if e.publiclyDerives(base, root, seen) {
			return true
		}
	}
	return false
}

// singletonHeld reports whether id is the sole type argument of an
// instantiation of a singleton holder.
func (e *Engine) singletonHeld(id decl.ID) bool {
	if e.singletons == nil {
		e.singletons = make(map[decl.ID]bool)
		u := e.idx.Universe()
		for _, holder := range e.holders {
			for _, h := range u.Redeclarations(holder) {
				for _, inst := range u.Instantiations(h) {
					d, ok := u.Get(inst)
					if !ok || len(d.Args) != 1 || d.Args[0].Kind != decl.ArgType {
						continue
					}
					if t := decl.Desugar(d.Args[0].Type); t != nil && t.Kind == decl.TypeNamed {
						e.singletons[e.idx.Canonical(t.Decl)] = true
					}
				}
			}
		}
	}
	return e.singletons[e.idx.Canonical(id)]
}
