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
	"slices"
	"strconv"
	"strings"
	"sync"
)

// maxSpellDepth bounds signature recursion on malformed input.
const maxSpellDepth = 64

// Universe is the immutable declaration graph of one run.
type Universe struct {
	decls map[ID]*Decl
	ids   []ID

	children       map[ID][]ID
	redecls        map[ID][]ID
	instantiations map[ID][]ID

	mu         sync.Mutex
	signatures map[ID]string
}

// NewUniverse validates decls and builds the secondary indexes.
//
// Description:
//
//	Checks that identifiers are non-zero and unique, that every reference
//	(parent, definition, template, argument, base, field and alias types)
//	resolves, and that definition and scope links are acyclic.
//
// Inputs:
//
//	decls - The declarations. Ownership passes to the Universe.
//
// Outputs:
//
//	*Universe - The graph.
//	error - A *LoadError describing the first problem found.
func NewUniverse(decls []*Decl) (*Universe, error) {
	u := &Universe{
		decls:          make(map[ID]*Decl, len(decls)),
		ids:            make([]ID, 0, len(decls)),
		children:       make(map[ID][]ID),
		redecls:        make(map[ID][]ID),
		instantiations: make(map[ID][]ID),
		signatures:     make(map[ID]string),
	}

	for _, d := range decls {
		if d == nil {
			continue
		}
		if d.ID == 0 {
			return nil, &LoadError{Err: ErrInvalidID}
		}
		if _, dup := u.decls[d.ID]; dup {
			return nil, &LoadError{ID: d.ID, Err: ErrDuplicateID}
		}
		u.decls[d.ID] = d
		u.ids = append(u.ids, d.ID)
	}
	slices.Sort(u.ids)

	for _, id := range u.ids {
		if err := u.validate(u.decls[id]); err != nil {
			return nil, err
		}
	}

	for _, id := range u.ids {
		d := u.decls[id]
		def, err := u.resolveDefinition(id)
		if err != nil {
			return nil, err
		}
		u.redecls[def] = append(u.redecls[def], id)
		if d.Parent != 0 {
			u.children[d.Parent] = append(u.children[d.Parent], id)
		}
		if d.Template != 0 {
			u.instantiations[d.Template] = append(u.instantiations[d.Template], id)
		}
	}

	for _, id := range u.ids {
		if err := u.checkScopeChain(id); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *Universe) validate(d *Decl) error {
	if d.Kind == KindUnknown {
		return &LoadError{ID: d.ID, Field: "kind", Err: ErrUnknownKind}
	}
	refs := []struct {
		field string
		id    ID
	}{
		{"parent", d.Parent},
		{"definition", d.Definition},
		{"template", d.Template},
	}
	for _, r := range refs {
		if r.id != 0 && u.decls[r.id] == nil {
			return &LoadError{ID: d.ID, Field: r.field, Err: ErrDanglingReference}
		}
	}
	for _, a := range d.Args {
		if err := u.validateArg(d.ID, a); err != nil {
			return err
		}
	}
	for _, b := range d.Bases {
		if err := u.validateType(d.ID, "bases", b.Type, false); err != nil {
			return err
		}
	}
	for _, f := range d.Fields {
		if err := u.validateType(d.ID, "fields", f.Type, false); err != nil {
			return err
		}
	}
	if d.Kind == KindAlias || d.Kind == KindFunction {
		if err := u.validateType(d.ID, "type", d.Type, d.Kind == KindFunction); err != nil {
			return err
		}
	}
	return nil
}

func (u *Universe) validateArg(owner ID, a TemplateArg) error {
	switch a.Kind {
	case ArgType:
		return u.validateType(owner, "args", a.Type, false)
	case ArgTemplate:
		if u.decls[a.Template] == nil {
			return &LoadError{ID: owner, Field: "args", Err: ErrDanglingReference}
		}
	case ArgPack:
		for _, p := range a.Pack {
			if err := u.validateArg(owner, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *Universe) validateType(owner ID, field string, t *Type, wantFunction bool) error {
	if t == nil {
		return &LoadError{ID: owner, Field: field, Err: ErrInvalidType}
	}
	if wantFunction && t.Kind != TypeFunction {
		return &LoadError{ID: owner, Field: field, Err: ErrInvalidType}
	}
	for _, id := range NamedDecls(nil, t) {
		if u.decls[id] == nil {
			return &LoadError{ID: owner, Field: field, Err: ErrDanglingReference}
		}
	}
	if t.Kind == TypeSugar && t.Decl != 0 && u.decls[t.Decl] == nil {
		return &LoadError{ID: owner, Field: field, Err: ErrDanglingReference}
	}
	return nil
}

func (u *Universe) resolveDefinition(id ID) (ID, error) {
	seen := 0
	for {
		d := u.decls[id]
		if d.Definition == 0 || d.Definition == id {
			return id, nil
		}
		id = d.Definition
		seen++
		if seen > len(u.decls) {
			return 0, &LoadError{ID: id, Field: "definition", Err: ErrDefinitionCycle}
		}
	}
}

func (u *Universe) checkScopeChain(id ID) error {
	steps := 0
	for p := u.decls[id].Parent; p != 0; p = u.decls[p].Parent {
		steps++
		if steps > len(u.decls) {
			return &LoadError{ID: id, Field: "parent", Err: ErrScopeCycle}
		}
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Get returns the declaration with the given id.
func (u *Universe) Get(id ID) (*Decl, bool) {
	d, ok := u.decls[id]
	return d, ok
}

// Len returns the number of declaration nodes, redeclarations included.
func (u *Universe) Len() int {
	return len(u.ids)
}

// IDs returns every identifier in ascending order. The slice is a copy.
func (u *Universe) IDs() []ID {
	return slices.Clone(u.ids)
}

// Definition follows forward-declaration links to the defining node.
// Unknown ids are returned unchanged.
func (u *Universe) Definition(id ID) ID {
	for i := 0; i <= len(u.decls); i++ {
		d, ok := u.decls[id]
		if !ok || d.Definition == 0 || d.Definition == id {
			return id
		}
		id = d.Definition
	}
	return id
}

// Redeclarations returns every node that resolves to the same definition
// as id, including the definition itself, in ascending id order.
func (u *Universe) Redeclarations(id ID) []ID {
	return u.redecls[u.Definition(id)]
}

// LatestLocation returns the greatest location among the redeclarations.
func (u *Universe) LatestLocation(id ID) Location {
	var latest Location
	for i, r := range u.Redeclarations(id) {
		loc := u.decls[r].Location
		if i == 0 || loc.Compare(latest) > 0 {
			latest = loc
		}
	}
	return latest
}

// EarliestInCodebase reports whether the earliest redeclaration of id lies
// inside the analyzed codebase. Ties resolve to the lowest id.
func (u *Universe) EarliestInCodebase(id ID) bool {
	var earliest *Decl
	for _, r := range u.Redeclarations(id) {
		d := u.decls[r]
		if earliest == nil || d.Location.Compare(earliest.Location) < 0 {
			earliest = d
		}
	}
	return earliest != nil && earliest.InCodebase
}

// Children returns the declarations whose Parent is id.
func (u *Universe) Children(id ID) []ID {
	return u.children[id]
}

// Instantiations returns the declarations instantiated from template.
func (u *Universe) Instantiations(template ID) []ID {
	return u.instantiations[template]
}

// Depth returns the number of enclosing declarations of id.
func (u *Universe) Depth(id ID) int {
	depth := 0
	d, ok := u.decls[u.Definition(id)]
	for ok && d.Parent != 0 {
		depth++
		d, ok = u.decls[d.Parent]
	}
	return depth
}

// =============================================================================
// Spelling
// =============================================================================

// Signature returns the canonical textual signature of id: the fully
// qualified name, instantiation arguments, and for functions the parameter
// list. Forward declarations spell as their definition.
func (u *Universe) Signature(id ID) string {
	id = u.Definition(id)

	u.mu.Lock()
	s, ok := u.signatures[id]
	u.mu.Unlock()
	if ok {
		return s
	}

	s = u.signature(id, 0)

	u.mu.Lock()
	u.signatures[id] = s
	u.mu.Unlock()
	return s
}

func (u *Universe) signature(id ID, depth int) string {
	id = u.Definition(id)
	d, ok := u.decls[id]
	if !ok {
		return "<missing " + strconv.FormatUint(uint64(id), 10) + ">"
	}
	if depth > maxSpellDepth {
		return "<recursive>"
	}

	var b strings.Builder
	if d.Parent != 0 {
		b.WriteString(u.signature(d.Parent, depth+1))
		b.WriteString("::")
	}
	b.WriteString(d.Name)

	if len(d.Args) > 0 {
		b.WriteByte('<')
		for i, a := range flattenArgs(d.Args) {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(u.spellArg(a, depth+1))
		}
		b.WriteByte('>')
	}

	if d.Kind == KindFunction && d.Type != nil && d.Type.Kind == TypeFunction {
		b.WriteByte('(')
		for i, p := range d.Type.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(u.spell(p, depth+1))
		}
		b.WriteByte(')')
	}
	return b.String()
}

func flattenArgs(args []TemplateArg) []TemplateArg {
	out := make([]TemplateArg, 0, len(args))
	for _, a := range args {
		if a.Kind == ArgPack {
			out = append(out, flattenArgs(a.Pack)...)
			continue
		}
		out = append(out, a)
	}
	return out
}

func (u *Universe) spellArg(a TemplateArg, depth int) string {
	switch a.Kind {
	case ArgType:
		return u.spell(a.Type, depth)
	case ArgValue:
		return a.Value
	case ArgTemplate:
		return u.signature(a.Template, depth)
	default:
		return "<pack>"
	}
}

// Spell returns the canonical spelling of t. Sugar and substitutions spell
// as what they stand for, so equal canonical types spell identically.
func (u *Universe) Spell(t *Type) string {
	return u.spell(t, 0)
}

func (u *Universe) spell(t *Type, depth int) string {
	if t == nil {
		return "<nil>"
	}
	if depth > maxSpellDepth {
		return "<recursive>"
	}

	var s string
	postfixConst := false
	switch t.Kind {
	case TypeBuiltin:
		s = t.Name
	case TypeNamed:
		if depth == 0 {
			s = u.Signature(t.Decl)
		} else {
			s = u.signature(t.Decl, depth)
		}
	case TypePointer:
		s = u.spell(t.Elem, depth+1) + " *"
		postfixConst = true
	case TypeReference:
		if t.RValue {
			s = u.spell(t.Elem, depth+1) + " &&"
		} else {
			s = u.spell(t.Elem, depth+1) + " &"
		}
		postfixConst = true
	case TypeArray:
		if t.Size < 0 {
			s = u.spell(t.Elem, depth+1) + "[]"
		} else {
			s = u.spell(t.Elem, depth+1) + "[" + strconv.Itoa(t.Size) + "]"
		}
	case TypeFunction:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = u.spell(p, depth+1)
		}
		s = u.spell(t.Result, depth+1) + " (" + strings.Join(params, ", ") + ")"
		postfixConst = true
	case TypeSubstParam, TypeSugar:
		inner := t.Elem
		if t.Const && inner != nil && !inner.Const {
			inner = ConstOf(inner)
		}
		return u.spell(inner, depth+1)
	default:
		return "<unhandled>"
	}

	if !t.Const {
		return s
	}
	if postfixConst {
		return s + " const"
	}
	return "const " + s
}
