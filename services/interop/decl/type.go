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

import "fmt"

// TypeKind is the closed set of type shapes the analysis distinguishes.
//
// Every consumer switches over all variants. TypeUnhandled exists so that
// a shape the front end could not describe fails loudly instead of falling
// through to a default.
type TypeKind int

const (
	TypeUnhandled TypeKind = iota

	// TypeBuiltin is a fundamental type such as int or bool.
	TypeBuiltin

	// TypePointer points at Elem.
	TypePointer

	// TypeReference refers to Elem. RValue marks &&.
	TypeReference

	// TypeArray holds Size elements of Elem. Size < 0 means unknown bound.
	TypeArray

	// TypeFunction has Result and Params.
	TypeFunction

	// TypeSubstParam is a template parameter Name replaced by Elem.
	TypeSubstParam

	// TypeNamed refers to a record or enum declaration.
	TypeNamed

	// TypeSugar is a typedef or elaborated spelling of Elem. Decl names the
	// alias declaration when known.
	TypeSugar
)

var typeKindNames = map[TypeKind]string{
	TypeUnhandled:  "unhandled",
	TypeBuiltin:    "builtin",
	TypePointer:    "pointer",
	TypeReference:  "reference",
	TypeArray:      "array",
	TypeFunction:   "function",
	TypeSubstParam: "subst",
	TypeNamed:      "named",
	TypeSugar:      "sugar",
}

func (k TypeKind) String() string {
	if name, ok := typeKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", int(k))
}

// Type is a node of the type sum. Only the fields relevant to Kind are set.
type Type struct {
	Kind TypeKind

	// Name is the builtin spelling or the substituted parameter name.
	Name string

	// Const is the top-level const qualifier.
	Const bool

	// RValue distinguishes && from & references.
	RValue bool

	Elem *Type
	Size int

	// Decl is the named declaration, or the alias behind sugar.
	Decl ID

	Result *Type
	Params []*Type
}

// Builtin returns a fundamental type.
func Builtin(name string) *Type { return &Type{Kind: TypeBuiltin, Name: name} }

// Named returns a reference to a record or enum declaration.
func Named(id ID) *Type { return &Type{Kind: TypeNamed, Decl: id} }

// PointerTo returns a pointer to elem.
func PointerTo(elem *Type) *Type { return &Type{Kind: TypePointer, Elem: elem} }

// ReferenceTo returns an lvalue reference to elem.
func ReferenceTo(elem *Type) *Type { return &Type{Kind: TypeReference, Elem: elem} }

// ArrayOf returns an array of size elements.
func ArrayOf(elem *Type, size int) *Type { return &Type{Kind: TypeArray, Elem: elem, Size: size} }

// FunctionOf returns a function type.
func FunctionOf(result *Type, params ...*Type) *Type {
	return &Type{Kind: TypeFunction, Result: result, Params: params}
}

// SugarFor wraps elem as the spelling of alias declaration alias.
func SugarFor(alias ID, elem *Type) *Type { return &Type{Kind: TypeSugar, Decl: alias, Elem: elem} }

// Substituted wraps elem as the replacement of template parameter name.
func Substituted(name string, elem *Type) *Type {
	return &Type{Kind: TypeSubstParam, Name: name, Elem: elem}
}

// ConstOf returns a const-qualified copy of t.
func ConstOf(t *Type) *Type {
	c := *t
	c.Const = true
	return &c
}

// Desugar strips sugar and substitution wrappers at every level and drops
// the top-level const qualifier. Nested qualifiers are kept so that
// "const int *" and "int *" stay distinct.
func Desugar(t *Type) *Type {
	if t == nil {
		return nil
	}
	d := desugar(t)
	if d.Const {
		c := *d
		c.Const = false
		d = &c
	}
	return d
}

func desugar(t *Type) *Type {
	if t == nil {
		return &Type{Kind: TypeUnhandled}
	}
	switch t.Kind {
	case TypeSugar, TypeSubstParam:
		inner := desugar(t.Elem)
		if t.Const && !inner.Const {
			c := *inner
			c.Const = true
			return &c
		}
		return inner
	case TypePointer, TypeReference, TypeArray:
		c := *t
		c.Elem = desugar(t.Elem)
		return &c
	case TypeFunction:
		c := *t
		c.Result = desugar(t.Result)
		c.Params = make([]*Type, len(t.Params))
		for i, p := range t.Params {
			c.Params[i] = desugar(p)
		}
		return &c
	default:
		return t
	}
}

// NamedDecls appends every declaration named anywhere inside t to dst,
// looking through pointers, references, arrays and function signatures.
func NamedDecls(dst []ID, t *Type) []ID {
	if t == nil {
		return dst
	}
	switch t.Kind {
	case TypeNamed:
		return append(dst, t.Decl)
	case TypePointer, TypeReference, TypeArray, TypeSubstParam, TypeSugar:
		return NamedDecls(dst, t.Elem)
	case TypeFunction:
		dst = NamedDecls(dst, t.Result)
		for _, p := range t.Params {
			dst = NamedDecls(dst, p)
		}
		return dst
	default:
		return dst
	}
}
