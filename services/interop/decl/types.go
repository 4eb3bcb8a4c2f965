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
	"cmp"
	"fmt"
)

// ID identifies a declaration within one Universe. Zero means "none".
type ID uint32

// =============================================================================
// Kind
// =============================================================================

// Kind is the declaration kind tag.
type Kind int

const (
	// KindUnknown is never valid in a loaded universe.
	KindUnknown Kind = iota

	// KindNamespace is a namespace. Reopened namespaces share a signature.
	KindNamespace

	// KindRecord is a class, struct or union, including template
	// instantiations and template patterns (see Decl.Templated).
	KindRecord

	// KindEnum is a scoped or unscoped enumeration.
	KindEnum

	// KindFunction is a free or member function.
	KindFunction

	// KindTemplate is a class or function template shell.
	KindTemplate

	// KindField is a non-static data member.
	KindField

	// KindAlias is a typedef or alias declaration.
	KindAlias
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindNamespace: "namespace",
	KindRecord:    "record",
	KindEnum:      "enum",
	KindFunction:  "function",
	KindTemplate:  "template",
	KindField:     "field",
	KindAlias:     "alias",
}

// String returns the lower-case kind name used in input documents.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts an input document kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s && k != KindUnknown {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// IsType reports whether declarations of this kind name a type.
func (k Kind) IsType() bool {
	return k == KindRecord || k == KindEnum || k == KindAlias
}

// =============================================================================
// Access
// =============================================================================

// Access is the C++ access level of a declaration or base.
type Access int

const (
	// AccessNone applies to declarations at namespace scope.
	AccessNone Access = iota
	AccessPublic
	AccessProtected
	AccessPrivate
)

var accessNames = map[Access]string{
	AccessNone:      "none",
	AccessPublic:    "public",
	AccessProtected: "protected",
	AccessPrivate:   "private",
}

func (a Access) String() string {
	if name, ok := accessNames[a]; ok {
		return name
	}
	return fmt.Sprintf("access(%d)", int(a))
}

// ParseAccess converts an access name. The empty string means AccessNone.
func ParseAccess(s string) (Access, error) {
	if s == "" {
		return AccessNone, nil
	}
	for a, name := range accessNames {
		if name == s {
			return a, nil
		}
	}
	return AccessNone, fmt.Errorf("%w: %q", ErrUnknownAccess, s)
}

// IsPublic reports whether the access level exposes the declaration.
// Namespace-scope declarations count as public.
func (a Access) IsPublic() bool {
	return a == AccessNone || a == AccessPublic
}

// =============================================================================
// Location
// =============================================================================

// Location is a source position. It is used for ordering only.
type Location struct {
	File   string `yaml:"file" json:"file"`
	Line   int    `yaml:"line" json:"line"`
	Column int    `yaml:"column" json:"column"`
}

// Compare orders locations by file, then line, then column.
func (l Location) Compare(o Location) int {
	if c := cmp.Compare(l.File, o.File); c != 0 {
		return c
	}
	if c := cmp.Compare(l.Line, o.Line); c != 0 {
		return c
	}
	return cmp.Compare(l.Column, o.Column)
}

// IsZero reports whether no location was recorded.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	if l.IsZero() {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// =============================================================================
// Structural parts
// =============================================================================

// Traits records the accessibility of special members.
type Traits struct {
	// Copy is true when an accessible copy constructor exists.
	Copy bool

	// Move is true when an accessible move constructor exists.
	Move bool

	// Dtor is true when an accessible destructor exists.
	Dtor bool
}

// Base is one direct base class.
type Base struct {
	Type    *Type
	Access  Access
	Virtual bool
}

// Field is one non-static data member.
type Field struct {
	Name   string
	Type   *Type
	Access Access
}

// ArgKind tags a template argument.
type ArgKind int

const (
	ArgType ArgKind = iota
	ArgValue
	ArgPack
	ArgTemplate
)

var argKindNames = map[ArgKind]string{
	ArgType:     "type",
	ArgValue:    "value",
	ArgPack:     "pack",
	ArgTemplate: "template",
}

func (k ArgKind) String() string {
	if name, ok := argKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("arg(%d)", int(k))
}

// ParseArgKind converts an argument kind name. The empty string means ArgType.
func ParseArgKind(s string) (ArgKind, error) {
	if s == "" {
		return ArgType, nil
	}
	for k, name := range argKindNames {
		if name == s {
			return k, nil
		}
	}
	return ArgType, fmt.Errorf("%w: argument kind %q", ErrInvalidType, s)
}

// TemplateArg is one argument of a template instantiation.
type TemplateArg struct {
	Kind ArgKind

	// Type is set for ArgType.
	Type *Type

	// Value is the spelled expression for ArgValue.
	Value string

	// Template is the template declaration for ArgTemplate.
	Template ID

	// Pack holds the expanded elements for ArgPack.
	Pack []TemplateArg
}

// =============================================================================
// Decl
// =============================================================================

// Decl is one declaration node.
//
// Forward declarations carry Definition, pointing at the node holding the
// definition; every other field of a forward declaration is informational.
type Decl struct {
	ID   ID
	Kind Kind

	// Name is the unqualified name.
	Name string

	// Parent is the immediately enclosing declaration, zero at file scope.
	Parent ID

	Access Access

	// Header is the file that defines the declaration.
	Header string

	// Location is the position of this particular redeclaration.
	Location Location

	// InCodebase is true when this site lies inside the analyzed codebase.
	InCodebase bool

	// Definition links a forward declaration to its definition.
	Definition ID

	// Templated marks a record that describes a template pattern
	// (or is a member of one) rather than a concrete type.
	Templated bool

	// Template is the template this declaration was instantiated from.
	Template ID

	// Args are the instantiation arguments when Template is set.
	Args []TemplateArg

	Bases  []Base
	Fields []Field
	Traits Traits

	// Type is the aliased type for KindAlias and the signature
	// (a TypeFunction) for KindFunction.
	Type *Type
}

// IsInstantiation reports whether the declaration instantiates a template.
func (d *Decl) IsInstantiation() bool {
	return d.Template != 0
}

// IsTemplateShell reports whether the declaration only describes a template.
func (d *Decl) IsTemplateShell() bool {
	return d.Kind == KindTemplate || (d.Kind == KindRecord && d.Templated)
}
