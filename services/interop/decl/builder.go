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

// Builder assembles a Universe in code.
//
// Description:
//
//	Builder is used by tests and by tools that synthesize declarations.
//	Identifiers are assigned sequentially from 1. Each declaration gets a
//	distinct default location so ordering is deterministic. Records default
//	to copyable, movable and destructible, and to the analyzed codebase.
//
// Thread Safety:
//
//	Builder is NOT safe for concurrent use.
//
// Example:
//
//	b := decl.NewBuilder()
//	ns := b.Namespace("app", 0)
//	x := b.Record("X", ns)
//	y := b.Record("Y", ns, decl.WithField("x", decl.Named(x)))
//	u, err := b.Build()
type Builder struct {
	decls []*Decl
	next  ID
}

// Option customizes a declaration created by a Builder.
type Option func(*Decl)

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{next: 1}
}

// Add appends d, assigning the next identifier when d.ID is zero.
func (b *Builder) Add(d *Decl, opts ...Option) ID {
	if d.ID == 0 {
		d.ID = b.next
	}
	if d.ID >= b.next {
		b.next = d.ID + 1
	}
	if d.Location.IsZero() {
		d.Location = Location{File: "builder.h", Line: int(d.ID)}
	}
	for _, opt := range opts {
		opt(d)
	}
	b.decls = append(b.decls, d)
	return d.ID
}

// Decl returns a previously added declaration for further adjustment.
func (b *Builder) Decl(id ID) *Decl {
	for _, d := range b.decls {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Namespace adds a namespace.
func (b *Builder) Namespace(name string, parent ID, opts ...Option) ID {
	return b.Add(&Decl{Kind: KindNamespace, Name: name, Parent: parent, InCodebase: true}, opts...)
}

// Record adds a concrete record.
func (b *Builder) Record(name string, parent ID, opts ...Option) ID {
	d := &Decl{
		Kind:       KindRecord,
		Name:       name,
		Parent:     parent,
		Access:     b.memberAccess(parent),
		InCodebase: true,
		Traits:     Traits{Copy: true, Move: true, Dtor: true},
	}
	return b.Add(d, opts...)
}

// Enum adds an enumeration.
func (b *Builder) Enum(name string, parent ID, opts ...Option) ID {
	return b.Add(&Decl{Kind: KindEnum, Name: name, Parent: parent, Access: b.memberAccess(parent), InCodebase: true}, opts...)
}

// Function adds a function whose signature is sig.
func (b *Builder) Function(name string, parent ID, sig *Type, opts ...Option) ID {
	return b.Add(&Decl{Kind: KindFunction, Name: name, Parent: parent, Access: b.memberAccess(parent), Type: sig, InCodebase: true}, opts...)
}

// Template adds a template shell.
func (b *Builder) Template(name string, parent ID, opts ...Option) ID {
	return b.Add(&Decl{Kind: KindTemplate, Name: name, Parent: parent, Access: b.memberAccess(parent), InCodebase: true}, opts...)
}

// Alias adds a typedef of target.
func (b *Builder) Alias(name string, parent ID, target *Type, opts ...Option) ID {
	return b.Add(&Decl{Kind: KindAlias, Name: name, Parent: parent, Access: b.memberAccess(parent), Type: target, InCodebase: true}, opts...)
}

// Instantiate adds a record instantiated from template with args. The
// record takes the template's name, scope and header.
func (b *Builder) Instantiate(template ID, args []TemplateArg, opts ...Option) ID {
	t := b.Decl(template)
	d := &Decl{
		Kind:       KindRecord,
		Template:   template,
		Args:       args,
		Traits:     Traits{Copy: true, Move: true, Dtor: true},
		InCodebase: true,
	}
	if t != nil {
		d.Name = t.Name
		d.Parent = t.Parent
		d.Access = t.Access
		d.Header = t.Header
		d.InCodebase = t.InCodebase
	}
	return b.Add(d, opts...)
}

// Build validates the declarations and returns the Universe.
func (b *Builder) Build() (*Universe, error) {
	return NewUniverse(b.decls)
}

func (b *Builder) memberAccess(parent ID) Access {
	if parent == 0 {
		return AccessNone
	}
	if p := b.Decl(parent); p != nil && p.Kind == KindRecord {
		return AccessPublic
	}
	return AccessNone
}

// =============================================================================
// Options
// =============================================================================

// WithAccess sets the access level.
func WithAccess(a Access) Option { return func(d *Decl) { d.Access = a } }

// WithTraits sets special member accessibility.
func WithTraits(copyable, movable, destructible bool) Option {
	return func(d *Decl) { d.Traits = Traits{Copy: copyable, Move: movable, Dtor: destructible} }
}

// WithBase appends a base class.
func WithBase(t *Type, access Access) Option {
	return func(d *Decl) { d.Bases = append(d.Bases, Base{Type: t, Access: access}) }
}

// WithField appends a public data member.
func WithField(name string, t *Type) Option {
	return func(d *Decl) { d.Fields = append(d.Fields, Field{Name: name, Type: t, Access: AccessPublic}) }
}

// WithHeader sets the defining header.
func WithHeader(h string) Option { return func(d *Decl) { d.Header = h } }

// At sets the source location.
func At(file string, line int) Option {
	return func(d *Decl) { d.Location = Location{File: file, Line: line} }
}

// External marks the declaration as outside the analyzed codebase.
func External() Option { return func(d *Decl) { d.InCodebase = false } }

// Templated marks a record as a template pattern.
func Templated() Option { return func(d *Decl) { d.Templated = true } }

// ForwardOf makes the declaration a forward declaration of def.
func ForwardOf(def ID) Option { return func(d *Decl) { d.Definition = def } }

// TypeArg is a type template argument.
func TypeArg(t *Type) TemplateArg { return TemplateArg{Kind: ArgType, Type: t} }

// ValueArg is a non-type template argument.
func ValueArg(v string) TemplateArg { return TemplateArg{Kind: ArgValue, Value: v} }

// TemplateTemplateArg is a template template argument.
func TemplateTemplateArg(id ID) TemplateArg { return TemplateArg{Kind: ArgTemplate, Template: id} }

// TypeArgs converts types into type template arguments.
func TypeArgs(ts ...*Type) []TemplateArg {
	args := make([]TemplateArg, len(ts))
	for i, t := range ts {
		args[i] = TypeArg(t)
	}
	return args
}
