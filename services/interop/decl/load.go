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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document schema
// =============================================================================

// document is the on-disk form of a universe. JSON input is accepted too,
// since every JSON document is valid YAML.
type document struct {
	Version      string       `yaml:"version"`
	Declarations []declRecord `yaml:"declarations" validate:"required,dive"`
}

type declRecord struct {
	ID         ID            `yaml:"id" validate:"required"`
	Kind       string        `yaml:"kind" validate:"required,oneof=namespace record enum function template field alias"`
	Name       string        `yaml:"name" validate:"required"`
	Parent     ID            `yaml:"parent"`
	Access     string        `yaml:"access" validate:"omitempty,oneof=none public protected private"`
	Header     string        `yaml:"header"`
	Location   Location      `yaml:"location"`
	InCodebase bool          `yaml:"in_codebase"`
	Definition ID            `yaml:"definition"`
	Templated  bool          `yaml:"templated"`
	Template   ID            `yaml:"template"`
	Args       []argRecord   `yaml:"args" validate:"dive"`
	Bases      []baseRecord  `yaml:"bases" validate:"dive"`
	Fields     []fieldRecord `yaml:"fields" validate:"dive"`
	Traits     traitsRecord  `yaml:"traits"`
	Type       *typeRecord   `yaml:"type"`
}

// traitsRecord leaves unset members nil; they default to accessible, as
// NewBuilder's declarations do.
type traitsRecord struct {
	Copy *bool `yaml:"copy"`
	Move *bool `yaml:"move"`
	Dtor *bool `yaml:"dtor"`
}

func (t traitsRecord) toTraits() Traits {
	orTrue := func(b *bool) bool { return b == nil || *b }
	return Traits{Copy: orTrue(t.Copy), Move: orTrue(t.Move), Dtor: orTrue(t.Dtor)}
}

type argRecord struct {
	Kind     string      `yaml:"kind" validate:"omitempty,oneof=type value pack template"`
	Type     *typeRecord `yaml:"type"`
	Value    string      `yaml:"value"`
	Template ID          `yaml:"template"`
	Pack     []argRecord `yaml:"pack" validate:"dive"`
}

type baseRecord struct {
	Type    *typeRecord `yaml:"type" validate:"required"`
	Access  string      `yaml:"access" validate:"omitempty,oneof=none public protected private"`
	Virtual bool        `yaml:"virtual"`
}

type fieldRecord struct {
	Name   string      `yaml:"name" validate:"required"`
	Type   *typeRecord `yaml:"type" validate:"required"`
	Access string      `yaml:"access" validate:"omitempty,oneof=none public protected private"`
}

// typeRecord is a nested description where exactly one shape key is set.
type typeRecord struct {
	Builtin   string          `yaml:"builtin"`
	Named     ID              `yaml:"named"`
	Pointer   *typeRecord     `yaml:"pointer"`
	Reference *typeRecord     `yaml:"reference"`
	RValue    bool            `yaml:"rvalue"`
	Array     *arrayRecord    `yaml:"array"`
	Function  *functionRecord `yaml:"function"`
	Subst     *substRecord    `yaml:"subst"`
	Sugar     *sugarRecord    `yaml:"sugar"`
	Const     bool            `yaml:"const"`
}

type arrayRecord struct {
	Elem *typeRecord `yaml:"elem"`
	Size *int        `yaml:"size"`
}

type functionRecord struct {
	Result *typeRecord   `yaml:"result"`
	Params []*typeRecord `yaml:"params"`
}

type substRecord struct {
	Param       string      `yaml:"param"`
	Replacement *typeRecord `yaml:"replacement"`
}

type sugarRecord struct {
	Alias ID          `yaml:"alias"`
	Of    *typeRecord `yaml:"of"`
}

// =============================================================================
// Loading
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads a universe document from path.
func LoadFile(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	u, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load universe %s: %w", path, err)
	}
	return u, nil
}

// Load decodes a YAML or JSON universe document.
//
// Description:
//
//	Decodes the document, validates record shapes with struct tags, converts
//	records into declarations and builds the Universe.
//
// Inputs:
//
//	r - The document.
//
// Outputs:
//
//	*Universe - The loaded graph.
//	error - Decode, validation or reference errors.
func Load(r io.Reader) (*Universe, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode universe: empty document")
		}
		return nil, fmt.Errorf("decode universe: %w", err)
	}
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validate universe: %w", err)
	}

	decls := make([]*Decl, 0, len(doc.Declarations))
	for i := range doc.Declarations {
		d, err := doc.Declarations[i].toDecl()
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return NewUniverse(decls)
}

func (r *declRecord) toDecl() (*Decl, error) {
	kind, err := ParseKind(r.Kind)
	if err != nil {
		return nil, &LoadError{ID: r.ID, Field: "kind", Err: err}
	}
	access, err := ParseAccess(r.Access)
	if err != nil {
		return nil, &LoadError{ID: r.ID, Field: "access", Err: err}
	}

	d := &Decl{
		ID:         r.ID,
		Kind:       kind,
		Name:       r.Name,
		Parent:     r.Parent,
		Access:     access,
		Header:     r.Header,
		Location:   r.Location,
		InCodebase: r.InCodebase,
		Definition: r.Definition,
		Templated:  r.Templated,
		Template:   r.Template,
		Traits:     r.Traits.toTraits(),
	}

	for _, a := range r.Args {
		arg, err := a.toArg()
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "args", Err: err}
		}
		d.Args = append(d.Args, arg)
	}
	for _, b := range r.Bases {
		t, err := b.Type.toType()
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "bases", Err: err}
		}
		ba, err := ParseAccess(b.Access)
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "bases", Err: err}
		}
		d.Bases = append(d.Bases, Base{Type: t, Access: ba, Virtual: b.Virtual})
	}
	for _, f := range r.Fields {
		t, err := f.Type.toType()
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "fields", Err: err}
		}
		fa, err := ParseAccess(f.Access)
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "fields", Err: err}
		}
		d.Fields = append(d.Fields, Field{Name: f.Name, Type: t, Access: fa})
	}
	if r.Type != nil {
		t, err := r.Type.toType()
		if err != nil {
			return nil, &LoadError{ID: r.ID, Field: "type", Err: err}
		}
		d.Type = t
	}
	return d, nil
}

func (a *argRecord) toArg() (TemplateArg, error) {
	kind, err := ParseArgKind(a.Kind)
	if err != nil {
		return TemplateArg{}, err
	}
	arg := TemplateArg{Kind: kind, Value: a.Value, Template: a.Template}
	switch kind {
	case ArgType:
		if arg.Type, err = a.Type.toType(); err != nil {
			return TemplateArg{}, err
		}
	case ArgPack:
		for _, p := range a.Pack {
			elem, err := p.toArg()
			if err != nil {
				return TemplateArg{}, err
			}
			arg.Pack = append(arg.Pack, elem)
		}
	}
	return arg, nil
}

func (r *typeRecord) toType() (*Type, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidType)
	}

	var t *Type
	shapes := 0
	if r.Builtin != "" {
		shapes++
		t = Builtin(r.Builtin)
	}
	if r.Named != 0 {
		shapes++
		t = Named(r.Named)
	}
	if r.Pointer != nil {
		shapes++
		elem, err := r.Pointer.toType()
		if err != nil {
			return nil, err
		}
		t = PointerTo(elem)
	}
	if r.Reference != nil {
		shapes++
		elem, err := r.Reference.toType()
		if err != nil {
			return nil, err
		}
		t = &Type{Kind: TypeReference, Elem: elem, RValue: r.RValue}
	}
	if r.Array != nil {
		shapes++
		elem, err := r.Array.Elem.toType()
		if err != nil {
			return nil, err
		}
		size := -1
		if r.Array.Size != nil {
			size = *r.Array.Size
		}
		t = ArrayOf(elem, size)
	}
	if r.Function != nil {
		shapes++
		result, err := r.Function.Result.toType()
		if err != nil {
			return nil, err
		}
		params := make([]*Type, 0, len(r.Function.Params))
		for _, p := range r.Function.Params {
			pt, err := p.toType()
			if err != nil {
				return nil, err
			}
			params = append(params, pt)
		}
		t = FunctionOf(result, params...)
	}
	if r.Subst != nil {
		shapes++
		elem, err := r.Subst.Replacement.toType()
		if err != nil {
			return nil, err
		}
		t = Substituted(r.Subst.Param, elem)
	}
	if r.Sugar != nil {
		shapes++
		elem, err := r.Sugar.Of.toType()
		if err != nil {
			return nil, err
		}
		t = SugarFor(r.Sugar.Alias, elem)
	}

	switch shapes {
	case 0:
		// A record with no recognizable shape is kept and rejected by
		// consumers that need to look inside it.
		t = &Type{Kind: TypeUnhandled}
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d shapes in one type", ErrInvalidType, shapes)
	}
	t.Const = r.Const
	return t, nil
}
