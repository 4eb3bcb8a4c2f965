// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

// parseType is the inverse of decl.Universe.Spell.
func (x *Index) parseType(s string) (*decl.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty spelling", ErrMalformedSpelling)
	}

	switch {
	case strings.HasSuffix(s, " const"):
		inner, err := x.parseType(strings.TrimSuffix(s, " const"))
		if err != nil {
			return nil, err
		}
		return decl.ConstOf(inner), nil

	case strings.HasSuffix(s, " &&"):
		inner, err := x.parseType(strings.TrimSuffix(s, " &&"))
		if err != nil {
			return nil, err
		}
		return &decl.Type{Kind: decl.TypeReference, RValue: true, Elem: inner}, nil

	case strings.HasSuffix(s, " &"):
		inner, err := x.parseType(strings.TrimSuffix(s, " &"))
		if err != nil {
			return nil, err
		}
		return decl.ReferenceTo(inner), nil

	case strings.HasSuffix(s, " *"):
		inner, err := x.parseType(strings.TrimSuffix(s, " *"))
		if err != nil {
			return nil, err
		}
		return decl.PointerTo(inner), nil

	case strings.HasSuffix(s, "]"):
		return x.parseArray(s)

	case strings.HasSuffix(s, ")"):
		if t, ok, err := x.parseFunction(s); ok || err != nil {
			return t, err
		}

	case strings.HasPrefix(s, "const "):
		inner, err := x.parseType(strings.TrimPrefix(s, "const "))
		if err != nil {
			return nil, err
		}
		return decl.ConstOf(inner), nil
	}

	if x.builtins[s] {
		return decl.Builtin(s), nil
	}

	id, ok := x.FindDeclaration(s)
	if !ok {
		return nil, fmt.Errorf("%w: type %q", ErrUnresolved, s)
	}
	d, _ := x.u.Get(id)
	switch d.Kind {
	case decl.KindRecord, decl.KindEnum:
		return decl.Named(id), nil
	case decl.KindAlias:
		return decl.SugarFor(id, d.Type), nil
	default:
		return nil, fmt.Errorf("%w: %q names a %s, not a type", ErrUnresolved, s, d.Kind)
	}
}

func (x *Index) parseArray(s string) (*decl.Type, error) {
	open := matchingOpen(s, '[', ']')
	if open <= 0 {
		return nil, fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedSpelling, s)
	}
	elem, err := x.parseType(s[:open])
	if err != nil {
		return nil, err
	}
	bound := s[open+1 : len(s)-1]
	if bound == "" {
		return decl.ArrayOf(elem, -1), nil
	}
	size, err := strconv.Atoi(bound)
	if err != nil {
		return nil, fmt.Errorf("%w: array bound %q", ErrMalformedSpelling, bound)
	}
	return decl.ArrayOf(elem, size), nil
}

// parseFunction handles "R (P1, P2)". A closing parenthesis not preceded by
// " (" at top level is left to signature lookup.
func (x *Index) parseFunction(s string) (*decl.Type, bool, error) {
	open := matchingOpen(s, '(', ')')
	if open <= 1 || s[open-1] != ' ' {
		return nil, false, nil
	}
	result, err := x.parseType(s[:open-1])
	if err != nil {
		return nil, true, err
	}
	var params []*decl.Type
	for _, p := range splitTopLevel(s[open+1 : len(s)-1]) {
		pt, err := x.parseType(p)
		if err != nil {
			return nil, true, err
		}
		params = append(params, pt)
	}
	return decl.FunctionOf(result, params...), true, nil
}

// matchingOpen returns the index of the bracket that opens the one closing s.
func matchingOpen(s string, openCh, closeCh byte) int {
	depth := 0
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case closeCh:
			depth++
		case openCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits a comma-separated list, ignoring commas nested in
// angle, round or square brackets.
func splitTopLevel(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<', '(', '[':
			depth++
		case '>', ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
