// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/depgraph"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// ErrInvalidSafety indicates a serialized verdict that does not parse.
var ErrInvalidSafety = errors.New("invalid safety verdict")

// Verdict is the concurrency-safety answer for one type.
type Verdict int

const (
	// Unknown is the provisional seed value, and the pinned value of
	// types the analysis cannot see into.
	Unknown Verdict = iota + 1
	Unsafe
	Safe
)

func (v Verdict) String() string {
	switch v {
	case Unknown:
		return "unknown"
	case Unsafe:
		return "unsafe"
	case Safe:
		return "safe"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Blocking is one dependency that made a type unsafe: Edge leaves Source
// and lands on a type that is not safe.
type Blocking struct {
	Source *decl.Type
	Edge   depgraph.Edge
}

// Safety is the result value of the safety pass.
type Safety struct {
	Verdict  Verdict
	Blocking []Blocking
}

// =============================================================================
// Codec
// =============================================================================

// Codec renders "safe", "unknown" and "unsafe(<source> => <edge>,, ...)".
type Codec struct {
	idx   *index.Index
	edges depgraph.Codec
}

// NewCodec returns a codec resolving types through idx.
func NewCodec(idx *index.Index) Codec {
	return Codec{idx: idx, edges: depgraph.NewCodec(idx)}
}

// FormatBlocking renders one blocking dependency.
func (c Codec) FormatBlocking(b Blocking) string {
	return c.idx.Spell(b.Source) + " => " + c.edges.FormatEdge(b.Edge)
}

// Serialize implements analysis.Codec.
func (c Codec) Serialize(s Safety) string {
	if s.Verdict != Unsafe {
		return s.Verdict.String()
	}
	parts := make([]string, len(s.Blocking))
	for i, b := range s.Blocking {
		parts[i] = c.FormatBlocking(b)
	}
	return "unsafe(" + analysis.JoinFields(parts) + ")"
}

// Deserialize implements analysis.Codec.
func (c Codec) Deserialize(s string) (Safety, error) {
	switch s {
	case "safe":
		return Safety{Verdict: Safe}, nil
	case "unknown":
		return Safety{Verdict: Unknown}, nil
	}
	body, ok := strings.CutPrefix(s, "unsafe(")
	if ok {
		body, ok = strings.CutSuffix(body, ")")
	}
	if !ok {
		return Safety{}, fmt.Errorf("%w: %q", ErrInvalidSafety, s)
	}

	out := Safety{Verdict: Unsafe}
	for _, part := range analysis.SplitFields(body) {
		src, edge, ok := strings.Cut(part, " => ")
		if !ok {
			return Safety{}, fmt.Errorf("%w: missing ' => ' in %q", ErrInvalidSafety, part)
		}
		t, err := c.idx.FindType(src)
		if err != nil {
			return Safety{}, fmt.Errorf("%w: %q: %w", ErrInvalidSafety, part, err)
		}
		e, err := c.edges.ParseEdge(edge)
		if err != nil {
			return Safety{}, fmt.Errorf("%w: %w", ErrInvalidSafety, err)
		}
		out.Blocking = append(out.Blocking, Blocking{Source: t, Edge: e})
	}
	return out, nil
}

// Equal implements analysis.Codec. Blocking lists are compared as multisets.
func (c Codec) Equal(a, b Safety) bool {
	if a.Verdict != b.Verdict || len(a.Blocking) != len(b.Blocking) {
		return false
	}
	sa := make([]string, len(a.Blocking))
	sb := make([]string, len(b.Blocking))
	for i := range a.Blocking {
		sa[i] = c.FormatBlocking(a.Blocking[i])
		sb[i] = c.FormatBlocking(b.Blocking[i])
	}
	slices.Sort(sa)
	slices.Sort(sb)
	return slices.Equal(sa, sb)
}
