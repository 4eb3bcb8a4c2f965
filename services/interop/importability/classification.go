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
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidClassification indicates a serialized classification that does
// not parse.
var ErrInvalidClassification = errors.New("invalid import classification")

// Reason explains why a declaration cannot be imported.
type Reason int

const (
	NonPublicHeader Reason = iota + 1
	TemplatedRecordShell
	BadTemplateArgument
	EnclosingScopeBlocked
	AccessDenied
	NoAccessibleMove
	NoAccessibleDestructor
)

var reasonNames = map[Reason]string{
	NonPublicHeader:        "non-public-header",
	TemplatedRecordShell:   "templated-record-shell",
	BadTemplateArgument:    "bad-template-argument",
	EnclosingScopeBlocked:  "enclosing-scope-blocked",
	AccessDenied:           "access-denied",
	NoAccessibleMove:       "no-accessible-move",
	NoAccessibleDestructor: "no-accessible-destructor",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// Mode is how an importable declaration is projected.
type Mode int

const (
	Value Mode = iota + 1
	NonCopyableValue
	SharedReference
	ImmortalReference
)

var modeNames = map[Mode]string{
	Value:             "value",
	NonCopyableValue:  "non-copyable-value",
	SharedReference:   "shared-reference",
	ImmortalReference: "immortal-reference",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Classification is either imported(mode) or blocked(reason). The zero value
// is "unclassified" and is never stored as a result.
type Classification struct {
	imported bool
	mode     Mode
	reason   Reason
}

// Imported returns imported(m).
func Imported(m Mode) Classification {
	return Classification{imported: true, mode: m}
}

// Blocked returns blocked(r).
func Blocked(r Reason) Classification {
	return Classification{reason: r}
}

// IsZero reports whether c is unclassified.
func (c Classification) IsZero() bool {
	return c == Classification{}
}

// IsImported reports whether c is imported in any mode.
func (c Classification) IsImported() bool { return c.imported }

// Mode returns the import mode.
func (c Classification) Mode() (Mode, bool) {
	return c.mode, c.imported
}

// Reason returns the blocking reason.
func (c Classification) Reason() (Reason, bool) {
	return c.reason, !c.imported && c.reason != 0
}

// IsReference reports whether c imports the declaration by reference.
func (c Classification) IsReference() bool {
	return c.imported && (c.mode == SharedReference || c.mode == ImmortalReference)
}

// String renders "imported(<mode>)" or "blocked(<reason>)".
func (c Classification) String() string {
	switch {
	case c.imported:
		return "imported(" + c.mode.String() + ")"
	case c.reason != 0:
		return "blocked(" + c.reason.String() + ")"
	default:
		return "unclassified"
	}
}

// Parse is the inverse of String.
func Parse(s string) (Classification, error) {
	s = strings.TrimSpace(s)
	tag, rest, ok := strings.Cut(s, "(")
	arg, closed := strings.CutSuffix(rest, ")")
	if !ok || !closed {
		return Classification{}, fmt.Errorf("%w: %q", ErrInvalidClassification, s)
	}
	switch tag {
	case "imported":
		for m, name := range modeNames {
			if name == arg {
				return Imported(m), nil
			}
		}
	case "blocked":
		for r, name := range reasonNames {
			if name == arg {
				return Blocked(r), nil
			}
		}
	}
	return Classification{}, fmt.Errorf("%w: %q", ErrInvalidClassification, s)
}

// Codec persists classifications for the analysis framework.
type Codec struct{}

// Serialize implements analysis.Codec.
func (Codec) Serialize(c Classification) string { return c.String() }

// Deserialize implements analysis.Codec.
func (Codec) Deserialize(s string) (Classification, error) { return Parse(s) }

// Equal implements analysis.Codec.
func (Codec) Equal(a, b Classification) bool { return a == b }
