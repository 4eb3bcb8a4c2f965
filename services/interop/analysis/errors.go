// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis drives cacheable passes over a declaration universe.
//
// A pass computes one value per canonical declaration. The Runner traverses
// the universe once, dispatching each declaration to the pass's handler for
// its kind, then lets the pass complete and finalize its results, and
// persists them. Results are validated against golden fixtures with Test.
//
// # Error Model
//
// Negative classifications are ordinary values. Anything that shows the
// analysis model is wrong (a declaration no rule handles, an unresolvable
// hard-coded name, a fixture mismatch, an unparsable value) is an
// *InvariantError or *FixtureError; both satisfy errors.Is(err, ErrInvariant)
// and must stop the run.
//
// # Thread Safety
//
// A Result is written only by the pass that owns it, on one goroutine.
// After Run returns, the Result is sealed and safe for concurrent reads.
package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/decl"
)

var (
	// ErrInvariant marks every fatal analysis failure.
	ErrInvariant = errors.New("analysis invariant violated")

	// ErrNilContext indicates a nil context was passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilPass indicates a nil pass was passed.
	ErrNilPass = errors.New("pass must not be nil")

	// ErrMalformedLine indicates a result or fixture line is not "<sig>; <value>;".
	ErrMalformedLine = errors.New("malformed result line")

	// ErrUnresolvedSignature indicates a line names no declaration.
	ErrUnresolvedSignature = errors.New("signature does not resolve")

	// ErrMismatch indicates computed results differ from a fixture.
	ErrMismatch = errors.New("results differ from golden fixture")

	// ErrNotFinal indicates an entry was still provisional after finalize.
	ErrNotFinal = errors.New("result not finalized")
)

// InvariantError reports a fatal inconsistency found while running a pass.
type InvariantError struct {
	// Pass is the pass name.
	Pass string

	// Decl is the offending declaration, zero if none.
	Decl decl.ID

	// Signature is the canonical signature of Decl, when known.
	Signature string

	// Reason describes the violation.
	Reason string

	// Err is an optional underlying cause.
	Err error
}

// Invariantf builds an InvariantError for d.
func Invariantf(pass string, id decl.ID, signature, format string, args ...any) *InvariantError {
	return &InvariantError{
		Pass:      pass,
		Decl:      id,
		Signature: signature,
		Reason:    fmt.Sprintf(format, args...),
	}
}

func (e *InvariantError) Error() string {
	var b strings.Builder
	b.WriteString("pass ")
	b.WriteString(e.Pass)
	if e.Signature != "" {
		fmt.Fprintf(&b, ": %s", e.Signature)
	} else if e.Decl != 0 {
		fmt.Fprintf(&b, ": decl #%d", e.Decl)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InvariantError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvariant, e.Err}
	}
	return []error{ErrInvariant}
}

// Mismatch is one fixture line whose expectation was not met.
type Mismatch struct {
	Line      int
	Signature string
	Expected  string
	Actual    string

	// Missing is set when no final value was computed for Signature.
	Missing bool
}

// FixtureError reports a failed golden fixture.
type FixtureError struct {
	Pass string
	Path string

	// Line is the first offending line for parse and resolution failures.
	Line int

	// Mismatches lists every differing line when Err is ErrMismatch.
	Mismatches []Mismatch

	// Diff is a unified diff of expected versus actual lines.
	Diff string

	Err error
}

func (e *FixtureError) Error() string {
	if len(e.Mismatches) > 0 {
		return fmt.Sprintf("pass %s: fixture %s: %d mismatching lines: %v", e.Pass, e.Path, len(e.Mismatches), e.Err)
	}
	return fmt.Sprintf("pass %s: fixture %s:%d: %v", e.Pass, e.Path, e.Line, e.Err)
}

func (e *FixtureError) Unwrap() []error {
	return []error{ErrInvariant, e.Err}
}
