// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package decl models the declaration graph handed over by the front end.
//
// # Ownership
//
// A Universe is created once per run, from a loaded document or a Builder,
// and is never mutated afterwards. Every *Decl and *Type reachable from it
// is shared and must be treated as read-only.
//
// # Thread Safety
//
// Universe lookups are pure apart from the signature memo, which is guarded
// by a mutex. Concurrent readers are safe.
package decl

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateID indicates two declarations share an identifier.
	ErrDuplicateID = errors.New("duplicate declaration id")

	// ErrInvalidID indicates the zero identifier was used for a declaration.
	ErrInvalidID = errors.New("declaration id must be non-zero")

	// ErrDanglingReference indicates a declaration refers to an unknown id.
	ErrDanglingReference = errors.New("reference to unknown declaration")

	// ErrDefinitionCycle indicates forward-declaration links form a loop.
	ErrDefinitionCycle = errors.New("definition links form a cycle")

	// ErrScopeCycle indicates parent links form a loop.
	ErrScopeCycle = errors.New("enclosing scopes form a cycle")

	// ErrUnknownKind indicates an unrecognized declaration kind name.
	ErrUnknownKind = errors.New("unknown declaration kind")

	// ErrUnknownAccess indicates an unrecognized access level name.
	ErrUnknownAccess = errors.New("unknown access level")

	// ErrInvalidType indicates a malformed type description.
	ErrInvalidType = errors.New("invalid type description")
)

// LoadError reports a problem with one declaration record.
type LoadError struct {
	// ID is the offending declaration, zero when not yet known.
	ID ID

	// Field names the record field at fault, if any.
	Field string

	Err error
}

func (e *LoadError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("declaration %d: %s: %v", e.ID, e.Field, e.Err)
	}
	return fmt.Sprintf("declaration %d: %v", e.ID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
