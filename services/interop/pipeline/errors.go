// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode is returned when a nil node is added.
	ErrNilNode = errors.New("node must not be nil")

	// ErrDuplicateNode is returned when two nodes share a name.
	ErrDuplicateNode = errors.New("duplicate node name")

	// ErrNodeNotFound is returned when a dependency names no node.
	ErrNodeNotFound = errors.New("dependency not found")

	// ErrCycleDetected is returned when dependencies form a cycle.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// NodeError wraps an error with the node that caused it.
type NodeError struct {
	NodeName string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeName, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError creates a NodeError.
func NewNodeError(nodeName string, err error) *NodeError {
	return &NodeError{NodeName: nodeName, Err: err}
}

// CycleError names the nodes of a dependency cycle, first node repeated
// at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}
