// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders human-facing diagnostics: golden fixture diffs and
// per-pass summary tables.
package report

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/sourcegraph/go-diff/diff"
)

// Change replaces one line of a fixture. An empty New means the computed
// results have no entry for the line.
type Change struct {
	// Line is the 1-based line number in the fixture file.
	Line int
	Old  string
	New  string
}

// FixtureDiff renders changes against a fixture as a unified diff with one
// hunk per changed line.
//
// Outputs:
//
//	string - The diff, "a/<path>" versus "b/<path>". Empty without changes.
//	error - Non-nil if the diff cannot be printed.
func FixtureDiff(path string, changes []Change) (string, error) {
	if len(changes) == 0 {
		return "", nil
	}
	sorted := slices.Clone(changes)
	slices.SortFunc(sorted, func(a, b Change) int { return a.Line - b.Line })

	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
	}
	shift := int32(0)
	for _, c := range sorted {
		var body bytes.Buffer
		fmt.Fprintf(&body, "-%s\n", c.Old)
		h := &diff.Hunk{
			OrigStartLine: int32(c.Line),
			OrigLines:     1,
			NewStartLine:  int32(c.Line) + shift,
		}
		if c.New != "" {
			fmt.Fprintf(&body, "+%s\n", c.New)
			h.NewLines = 1
		} else {
			shift--
		}
		h.Body = body.Bytes()
		fd.Hunks = append(fd.Hunks, h)
	}

	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("report: print diff: %w", err)
	}
	return string(out), nil
}
