// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Palette shared with the rest of the Aleutian CLIs.
var (
	colorTealBright = lipgloss.Color("#2CD7C7")
	colorTealDeep   = lipgloss.Color("#16858E")
	colorWarning    = lipgloss.Color("#F4D03F")
	colorError      = lipgloss.Color("#E74C3C")
)

// Summary counts result tags per pass.
type Summary struct {
	rows map[string]map[string]int
}

// NewSummary returns an empty summary.
func NewSummary() *Summary {
	return &Summary{rows: make(map[string]map[string]int)}
}

// Add counts one result of pass with the given tag.
func (s *Summary) Add(pass, tag string) {
	m, ok := s.rows[pass]
	if !ok {
		m = make(map[string]int)
		s.rows[pass] = m
	}
	m[tag]++
}

// Count returns the number of results of pass with tag.
func (s *Summary) Count(pass, tag string) int {
	return s.rows[pass][tag]
}

// Rows returns (pass, tag, count) rows sorted by pass then tag.
func (s *Summary) Rows() [][]string {
	var rows [][]string
	for pass, tags := range s.rows {
		for tag, n := range tags {
			rows = append(rows, []string{pass, tag, strconv.Itoa(n)})
		}
	}
	slices.SortFunc(rows, func(a, b []string) int {
		if c := strings.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return strings.Compare(a[1], b[1])
	})
	return rows
}

// Render draws the summary as a table. Colors are used only when color is
// true.
func (s *Summary) Render(color bool) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("PASS", "RESULT", "COUNT").
		Rows(s.Rows()...)

	if color {
		rows := s.Rows()
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(colorTealDeep)).
			StyleFunc(func(row, col int) lipgloss.Style {
				base := lipgloss.NewStyle().Padding(0, 1)
				if row == table.HeaderRow {
					return base.Bold(true).Foreground(colorTealBright)
				}
				if col == 1 && row >= 0 && row < len(rows) {
					return base.Foreground(tagColor(rows[row][1]))
				}
				return base
			})
	} else {
		t = t.StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	}
	return t.Render()
}

// Write renders the summary to w, with colors when w is a terminal.
func (s *Summary) Write(w io.Writer) error {
	_, err := io.WriteString(w, s.Render(IsTerminal(w))+"\n")
	return err
}

// IsTerminal reports whether w is a terminal file.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func tagColor(tag string) lipgloss.Color {
	switch {
	case strings.HasPrefix(tag, "blocked"), strings.HasPrefix(tag, "unsafe"):
		return colorError
	case strings.HasPrefix(tag, "unknown"), strings.HasPrefix(tag, "special"):
		return colorWarning
	default:
		return colorTealBright
	}
}
