// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/index"
)

// FieldSeparator joins the parts of composite values. Signatures contain
// single commas, so a doubled comma is used.
const FieldSeparator = ",, "

// FormatLine renders one result line: "<signature>; <value>;".
func FormatLine(signature, value string) string {
	return signature + "; " + value + ";"
}

// ParseLine splits a result line at the first "; ".
func ParseLine(line string) (signature, value string, err error) {
	line = strings.TrimRight(line, " \t\r")
	body, ok := strings.CutSuffix(line, ";")
	if !ok {
		return "", "", fmt.Errorf("%w: missing trailing ';' in %q", ErrMalformedLine, line)
	}
	signature, value, ok = strings.Cut(body, "; ")
	if !ok || strings.TrimSpace(signature) == "" {
		return "", "", fmt.Errorf("%w: missing '; ' separator in %q", ErrMalformedLine, line)
	}
	return strings.TrimSpace(signature), value, nil
}

// JoinFields joins composite value parts.
func JoinFields(fields []string) string {
	return strings.Join(fields, FieldSeparator)
}

// SplitFields is the inverse of JoinFields. The empty string has no fields.
func SplitFields(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, FieldSeparator)
}

// Encode renders every final entry of res as result lines in total order.
func Encode[T any](res *Result[T], codec Codec[T]) []string {
	ids := res.IDs()
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		v, ok := res.Get(id)
		if !ok {
			continue
		}
		lines = append(lines, FormatLine(res.idx.Signature(id), codec.Serialize(v)))
	}
	return lines
}

// Decode fills res with final values parsed from result lines.
func Decode[T any](res *Result[T], codec Codec[T], lines []string) error {
	return decodeInto(res.idx, lines, func(lineNo int, sig, value string) error {
		id, _ := res.idx.FindDeclaration(sig)
		v, err := codec.Deserialize(value)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", lineNo, sig, err)
		}
		res.InsertOrAssign(id, v, Final)
		return nil
	})
}

// decodeInto parses lines, skipping blanks and '#' comments, and calls fn for
// every line whose signature resolves.
func decodeInto(idx *index.Index, lines []string, fn func(lineNo int, sig, value string) error) error {
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		sig, value, err := ParseLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if _, ok := idx.FindDeclaration(sig); !ok {
			return fmt.Errorf("line %d: %w: %s", i+1, ErrUnresolvedSignature, sig)
		}
		if err := fn(i+1, sig, value); err != nil {
			return err
		}
	}
	return nil
}
