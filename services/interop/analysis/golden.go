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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/interopscan/services/interop/report"
)

// FixtureExt is the extension of golden fixture files.
const FixtureExt = ".golden"

// FixtureLine is one expectation of a golden fixture.
type FixtureLine struct {
	Line      int
	Signature string
	Value     string
}

// Fixture is a parsed golden fixture. Names are not resolved until Test.
type Fixture struct {
	Path  string
	Lines []FixtureLine
}

// ParseFixture reads fixture lines from rd. Blank lines and lines starting
// with '#' are ignored.
func ParseFixture(path string, rd io.Reader) (*Fixture, error) {
	fx := &Fixture{Path: path}
	sc := bufio.NewScanner(rd)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		sig, value, err := ParseLine(trimmed)
		if err != nil {
			return nil, &FixtureError{Path: path, Line: lineNo, Err: err}
		}
		fx.Lines = append(fx.Lines, FixtureLine{Line: lineNo, Signature: sig, Value: value})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	return fx, nil
}

// ReadFixture parses the fixture file at path.
func ReadFixture(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return ParseFixture(path, f)
}

// ReadFixtures parses several fixture files concurrently. Parsing is pure
// I/O; nothing is resolved against the universe.
func ReadFixtures(ctx context.Context, paths []string) ([]*Fixture, error) {
	out := make([]*Fixture, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fx, err := ReadFixture(p)
			if err != nil {
				return err
			}
			out[i] = fx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Test checks res against a golden fixture.
//
// Description:
//
//	Resolves each fixture signature through the index and compares the
//	expected value with the computed final value using the pass's
//	equality. An unresolvable signature or unparsable value aborts at once.
//	Value mismatches and missing entries are collected and reported
//	together, with a unified diff, as one *FixtureError.
//
// Inputs:
//
//	ctx - Context for tracing.
//	r - The runner that produced res.
//	p - The pass.
//	res - Sealed results of p.
//	fx - The fixture.
//
// Outputs:
//
//	error - Nil when every line matches, otherwise a *FixtureError.
func Test[T any](ctx context.Context, r *Runner, p Pass[T], res *Result[T], fx *Fixture) error {
	if ctx == nil {
		return ErrNilContext
	}
	if p == nil {
		return ErrNilPass
	}
	name := p.Name()
	_, span := tracer.Start(ctx, "analysis.Test",
		trace.WithAttributes(
			attribute.String("pass", name),
			attribute.String("fixture", fx.Path),
			attribute.Int("lines", len(fx.Lines)),
		))
	defer span.End()

	codec := p.Codec()
	var mismatches []Mismatch
	for _, fl := range fx.Lines {
		id, ok := r.idx.FindDeclaration(fl.Signature)
		if !ok {
			err := &FixtureError{
				Pass: name, Path: fx.Path, Line: fl.Line,
				Err: fmt.Errorf("%w: %s", ErrUnresolvedSignature, fl.Signature),
			}
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		want, err := codec.Deserialize(fl.Value)
		if err != nil {
			ferr := &FixtureError{
				Pass: name, Path: fx.Path, Line: fl.Line,
				Err: fmt.Errorf("%w: %s: %v", ErrMalformedLine, fl.Signature, err),
			}
			span.SetStatus(codes.Error, ferr.Error())
			return ferr
		}

		got, ok := res.Get(id)
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{Line: fl.Line, Signature: fl.Signature, Expected: fl.Value, Missing: true})
		case !codec.Equal(want, got):
			mismatches = append(mismatches, Mismatch{
				Line: fl.Line, Signature: fl.Signature,
				Expected: fl.Value, Actual: codec.Serialize(got),
			})
		}
	}

	if len(mismatches) == 0 {
		r.logger.Info("golden fixture matched",
			slog.String("pass", name),
			slog.String("fixture", fx.Path),
			slog.Int("lines", len(fx.Lines)),
		)
		return nil
	}

	changes := make([]report.Change, 0, len(mismatches))
	for _, m := range mismatches {
		r.logger.Error("golden mismatch",
			slog.String("pass", name),
			slog.String("fixture", fx.Path),
			slog.Int("line", m.Line),
			slog.String("signature", m.Signature),
			slog.String("expected", m.Expected),
			slog.String("actual", m.Actual),
		)
		c := report.Change{Line: m.Line, Old: FormatLine(m.Signature, m.Expected)}
		if !m.Missing {
			c.New = FormatLine(m.Signature, m.Actual)
		}
		changes = append(changes, c)
	}
	diff, err := report.FixtureDiff(fx.Path, changes)
	if err != nil {
		r.logger.Warn("could not render fixture diff", slog.String("error", err.Error()))
	}

	ferr := &FixtureError{
		Pass:       name,
		Path:       fx.Path,
		Line:       mismatches[0].Line,
		Mismatches: mismatches,
		Diff:       diff,
		Err:        ErrMismatch,
	}
	span.SetStatus(codes.Error, ferr.Error())
	return ferr
}
