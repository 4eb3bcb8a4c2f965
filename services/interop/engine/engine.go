// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs the interop analysis end to end: import
// classification, then dependency edges, then concurrency safety, each
// pass reading the sealed results of the passes before it.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/config"
	"github.com/AleutianAI/interopscan/services/interop/depgraph"
	"github.com/AleutianAI/interopscan/services/interop/importability"
	"github.com/AleutianAI/interopscan/services/interop/index"
	"github.com/AleutianAI/interopscan/services/interop/pipeline"
	"github.com/AleutianAI/interopscan/services/interop/report"
	"github.com/AleutianAI/interopscan/services/interop/safety"
	"github.com/AleutianAI/interopscan/services/interop/storage"
	"github.com/AleutianAI/interopscan/services/interop/storage/kv"
)

// PassNames lists the passes in execution order.
var PassNames = []string{importability.PassName, depgraph.PassName, safety.PassName}

// Options configures one analysis.
type Options struct {
	// SpecialCases configures the hard-coded names of every pass.
	SpecialCases config.SpecialCases

	// Store caches pass results. Nil disables caching.
	Store storage.Store

	// Fingerprint identifies the inputs; cached results carrying another
	// fingerprint are recomputed.
	Fingerprint string

	Logger *slog.Logger
}

// Results holds the sealed result of every pass.
type Results struct {
	RunID   string
	Index   *index.Index
	Imports *analysis.Result[importability.Classification]
	Deps    *analysis.Result[depgraph.Edges]
	Safety  *analysis.Result[safety.Safety]

	runner     *analysis.Runner
	importPass *importability.Engine
	depsPass   *depgraph.Builder
	safetyPass *safety.Classifier
}

// Analyze runs every pass over idx.
//
// Outputs:
//
//	*Results - Every pass result, sealed.
//	error - The first failure. Invariant violations wrap
//	        analysis.ErrInvariant and leave no partial results behind.
func Analyze(ctx context.Context, idx *index.Index, opts Options) (*Results, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runnerOpts := []analysis.RunnerOption{
		analysis.WithLogger(logger),
		analysis.WithFingerprint(opts.Fingerprint),
	}
	if opts.Store != nil {
		runnerOpts = append(runnerOpts, analysis.WithStore(opts.Store))
	}
	runner, err := analysis.NewRunner(idx, runnerOpts...)
	if err != nil {
		return nil, err
	}
	importOpts, err := ImportOptions(opts.SpecialCases, logger)
	if err != nil {
		return nil, err
	}

	r := &Results{Index: idx, runner: runner}
	sc := opts.SpecialCases

	dag, err := pipeline.NewBuilder("interop").
		AddNode(pipeline.NewFuncNode(importability.PassName, nil, func(ctx context.Context) error {
			p, err := importability.NewEngine(idx, importOpts)
			if err != nil {
				return err
			}
			r.importPass = p
			r.Imports, err = analysis.Run[importability.Classification](ctx, runner, p)
			return err
		})).
		AddNode(pipeline.NewFuncNode(depgraph.PassName, []string{importability.PassName}, func(ctx context.Context) error {
			p, err := depgraph.NewBuilder(idx, r.Imports, DepsOptions(sc, logger))
			if err != nil {
				return err
			}
			r.depsPass = p
			r.Deps, err = analysis.Run[depgraph.Edges](ctx, runner, p)
			return err
		})).
		AddNode(pipeline.NewFuncNode(safety.PassName, []string{importability.PassName, depgraph.PassName}, func(ctx context.Context) error {
			p, err := safety.NewClassifier(idx, r.Imports, r.Deps, logger)
			if err != nil {
				return err
			}
			r.safetyPass = p
			r.Safety, err = analysis.Run[safety.Safety](ctx, runner, p)
			return err
		})).
		Build()
	if err != nil {
		return nil, err
	}

	exec, err := pipeline.NewExecutor(dag, logger)
	if err != nil {
		return nil, err
	}
	res, err := exec.Run(ctx)
	if err != nil {
		return nil, err
	}
	r.RunID = res.RunID
	return r, nil
}

// ImportOptions converts configured special cases for the import pass.
func ImportOptions(sc config.SpecialCases, logger *slog.Logger) (importability.Options, error) {
	overrides := make(map[string]importability.Classification, len(sc.ImportOverrides))
	for sig, text := range sc.ImportOverrides {
		c, err := importability.Parse(text)
		if err != nil {
			return importability.Options{}, fmt.Errorf("%w: import override for %s: %w", config.ErrInvalidConfig, sig, err)
		}
		overrides[sig] = c
	}
	return importability.Options{
		Overrides:               overrides,
		PublicHeaders:           sc.PublicHeaders,
		RefcountedRoots:         sc.RefcountedRoots,
		SingletonHolders:        sc.SingletonHolders,
		TemplateTemplateAllowed: sc.TemplateTemplateAllowed,
		LenientNames:            sc.LenientNames,
		Logger:                  logger,
	}, nil
}

// DepsOptions converts configured special cases for the dependency pass.
func DepsOptions(sc config.SpecialCases, logger *slog.Logger) depgraph.Options {
	families := make([]depgraph.Family, len(sc.ContainerFamilies))
	for i, f := range sc.ContainerFamilies {
		families[i] = depgraph.Family{Template: f.Template, Elements: f.Elements}
	}
	return depgraph.Options{
		SafeTypes:    sc.SafeTypes,
		Families:     families,
		LenientNames: sc.LenientNames,
		Logger:       logger,
	}
}

// OpenStore opens the cache backend selected by cfg. It returns nil for
// the "none" backend.
func OpenStore(cfg config.CacheConfig, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Backend {
	case "none", "":
		return nil, nil
	case "file":
		s, err := storage.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "badger":
		kvCfg := kv.DefaultConfig(cfg.Dir)
		kvCfg.Logger = logger
		s, err := storage.OpenBadgerStore(kvCfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: cache backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}

// =============================================================================
// Output
// =============================================================================

// Lines renders the result lines of the named pass.
func (r *Results) Lines(pass string) ([]string, error) {
	switch pass {
	case importability.PassName:
		return analysis.Encode(r.Imports, r.importPass.Codec()), nil
	case depgraph.PassName:
		return analysis.Encode(r.Deps, r.depsPass.Codec()), nil
	case safety.PassName:
		return analysis.Encode(r.Safety, r.safetyPass.Codec()), nil
	default:
		return nil, fmt.Errorf("unknown pass %q", pass)
	}
}

// Summary counts result tags per pass.
func (r *Results) Summary() *report.Summary {
	s := report.NewSummary()
	for _, c := range r.Imports.Data() {
		s.Add(importability.PassName, c.String())
	}
	for _, es := range r.Deps.Data() {
		s.Add(depgraph.PassName, edgesTag(es))
	}
	for _, v := range r.Safety.Data() {
		s.Add(safety.PassName, v.Verdict.String())
	}
	return s
}

func edgesTag(es depgraph.Edges) string {
	for _, k := range []depgraph.EdgeKind{depgraph.SpecialAvailable, depgraph.SpecialImportedAsReference, depgraph.SpecialConditional} {
		if es.Has(k) {
			return k.String()
		}
	}
	if len(es) == 0 {
		return "leaf"
	}
	return "generic"
}

// Verify checks every fixture against the result of the pass it is named
// after ("<pass>.golden"). The first failing fixture stops verification.
func (r *Results) Verify(ctx context.Context, fixtures []*analysis.Fixture) error {
	for _, fx := range fixtures {
		var err error
		switch pass := FixturePass(fx.Path); pass {
		case importability.PassName:
			err = analysis.Test[importability.Classification](ctx, r.runner, r.importPass, r.Imports, fx)
		case depgraph.PassName:
			err = analysis.Test[depgraph.Edges](ctx, r.runner, r.depsPass, r.Deps, fx)
		case safety.PassName:
			err = analysis.Test[safety.Safety](ctx, r.runner, r.safetyPass, r.Safety, fx)
		default:
			err = fmt.Errorf("fixture %s: unknown pass %q", fx.Path, pass)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// FixturePass returns the pass a fixture file belongs to.
func FixturePass(path string) string {
	return strings.TrimSuffix(filepath.Base(path), analysis.FixtureExt)
}

// Explanation describes every result for one declaration.
type Explanation struct {
	Signature string
	Import    string
	Edges     []string
	Safety    string
	Blocking  []string
}

// Explain gathers the results for the declaration with signature sig.
func (r *Results) Explain(sig string) (*Explanation, error) {
	id, ok := r.Index.FindDeclaration(sig)
	if !ok {
		return nil, fmt.Errorf("%w: %s", index.ErrUnresolved, sig)
	}
	ex := &Explanation{Signature: r.Index.Signature(id), Import: "none", Safety: "none"}
	if c, ok := r.Imports.Get(id); ok {
		ex.Import = c.String()
	}
	if es, ok := r.Deps.Get(id); ok {
		codec := depgraph.NewCodec(r.Index)
		for _, e := range es {
			ex.Edges = append(ex.Edges, codec.FormatEdge(e))
		}
	}
	if s, ok := r.Safety.Get(id); ok {
		ex.Safety = s.Verdict.String()
		codec := safety.NewCodec(r.Index)
		for _, b := range s.Blocking {
			ex.Blocking = append(ex.Blocking, codec.FormatBlocking(b))
		}
	}
	return ex, nil
}
