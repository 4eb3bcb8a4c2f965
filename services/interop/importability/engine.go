// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package importability decides whether and how each declaration can be
// projected into the binding language.
//
// The decision is an ordered waterfall; the first rule that answers wins:
//
//	 1. configured overrides
//	 2. header visibility
//	 3. template shells
//	 4. template arguments
//	 5. enclosing scope
//	 6. access
//	 7. shared reference (public inheritance from a refcounted root)
//	 8. plain value
//	 9. move-only value
//	10. immortal reference (held by a singleton holder)
//	11. no accessible move, then no accessible destructor
//
// Rules 4 and 5 recurse into other declarations. Each declaration is
// classified at most once; asking for a declaration whose classification is
// still in progress is an invariant violation.
package importability

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// PassName identifies the pass in caches and fixtures.
const PassName = "import"

var verdictTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "interop_import_classifications_total",
	Help: "Import classifications computed, by result",
}, []string{"result"})

// Options configures the special cases of the engine. Every name is a
// canonical signature resolved through the index.
type Options struct {
	// Overrides pins the classification of specific declarations.
	Overrides map[string]Classification

	// PublicHeaders lists gitignore-style patterns of public headers.
	// Empty means every header is public.
	PublicHeaders []string

	// RefcountedRoots are the intrusively reference-counted base types.
	RefcountedRoots []string

	// SingletonHolders are templates whose sole argument is immortal.
	SingletonHolders []string

	// TemplateTemplateAllowed lists templates whose instantiations may
	// take template template arguments.
	TemplateTemplateAllowed []string

	// LenientNames downgrades unresolvable configured names to warnings.
	LenientNames bool

	Logger *slog.Logger
}

// Engine is the import classification pass.
//
// Thread Safety: Not safe for concurrent use. One Engine serves one run.
type Engine struct {
	idx    *index.Index
	logger *slog.Logger

	overrides map[decl.ID]Classification
	headers   *ignore.GitIgnore
	roots     []decl.ID
	holders   []decl.ID
	ttAllowed map[decl.ID]bool

	inProgress map[decl.ID]bool
	singletons map[decl.ID]bool
}

// NewEngine resolves the configured names and returns the engine.
//
// Outputs:
//
//	*Engine - The pass.
//	error - *analysis.InvariantError naming the first configured signature
//	        that does not resolve, unless LenientNames is set.
func NewEngine(idx *index.Index, opts Options) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("importability: index must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		idx:        idx,
		logger:     logger.With(slog.String("pass", PassName)),
		overrides:  make(map[decl.ID]Classification, len(opts.Overrides)),
		ttAllowed:  make(map[decl.ID]bool),
		inProgress: make(map[decl.ID]bool),
	}
	if len(opts.PublicHeaders) > 0 {
		e.headers = ignore.CompileIgnoreLines(opts.PublicHeaders...)
	}

	res := analysis.Resolver{Index: idx, Pass: PassName, Lenient: opts.LenientNames, Logger: e.logger}
	for _, sig := range slices.Sorted(maps.Keys(opts.Overrides)) {
		c := opts.Overrides[sig]
		if c.IsZero() {
			return nil, analysis.Invariantf(PassName, 0, sig, "override has no classification")
		}
		if id, ok, err := res.Resolve(sig, "import override"); err != nil {
			return nil, err
		} else if ok {
			e.overrides[id] = c
		}
	}
	var err error
	if e.roots, err = res.ResolveAll(opts.RefcountedRoots, "refcounted root"); err != nil {
		return nil, err
	}
	if e.holders, err = res.ResolveAll(opts.SingletonHolders, "singleton holder"); err != nil {
		return nil, err
	}
	allowed, err := res.ResolveAll(opts.TemplateTemplateAllowed, "template template whitelist entry")
	if err != nil {
		return nil, err
	}
	for _, id := range allowed {
		e.ttAllowed[id] = true
	}
	return e, nil
}

// =============================================================================
// analysis.Pass
// =============================================================================

// Name implements analysis.Pass.
func (e *Engine) Name() string { return PassName }

// VisitAll implements analysis.Pass. Third-party declarations are
// classified too, since codebase types depend on them.
func (e *Engine) VisitAll() bool { return true }

// Handlers implements analysis.Pass.
func (e *Engine) Handlers() analysis.Handlers[Classification] {
	visit := func(ctx context.Context, res *analysis.Result[Classification], d *decl.Decl) error {
		_, err := e.Classify(ctx, res, d.ID)
		return err
	}
	return analysis.Handlers[Classification]{
		decl.KindNamespace: visit,
		decl.KindRecord:    visit,
		decl.KindEnum:      visit,
		decl.KindFunction:  visit,
		decl.KindTemplate:  visit,
		decl.KindAlias:     visit,
	}
}

// Codec implements analysis.Pass.
func (e *Engine) Codec() analysis.Codec[Classification] { return Codec{} }

// =============================================================================
// Classification
// =============================================================================

// Classify returns the classification of id, computing and recording it in
// res when needed.
//
// Description:
//
//	Canonicalizes id, returns the memoized value if one exists, and
//	otherwise evaluates the waterfall. Recursion into enclosing scopes and
//	template arguments goes through Classify as well.
//
// Outputs:
//
//	Classification - The final classification.
//	error - *analysis.InvariantError when the declaration is unknown, is
//	        already being classified, or no rule applies to its kind.
func (e *Engine) Classify(ctx context.Context, res *analysis.Result[Classification], id decl.ID) (Classification, error) {
	id = e.idx.Canonical(id)
	if c := res.Find(id); !c.AtEnd() {
		return c.Value(), nil
	}
	if e.inProgress[id] {
		return Classification{}, e.invariant(id, "classification requested while already in progress")
	}
	d, ok := e.idx.Decl(id)
	if !ok {
		return Classification{}, e.invariant(id, "unknown declaration")
	}

	e.inProgress[id] = true
	c, err := e.waterfall(ctx, res, d)
	delete(e.inProgress, id)
	if err != nil {
		return Classification{}, err
	}

	res.InsertOrAssign(id, c, analysis.Final)
	verdictTotal.WithLabelValues(c.String()).Inc()
	e.logger.Debug("classified",
		slog.String("decl", e.idx.Signature(id)),
		slog.String("result", c.String()),
	)
	return c, nil
}

func (e *Engine) waterfall(ctx context.Context, res *analysis.Result[Classification], d *decl.Decl) (Classification, error) {
	if c, ok := e.overrides[d.ID]; ok {
		return c, nil
	}

	if !e.headersVisible(d) {
		return Blocked(NonPublicHeader), nil
	}

	if d.IsTemplateShell() {
		return Blocked(TemplatedRecordShell), nil
	}

	if d.IsInstantiation() {
		ok, err := e.argumentsAllowed(ctx, res, d)
		if err != nil {
			return Classification{}, err
		}
		if !ok {
			return Blocked(BadTemplateArgument), nil
		}
	}

	if d.Parent != 0 {
		ok, err := e.scopeImportable(ctx, res, d.Parent)
		if err != nil {
			return Classification{}, err
		}
		if !ok {
			return Blocked(EnclosingScopeBlocked), nil
		}
	}

	if !d.Access.IsPublic() {
		return Blocked(AccessDenied), nil
	}

	switch d.Kind {
	case decl.KindNamespace, decl.KindFunction, decl.KindEnum:
		return Imported(Value), nil
	case decl.KindAlias:
		return e.classifyAlias(ctx, res, d)
	case decl.KindRecord:
		return e.classifyRecord(d), nil
	default:
		return Classification{}, e.invariant(d.ID, fmt.Sprintf("no import rule applies to a %s", d.Kind))
	}
}

// argumentsAllowed checks every instantiation argument. Type arguments are
// classified first; their outcome does not matter here.
func (e *Engine) argumentsAllowed(ctx context.Context, res *analysis.Result[Classification], d *decl.Decl) (bool, error) {
	for _, arg := range d.Args {
		switch arg.Kind {
		case decl.ArgType:
			for _, id := range decl.NamedDecls(nil, arg.Type) {
				if _, err := e.Classify(ctx, res, id); err != nil {
					return false, err
				}
			}
		case decl.ArgTemplate:
			if !e.ttAllowed[e.idx.Canonical(d.Template)] {
				return false, nil
			}
		default:
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) scopeImportable(ctx context.Context, res *analysis.Result[Classification], parent decl.ID) (bool, error) {
	p, ok := e.idx.Decl(parent)
	if !ok {
		return false, e.invariant(parent, "unknown enclosing declaration")
	}
	if p.Kind != decl.KindRecord && p.Kind != decl.KindNamespace {
		return false, nil
	}
	c, err := e.Classify(ctx, res, p.ID)
	if err != nil {
		return false, err
	}
	return c.IsImported(), nil
}

// classifyAlias gives an alias the classification of the named type it
// stands for. Aliases of unnamed types (pointers, builtins) are values.
func (e *Engine) classifyAlias(ctx context.Context, res *analysis.Result[Classification], d *decl.Decl) (Classification, error) {
	target := decl.Desugar(d.Type)
	if target == nil || target.Kind != decl.TypeNamed {
		return Imported(Value), nil
	}
	return e.Classify(ctx, res, target.Decl)
}

func (e *Engine) classifyRecord(d *decl.Decl) Classification {
	t := d.Traits
	switch {
	case e.sharedReference(d):
		return Imported(SharedReference)
	case t.Copy && t.Dtor:
		return Imported(Value)
	case t.Move && t.Dtor:
		return Imported(NonCopyableValue)
	case !t.Copy && !t.Move && e.singletonHeld(d.ID):
		return Imported(ImmortalReference)
	case !t.Move:
		return Blocked(NoAccessibleMove)
	default:
		return Blocked(NoAccessibleDestructor)
	}
}

func (e *Engine) invariant(id decl.ID, reason string) *analysis.InvariantError {
	sig := ""
	if _, ok := e.idx.Universe().Get(id); ok {
		sig = e.idx.Signature(id)
	}
	return analysis.Invariantf(PassName, id, sig, "%s", reason)
}
