// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index resolves canonical signatures and type spellings to
// declarations.
//
// Every cross-reference made by the analysis passes (persisted results,
// golden fixtures, configured special cases) goes through an Index. Once
// built, lookups are pure: the memo tables it fills lazily only cache
// values that are fully determined by the immutable universe.
//
// # Canonicalization
//
// Several nodes can denote one declaration: forward declarations, reopened
// namespaces, and implicit instantiations repeated by the front end. All
// nodes sharing a canonical signature collapse onto the definition node with
// the smallest ordering key.
package index

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/order"
)

// DefaultTypeCacheSize bounds the memo of parsed type spellings.
const DefaultTypeCacheSize = 4096

var (
	// ErrUnresolved indicates a signature or spelling names no declaration.
	ErrUnresolved = errors.New("unresolved name")

	// ErrMalformedSpelling indicates a type spelling could not be parsed.
	ErrMalformedSpelling = errors.New("malformed type spelling")
)

// defaultBuiltins are the fundamental type spellings recognized by FindType.
var defaultBuiltins = []string{
	"void", "bool", "char", "signed char", "unsigned char", "wchar_t",
	"char8_t", "char16_t", "char32_t", "short", "unsigned short", "int",
	"unsigned int", "long", "unsigned long", "long long", "unsigned long long",
	"float", "double", "long double", "std::nullptr_t", "__int128",
	"unsigned __int128",
}

type options struct {
	typeCacheSize int
	builtins      []string
	logger        *slog.Logger
}

// Option configures an Index.
type Option func(*options)

// WithTypeCacheSize sets the number of parsed spellings kept in memory.
func WithTypeCacheSize(n int) Option {
	return func(o *options) { o.typeCacheSize = n }
}

// WithBuiltins adds builtin spellings beyond the defaults.
func WithBuiltins(names ...string) Option {
	return func(o *options) { o.builtins = append(o.builtins, names...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Index is the declaration lookup service of one run.
type Index struct {
	u      *decl.Universe
	order  *order.Orderer
	logger *slog.Logger

	bySignature map[string]decl.ID
	builtins    map[string]bool
	canonicalID []decl.ID

	mu        sync.Mutex
	canonical map[decl.ID]decl.ID

	types *lru.Cache[string, *decl.Type]
}

// New builds the Index for u.
//
// Description:
//
//	Computes the canonical signature of every node and elects one canonical
//	node per signature: a definition (not a forward declaration) with the
//	smallest ordering key.
//
// Inputs:
//
//	u - The universe. Must not be nil.
//	opts - Optional settings.
//
// Outputs:
//
//	*Index - The index.
//	error - Non-nil if u is nil or the type cache cannot be created.
func New(u *decl.Universe, opts ...Option) (*Index, error) {
	if u == nil {
		return nil, errors.New("index: universe must not be nil")
	}
	o := options{typeCacheSize: DefaultTypeCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cache, err := lru.New[string, *decl.Type](o.typeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("index: create type cache: %w", err)
	}

	x := &Index{
		u:           u,
		order:       order.New(u),
		logger:      o.logger,
		bySignature: make(map[string]decl.ID),
		builtins:    make(map[string]bool),
		canonical:   make(map[decl.ID]decl.ID),
		types:       cache,
	}
	for _, b := range defaultBuiltins {
		x.builtins[b] = true
	}
	for _, b := range o.builtins {
		x.builtins[b] = true
	}

	for _, id := range u.IDs() {
		def := u.Definition(id)
		if def != id {
			continue
		}
		sig := u.Signature(def)
		if cur, ok := x.bySignature[sig]; !ok || x.order.Less(def, cur) {
			x.bySignature[sig] = def
		}
	}

	x.canonicalID = make([]decl.ID, 0, len(x.bySignature))
	for _, id := range x.bySignature {
		x.canonicalID = append(x.canonicalID, id)
	}
	x.order.Sort(x.canonicalID)

	x.logger.Debug("declaration index built",
		slog.Int("nodes", u.Len()),
		slog.Int("canonical", len(x.canonicalID)),
	)
	return x, nil
}

// Universe returns the indexed universe.
func (x *Index) Universe() *decl.Universe { return x.u }

// Orderer returns the run's ordering service.
func (x *Index) Orderer() *order.Orderer { return x.order }

// Canonical maps any node to the canonical node of its declaration.
// Unknown ids are returned unchanged.
func (x *Index) Canonical(id decl.ID) decl.ID {
	x.mu.Lock()
	c, ok := x.canonical[id]
	x.mu.Unlock()
	if ok {
		return c
	}

	c = id
	if _, exists := x.u.Get(id); exists {
		if found, ok := x.bySignature[x.u.Signature(id)]; ok {
			c = found
		}
	}

	x.mu.Lock()
	x.canonical[id] = c
	x.mu.Unlock()
	return c
}

// Decl returns the canonical declaration node for id.
func (x *Index) Decl(id decl.ID) (*decl.Decl, bool) {
	return x.u.Get(x.Canonical(id))
}

// Signature returns the canonical signature of id.
func (x *Index) Signature(id decl.ID) string {
	return x.u.Signature(x.Canonical(id))
}

// CanonicalIDs returns every canonical declaration in total order.
func (x *Index) CanonicalIDs() []decl.ID {
	return slices.Clone(x.canonicalID)
}

// FindDeclaration resolves a canonical signature.
func (x *Index) FindDeclaration(signature string) (decl.ID, bool) {
	id, ok := x.bySignature[strings.TrimSpace(signature)]
	return id, ok
}

// FindType resolves a canonical type spelling such as
// "const util::Vector<app::Node *> &".
//
// Description:
//
//	Parses qualifiers, pointers, references, arrays and function types from
//	the outside in. The remaining core must be a builtin spelling or a
//	declaration signature. Results are memoized.
//
// Outputs:
//
//	*decl.Type - Shared, read-only type.
//	error - ErrMalformedSpelling or ErrUnresolved.
func (x *Index) FindType(spelling string) (*decl.Type, error) {
	spelling = strings.TrimSpace(spelling)
	if t, ok := x.types.Get(spelling); ok {
		return t, nil
	}
	t, err := x.parseType(spelling)
	if err != nil {
		return nil, err
	}
	x.types.Add(spelling, t)
	return t, nil
}

// Spell returns the canonical spelling of t.
func (x *Index) Spell(t *decl.Type) string {
	return x.u.Spell(t)
}

// CanonicalType desugars t and replaces every named declaration by its
// canonical node. The input is not modified.
func (x *Index) CanonicalType(t *decl.Type) *decl.Type {
	if t == nil {
		return nil
	}
	return x.canonicalize(decl.Desugar(t))
}

func (x *Index) canonicalize(t *decl.Type) *decl.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case decl.TypeNamed:
		c := *t
		c.Decl = x.Canonical(t.Decl)
		return &c
	case decl.TypePointer, decl.TypeReference, decl.TypeArray:
		c := *t
		c.Elem = x.canonicalize(t.Elem)
		return &c
	case decl.TypeFunction:
		c := *t
		c.Result = x.canonicalize(t.Result)
		c.Params = make([]*decl.Type, len(t.Params))
		for i, p := range t.Params {
			c.Params[i] = x.canonicalize(p)
		}
		return &c
	default:
		return t
	}
}
