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
	"log/slog"

	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/index"
)

// Resolver turns the hard-coded signatures a pass is configured with into
// declarations. A name that does not resolve means the pass's model of the
// codebase is stale, so it is an invariant violation unless Lenient is set.
type Resolver struct {
	Index   *index.Index
	Pass    string
	Lenient bool
	Logger  *slog.Logger
}

// Resolve looks up one signature. what names the setting for diagnostics.
func (r Resolver) Resolve(sig, what string) (decl.ID, bool, error) {
	if id, ok := r.Index.FindDeclaration(sig); ok {
		return id, true, nil
	}
	if r.Lenient {
		logger := r.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("configured name does not resolve",
			slog.String("pass", r.Pass),
			slog.String("kind", what),
			slog.String("signature", sig),
		)
		return 0, false, nil
	}
	return 0, false, &InvariantError{
		Pass:      r.Pass,
		Signature: sig,
		Reason:    "configured " + what + " does not resolve",
		Err:       index.ErrUnresolved,
	}
}

// ResolveAll resolves sigs in order, dropping lenient misses.
func (r Resolver) ResolveAll(sigs []string, what string) ([]decl.ID, error) {
	var ids []decl.ID
	for _, sig := range sigs {
		id, ok, err := r.Resolve(sig, what)
		if err != nil {
			return nil, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
