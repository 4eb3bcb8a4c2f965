// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/interopscan/services/interop/engine"
)

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <signature>",
		Short: "Show every result for one declaration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, func(s *session) error {
				res, err := s.analyze(ctx, a.flags.universe)
				if err != nil {
					return err
				}
				ex, err := res.Explain(args[0])
				if err != nil {
					return err
				}
				printExplanation(a.stdout, ex)
				return nil
			})
		},
	}
}

func printExplanation(w io.Writer, ex *engine.Explanation) {
	fmt.Fprintf(w, "%s\n", ex.Signature)
	fmt.Fprintf(w, "  import: %s\n", ex.Import)
	if len(ex.Edges) == 0 {
		fmt.Fprintf(w, "  deps:   (none)\n")
	} else {
		fmt.Fprintf(w, "  deps:   %s\n", strings.Join(ex.Edges, "\n          "))
	}
	fmt.Fprintf(w, "  safety: %s\n", ex.Safety)
	for _, b := range ex.Blocking {
		fmt.Fprintf(w, "    blocked by %s\n", b)
	}
}
