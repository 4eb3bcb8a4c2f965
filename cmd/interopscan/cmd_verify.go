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
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
)

var errNoFixtures = errors.New("no golden fixtures found")

func newTestCmd(a *app) *cobra.Command {
	var fixturesDir string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Analyze the universe and compare results with golden fixtures",
		Long: `Runs every pass and checks each <pass>.golden file in --fixtures
against the results of that pass. Any mismatch, unknown signature or
malformed line fails with exit status 2.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := filepath.Glob(filepath.Join(fixturesDir, "*"+analysis.FixtureExt))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("%w in %s", errNoFixtures, fixturesDir)
			}
			slices.Sort(paths)

			ctx := cmd.Context()
			fixtures, err := analysis.ReadFixtures(ctx, paths)
			if err != nil {
				return err
			}
			return a.withSession(ctx, func(s *session) error {
				res, err := s.analyze(ctx, a.flags.universe)
				if err != nil {
					return err
				}
				if err := res.Verify(ctx, fixtures); err != nil {
					return err
				}
				for _, fx := range fixtures {
					fmt.Fprintf(a.stdout, "ok   %s (%d lines)\n", fx.Path, len(fx.Lines))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fixturesDir, "fixtures", "testdata", "directory of <pass>.golden files")
	return cmd
}
