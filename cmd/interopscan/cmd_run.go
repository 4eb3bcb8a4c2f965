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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
	"github.com/AleutianAI/interopscan/services/interop/engine"
)

type runFlags struct {
	out      string
	watch    bool
	debounce time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze the universe and print a summary",
		Long: `Runs import classification, dependency edges and concurrency safety
over the universe. With --out, each pass's results are written to
<out>/<pass>.golden in fixture format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(s *session) error {
				once := func(ctx context.Context) error { return a.runOnce(ctx, s, f.out) }
				if !f.watch {
					return once(cmd.Context())
				}
				if err := once(cmd.Context()); err != nil {
					s.logger.Error("analysis failed", slog.String("error", err.Error()))
				}
				paths := []string{a.flags.universe}
				if a.flags.configPath != "" {
					paths = append(paths, a.flags.configPath)
				}
				rerun := func(ctx context.Context) error {
					if err := s.reload(a); err != nil {
						return err
					}
					return once(ctx)
				}
				return watch(cmd.Context(), paths, f.debounce, s.logger.Slog(), rerun)
			})
		},
	}
	cmd.Flags().StringVar(&f.out, "out", "", "directory receiving <pass>.golden result files")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "re-run whenever the universe or config changes")
	cmd.Flags().DurationVar(&f.debounce, "debounce", defaultDebounce, "quiet period before a watched change triggers a run")
	return cmd
}

func (a *app) runOnce(ctx context.Context, s *session, out string) error {
	res, err := s.analyze(ctx, a.flags.universe)
	if err != nil {
		return err
	}
	if out != "" {
		if err := writeResults(res, out); err != nil {
			return err
		}
	}
	s.logger.Info("analysis complete", slog.String("run_id", res.RunID))
	return res.Summary().Write(a.stdout)
}

func writeResults(res *engine.Results, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	for _, pass := range engine.PassNames {
		lines, err := res.Lines(pass)
		if err != nil {
			return err
		}
		var b strings.Builder
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
		path := filepath.Join(dir, pass+analysis.FixtureExt)
		if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	return nil
}
