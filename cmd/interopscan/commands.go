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
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/interopscan/services/interop/analysis"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	exitOK        = 0
	exitFailure   = 1
	exitInvariant = 2
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	universe   string
	logLevel   string
	jsonLogs   bool
}

// app carries the flags and output streams of one invocation.
type app struct {
	flags  globalFlags
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "interopscan",
		Short:         "Classify C++ declarations for binding generation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "configuration file (YAML)")
	pf.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file with INTEROPSCAN_* overrides")
	pf.StringVar(&a.flags.universe, "universe", "", "declaration universe (YAML or JSON)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&a.flags.jsonLogs, "json-logs", false, "always log JSON")

	root.AddCommand(
		newRunCmd(a),
		newTestCmd(a),
		newExplainCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "interopscan %s\n", version)
		},
	}
}

// execute runs the command line and maps the outcome to an exit status.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		var fe *analysis.FixtureError
		if errors.As(err, &fe) && fe.Diff != "" {
			fmt.Fprintln(stderr, fe.Diff)
		}
		return exitCode(err)
	}
	return exitOK
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, analysis.ErrInvariant):
		return exitInvariant
	default:
		return exitFailure
	}
}
