// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command interopscan classifies the declarations of a C++ universe for
// binding generation: whether each one can be imported, what it depends
// on, and whether it is safe to share across threads.
//
// Usage:
//
//	interopscan run --universe decls.yaml --config interop.yaml --out results/
//	interopscan run --universe decls.yaml --watch
//	interopscan test --universe decls.yaml --fixtures testdata/golden
//	interopscan explain --universe decls.yaml 'app::Widget'
//
// Exit status is 0 on success, 2 when an analysis invariant is violated
// (including golden fixture mismatches) and 1 for every other failure.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
