// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the shared entrypoint error handler for placer
// binaries.
package process

import (
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. This is
// the standard placer binary entrypoint error handler. Use it in main()
// for errors from run() where the structured logger may not be
// initialized. Exit code 1 is reserved for unrecoverable startup
// failures (unreadable keyring, invalid configuration); a clean
// shutdown exits 0.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
