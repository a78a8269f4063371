// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Hook is one hook command: argv with an optional %f placeholder that
// expands to the file path the hook runs against.
type Hook []string

// expand returns the hook argv with %f replaced by path.
func (h Hook) expand(path string) []string {
	argv := make([]string, len(h))
	for i, arg := range h {
		argv[i] = strings.ReplaceAll(arg, "%f", path)
	}
	return argv
}

// FileSpec is one placement rule: which payload file of which pack
// lands where, owned by whom, with which hooks. Built from validated
// configuration; user and group names are already resolved to ids.
type FileSpec struct {
	// Path is the canonical absolute target path.
	Path string

	// Pack is the pack name this rule listens to.
	Pack string

	// Filename is the payload filename this rule matches.
	Filename string

	// UID and GID own the placed file. -1 leaves ownership to the
	// daemon's own credentials.
	UID int
	GID int

	// Mode is the permission bits of the placed file.
	Mode uint32

	// Before hooks run against the temporary file prior to the
	// rename. A failing before hook aborts the placement.
	Before []Hook

	// After hooks run against the placed path following the rename.
	// A failing after hook is reported; the placement stands.
	After []Hook
}

// Validate checks the parts of a spec that do not need the
// filesystem.
func (s *FileSpec) Validate() error {
	if !filepath.IsAbs(s.Path) {
		return fmt.Errorf("target path %q is not absolute", s.Path)
	}
	if s.Path != filepath.Clean(s.Path) {
		return fmt.Errorf("target path %q is not canonical", s.Path)
	}
	if s.Pack == "" {
		return fmt.Errorf("target path %q has no pack name", s.Path)
	}
	if s.Filename == "" {
		return fmt.Errorf("target path %q has no payload filename", s.Path)
	}
	if s.Mode&^uint32(0o7777) != 0 {
		return fmt.Errorf("target path %q has invalid mode %o", s.Path, s.Mode)
	}
	for _, hook := range append(append([]Hook{}, s.Before...), s.After...) {
		if len(hook) == 0 {
			return fmt.Errorf("target path %q has an empty hook", s.Path)
		}
	}
	return nil
}

// PlacementError reports a filesystem failure while placing one file.
// Sibling files from the same payload are still attempted.
type PlacementError struct {
	Path string
	Op   string
	Err  error
}

func (e *PlacementError) Error() string {
	return fmt.Sprintf("placing %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PlacementError) Unwrap() error { return e.Err }

// HookError reports a hook command that exited non-zero or died on a
// signal. For before hooks the placement was aborted; for after hooks
// the placed file stands.
type HookError struct {
	Path string
	Hook []string
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %v for %s: %v", e.Hook, e.Path, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
