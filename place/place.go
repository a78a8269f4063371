// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/placer-foundation/placer/pack"
)

// tempPrefix names in-progress placement files. Only temp-then-rename
// ever touches a target path.
const tempPrefix = ".placer-tmp-"

// Apply places one payload file according to spec. The body is
// written to a temporary file in the target directory, ownership and
// mode are set, before hooks run against it, and the temporary file
// is renamed over the target. After hooks run against the placed
// path.
//
// When the target already holds exactly the incoming body, the
// placement (including all hooks) is skipped: re-applying the same
// pack is a no-op.
//
// Failures before the rename are *PlacementError or *HookError and
// leave the target untouched. A *HookError after the rename means the
// file is placed but an after hook failed.
func Apply(file *pack.File, spec *FileSpec, logger *slog.Logger) error {
	if unchanged, err := targetUnchanged(spec.Path, file.Body); err == nil && unchanged {
		logger.Info("target already up to date", "path", spec.Path, "filename", file.Filename)
		return nil
	}

	dir := filepath.Dir(spec.Path)
	temp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return &PlacementError{Path: spec.Path, Op: "creating temp file", Err: err}
	}
	tempPath := temp.Name()
	defer os.Remove(tempPath)

	if _, err := temp.Write(file.Body); err != nil {
		temp.Close()
		return &PlacementError{Path: spec.Path, Op: "writing temp file", Err: err}
	}
	if err := temp.Chmod(os.FileMode(spec.Mode)); err != nil {
		temp.Close()
		return &PlacementError{Path: spec.Path, Op: "setting mode", Err: err}
	}
	if spec.UID >= 0 || spec.GID >= 0 {
		if err := temp.Chown(spec.UID, spec.GID); err != nil {
			temp.Close()
			return &PlacementError{Path: spec.Path, Op: "setting ownership", Err: err}
		}
	}
	if err := temp.Close(); err != nil {
		return &PlacementError{Path: spec.Path, Op: "closing temp file", Err: err}
	}

	for _, hook := range spec.Before {
		if err := runHook(hook, tempPath); err != nil {
			return err
		}
	}

	if err := os.Rename(tempPath, spec.Path); err != nil {
		return &PlacementError{Path: spec.Path, Op: "renaming into place", Err: err}
	}
	logger.Info("placed file", "path", spec.Path, "filename", file.Filename, "bytes", len(file.Body))

	for _, hook := range spec.After {
		if err := runHook(hook, spec.Path); err != nil {
			return err
		}
	}
	return nil
}

// targetUnchanged reports whether the target already holds body,
// comparing SHA-256 digests.
func targetUnchanged(path string, body []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	existingSum := sha256.Sum256(existing)
	bodySum := sha256.Sum256(body)
	return bytes.Equal(existingSum[:], bodySum[:]), nil
}

// runHook executes one hook command with %f expanded to path. Exit
// status and death-by-signal both surface as *HookError.
func runHook(hook Hook, path string) error {
	argv := hook.expand(path)
	if len(argv) == 0 {
		return &HookError{Path: path, Hook: hook, Err: fmt.Errorf("empty hook")}
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			err = fmt.Errorf("%w: %s", err, bytes.TrimSpace(output))
		}
		return &HookError{Path: path, Hook: argv, Err: err}
	}
	return nil
}
