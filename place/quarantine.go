// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Quarantine retains rejected pack bytes for forensic review. Stored
// artifacts are verbatim copies of what the source delivered and are
// never loaded back as live data.
type Quarantine struct {
	dir    string
	mode   os.FileMode
	logger *slog.Logger
}

// NewQuarantine opens (creating if needed) a quarantine directory.
// mode applies to stored artifacts.
func NewQuarantine(dir string, mode os.FileMode, logger *slog.Logger) (*Quarantine, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("quarantine: creating %s: %w", dir, err)
	}
	return &Quarantine{dir: dir, mode: mode, logger: logger}, nil
}

// Store writes raw under a deterministic name: the pack uuid when the
// caller could parse one, otherwise the BLAKE3 hash of the bytes. A
// pack quarantined twice lands on the same name, so re-deliveries of
// a rejected uuid are absorbed. Returns the artifact path.
func (q *Quarantine) Store(raw []byte, uuid, reason string) (string, error) {
	name := uuid
	if name == "" {
		sum := blake3.Sum256(raw)
		name = hex.EncodeToString(sum[:])
	}
	target := filepath.Join(q.dir, name+".pack")

	if _, err := os.Stat(target); err == nil {
		q.logger.Warn("pack already quarantined", "artifact", target, "reason", reason)
		return target, nil
	}

	temp, err := os.CreateTemp(q.dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("quarantine: creating temp file: %w", err)
	}
	defer os.Remove(temp.Name())
	if _, err := temp.Write(raw); err != nil {
		temp.Close()
		return "", fmt.Errorf("quarantine: writing artifact: %w", err)
	}
	if err := temp.Chmod(q.mode); err != nil {
		temp.Close()
		return "", fmt.Errorf("quarantine: setting mode: %w", err)
	}
	if err := temp.Close(); err != nil {
		return "", fmt.Errorf("quarantine: closing artifact: %w", err)
	}
	if err := os.Rename(temp.Name(), target); err != nil {
		return "", fmt.Errorf("quarantine: committing artifact: %w", err)
	}

	q.logger.Warn("pack quarantined", "artifact", target, "reason", reason)
	return target, nil
}
