// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package place

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuarantineStoreByUUID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "quarantine")
	q, err := NewQuarantine(dir, 0o600, testLogger())
	if err != nil {
		t.Fatalf("NewQuarantine() error: %v", err)
	}

	raw := []byte("rejected pack bytes")
	path, err := q.Store(raw, "3f2504e0-4f89-41d3-9a0c-0305e82c3301", "signature invalid")
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if filepath.Base(path) != "3f2504e0-4f89-41d3-9a0c-0305e82c3301.pack" {
		t.Errorf("artifact name = %s", filepath.Base(path))
	}

	stored, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !bytes.Equal(stored, raw) {
		t.Error("artifact bytes differ from the rejected pack")
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("artifact mode = %o, want %o", info.Mode().Perm(), 0o600)
	}
}

func TestQuarantineStoreByContentHash(t *testing.T) {
	q, err := NewQuarantine(filepath.Join(t.TempDir(), "q"), 0o600, testLogger())
	if err != nil {
		t.Fatalf("NewQuarantine() error: %v", err)
	}

	first, err := q.Store([]byte("garbage with no uuid"), "", "bad magic")
	if err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	name := filepath.Base(first)
	if !strings.HasSuffix(name, ".pack") || len(name) != 64+len(".pack") {
		t.Errorf("content-hash artifact name = %s", name)
	}

	// Same bytes land on the same artifact.
	second, err := q.Store([]byte("garbage with no uuid"), "", "bad magic")
	if err != nil {
		t.Fatalf("second Store() error: %v", err)
	}
	if second != first {
		t.Errorf("re-quarantine path = %s, want %s", second, first)
	}
}

func TestQuarantineDeterministicRedelivery(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "q")
	q, err := NewQuarantine(dir, 0o600, testLogger())
	if err != nil {
		t.Fatalf("NewQuarantine() error: %v", err)
	}

	if _, err := q.Store([]byte("bytes"), "uuid-x", "decryption failed"); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	if _, err := q.Store([]byte("bytes"), "uuid-x", "decryption failed"); err != nil {
		t.Fatalf("re-delivery Store() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("quarantine holds %d artifacts, want 1", len(entries))
	}
}
