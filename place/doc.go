// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package place applies verified pack payloads to the filesystem.
//
// Placement is atomic: the file body is written to a temporary file
// in the target directory, ownership and mode are set, and the
// temporary file is renamed over the target. No partially written
// target is ever observable. Hooks run around the rename: before
// hooks inspect the temporary file and can abort placement, after
// hooks run against the placed path and cannot revert it.
//
// Rejected packs go to quarantine, stored verbatim and named by pack
// uuid (or by content hash when the bytes are too broken to carry a
// uuid). Quarantined bytes are never loaded as live configuration.
//
// The cache keeps the last accepted pack per (source, pack name) so
// that a source re-emitting unchanged content is suppressed without
// re-verification. Entries are compressed with a tagged algorithm,
// zstd by default.
//
// The package also tracks the lifecycle of each (source, pack name)
// pair so that duplicate, stale, and previously quarantined packs are
// dropped before any key material is touched.
package place
