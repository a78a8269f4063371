// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyring resolves key fingerprints to key handles.
//
// The keyring is constructed once at startup from a keyring file and
// is read-only for the process lifetime, so concurrent resolution from
// multiple source pipelines needs no locking. It is passed by reference
// to the components that need resolution — never held as ambient global
// state — so tests can build fixture keyrings in isolation.
//
// A [KeyHandle] is polymorphic over the capability set {verify, sign,
// derive-encryption-key} with two variants:
//
//   - Software-backed: raw key bytes held in a secret.Buffer
//     (mmap-backed, locked against swap, zeroed on Close).
//   - Module-backed: holds only a session reference to an external
//     security module. Raw key material never enters process memory;
//     signing and key derivation are delegated to the module.
//
// Keys are identified by KeyURI-style strings with a type prefix and
// unpadded base32 body, e.g. "public.key:ed25519:...". Fingerprints are
// the SHA-256 of the canonical KeyURI under the
// "public.fingerprint:sha-256:" prefix.
package keyring
