// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

// Package pack implements the signed, encrypted container format that
// carries configuration files from a producer to target machines.
//
// A pack on the wire is the magic prefix "placer-pack:v1" followed by
// a CBOR map with stable integer keys (additive-only evolution):
// uuid, TAI64N date, signing key fingerprint, encryption key
// fingerprint, Ed25519 signature, and ciphertext. The signature covers
// the Core Deterministic CBOR encoding of (date, signing fingerprint,
// encryption fingerprint, ciphertext), so any verifier reproduces the
// exact signed bytes.
//
// Opening a pack is fail-closed: the signature is verified before a
// single byte of ciphertext is interpreted. Decryption then derives a
// per-pack key and synthetic nonce from the master encryption secret
// with the pack uuid as derivation context (HKDF-SHA256 feeding
// XChaCha20-Poly1305), binding the key to exactly this pack and
// making accidental uuid reuse the only way to repeat a nonce.
//
// The plaintext is a Payload: an ordered sequence of files, each with
// a logical filename (a key into the placement configuration, not a
// filesystem path), content type, TAI64N modification time, and body.
package pack
