// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
)

// KeyURI type prefixes. The prefix names the algorithm so a key can
// never be misused under a different scheme than it was generated for.
const (
	// VerifyKeyPrefix identifies an Ed25519 public (verification) key.
	VerifyKeyPrefix = "public.key:ed25519"

	// SigningKeyPrefix identifies an Ed25519 secret (signing) seed.
	SigningKeyPrefix = "secret.key:ed25519"

	// EncryptionKeyPrefix identifies a 256-bit master encryption
	// secret for HKDF-SHA256 derivation feeding XChaCha20-Poly1305.
	EncryptionKeyPrefix = "secret.key:xchacha20poly1305+hkdfs256"

	// FingerprintPrefix identifies a SHA-256 key fingerprint.
	FingerprintPrefix = "public.fingerprint:sha-256"
)

// base32k is the KeyURI body encoding: lowercase RFC 4648 base32
// without padding. Lowercase keeps URIs shell- and log-friendly;
// no padding keeps them fixed-length for a given key size.
var base32k = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// EncodeKeyURI encodes raw key bytes under the given type prefix.
func EncodeKeyURI(prefix string, key []byte) string {
	return prefix + ":" + base32k.EncodeToString(key)
}

// DecodeKeyURI splits a KeyURI into its type prefix and raw key bytes.
func DecodeKeyURI(uri string) (prefix string, key []byte, err error) {
	separator := strings.LastIndex(uri, ":")
	if separator < 0 || separator == len(uri)-1 {
		return "", nil, fmt.Errorf("malformed KeyURI (no body): %q", uri)
	}

	prefix = uri[:separator]
	key, err = base32k.DecodeString(uri[separator+1:])
	if err != nil {
		return "", nil, fmt.Errorf("malformed KeyURI body: %w", err)
	}
	return prefix, key, nil
}

// Fingerprint computes the fingerprint KeyURI for any KeyURI: the
// SHA-256 of the URI string under the fingerprint prefix. Signing keys
// fingerprint over the public KeyURI (producer and verifier agree);
// shared encryption secrets fingerprint over the secret URI, which
// both ends hold.
func Fingerprint(uri string) string {
	digest := sha256.Sum256([]byte(uri))
	return EncodeKeyURI(FingerprintPrefix, digest[:])
}
