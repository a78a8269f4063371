// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"fmt"

	"github.com/placer-foundation/placer/lib/secret"
)

// Capability is one operation a key handle may support.
type Capability uint8

const (
	// CapabilityVerify allows signature verification.
	CapabilityVerify Capability = 1 << iota

	// CapabilitySign allows signature creation.
	CapabilitySign

	// CapabilityDeriveEncryptionKey allows per-pack key derivation
	// from the master encryption secret.
	CapabilityDeriveEncryptionKey
)

// String returns the capability name used in error messages.
func (c Capability) String() string {
	switch c {
	case CapabilityVerify:
		return "verify"
	case CapabilitySign:
		return "sign"
	case CapabilityDeriveEncryptionKey:
		return "derive-encryption-key"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// CapabilitySet is a bitmask of capabilities.
type CapabilitySet uint8

// Has reports whether the set contains the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	return uint8(s)&uint8(c) != 0
}

// KeyHandle is a resolved keyring entry. Implementations are either
// software-backed (key bytes in guarded memory) or module-backed
// (operations delegated to an external security module session).
//
// Operations outside the handle's capability set fail with a
// *CapabilityError.
type KeyHandle interface {
	// Fingerprint returns the fingerprint KeyURI this handle is
	// registered under.
	Fingerprint() string

	// Capabilities returns the operations this handle supports.
	Capabilities() CapabilitySet

	// Verify checks an Ed25519 signature over message. A nil return
	// means the signature is valid.
	Verify(message, signature []byte) error

	// Sign produces an Ed25519 signature over message.
	Sign(message []byte) ([]byte, error)

	// DeriveEncryptionKey derives per-pack key material bound to the
	// given derivation context (the pack uuid). The returned buffer
	// holds DerivedKeySize bytes and must be closed by the caller.
	DeriveEncryptionKey(context []byte) (*secret.Buffer, error)

	// Close releases any key material held by the handle. Idempotent.
	Close() error
}

// KeyNotFoundError reports a fingerprint with no keyring entry.
type KeyNotFoundError struct {
	// Fingerprint is the fingerprint KeyURI that failed to resolve.
	Fingerprint string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("keyring: no key for fingerprint %s", e.Fingerprint)
}

// CapabilityError reports an operation outside a handle's capability
// set — for example asking a verify-only public key to sign.
type CapabilityError struct {
	Fingerprint string
	Capability  Capability
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("keyring: key %s does not support %s", e.Fingerprint, e.Capability)
}
