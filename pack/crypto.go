// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/placer-foundation/placer/keyring"
)

// splitDerived carves a derived key buffer into the AEAD key and the
// synthetic nonce. The buffer stays owned by the caller; both slices
// alias guarded memory and must not outlive it.
func splitDerived(derived []byte) (key, nonce []byte, err error) {
	if len(derived) != keyring.DerivedKeySize {
		return nil, nil, fmt.Errorf("derived key material is %d bytes, want %d", len(derived), keyring.DerivedKeySize)
	}
	return derived[:chacha20poly1305.KeySize], derived[chacha20poly1305.KeySize:], nil
}

// sealBytes encrypts plaintext under derived key material. The nonce
// is synthetic (derived alongside the key, both bound to the pack
// uuid), so a given (master secret, uuid) pair seals deterministically.
// additionalData is authenticated but not encrypted; packs pass the
// uuid bytes so the ciphertext cannot be replayed under another uuid.
func sealBytes(derived, plaintext, additionalData []byte) ([]byte, error) {
	key, nonce, err := splitDerived(derived)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AEAD: %w", err)
	}
	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// openBytes decrypts and authenticates ciphertext sealed by sealBytes.
func openBytes(derived, ciphertext, additionalData []byte) ([]byte, error) {
	key, nonce, err := splitDerived(derived)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("constructing AEAD: %w", err)
	}
	return aead.Open(nil, nonce, ciphertext, additionalData)
}
