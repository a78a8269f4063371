// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"fmt"

	"github.com/placer-foundation/placer/lib/secret"
)

// Module is a session with an external security module (an HSM or
// similar). Keys live inside the module and are addressed by label;
// raw key material never crosses this interface except as derived,
// per-pack output.
//
// Implementations are expected to hold a single authenticated session
// for the process lifetime. All methods must be safe for concurrent
// use, matching the keyring's read-only concurrency contract.
type Module interface {
	// Verify checks a signature with the module-resident key.
	Verify(keyLabel string, message, signature []byte) error

	// Sign signs message with the module-resident key.
	Sign(keyLabel string, message []byte) ([]byte, error)

	// DeriveKey derives length bytes of key material from the
	// module-resident secret, bound to the given context.
	DeriveKey(keyLabel string, context []byte, length int) ([]byte, error)
}

// moduleKey delegates every operation to a Module session. The handle
// itself holds only the key label and fingerprint — no key bytes.
type moduleKey struct {
	fingerprint  string
	keyLabel     string
	capabilities CapabilitySet
	module       Module
}

// NewModuleKey creates a handle whose operations are delegated to an
// external security module session. The fingerprint is supplied by the
// operator's keyring definition (the module knows its keys by label,
// not by placer fingerprint).
func NewModuleKey(module Module, keyLabel, fingerprint string, capabilities CapabilitySet) (KeyHandle, error) {
	if module == nil {
		return nil, fmt.Errorf("keyring: nil security module")
	}
	if keyLabel == "" || fingerprint == "" {
		return nil, fmt.Errorf("keyring: module key needs both a key label and a fingerprint")
	}
	return &moduleKey{
		fingerprint:  fingerprint,
		keyLabel:     keyLabel,
		capabilities: capabilities,
		module:       module,
	}, nil
}

func (k *moduleKey) Fingerprint() string         { return k.fingerprint }
func (k *moduleKey) Capabilities() CapabilitySet { return k.capabilities }

// Close is a no-op: the module session outlives individual handles.
func (k *moduleKey) Close() error { return nil }

func (k *moduleKey) Verify(message, signature []byte) error {
	if !k.capabilities.Has(CapabilityVerify) {
		return &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilityVerify}
	}
	return k.module.Verify(k.keyLabel, message, signature)
}

func (k *moduleKey) Sign(message []byte) ([]byte, error) {
	if !k.capabilities.Has(CapabilitySign) {
		return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilitySign}
	}
	return k.module.Sign(k.keyLabel, message)
}

func (k *moduleKey) DeriveEncryptionKey(context []byte) (*secret.Buffer, error) {
	if !k.capabilities.Has(CapabilityDeriveEncryptionKey) {
		return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilityDeriveEncryptionKey}
	}

	derived, err := k.module.DeriveKey(k.keyLabel, context, DerivedKeySize)
	if err != nil {
		return nil, fmt.Errorf("keyring: module derivation: %w", err)
	}
	if len(derived) != DerivedKeySize {
		secret.Zero(derived)
		return nil, fmt.Errorf("keyring: module derived %d bytes, want %d", len(derived), DerivedKeySize)
	}

	// Move the derived material into guarded memory; NewFromBytes
	// zeros the module's returned slice.
	return secret.NewFromBytes(derived)
}
