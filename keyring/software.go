// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package keyring

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/placer-foundation/placer/lib/secret"
)

// DerivedKeySize is the amount of key material DeriveEncryptionKey
// produces: a 32-byte XChaCha20-Poly1305 key followed by a 24-byte
// synthetic nonce. Both are functions of (master secret, context), so
// the same pack uuid always derives the same key and nonce.
const DerivedKeySize = 56

// EncryptionKeySize is the required size of a master encryption secret.
const EncryptionKeySize = 32

// hkdfInfoPack is the HKDF-SHA256 info prefix for per-pack key
// derivation. The derivation context (pack uuid) is appended, binding
// the derived key to exactly one pack.
var hkdfInfoPack = []byte("placer.pack.key.v1")

// softwareVerifyKey is a verification-only handle over an Ed25519
// public key. Public keys are not secret, so no guarded memory is
// involved.
type softwareVerifyKey struct {
	fingerprint string
	publicKey   ed25519.PublicKey
}

// NewSoftwareVerifyKey creates a verify-capable handle from an Ed25519
// public key.
func NewSoftwareVerifyKey(publicKey ed25519.PublicKey) (KeyHandle, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keyring: Ed25519 public key is %d bytes, want %d", len(publicKey), ed25519.PublicKeySize)
	}
	uri := EncodeKeyURI(VerifyKeyPrefix, publicKey)
	return &softwareVerifyKey{
		fingerprint: Fingerprint(uri),
		publicKey:   append(ed25519.PublicKey(nil), publicKey...),
	}, nil
}

func (k *softwareVerifyKey) Fingerprint() string         { return k.fingerprint }
func (k *softwareVerifyKey) Capabilities() CapabilitySet { return CapabilitySet(CapabilityVerify) }
func (k *softwareVerifyKey) Close() error                { return nil }

func (k *softwareVerifyKey) Verify(message, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("keyring: signature is %d bytes, want %d", len(signature), ed25519.SignatureSize)
	}
	if !ed25519.Verify(k.publicKey, message, signature) {
		return fmt.Errorf("keyring: signature verification failed")
	}
	return nil
}

func (k *softwareVerifyKey) Sign([]byte) ([]byte, error) {
	return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilitySign}
}

func (k *softwareVerifyKey) DeriveEncryptionKey([]byte) (*secret.Buffer, error) {
	return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilityDeriveEncryptionKey}
}

// softwareSigningKey holds an Ed25519 seed in guarded memory. It can
// sign and verify; the fingerprint is computed over the public KeyURI,
// matching the fingerprint a verify-only keyring registers the
// corresponding public key under.
type softwareSigningKey struct {
	fingerprint string
	seed        *secret.Buffer
}

// NewSoftwareSigningKey creates a sign+verify handle from an Ed25519
// seed. The seed is moved into guarded memory; the source slice is
// zeroed. The handle owns the guarded copy and releases it on Close.
//
// The fingerprint is computed over the corresponding public KeyURI,
// so a producer signing with this handle and a target machine holding
// only the public key agree on the pack's signing key fingerprint.
func NewSoftwareSigningKey(seed []byte) (KeyHandle, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("keyring: Ed25519 seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	publicURI := EncodeKeyURI(VerifyKeyPrefix, privateKey.Public().(ed25519.PublicKey))
	secret.Zero(privateKey)

	buffer, err := secret.NewFromBytes(seed)
	if err != nil {
		return nil, fmt.Errorf("keyring: protecting signing seed: %w", err)
	}
	return &softwareSigningKey{
		fingerprint: Fingerprint(publicURI),
		seed:        buffer,
	}, nil
}

func (k *softwareSigningKey) Fingerprint() string { return k.fingerprint }

func (k *softwareSigningKey) Capabilities() CapabilitySet {
	return CapabilitySet(CapabilitySign | CapabilityVerify)
}

func (k *softwareSigningKey) Close() error { return k.seed.Close() }

func (k *softwareSigningKey) Sign(message []byte) ([]byte, error) {
	// ed25519.NewKeyFromSeed copies the seed into a heap-allocated
	// private key; zero that copy as soon as the signature exists.
	privateKey := ed25519.NewKeyFromSeed(k.seed.Bytes())
	signature := ed25519.Sign(privateKey, message)
	secret.Zero(privateKey)
	return signature, nil
}

// Verify recomputes the deterministic Ed25519 signature over message
// and compares it against the presented signature in constant time.
func (k *softwareSigningKey) Verify(message, signature []byte) error {
	expected, err := k.Sign(message)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, signature) != 1 {
		return fmt.Errorf("keyring: signature verification failed")
	}
	return nil
}

func (k *softwareSigningKey) DeriveEncryptionKey([]byte) (*secret.Buffer, error) {
	return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilityDeriveEncryptionKey}
}

// PublicKey returns the verification key for a software signing
// handle. Used by the producer to print the verify KeyURI to register
// on target machines.
func (k *softwareSigningKey) PublicKey() ed25519.PublicKey {
	privateKey := ed25519.NewKeyFromSeed(k.seed.Bytes())
	publicKey := append(ed25519.PublicKey(nil), privateKey.Public().(ed25519.PublicKey)...)
	secret.Zero(privateKey)
	return publicKey
}

// softwareEncryptionKey holds a 256-bit master encryption secret in
// guarded memory and derives per-pack key material via HKDF-SHA256.
type softwareEncryptionKey struct {
	fingerprint string
	master      *secret.Buffer
}

// NewSoftwareEncryptionKey creates a derive-capable handle from a
// 32-byte master secret. The secret is moved into guarded memory; the
// source slice is zeroed.
func NewSoftwareEncryptionKey(master []byte) (KeyHandle, error) {
	if len(master) != EncryptionKeySize {
		return nil, fmt.Errorf("keyring: master encryption secret is %d bytes, want %d", len(master), EncryptionKeySize)
	}
	uri := EncodeKeyURI(EncryptionKeyPrefix, master)
	buffer, err := secret.NewFromBytes(master)
	if err != nil {
		return nil, fmt.Errorf("keyring: protecting encryption secret: %w", err)
	}
	return &softwareEncryptionKey{
		fingerprint: Fingerprint(uri),
		master:      buffer,
	}, nil
}

func (k *softwareEncryptionKey) Fingerprint() string { return k.fingerprint }

func (k *softwareEncryptionKey) Capabilities() CapabilitySet {
	return CapabilitySet(CapabilityDeriveEncryptionKey)
}

func (k *softwareEncryptionKey) Close() error { return k.master.Close() }

func (k *softwareEncryptionKey) DeriveEncryptionKey(context []byte) (*secret.Buffer, error) {
	if len(context) == 0 {
		return nil, fmt.Errorf("keyring: empty derivation context")
	}

	info := make([]byte, 0, len(hkdfInfoPack)+len(context))
	info = append(info, hkdfInfoPack...)
	info = append(info, context...)

	derived, err := secret.New(DerivedKeySize)
	if err != nil {
		return nil, fmt.Errorf("keyring: allocating derived key: %w", err)
	}

	reader := hkdf.New(sha256.New, k.master.Bytes(), nil, info)
	if _, err := io.ReadFull(reader, derived.Bytes()); err != nil {
		derived.Close()
		return nil, fmt.Errorf("keyring: HKDF derivation: %w", err)
	}
	return derived, nil
}

func (k *softwareEncryptionKey) Verify([]byte, []byte) error {
	return &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilityVerify}
}

func (k *softwareEncryptionKey) Sign([]byte) ([]byte, error) {
	return nil, &CapabilityError{Fingerprint: k.fingerprint, Capability: CapabilitySign}
}
