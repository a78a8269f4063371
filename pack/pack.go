// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/placer-foundation/placer/keyring"
	"github.com/placer-foundation/placer/lib/clock"
	"github.com/placer-foundation/placer/lib/secret"
	"github.com/placer-foundation/placer/lib/tai64"
)

// MaxTimestampSkew is how far in the future a pack's date may be
// before it is rejected as malformed. Producer and consumer clocks
// drift; a day of slack covers that without accepting obviously bogus
// dates.
const MaxTimestampSkew = 24 * time.Hour

// Seal builds a signed, encrypted pack around a payload.
//
// signer must support the sign capability and encrypter the derive
// capability; the resulting pack names both by fingerprint. A fresh
// uuid is generated per call and bound into the key derivation, so
// sealing the same payload twice never reuses a key or nonce.
func Seal(payload *Payload, signer, encrypter keyring.KeyHandle, clk clock.Clock) (*Pack, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("pack: generating uuid: %w", err)
	}

	plaintext, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	defer secret.Zero(plaintext)

	derived, err := encrypter.DeriveEncryptionKey([]byte(id.String()))
	if err != nil {
		return nil, fmt.Errorf("pack: deriving encryption key: %w", err)
	}
	defer derived.Close()

	ciphertext, err := sealBytes(derived.Bytes(), plaintext, id[:])
	if err != nil {
		return nil, fmt.Errorf("pack: sealing payload: %w", err)
	}

	p := &Pack{
		UUID:                     id,
		Date:                     tai64.FromTime(clk.Now()),
		SigningKeyFingerprint:    signer.Fingerprint(),
		EncryptionKeyFingerprint: encrypter.Fingerprint(),
		Ciphertext:               ciphertext,
	}

	signingBytes, err := p.signingBytes()
	if err != nil {
		return nil, fmt.Errorf("pack: canonical header: %w", err)
	}
	p.Signature, err = signer.Sign(signingBytes)
	if err != nil {
		return nil, fmt.Errorf("pack: signing: %w", err)
	}
	return p, nil
}

// VerifyAndDecrypt authenticates the pack against the keyring and, on
// success, returns the decrypted payload. The order is strict and
// fail-closed:
//
//  1. Reject dates more than MaxTimestampSkew in the future.
//  2. Resolve the signing key fingerprint.
//  3. Verify the signature over the canonical header bytes.
//  4. Resolve the encryption key fingerprint.
//  5. Derive the per-pack key bound to the uuid and decrypt.
//  6. Decode the payload.
//
// No key material is touched and no ciphertext is opened before the
// signature verifies. Error types name the failing step:
// *MalformedPackError, *keyring.KeyNotFoundError,
// *SignatureInvalidError, *DecryptionFailedError,
// *MalformedPayloadError. The caller owns the returned payload and
// should Close it once the plaintext is no longer needed.
func (p *Pack) VerifyAndDecrypt(ring *keyring.Keyring, clk clock.Clock) (*Payload, error) {
	if skew := p.Date.Time().Sub(clk.Now()); skew > MaxTimestampSkew {
		return nil, &MalformedPackError{Reason: fmt.Sprintf("dated %s in the future", skew.Round(time.Second))}
	}

	verifier, err := ring.Resolve(p.SigningKeyFingerprint)
	if err != nil {
		return nil, err
	}
	signingBytes, err := p.signingBytes()
	if err != nil {
		return nil, &MalformedPackError{Reason: "canonical header", Err: err}
	}
	if err := verifier.Verify(signingBytes, p.Signature); err != nil {
		return nil, &SignatureInvalidError{Fingerprint: p.SigningKeyFingerprint, Err: err}
	}

	decrypter, err := ring.Resolve(p.EncryptionKeyFingerprint)
	if err != nil {
		return nil, err
	}
	derived, err := decrypter.DeriveEncryptionKey([]byte(p.UUID.String()))
	if err != nil {
		return nil, &DecryptionFailedError{UUID: p.UUID.String(), Err: err}
	}
	defer derived.Close()

	plaintext, err := openBytes(derived.Bytes(), p.Ciphertext, p.UUID[:])
	if err != nil {
		return nil, &DecryptionFailedError{UUID: p.UUID.String(), Err: err}
	}
	defer secret.Zero(plaintext)

	payload, err := decodePayload(plaintext)
	if err != nil {
		return nil, &MalformedPayloadError{UUID: p.UUID.String(), Err: err}
	}
	return payload, nil
}
