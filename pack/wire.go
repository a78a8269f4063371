// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/placer-foundation/placer/lib/codec"
	"github.com/placer-foundation/placer/lib/tai64"
)

// Magic prefixes every encoded pack. The version is part of the magic:
// a future incompatible wire change bumps the suffix rather than
// teaching v1 decoders to guess.
const Magic = "placer-pack:v1"

// MaxPackSize bounds an encoded pack. Frames larger than this are
// rejected before any parsing happens.
const MaxPackSize = 1 << 20

// Pack is a decoded pack envelope. The ciphertext stays sealed until
// VerifyAndDecrypt succeeds.
type Pack struct {
	// UUID uniquely identifies this pack instance. It doubles as the
	// key derivation context, so two packs sealed under the same
	// master secret never share an encryption key.
	UUID uuid.UUID

	// Date is the pack creation time.
	Date tai64.N

	// SigningKeyFingerprint names the key that signed the pack.
	SigningKeyFingerprint string

	// EncryptionKeyFingerprint names the master secret the per-pack
	// encryption key was derived from.
	EncryptionKeyFingerprint string

	// Signature is the Ed25519 signature over the canonical header
	// bytes.
	Signature []byte

	// Ciphertext is the sealed payload.
	Ciphertext []byte
}

// packWire is the CBOR envelope. Field numbers are append-only.
type packWire struct {
	UUID                     string  `cbor:"1,keyasint"`
	Date                     tai64.N `cbor:"2,keyasint"`
	SigningKeyFingerprint    string  `cbor:"3,keyasint"`
	EncryptionKeyFingerprint string  `cbor:"4,keyasint"`
	Signature                []byte  `cbor:"5,keyasint"`
	Ciphertext               []byte  `cbor:"6,keyasint"`
}

// signedHeader is the canonical signing input: everything in the
// envelope except the uuid and the signature itself. The uuid is
// excluded because it is authenticated by the AEAD instead (it is the
// additional data of the ciphertext), so a swapped uuid fails
// decryption even though the signature still verifies.
type signedHeader struct {
	Date                     tai64.N `cbor:"1,keyasint"`
	SigningKeyFingerprint    string  `cbor:"2,keyasint"`
	EncryptionKeyFingerprint string  `cbor:"3,keyasint"`
	Ciphertext               []byte  `cbor:"4,keyasint"`
}

// signingBytes returns the deterministic CBOR encoding of the pack's
// signed header. Producer and verifier both call this, so signature
// stability rides entirely on the codec's canonical form.
func (p *Pack) signingBytes() ([]byte, error) {
	return codec.Marshal(signedHeader{
		Date:                     p.Date,
		SigningKeyFingerprint:    p.SigningKeyFingerprint,
		EncryptionKeyFingerprint: p.EncryptionKeyFingerprint,
		Ciphertext:               p.Ciphertext,
	})
}

// Encode serializes the pack: magic prefix followed by the CBOR
// envelope.
func (p *Pack) Encode() ([]byte, error) {
	body, err := codec.Marshal(packWire{
		UUID:                     p.UUID.String(),
		Date:                     p.Date,
		SigningKeyFingerprint:    p.SigningKeyFingerprint,
		EncryptionKeyFingerprint: p.EncryptionKeyFingerprint,
		Signature:                p.Signature,
		Ciphertext:               p.Ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("pack: encoding envelope: %w", err)
	}
	encoded := make([]byte, 0, len(Magic)+len(body))
	encoded = append(encoded, Magic...)
	encoded = append(encoded, body...)
	if len(encoded) > MaxPackSize {
		return nil, fmt.Errorf("pack: encoded pack is %d bytes, limit %d", len(encoded), MaxPackSize)
	}
	return encoded, nil
}

// Decode parses an encoded pack. It validates structure only; nothing
// about the result is trustworthy until VerifyAndDecrypt succeeds.
// Failures are *MalformedPackError.
func Decode(encoded []byte) (*Pack, error) {
	if len(encoded) > MaxPackSize {
		return nil, &MalformedPackError{Reason: fmt.Sprintf("%d bytes exceeds the %d byte limit", len(encoded), MaxPackSize)}
	}
	if !bytes.HasPrefix(encoded, []byte(Magic)) {
		return nil, &MalformedPackError{Reason: "bad magic"}
	}

	var wire packWire
	if err := codec.Unmarshal(encoded[len(Magic):], &wire); err != nil {
		return nil, &MalformedPackError{Reason: "envelope", Err: err}
	}

	id, err := uuid.Parse(wire.UUID)
	if err != nil {
		return nil, &MalformedPackError{Reason: "uuid", Err: err}
	}
	if wire.Date.IsZero() {
		return nil, &MalformedPackError{Reason: "missing date"}
	}
	if wire.SigningKeyFingerprint == "" {
		return nil, &MalformedPackError{Reason: "missing signing key fingerprint"}
	}
	if wire.EncryptionKeyFingerprint == "" {
		return nil, &MalformedPackError{Reason: "missing encryption key fingerprint"}
	}
	if len(wire.Signature) == 0 {
		return nil, &MalformedPackError{Reason: "missing signature"}
	}
	if len(wire.Ciphertext) == 0 {
		return nil, &MalformedPackError{Reason: "missing ciphertext"}
	}

	return &Pack{
		UUID:                     id,
		Date:                     wire.Date,
		SigningKeyFingerprint:    wire.SigningKeyFingerprint,
		EncryptionKeyFingerprint: wire.EncryptionKeyFingerprint,
		Signature:                wire.Signature,
		Ciphertext:               wire.Ciphertext,
	}, nil
}
