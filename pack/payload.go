// Copyright 2026 The Placer Authors
// SPDX-License-Identifier: Apache-2.0

package pack

import (
	"fmt"

	"github.com/placer-foundation/placer/lib/codec"
	"github.com/placer-foundation/placer/lib/secret"
	"github.com/placer-foundation/placer/lib/tai64"
)

// File is one named file carried inside a pack payload.
type File struct {
	// Filename is the name the producer gave the file. It selects
	// which placement rules apply; it is not a target path.
	Filename string `cbor:"1,keyasint"`

	// ContentType is an advisory media type, may be empty.
	ContentType string `cbor:"2,keyasint"`

	// ModifiedAt is the file's modification time at seal.
	ModifiedAt tai64.N `cbor:"3,keyasint"`

	// Body is the file content.
	Body []byte `cbor:"4,keyasint"`
}

// Payload is the decrypted content of a pack: an ordered sequence of
// files. Order is the producer's order and placement preserves it.
type Payload struct {
	Files []File `cbor:"1,keyasint"`
}

// Close zeroes the body of every file. Call it once the payload has
// been placed (or abandoned); the plaintext may hold credentials.
func (p *Payload) Close() {
	for i := range p.Files {
		secret.Zero(p.Files[i].Body)
		p.Files[i].Body = nil
	}
}

// encodePayload serializes a payload to its plaintext wire form.
func encodePayload(p *Payload) ([]byte, error) {
	encoded, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pack: encoding payload: %w", err)
	}
	return encoded, nil
}

// decodePayload parses decrypted plaintext. The caller maps failures
// to *MalformedPayloadError; at this point the bytes are authenticated
// so a structural error means a producer bug, not tampering.
func decodePayload(plaintext []byte) (*Payload, error) {
	var payload Payload
	if err := codec.Unmarshal(plaintext, &payload); err != nil {
		return nil, err
	}
	for i, file := range payload.Files {
		if file.Filename == "" {
			return nil, fmt.Errorf("file %d has an empty filename", i)
		}
	}
	return &payload, nil
}
